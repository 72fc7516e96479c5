package history

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// kerasFile is the wrapped form of a Keras history dump
type kerasFile struct {
	Epochs  []int                 `json:"epochs"`
	History map[string][]*float64 `json:"history"`
}

// LoadKerasJSON reads a Keras History.history dictionary such as
//
//	{"accuracy": [0.5, 0.6], "val_accuracy": [0.4, 0.5], "loss": [...], "val_loss": [...]}
//
// or the wrapped form {"epochs": [1, 2], "history": {...}} with explicit epoch labels.
// Without explicit labels the epochs are numbered from 1.
func LoadKerasJSON(r io.Reader) (History, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return History{}, errors.Wrap(err, "failed to read keras history")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return History{}, errors.Wrap(err, "failed to decode keras history")
	}

	var file kerasFile
	if _, wrapped := probe["history"]; wrapped {
		if err := json.Unmarshal(raw, &file); err != nil {
			return History{}, errors.Wrap(err, "failed to decode keras history")
		}
	} else {
		if err := json.Unmarshal(raw, &file.History); err != nil {
			return History{}, errors.Wrap(err, "failed to decode keras history")
		}
	}

	return fromKeras(file)
}

// LoadKerasJSONFile reads a Keras history file from disk
func LoadKerasJSONFile(path string) (History, error) {
	f, err := os.Open(path)
	if err != nil {
		return History{}, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	h, err := LoadKerasJSON(f)
	if err != nil {
		return History{}, errors.Wrapf(err, "failed to load %s", path)
	}
	return h, nil
}

func fromKeras(file kerasFile) (History, error) {
	if len(file.History) == 0 {
		return History{}, ErrNoData
	}

	keys := make([]string, 0, len(file.History))
	for key := range file.History {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	metrics := make(map[string][]float64, len(file.History))
	n := -1
	for _, key := range keys {
		values := file.History[key]
		out := make([]float64, len(values))
		for i, v := range values {
			if v == nil {
				return History{}, fmt.Errorf("metric %q: null value at epoch index %d", key, i)
			}
			out[i] = *v
		}
		metrics[key] = out
		if len(out) > n {
			n = len(out)
		}
	}

	epochs := file.Epochs
	if epochs == nil {
		epochs = sequentialEpochs(n)
	}

	return History{Epochs: epochs, Metrics: metrics}, nil
}

// WriteKerasJSON writes h in the wrapped Keras history form
func WriteKerasJSON(w io.Writer, h History) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Epochs  []int                `json:"epochs"`
		History map[string][]float64 `json:"history"`
	}{Epochs: h.Epochs, History: h.Metrics}); err != nil {
		return errors.Wrap(err, "failed to encode keras history")
	}
	return nil
}
