package history

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Keras TensorBoard callback layout: one subdirectory per split, epoch-level
// scalars tagged "epoch_<metric>".
const (
	trainDir      = "train"
	validationDir = "validation"
	epochPrefix   = "epoch_"
)

// IsEventFile reports whether name looks like a TensorBoard event file
func IsEventFile(name string) bool {
	return strings.Contains(filepath.Base(name), "tfevents")
}

// LoadTensorBoardDir builds a History from TensorBoard event files.
// If dir has train/ and validation/ subdirectories, epoch_<metric> scalars of
// train/ become <metric> and those of validation/ become val_<metric>.
// Otherwise the event files directly inside dir are read and tags are used as
// metric keys. Event step n is labelled epoch n+1.
func LoadTensorBoardDir(dir string) (History, error) {
	scalars := make(map[string]map[int64]float64)

	keras := isDir(filepath.Join(dir, trainDir)) || isDir(filepath.Join(dir, validationDir))
	if keras {
		if err := collectScalars(filepath.Join(dir, trainDir), "", true, scalars); err != nil {
			return History{}, err
		}
		if err := collectScalars(filepath.Join(dir, validationDir), ValidationPrefix, true, scalars); err != nil {
			return History{}, err
		}
	} else if err := collectScalars(dir, "", false, scalars); err != nil {
		return History{}, err
	}

	if len(scalars) == 0 {
		return History{}, errors.Wrapf(ErrNoData, "no scalar events under %s", dir)
	}
	return fromScalars(scalars), nil
}

// EventFiles lists the event files directly inside dir in name order
func EventFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && IsEventFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadEventFile decodes every event of a single file
func ReadEventFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	events, err := ReadEvents(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return events, nil
}

func collectScalars(dir, keyPrefix string, epochTagsOnly bool, into map[string]map[int64]float64) error {
	if !isDir(dir) {
		return nil
	}

	files, err := EventFiles(dir)
	if err != nil {
		return err
	}

	for _, path := range files {
		events, err := ReadEventFile(path)
		if err != nil {
			return err
		}
		addScalars(events, keyPrefix, epochTagsOnly, into)
	}
	return nil
}

func addScalars(events []Event, keyPrefix string, epochTagsOnly bool, into map[string]map[int64]float64) {
	for _, ev := range events {
		for tag, value := range ev.Scalars {
			if epochTagsOnly {
				if !strings.HasPrefix(tag, epochPrefix) {
					continue
				}
				tag = strings.TrimPrefix(tag, epochPrefix)
			}
			key := keyPrefix + tag
			if into[key] == nil {
				into[key] = make(map[int64]float64)
			}
			// later files and records win, as when a run is resumed
			into[key][ev.Step] = value
		}
	}
}

// FromEvents builds a History from the events of a single file, using tags
// as metric keys
func FromEvents(events []Event) (History, error) {
	scalars := make(map[string]map[int64]float64)
	addScalars(events, "", false, scalars)
	if len(scalars) == 0 {
		return History{}, ErrNoData
	}
	return fromScalars(scalars), nil
}

// fromScalars aligns step-indexed values. Epochs are the union of all steps;
// a metric missing some steps keeps a shorter slice rather than being padded.
func fromScalars(scalars map[string]map[int64]float64) History {
	stepSet := make(map[int64]struct{})
	for _, byStep := range scalars {
		for step := range byStep {
			stepSet[step] = struct{}{}
		}
	}
	steps := make([]int64, 0, len(stepSet))
	for step := range stepSet {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })

	epochs := make([]int, len(steps))
	for i, step := range steps {
		epochs[i] = int(step) + 1
	}

	metrics := make(map[string][]float64, len(scalars))
	for key, byStep := range scalars {
		values := make([]float64, 0, len(byStep))
		for _, step := range steps {
			if v, ok := byStep[step]; ok {
				values = append(values, v)
			}
		}
		metrics[key] = values
	}

	return History{Epochs: epochs, Metrics: metrics}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
