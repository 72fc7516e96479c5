// Package history loads per-epoch training metrics (Keras history files,
// TensorBoard event logs, live epoch reports) and turns them into chart series.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tsawler/trainchart/chart"
)

// ValidationPrefix marks the held-out counterpart of a metric key
const ValidationPrefix = "val_"

var (
	// ErrUnknownMetric is returned when a metric or its validation counterpart is absent
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrNoData is returned when a source contains no per-epoch values
	ErrNoData = errors.New("no metric data")
	// ErrNonFinite is returned when a series holds NaN or an infinity, as a
	// diverged run does. Such values cannot be encoded for any chart engine.
	ErrNonFinite = errors.New("non-finite metric value")
)

// History holds per-epoch metric values of one training run.
// Metrics maps keys such as "accuracy" and "val_accuracy" to one value per epoch.
type History struct {
	Run     string               `json:"run"`
	Epochs  []int                `json:"epochs"`
	Metrics map[string][]float64 `json:"metrics"`
}

// Series returns the chart series for metric: the training values, the
// validation values and the epoch labels.
func (h History) Series(metric string) (chart.MetricSeries, error) {
	primary, ok := h.Metrics[metric]
	if !ok {
		return chart.MetricSeries{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	secondary, ok := h.Metrics[ValidationPrefix+metric]
	if !ok {
		return chart.MetricSeries{}, fmt.Errorf("%w: %q", ErrUnknownMetric, ValidationPrefix+metric)
	}

	if err := checkFinite(metric, primary); err != nil {
		return chart.MetricSeries{}, err
	}
	if err := checkFinite(ValidationPrefix+metric, secondary); err != nil {
		return chart.MetricSeries{}, err
	}

	labels := make([]any, len(h.Epochs))
	for i, e := range h.Epochs {
		labels[i] = json.Number(strconv.Itoa(e))
	}

	s := chart.MetricSeries{
		Primary:   append([]float64(nil), primary...),
		Secondary: append([]float64(nil), secondary...),
		Labels:    labels,
	}
	if err := s.Validate(); err != nil {
		return chart.MetricSeries{}, err
	}
	return s, nil
}

func checkFinite(key string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %q has %v at index %d", ErrNonFinite, key, v, i)
		}
	}
	return nil
}

// MetricNames returns the sorted training metric keys that have a validation counterpart
func (h History) MetricNames() []string {
	var names []string
	for key := range h.Metrics {
		if strings.HasPrefix(key, ValidationPrefix) {
			continue
		}
		if _, ok := h.Metrics[ValidationPrefix+key]; ok {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of recorded epochs
func (h History) Len() int {
	return len(h.Epochs)
}

// sequentialEpochs returns 1..n
func sequentialEpochs(n int) []int {
	epochs := make([]int, n)
	for i := range epochs {
		epochs[i] = i + 1
	}
	return epochs
}
