package history

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrEpochOrder is returned when an epoch is not greater than the last recorded one
	ErrEpochOrder = errors.New("epochs must be recorded in increasing order")
	// ErrMetricSet is returned when an epoch reports a different set of metrics than the first one
	ErrMetricSet = errors.New("epoch metrics differ from the recorded metric set")
)

// EpochMetrics holds the metric values reported at the end of one epoch
type EpochMetrics struct {
	Epoch   int                `json:"epoch"`
	Metrics map[string]float64 `json:"metrics"`
}

// Collector accumulates epoch metrics reported by a running training job.
// It is safe for concurrent use.
type Collector struct {
	mu      sync.RWMutex
	run     string
	enabled bool

	epochs  []int
	keys    []string
	metrics map[string][]float64
}

// NewCollector creates a new collector for run
func NewCollector(run string) *Collector {
	return &Collector{
		run:     run,
		enabled: false,
		epochs:  make([]int, 0),
		metrics: make(map[string][]float64),
	}
}

// Enable enables collection
func (c *Collector) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// Disable disables collection; Record calls are ignored until re-enabled
func (c *Collector) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
}

// IsEnabled returns whether collection is enabled
func (c *Collector) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// RecordEpoch records the four standard Keras metrics for an epoch
func (c *Collector) RecordEpoch(epoch int, trainLoss, trainAcc, valLoss, valAcc float64) error {
	return c.Record(EpochMetrics{
		Epoch: epoch,
		Metrics: map[string]float64{
			"loss":         trainLoss,
			"accuracy":     trainAcc,
			"val_loss":     valLoss,
			"val_accuracy": valAcc,
		},
	})
}

// Record appends the metrics of one epoch. Every epoch must report the same
// metric keys as the first one so that all series stay aligned.
func (c *Collector) Record(m EpochMetrics) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil
	}
	if len(m.Metrics) == 0 {
		return fmt.Errorf("epoch %d: %w", m.Epoch, ErrNoData)
	}
	if n := len(c.epochs); n > 0 && m.Epoch <= c.epochs[n-1] {
		return fmt.Errorf("%w: got %d after %d", ErrEpochOrder, m.Epoch, c.epochs[n-1])
	}

	if c.keys == nil {
		for key := range m.Metrics {
			c.keys = append(c.keys, key)
		}
		sort.Strings(c.keys)
	} else {
		if len(m.Metrics) != len(c.keys) {
			return fmt.Errorf("%w: epoch %d", ErrMetricSet, m.Epoch)
		}
		for _, key := range c.keys {
			if _, ok := m.Metrics[key]; !ok {
				return fmt.Errorf("%w: epoch %d lacks %q", ErrMetricSet, m.Epoch, key)
			}
		}
	}

	c.epochs = append(c.epochs, m.Epoch)
	for _, key := range c.keys {
		c.metrics[key] = append(c.metrics[key], m.Metrics[key])
	}
	return nil
}

// History returns a snapshot of everything recorded so far
func (c *Collector) History() History {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metrics := make(map[string][]float64, len(c.metrics))
	for key, values := range c.metrics {
		metrics[key] = append([]float64(nil), values...)
	}
	return History{
		Run:     c.run,
		Epochs:  append([]int(nil), c.epochs...),
		Metrics: metrics,
	}
}

// Clear resets all collected data
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epochs = c.epochs[:0]
	c.keys = nil
	c.metrics = make(map[string][]float64)
}
