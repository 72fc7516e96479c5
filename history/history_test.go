package history

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/trainchart/chart"
)

const kerasHistory = `{
  "accuracy": [0.5, 0.6, 0.7],
  "val_accuracy": [0.4, 0.5, 0.55],
  "loss": [0.9, 0.7, 0.5],
  "val_loss": [1.0, 0.8, 0.65]
}`

func TestLoadKerasJSON(t *testing.T) {
	h, err := LoadKerasJSON(strings.NewReader(kerasHistory))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, h.Epochs)
	assert.Equal(t, []string{"accuracy", "loss"}, h.MetricNames())

	s, err := h.Series("accuracy")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.6, 0.7}, s.Primary)
	assert.Equal(t, []float64{0.4, 0.5, 0.55}, s.Secondary)
	assert.Equal(t, []any{json.Number("1"), json.Number("2"), json.Number("3")}, s.Labels)
}

func TestLoadKerasJSONWrapped(t *testing.T) {
	h, err := LoadKerasJSON(strings.NewReader(`{"epochs":[10,20],"history":{"loss":[2,1],"val_loss":[3,2]}}`))
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20}, h.Epochs)

	s, err := h.Series("loss")
	require.NoError(t, err)
	assert.Equal(t, []any{json.Number("10"), json.Number("20")}, s.Labels)
}

func TestLoadKerasJSONErrors(t *testing.T) {
	tests := map[string]string{
		"not json":   "accuracy",
		"empty":      "{}",
		"null value": `{"loss":[1,null],"val_loss":[1,2]}`,
		"not array":  `{"loss":1}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadKerasJSON(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestSeriesUnknownMetric(t *testing.T) {
	h, err := LoadKerasJSON(strings.NewReader(`{"loss":[1],"val_loss":[1],"precision":[0.2]}`))
	require.NoError(t, err)

	_, err = h.Series("accuracy")
	assert.ErrorIs(t, err, ErrUnknownMetric)

	_, err = h.Series("precision")
	assert.ErrorIs(t, err, ErrUnknownMetric)
	assert.Contains(t, err.Error(), "val_precision")

	assert.Equal(t, []string{"loss"}, h.MetricNames())
}

func TestSeriesLengthMismatchIsNotPadded(t *testing.T) {
	h, err := LoadKerasJSON(strings.NewReader(`{"loss":[1,0.5,0.25],"val_loss":[1,0.5]}`))
	require.NoError(t, err)

	_, err = h.Series("loss")
	assert.ErrorIs(t, err, chart.ErrLengthMismatch)
}

func TestSeriesRejectsNonFiniteValues(t *testing.T) {
	h := History{
		Epochs: []int{1, 2},
		Metrics: map[string][]float64{
			"loss":         {0.9, math.NaN()},
			"val_loss":     {1.0, 1.1},
			"accuracy":     {0.5, 0.6},
			"val_accuracy": {0.4, math.Inf(1)},
		},
	}

	_, err := h.Series("loss")
	assert.ErrorIs(t, err, ErrNonFinite)
	assert.Contains(t, err.Error(), `"loss"`)

	_, err = h.Series("accuracy")
	assert.ErrorIs(t, err, ErrNonFinite)
	assert.Contains(t, err.Error(), `"val_accuracy"`)
}

func TestSeriesCopiesValues(t *testing.T) {
	h := History{Epochs: []int{1}, Metrics: map[string][]float64{"loss": {1}, "val_loss": {2}}}
	s, err := h.Series("loss")
	require.NoError(t, err)
	s.Primary[0] = 42
	assert.Equal(t, 1.0, h.Metrics["loss"][0])
}

func TestWriteKerasJSONRoundTrip(t *testing.T) {
	in := History{
		Epochs:  []int{1, 2},
		Metrics: map[string][]float64{"loss": {0.5, 0.25}, "val_loss": {0.75, 0.5}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteKerasJSON(&buf, in))

	out, err := LoadKerasJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Epochs, out.Epochs)
	assert.Equal(t, in.Metrics, out.Metrics)
}
