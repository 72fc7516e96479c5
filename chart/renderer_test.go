package chart

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeElement map[string]string

func (e fakeElement) Attribute(name string) (string, bool) {
	v, ok := e[name]
	return v, ok
}

type fakeDocument map[string]fakeElement

func (d fakeDocument) Element(id string) (Element, bool) {
	el, ok := d[id]
	if !ok {
		return nil, false
	}
	return el, true
}

type recordingEngine struct {
	calls []string
	cfgs  []Config
	err   error
}

func (e *recordingEngine) Draw(containerID string, cfg Config) error {
	e.calls = append(e.calls, containerID)
	e.cfgs = append(e.cfgs, cfg)
	return e.err
}

type countingObserver struct {
	ok    int
	kinds []string
}

func (o *countingObserver) RenderSucceeded(string, time.Duration) { o.ok++ }
func (o *countingObserver) RenderFailed(_ string, kind string) { o.kinds = append(o.kinds, kind) }

func accuracyDocument() fakeDocument {
	return fakeDocument{
		"accuracy": {
			AttrPrimary:   "[0.5,0.6,0.7]",
			AttrSecondary: "[0.4,0.5,0.55]",
			AttrLabels:    "[1,2,3]",
		},
	}
}

func TestRenderAccuracyScenario(t *testing.T) {
	engine := &recordingEngine{}
	r := NewRenderer(accuracyDocument(), engine)

	require.NoError(t, r.Render("Accuracy", "accuracy"))
	require.Equal(t, []string{"accuracy"}, engine.calls)

	cfg := engine.cfgs[0]
	assert.Equal(t, "line", cfg.Type)
	assert.Equal(t, []any{json.Number("1"), json.Number("2"), json.Number("3")}, cfg.Data.Labels)
	require.Len(t, cfg.Data.Datasets, 2)

	primary := cfg.Data.Datasets[0]
	assert.Equal(t, "Accuracy", primary.Label)
	assert.Equal(t, []float64{0.5, 0.6, 0.7}, primary.Data)
	assert.Equal(t, "rgba(75, 192, 192, 1)", primary.BorderColor)
	assert.Equal(t, 1, primary.BorderWidth)
	assert.False(t, primary.Fill)

	validation := cfg.Data.Datasets[1]
	assert.Equal(t, "Val accuracy", validation.Label)
	assert.Equal(t, []float64{0.4, 0.5, 0.55}, validation.Data)
	assert.Equal(t, "rgba(255, 99, 132, 1)", validation.BorderColor)
	assert.Equal(t, 1, validation.BorderWidth)
	assert.False(t, validation.Fill)

	assert.Equal(t, AxisTitle{Display: true, Text: "Epoch"}, cfg.Options.Scales.X.Title)
	assert.Equal(t, AxisTitle{Display: true, Text: "Value"}, cfg.Options.Scales.Y.Title)
}

func TestRenderMalformedAttribute(t *testing.T) {
	doc := accuracyDocument()
	doc["accuracy"][AttrSecondary] = "not-json"
	engine := &recordingEngine{}
	obs := &countingObserver{}

	err := NewRenderer(doc, engine, WithObserver(obs)).Render("Accuracy", "accuracy")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedSeriesData)

	var malformed *MalformedSeriesError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "data-data2", malformed.Attribute)
	assert.Contains(t, err.Error(), "data-data2")

	assert.Empty(t, engine.calls, "engine must not be invoked")
	assert.Equal(t, []string{KindMalformedSeries}, obs.kinds)
}

func TestRenderMissingAttributes(t *testing.T) {
	for _, attr := range []string{AttrPrimary, AttrSecondary, AttrLabels} {
		t.Run(attr, func(t *testing.T) {
			doc := accuracyDocument()
			delete(doc["accuracy"], attr)
			engine := &recordingEngine{}

			err := NewRenderer(doc, engine).Render("Accuracy", "accuracy")

			var malformed *MalformedSeriesError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, attr, malformed.Attribute)
			assert.Empty(t, engine.calls)
		})
	}
}

func TestRenderMissingElement(t *testing.T) {
	engine := &recordingEngine{}
	err := NewRenderer(accuracyDocument(), engine).Render("Loss", "loss")

	assert.ErrorIs(t, err, ErrMissingElement)
	var missing *MissingElementError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "loss", missing.ID)
	assert.Empty(t, engine.calls)
	assert.Equal(t, KindMissingElement, Kind(err))
}

func TestRenderLengthMismatch(t *testing.T) {
	doc := accuracyDocument()
	doc["accuracy"][AttrLabels] = "[1,2]"
	engine := &recordingEngine{}

	err := NewRenderer(doc, engine).Render("Accuracy", "accuracy")

	assert.ErrorIs(t, err, ErrLengthMismatch)
	var mismatch *LengthMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, LengthMismatchError{Primary: 3, Secondary: 3, Labels: 2}, *mismatch)
	assert.Empty(t, engine.calls)
}

func TestRenderEngineFailure(t *testing.T) {
	engine := &recordingEngine{err: errors.New("canvas busy")}
	obs := &countingObserver{}

	err := NewRenderer(accuracyDocument(), engine, WithObserver(obs)).Render("Accuracy", "accuracy")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "canvas busy")
	assert.Equal(t, KindEngine, Kind(err))
	assert.Equal(t, []string{KindEngine}, obs.kinds)
	assert.Equal(t, 0, obs.ok)
}

func TestRenderLossChartUsesOwnContainer(t *testing.T) {
	doc := accuracyDocument()
	doc["loss"] = fakeElement{
		AttrPrimary:   "[0.9, 0.7]",
		AttrSecondary: "[1.0, 0.8]",
		AttrLabels:    `["e1","e2"]`,
	}
	engine := &recordingEngine{}
	obs := &countingObserver{}
	r := NewRenderer(doc, engine, WithObserver(obs))

	require.NoError(t, r.Render("Accuracy", "accuracy"))
	require.NoError(t, r.Render("Loss", "loss"))

	assert.Equal(t, []string{"accuracy", "loss"}, engine.calls)
	loss := engine.cfgs[1]
	assert.Equal(t, "Loss", loss.Data.Datasets[0].Label)
	assert.Equal(t, "Val loss", loss.Data.Datasets[1].Label)
	assert.Equal(t, []any{"e1", "e2"}, loss.Data.Labels)
	assert.Equal(t, 2, obs.ok)
}

func TestRenderCustomPalette(t *testing.T) {
	engine := &recordingEngine{}
	p := Palette{Primary: "#000000", Secondary: "#ffffff"}

	require.NoError(t, NewRenderer(accuracyDocument(), engine, WithPalette(p)).Render("Accuracy", "accuracy"))
	assert.Equal(t, "#000000", engine.cfgs[0].Data.Datasets[0].BorderColor)
	assert.Equal(t, "#ffffff", engine.cfgs[0].Data.Datasets[1].BorderColor)
}

func TestEngineFunc(t *testing.T) {
	var got string
	engine := EngineFunc(func(id string, _ Config) error {
		got = id
		return nil
	})
	require.NoError(t, NewRenderer(accuracyDocument(), engine).Render("Accuracy", "accuracy"))
	assert.Equal(t, "accuracy", got)
}

func TestKindNil(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
}
