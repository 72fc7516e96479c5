package chart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Attribute names of the markup contract. A container element carries the
// primary series, the validation series and the labels, each serialized as an
// independent JSON array.
const (
	AttrPrimary   = "data-data1"
	AttrSecondary = "data-data2"
	AttrLabels    = "data-data3"
)

// MetricSeries is the input of a single render: one metric observed during
// training, the same metric on held-out validation data, and the epoch labels.
type MetricSeries struct {
	Primary   []float64
	Secondary []float64
	Labels    []any
}

// Validate checks that all three sequences have the same length
func (s MetricSeries) Validate() error {
	if len(s.Primary) != len(s.Secondary) || len(s.Primary) != len(s.Labels) {
		return &LengthMismatchError{
			Primary:   len(s.Primary),
			Secondary: len(s.Secondary),
			Labels:    len(s.Labels),
		}
	}
	return nil
}

// Element is a node of a Document that exposes its attributes
type Element interface {
	Attribute(name string) (string, bool)
}

// Document resolves container ids to elements
type Document interface {
	Element(id string) (Element, bool)
}

// ReadSeries deserializes the three data attributes of el.
// Attributes are read in contract order so the first bad one is reported.
func ReadSeries(el Element) (MetricSeries, error) {
	primary, err := readValues(el, AttrPrimary)
	if err != nil {
		return MetricSeries{}, err
	}
	secondary, err := readValues(el, AttrSecondary)
	if err != nil {
		return MetricSeries{}, err
	}
	labels, err := readLabels(el, AttrLabels)
	if err != nil {
		return MetricSeries{}, err
	}
	return MetricSeries{Primary: primary, Secondary: secondary, Labels: labels}, nil
}

func rawAttribute(el Element, name string) ([]byte, error) {
	raw, ok := el.Attribute(name)
	if !ok {
		return nil, &MalformedSeriesError{Attribute: name, Err: fmt.Errorf("attribute is missing")}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &MalformedSeriesError{Attribute: name, Err: fmt.Errorf("attribute is empty")}
	}
	return []byte(raw), nil
}

func readValues(el Element, name string) ([]float64, error) {
	raw, err := rawAttribute(el, name)
	if err != nil {
		return nil, err
	}

	// Pointers so that a JSON null is detected instead of decoding to zero
	var values []*float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, &MalformedSeriesError{Attribute: name, Err: err}
	}
	if values == nil {
		return nil, &MalformedSeriesError{Attribute: name, Err: fmt.Errorf("expected a JSON array")}
	}

	out := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			return nil, &MalformedSeriesError{Attribute: name, Err: fmt.Errorf("null value at index %d", i)}
		}
		out[i] = *v
	}
	return out, nil
}

func readLabels(el Element, name string) ([]any, error) {
	raw, err := rawAttribute(el, name)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var labels []any
	if err := dec.Decode(&labels); err != nil {
		return nil, &MalformedSeriesError{Attribute: name, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &MalformedSeriesError{Attribute: name, Err: fmt.Errorf("trailing data after JSON array")}
	}
	if labels == nil {
		return nil, &MalformedSeriesError{Attribute: name, Err: fmt.Errorf("expected a JSON array")}
	}
	for i, l := range labels {
		switch l.(type) {
		case json.Number, string, bool:
		default:
			return nil, &MalformedSeriesError{Attribute: name, Err: fmt.Errorf("label at index %d is not a scalar", i)}
		}
	}
	return labels, nil
}

// EncodeAttributes serializes s into the three attribute values, keyed by attribute name.
// It is the producer side of ReadSeries.
func EncodeAttributes(s MetricSeries) (map[string]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	attrs := make(map[string]string, 3)
	for name, v := range map[string]any{
		AttrPrimary:   nonNil(s.Primary),
		AttrSecondary: nonNil(s.Secondary),
		AttrLabels:    nonNilLabels(s.Labels),
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		attrs[name] = string(b)
	}
	return attrs, nil
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func nonNilLabels(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}
