package chart

import (
	"errors"
	"fmt"
)

// Sentinel errors for the render failure classes. Use errors.Is against these;
// the concrete error types below carry the diagnostic detail.
var (
	ErrMissingElement      = errors.New("container element not found")
	ErrMalformedSeriesData = errors.New("malformed series data")
	ErrLengthMismatch      = errors.New("series length mismatch")
)

// MissingElementError reports a container id that is not present in the document
type MissingElementError struct {
	ID string
}

func (e *MissingElementError) Error() string {
	return fmt.Sprintf("%v: %q", ErrMissingElement, e.ID)
}

// Is matches ErrMissingElement
func (e *MissingElementError) Is(target error) bool {
	return target == ErrMissingElement
}

// MalformedSeriesError reports an attribute that is absent, empty or not a valid JSON array
type MalformedSeriesError struct {
	Attribute string
	Err       error
}

func (e *MalformedSeriesError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: attribute %s", ErrMalformedSeriesData, e.Attribute)
	}
	return fmt.Sprintf("%v: attribute %s: %v", ErrMalformedSeriesData, e.Attribute, e.Err)
}

// Is matches ErrMalformedSeriesData
func (e *MalformedSeriesError) Is(target error) bool {
	return target == ErrMalformedSeriesData
}

func (e *MalformedSeriesError) Unwrap() error {
	return e.Err
}

// LengthMismatchError reports primary, secondary and label sequences of different lengths
type LengthMismatchError struct {
	Primary   int
	Secondary int
	Labels    int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%v: primary=%d secondary=%d labels=%d", ErrLengthMismatch, e.Primary, e.Secondary, e.Labels)
}

// Is matches ErrLengthMismatch
func (e *LengthMismatchError) Is(target error) bool {
	return target == ErrLengthMismatch
}

// Failure kinds returned by Kind
const (
	KindMissingElement  = "missing_element"
	KindMalformedSeries = "malformed_series"
	KindLengthMismatch  = "length_mismatch"
	KindEngine          = "engine"
)

// Kind classifies a render error for metrics and HTTP status mapping.
// It returns "" for a nil error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingElement):
		return KindMissingElement
	case errors.Is(err, ErrMalformedSeriesData):
		return KindMalformedSeries
	case errors.Is(err, ErrLengthMismatch):
		return KindLengthMismatch
	default:
		return KindEngine
	}
}
