package chart

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Axis labels shared by every metric chart
const (
	XAxisLabel = "Epoch"
	YAxisLabel = "Value"
)

// Palette holds the stroke colors per series role
type Palette struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// DefaultPalette returns the teal/red pair used for training vs. validation lines
func DefaultPalette() Palette {
	return Palette{
		Primary:   "rgba(75, 192, 192, 1)",
		Secondary: "rgba(255, 99, 132, 1)",
	}
}

// Config is a line chart configuration in the shape Chart.js consumes
type Config struct {
	Type    string  `json:"type"`
	Data    Data    `json:"data"`
	Options Options `json:"options"`
}

// Data holds the category labels and the datasets plotted against them
type Data struct {
	Labels   []any     `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Dataset is a single line of the chart
type Dataset struct {
	Label       string    `json:"label"`
	Data        []float64 `json:"data"`
	BorderColor string    `json:"borderColor"`
	BorderWidth int       `json:"borderWidth"`
	Fill        bool      `json:"fill"`
}

// Options carries the scale configuration
type Options struct {
	Scales Scales `json:"scales"`
}

// Scales configures one object per axis
type Scales struct {
	X Axis `json:"x"`
	Y Axis `json:"y"`
}

// Axis configures an axis title
type Axis struct {
	Title AxisTitle `json:"title"`
}

// AxisTitle is the label drawn next to an axis
type AxisTitle struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
}

// ValidationLabel returns the legend of the validation line for metricName
func ValidationLabel(metricName string) string {
	return "Val " + strings.ToLower(metricName)
}

// BuildConfig builds the two-line chart configuration for metricName.
// The series must satisfy MetricSeries.Validate.
func BuildConfig(metricName string, s MetricSeries, p Palette) (Config, error) {
	if err := s.Validate(); err != nil {
		return Config{}, err
	}

	return Config{
		Type: "line",
		Data: Data{
			Labels: nonNilLabels(s.Labels),
			Datasets: []Dataset{
				{
					Label:       metricName,
					Data:        nonNil(s.Primary),
					BorderColor: p.Primary,
					BorderWidth: 1,
					Fill:        false,
				},
				{
					Label:       ValidationLabel(metricName),
					Data:        nonNil(s.Secondary),
					BorderColor: p.Secondary,
					BorderWidth: 1,
					Fill:        false,
				},
			},
		},
		Options: Options{
			Scales: Scales{
				X: Axis{Title: AxisTitle{Display: true, Text: XAxisLabel}},
				Y: Axis{Title: AxisTitle{Display: true, Text: YAxisLabel}},
			},
		},
	}, nil
}

// ToJSON converts the config to its JSON form
func (c Config) ToJSON() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chart config to JSON: %w", err)
	}
	return b, nil
}
