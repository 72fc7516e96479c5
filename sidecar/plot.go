package sidecar

import (
	"time"

	"github.com/tsawler/trainchart/chart"
)

// PlotType names a plot layout understood by the sidecar
type PlotType string

// TrainingCurves plots metric values against epochs
const TrainingCurves PlotType = "training_curves"

// PlotData is the JSON payload accepted by the sidecar plotting service
type PlotData struct {
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	Series []SeriesData `json:"series"`
	Config PlotConfig   `json:"config"`

	Metrics map[string]any `json:"metrics,omitempty"`
}

// SeriesData is one data series of a plot
type SeriesData struct {
	Name  string         `json:"name"`
	Type  string         `json:"type"` // "line", "scatter", "bar"
	Data  []DataPoint    `json:"data"`
	Style map[string]any `json:"style,omitempty"`
}

// DataPoint is a single point of a series
type DataPoint struct {
	X     any    `json:"x"`
	Y     any    `json:"y"`
	Label string `json:"label,omitempty"`
	Color string `json:"color,omitempty"`
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel  string `json:"x_axis_label"`
	YAxisLabel  string `json:"y_axis_label"`
	XAxisScale  string `json:"x_axis_scale"`
	YAxisScale  string `json:"y_axis_scale"`
	ShowLegend  bool   `json:"show_legend"`
	ShowGrid    bool   `json:"show_grid"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Interactive bool   `json:"interactive"`
}

// FromConfig converts a chart configuration into a training curves payload.
// Points are placed at the chart's labels, or at 1..n where a label is missing.
func FromConfig(model string, cfg chart.Config) PlotData {
	series := make([]SeriesData, 0, len(cfg.Data.Datasets))
	for _, ds := range cfg.Data.Datasets {
		points := make([]DataPoint, len(ds.Data))
		for i, v := range ds.Data {
			var x any = i + 1
			if i < len(cfg.Data.Labels) && cfg.Data.Labels[i] != nil {
				x = cfg.Data.Labels[i]
			}
			points[i] = DataPoint{X: x, Y: v}
		}
		series = append(series, SeriesData{
			Name: ds.Label,
			Type: "line",
			Data: points,
			Style: map[string]any{
				"color":      ds.BorderColor,
				"line_width": ds.BorderWidth,
				"fill":       ds.Fill,
			},
		})
	}

	title := model
	if len(cfg.Data.Datasets) > 0 {
		title = cfg.Data.Datasets[0].Label
	}

	return PlotData{
		PlotType:  TrainingCurves,
		Title:     title,
		Timestamp: time.Now().UTC(),
		ModelName: model,
		Series:    series,
		Config: PlotConfig{
			XAxisLabel:  cfg.Options.Scales.X.Title.Text,
			YAxisLabel:  cfg.Options.Scales.Y.Title.Text,
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       800,
			Height:      400,
			Interactive: true,
		},
		Metrics: map[string]any{
			"epochs": len(cfg.Data.Labels),
		},
	}
}
