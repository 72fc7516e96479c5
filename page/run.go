package page

import (
	"fmt"

	"github.com/tsawler/trainchart/chart"
	"github.com/tsawler/trainchart/history"
)

// ChartID returns the container id used for metric in run reports
func ChartID(metric string) string {
	return metric + "-chart"
}

// RunReport builds the report of one training run with a chart per metric.
// Metrics whose series cannot be built get a notice instead of a chart.
// It returns the series errors keyed by metric.
func RunReport(h history.History, metrics []string, chartJSURL string) (*Report, map[string]error) {
	title := "Training history"
	if h.Run != "" {
		title = fmt.Sprintf("Training history: %s", h.Run)
	}
	r := NewReport(title, chartJSURL)

	failures := make(map[string]error)
	for _, metric := range metrics {
		name := chart.DisplayName(metric)
		s, err := h.Series(metric)
		if err == nil {
			err = r.AddChart(ChartID(metric), name, s)
		}
		if err != nil {
			failures[metric] = err
			r.AddNotice(fmt.Sprintf("%s: %v", name, err))
		}
	}
	return r, failures
}

// RenderMetric draws the chart of a single metric of h with engine
func RenderMetric(h history.History, metric string, engine chart.Engine, opts ...chart.Option) error {
	s, err := h.Series(metric)
	if err != nil {
		return err
	}

	name := chart.DisplayName(metric)
	r := NewReport(name, "")
	if err := r.AddChart(ChartID(metric), name, s); err != nil {
		return err
	}
	return chart.NewRenderer(r.Document(), engine, opts...).Render(name, ChartID(metric))
}
