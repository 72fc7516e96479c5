package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/tsawler/trainchart/chart"
	"github.com/tsawler/trainchart/history"
	"github.com/tsawler/trainchart/page"
	"github.com/tsawler/trainchart/raster"
)

var (
	renderFormat  string
	renderMetric  string
	renderMetrics []string
	renderOut     string
)

var renderCmd = &cobra.Command{
	Use:   "render <history.json|tensorboard-dir>",
	Short: "Render the charts of one training run",
	Long: `Render the charts of a training run read from a Keras history JSON file
or a TensorBoard log directory.

Formats:
  html  report page with one Chart.js chart per metric
  png   image of a single metric (--metric)
  json  chart configuration of a single metric (--metric)`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", "html", "output format: html, png or json")
	renderCmd.Flags().StringVarP(&renderMetric, "metric", "m", "accuracy", "metric for png and json output")
	renderCmd.Flags().StringSliceVar(&renderMetrics, "metrics", nil, "metrics of the html report (default from config)")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(renderCmd)
}

// loadHistory reads a Keras JSON file or a TensorBoard directory
func loadHistory(path string) (history.History, error) {
	info, err := os.Stat(path)
	if err != nil {
		return history.History{}, err
	}
	if info.IsDir() {
		return history.LoadTensorBoardDir(path)
	}
	if history.IsEventFile(path) {
		events, err := history.ReadEventFile(path)
		if err != nil {
			return history.History{}, err
		}
		return history.FromEvents(events)
	}
	return history.LoadKerasJSONFile(path)
}

func runRender(cmd *cobra.Command, args []string) error {
	h, err := loadHistory(args[0])
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	opts := []chart.Option{chart.WithPalette(cfg.Charts.Palette()), chart.WithLogger(logger)}

	switch strings.ToLower(renderFormat) {
	case "html":
		metrics := renderMetrics
		if len(metrics) == 0 {
			metrics = cfg.Charts.Metrics
		}
		r, failures := page.RunReport(h, metrics, cfg.Charts.ChartJSURL)
		for metric, err := range failures {
			level.Warn(logger).Log("msg", "skipping metric", "metric", metric, "err", err)
		}
		for id, err := range r.Draw(opts...) {
			r.AddNotice(id + ": " + err.Error())
		}
		if err := r.Render(&buf); err != nil {
			return err
		}

	case "png":
		engine := raster.NewEngine(cfg.Charts.Width, cfg.Charts.Height)
		if err := page.RenderMetric(h, renderMetric, engine, opts...); err != nil {
			return err
		}
		img, _ := engine.Image(page.ChartID(renderMetric))
		buf.Write(img)

	case "json":
		var built chart.Config
		capture := chart.EngineFunc(func(_ string, c chart.Config) error {
			built = c
			return nil
		})
		if err := page.RenderMetric(h, renderMetric, capture, opts...); err != nil {
			return err
		}
		b, err := built.ToJSON()
		if err != nil {
			return err
		}
		buf.Write(b)
		buf.WriteByte('\n')

	default:
		return fmt.Errorf("unknown format %q", renderFormat)
	}

	return writeOutput(cmd.OutOrStdout(), renderOut, buf.Bytes())
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	level.Info(logger).Log("msg", "wrote output", "path", path, "bytes", len(data))
	return nil
}
