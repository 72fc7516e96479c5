package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/tsawler/trainchart/history"
)

var (
	demoRun    string
	demoEpochs int
	demoFormat string
	demoServer string
)

var demoCmd = &cobra.Command{
	Use:   "demo <runs-dir>",
	Short: "Write a synthetic training run for trying out the charts",
	Long: `Write a synthetic training run with decaying loss and rising accuracy.

Formats:
  keras        <runs-dir>/<run>.json
  tensorboard  <runs-dir>/<run>/{train,validation}/events.out.tfevents.*
  both         both of the above, the TensorBoard copy named <run>-tb

With --server the epochs are also posted to a running trainchart server.`,
	Args: cobra.ExactArgs(1),
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().StringVar(&demoRun, "run", "demo", "run name")
	demoCmd.Flags().IntVar(&demoEpochs, "epochs", 20, "number of epochs")
	demoCmd.Flags().StringVar(&demoFormat, "format", "keras", "keras, tensorboard or both")
	demoCmd.Flags().StringVar(&demoServer, "server", "", "trainchart server URL to post epochs to")
	rootCmd.AddCommand(demoCmd)
}

// demoCurves simulates a run whose validation metrics lag the training ones
func demoCurves(run string, epochs int) (history.History, error) {
	c := history.NewCollector(run)
	c.Enable()
	for e := 1; e <= epochs; e++ {
		x := float64(e)
		trainLoss := 1.2*math.Exp(-0.25*x) + 0.05
		valLoss := 1.3*math.Exp(-0.2*x) + 0.12 + 0.004*x
		trainAcc := 0.98 - 0.5*math.Exp(-0.3*x)
		valAcc := 0.93 - 0.5*math.Exp(-0.25*x)
		if err := c.RecordEpoch(e, trainLoss, trainAcc, valLoss, valAcc); err != nil {
			return history.History{}, err
		}
	}
	return c.History(), nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	if demoEpochs <= 0 {
		return fmt.Errorf("--epochs must be positive")
	}
	if err := history.ValidateRun(demoRun); err != nil {
		return err
	}
	dir := args[0]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	h, err := demoCurves(demoRun, demoEpochs)
	if err != nil {
		return err
	}

	switch demoFormat {
	case "keras":
		err = writeKeras(filepath.Join(dir, demoRun+".json"), h)
	case "tensorboard":
		err = writeTensorBoard(filepath.Join(dir, demoRun), h)
	case "both":
		if err = writeKeras(filepath.Join(dir, demoRun+".json"), h); err == nil {
			err = writeTensorBoard(filepath.Join(dir, demoRun+"-tb"), h)
		}
	default:
		err = fmt.Errorf("unknown format %q", demoFormat)
	}
	if err != nil {
		return err
	}

	if demoServer != "" {
		return postEpochs(cmd.Context(), demoServer, h)
	}
	return nil
}

func writeKeras(path string, h history.History) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := history.WriteKerasJSON(f, h); err != nil {
		f.Close()
		return err
	}
	level.Info(logger).Log("msg", "wrote keras history", "path", path, "epochs", h.Len())
	return f.Close()
}

// writeTensorBoard writes the layout of the Keras TensorBoard callback
func writeTensorBoard(dir string, h history.History) error {
	now := time.Now()
	name := fmt.Sprintf("events.out.tfevents.%d.trainchart", now.Unix())

	for _, split := range []struct {
		sub    string
		prefix string
	}{{"train", ""}, {"validation", history.ValidationPrefix}} {
		events := []history.Event{{WallTime: float64(now.Unix()), FileVersion: "brain.Event:2"}}
		for i, epoch := range h.Epochs {
			scalars := make(map[string]float64)
			for _, metric := range h.MetricNames() {
				scalars["epoch_"+metric] = h.Metrics[split.prefix+metric][i]
			}
			events = append(events, history.Event{
				WallTime: float64(now.Unix() + int64(i)),
				Step:     int64(epoch - 1),
				Scalars:  scalars,
			})
		}

		path := filepath.Join(dir, split.sub, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := history.WriteEvent(f, ev); err != nil {
				f.Close()
				return err
			}
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	level.Info(logger).Log("msg", "wrote tensorboard logs", "dir", dir, "epochs", h.Len())
	return nil
}

// postEpochs replays h epoch by epoch against a running server
func postEpochs(ctx context.Context, baseURL string, h history.History) error {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	for i, epoch := range h.Epochs {
		m := history.EpochMetrics{Epoch: epoch, Metrics: make(map[string]float64, len(h.Metrics))}
		for key, values := range h.Metrics {
			m.Metrics[key] = values[i]
		}

		resp, err := client.R().
			SetContext(ctx).
			SetPathParam("run", h.Run).
			SetBody(m).
			Post("/api/runs/{run}/epochs")
		if err != nil {
			return fmt.Errorf("failed to post epoch %d: %w", epoch, err)
		}
		if resp.IsError() {
			return fmt.Errorf("server rejected epoch %d: %s", epoch, resp.String())
		}
	}
	level.Info(logger).Log("msg", "posted epochs", "server", baseURL, "run", h.Run, "epochs", h.Len())
	return nil
}
