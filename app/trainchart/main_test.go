package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/trainchart/history"
)

func TestDemoCurves(t *testing.T) {
	h, err := demoCurves("demo", 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, h.Epochs)
	assert.Equal(t, []string{"accuracy", "loss"}, h.MetricNames())

	loss := h.Metrics["loss"]
	for i := 1; i < len(loss); i++ {
		assert.Less(t, loss[i], loss[i-1])
	}
}

func TestWriteTensorBoardRoundTrip(t *testing.T) {
	logger = log.NewNopLogger()
	h, err := demoCurves("demo", 4)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "demo")
	require.NoError(t, writeTensorBoard(dir, h))

	got, err := history.LoadTensorBoardDir(dir)
	require.NoError(t, err)
	assert.Equal(t, h.Epochs, got.Epochs)
	assert.Equal(t, h.MetricNames(), got.MetricNames())
	// event files store float32 values
	assert.InDelta(t, h.Metrics["val_loss"][2], got.Metrics["val_loss"][2], 1e-6)
}

// resetFlags restores every flag of cmd and its subcommands to its default
func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			require.NoError(t, sv.Replace(nil))
		} else {
			require.NoError(t, f.Value.Set(f.DefValue))
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(t, sub)
	}
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	resetFlags(t, rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestDemoRenderInspect(t *testing.T) {
	dir := t.TempDir()
	execute(t, "demo", dir, "--run", "cli", "--epochs", "3", "--format", "both", "--log-level", "error")

	_, err := os.Stat(filepath.Join(dir, "cli.json"))
	require.NoError(t, err)

	out := execute(t, "render", filepath.Join(dir, "cli.json"), "--format", "json", "--metric", "loss", "--log-level", "error")
	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "line", cfg["type"])

	out = execute(t, "render", filepath.Join(dir, "cli.json"), "--format", "html", "--log-level", "error")
	assert.Contains(t, out, `id="accuracy-chart"`)

	htmlPath := filepath.Join(dir, "report.html")
	execute(t, "render", filepath.Join(dir, "cli-tb"), "--format", "html", "-o", htmlPath, "--log-level", "error")
	b, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), `id="loss-chart"`)

	// flags of earlier runs (--metric loss, -o) do not carry over
	out = execute(t, "render", filepath.Join(dir, "cli.json"), "--format", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	datasets := cfg["data"].(map[string]any)["datasets"].([]any)
	assert.Equal(t, "Accuracy", datasets[0].(map[string]any)["label"])

	out = execute(t, "inspect", filepath.Join(dir, "cli-tb"), "--log-level", "error")
	assert.Contains(t, out, "epoch_accuracy")
	assert.Contains(t, out, "epochs: 3 (1..3)")
	assert.Contains(t, out, "chartable metrics: accuracy, loss")
}
