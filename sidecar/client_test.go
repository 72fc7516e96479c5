package sidecar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/trainchart/chart"
)

func testClient(url string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.Timeout = 5 * time.Second
	cfg.RetryDelay = 10 * time.Millisecond
	c := NewClient(cfg)
	c.Enable()
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func accuracyConfig(t *testing.T) chart.Config {
	t.Helper()
	cfg, err := chart.BuildConfig("Accuracy", chart.MetricSeries{
		Primary:   []float64{0.5, 0.6},
		Secondary: []float64{0.4, 0.5},
		Labels:    []any{json.Number("1"), json.Number("2")},
	}, chart.DefaultPalette())
	require.NoError(t, err)
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)
}

func TestClientEnableDisable(t *testing.T) {
	c := NewClient(DefaultConfig())
	assert.False(t, c.IsEnabled())
	c.Enable()
	assert.True(t, c.IsEnabled())
	c.Disable()
	assert.False(t, c.IsEnabled())
}

func TestSendPlotDataDisabled(t *testing.T) {
	c := NewClient(DefaultConfig())

	resp, err := c.SendPlotData(context.Background(), PlotData{Title: "x"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrDisabled.Error(), resp.Message)

	assert.ErrorIs(t, c.CheckHealth(context.Background()), ErrDisabled)
}

func TestSendPlotDataSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/plot", r.URL.Path)
		assert.Equal(t, "trainchart", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var got PlotData
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, TrainingCurves, got.PlotType)
		assert.Equal(t, "mnist", got.ModelName)
		assert.Len(t, got.Series, 2)

		writeJSON(w, http.StatusOK, PlottingResponse{
			Success: true,
			Message: "Plot generated successfully",
			PlotURL: "/plots/123",
			PlotID:  "plot_123",
		})
	}))
	defer server.Close()

	resp, err := testClient(server.URL).SendPlotData(context.Background(), FromConfig("mnist", accuracyConfig(t)))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "/plots/123", resp.PlotURL)
	assert.Equal(t, "plot_123", resp.PlotID)
}

func TestSendPlotDataClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, PlottingResponse{Message: "bad series", ErrorCode: "INVALID"})
	}))
	defer server.Close()

	resp, err := testClient(server.URL).SendPlotData(context.Background(), PlotData{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	require.NotNil(t, resp)
	assert.Equal(t, "INVALID", resp.ErrorCode)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestSendPlotDataRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, PlottingResponse{Message: "busy"})
			return
		}
		writeJSON(w, http.StatusOK, PlottingResponse{Success: true})
	}))
	defer server.Close()

	resp, err := testClient(server.URL).SendPlotData(context.Background(), PlotData{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendPlotDataGivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, PlottingResponse{Message: "boom"})
	}))
	defer server.Close()

	_, err := testClient(server.URL).SendPlotData(context.Background(), PlotData{})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBatchSendPlots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/batch-plot", r.URL.Path)

		var got batchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.True(t, got.Batch)
		assert.Len(t, got.Plots, 2)

		writeJSON(w, http.StatusOK, BatchPlottingResponse{
			Success: true,
			BatchID: "batch_1",
			Results: []BatchPlotResult{{Success: true, PlotID: "a"}, {Success: true, PlotID: "b"}},
			Summary: BatchSummary{TotalPlots: 2, Successful: 2},
		})
	}))
	defer server.Close()

	plots := []PlotData{FromConfig("m", accuracyConfig(t)), FromConfig("m", accuracyConfig(t))}
	resp, err := testClient(server.URL).BatchSendPlots(context.Background(), plots)
	require.NoError(t, err)
	assert.Equal(t, "batch_1", resp.BatchID)
	assert.Equal(t, 2, resp.Summary.Successful)
	assert.Len(t, resp.Results, 2)
}

func TestCheckHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := testClient(server.URL)
	assert.NoError(t, c.CheckHealth(context.Background()))

	healthy.Store(false)
	err := c.CheckHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFromConfig(t *testing.T) {
	plot := FromConfig("mnist", accuracyConfig(t))

	assert.Equal(t, TrainingCurves, plot.PlotType)
	assert.Equal(t, "Accuracy", plot.Title)
	assert.Equal(t, "Epoch", plot.Config.XAxisLabel)
	assert.Equal(t, "Value", plot.Config.YAxisLabel)
	require.Len(t, plot.Series, 2)

	assert.Equal(t, "Val accuracy", plot.Series[1].Name)
	assert.Equal(t, "rgba(255, 99, 132, 1)", plot.Series[1].Style["color"])
	assert.Equal(t, []DataPoint{{X: json.Number("1"), Y: 0.4}, {X: json.Number("2"), Y: 0.5}}, plot.Series[1].Data)
}

func TestFromConfigWithoutLabels(t *testing.T) {
	cfg := accuracyConfig(t)
	cfg.Data.Labels = nil

	plot := FromConfig("m", cfg)
	assert.Equal(t, 1, plot.Series[0].Data[0].X)
	assert.Equal(t, 2, plot.Series[0].Data[1].X)
}

func TestEngine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got PlotData
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.ModelName == "rejected" {
			writeJSON(w, http.StatusOK, PlottingResponse{Success: false, Message: "unsupported"})
			return
		}
		writeJSON(w, http.StatusOK, PlottingResponse{Success: true, ViewURL: "/view/1"})
	}))
	defer server.Close()

	c := testClient(server.URL)
	e := NewEngine(c, "mnist")
	e.Timeout = time.Second

	require.NoError(t, e.Draw("accuracy-chart", accuracyConfig(t)))
	resp, ok := e.Response("accuracy-chart")
	require.True(t, ok)
	assert.Equal(t, "/view/1", resp.ViewURL)

	err := NewEngine(c, "rejected").Draw("accuracy-chart", accuracyConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")

	c.Disable()
	assert.ErrorIs(t, e.Draw("accuracy-chart", accuracyConfig(t)), ErrDisabled)
	assert.ErrorIs(t, NewEngine(nil, "m").Draw("x", accuracyConfig(t)), ErrDisabled)
}
