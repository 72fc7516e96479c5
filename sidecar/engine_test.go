package sidecar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchEngine(t *testing.T) {
	var (
		mu  sync.Mutex
		got batchRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/batch-plot", r.URL.Path)
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, BatchPlottingResponse{
			Success: true,
			BatchID: "batch_7",
			Summary: BatchSummary{TotalPlots: len(got.Plots), Successful: len(got.Plots)},
		})
	}))
	defer server.Close()

	e := NewBatchEngine(testClient(server.URL), "mnist")
	require.NoError(t, e.Draw("accuracy-chart", accuracyConfig(t)))
	require.NoError(t, e.Draw("loss-chart", accuracyConfig(t)))
	assert.Equal(t, []string{"accuracy-chart", "loss-chart"}, e.Pending())

	resp, err := e.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "batch_7", resp.BatchID)
	assert.Equal(t, 2, resp.Summary.Successful)
	mu.Lock()
	if assert.Len(t, got.Plots, 2) {
		assert.Equal(t, "mnist", got.Plots[0].ModelName)
	}
	mu.Unlock()
	assert.Empty(t, e.Pending())

	_, err = e.Flush(context.Background())
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestBatchEngineRejectedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, BatchPlottingResponse{Success: false, Message: "queue full"})
	}))
	defer server.Close()

	e := NewBatchEngine(testClient(server.URL), "mnist")
	require.NoError(t, e.Draw("accuracy-chart", accuracyConfig(t)))

	resp, err := e.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
	assert.False(t, resp.Success)
}

func TestBatchEngineDisabled(t *testing.T) {
	c := NewClient(DefaultConfig())
	e := NewBatchEngine(c, "mnist")
	assert.ErrorIs(t, e.Draw("accuracy-chart", accuracyConfig(t)), ErrDisabled)

	_, err := e.Flush(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, NewBatchEngine(nil, "m").Draw("x", accuracyConfig(t)), ErrDisabled)
}
