package sidecar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tsawler/trainchart/chart"
)

// Engine draws charts by handing them to the plotting service
type Engine struct {
	Client *Client
	Model  string
	// Timeout bounds each Draw; zero leaves it to the client timeout
	Timeout time.Duration

	mu        sync.Mutex
	responses map[string]*PlottingResponse
}

// NewEngine creates an engine that labels its plots with model
func NewEngine(client *Client, model string) *Engine {
	return &Engine{Client: client, Model: model}
}

// Draw sends cfg to the plotting service
func (e *Engine) Draw(containerID string, cfg chart.Config) error {
	if e.Client == nil || !e.Client.IsEnabled() {
		return ErrDisabled
	}

	ctx := context.Background()
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	resp, err := e.Client.SendPlotData(ctx, FromConfig(e.Model, cfg))
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("plotting service rejected %s: %s", containerID, resp.Message)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.responses == nil {
		e.responses = make(map[string]*PlottingResponse)
	}
	e.responses[containerID] = resp
	return nil
}

// Response returns the plotting service response for containerID
func (e *Engine) Response(containerID string) (*PlottingResponse, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	resp, ok := e.responses[containerID]
	return resp, ok
}

// ErrEmptyBatch is returned when a batch is flushed without any plots
var ErrEmptyBatch = errors.New("no plots to send")

// BatchEngine collects the charts drawn into it and sends them to the
// plotting service in a single batch request on Flush.
type BatchEngine struct {
	Client *Client
	Model  string

	mu    sync.Mutex
	ids   []string
	plots []PlotData
}

// NewBatchEngine creates a batch engine that labels its plots with model
func NewBatchEngine(client *Client, model string) *BatchEngine {
	return &BatchEngine{Client: client, Model: model}
}

// Draw queues cfg for the next Flush
func (e *BatchEngine) Draw(containerID string, cfg chart.Config) error {
	if e.Client == nil || !e.Client.IsEnabled() {
		return ErrDisabled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, containerID)
	e.plots = append(e.plots, FromConfig(e.Model, cfg))
	return nil
}

// Pending returns the container ids queued since the last Flush
func (e *BatchEngine) Pending() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

// Flush sends the queued plots and clears the queue
func (e *BatchEngine) Flush(ctx context.Context) (*BatchPlottingResponse, error) {
	if e.Client == nil || !e.Client.IsEnabled() {
		return nil, ErrDisabled
	}

	e.mu.Lock()
	plots := e.plots
	e.ids, e.plots = nil, nil
	e.mu.Unlock()

	if len(plots) == 0 {
		return nil, ErrEmptyBatch
	}

	resp, err := e.Client.BatchSendPlots(ctx, plots)
	if err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("plotting service rejected batch: %s", resp.Message)
	}
	return resp, nil
}
