// Package sidecar talks to an external plotting service that renders
// training curves on behalf of the chart renderer.
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

const userAgent = "trainchart"

// ErrDisabled is returned by operations that need an enabled client
var ErrDisabled = errors.New("plotting service is disabled")

// Config contains configuration for the plotting service client
type Config struct {
	BaseURL       string        `json:"base_url" mapstructure:"base_url"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
	RetryAttempts int           `json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
}

// DefaultConfig returns default configuration for the plotting service
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// PlottingResponse is the response of the plotting service
type PlottingResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	PlotURL      string `json:"plot_url,omitempty"`
	ViewURL      string `json:"view_url,omitempty"`
	PlotID       string `json:"plot_id,omitempty"`
	BatchID      string `json:"batch_id,omitempty"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
}

// BatchPlottingResponse is the response of the batch plotting endpoint
type BatchPlottingResponse struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	BatchID      string            `json:"batch_id,omitempty"`
	Results      []BatchPlotResult `json:"results,omitempty"`
	DashboardURL string            `json:"dashboard_url,omitempty"`
	Summary      BatchSummary      `json:"summary"`
}

// BatchPlotResult is a single plot result within a batch response
type BatchPlotResult struct {
	Success   bool   `json:"success"`
	PlotID    string `json:"plot_id,omitempty"`
	PlotURL   string `json:"plot_url,omitempty"`
	ViewURL   string `json:"view_url,omitempty"`
	PlotType  string `json:"plot_type,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// BatchSummary summarizes a batch operation
type BatchSummary struct {
	TotalPlots int `json:"total_plots"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type batchRequest struct {
	Plots []PlotData `json:"plots"`
	Batch bool       `json:"batch"`
}

// Client sends plot payloads to the plotting service. Transport errors and
// 5xx responses are retried. The client starts disabled.
type Client struct {
	baseURL string
	http    *resty.Client
	enabled atomic.Bool
}

// NewClient creates a new plotting service client
func NewClient(cfg Config) *Client {
	attempts := cfg.RetryAttempts - 1
	if attempts < 0 {
		attempts = 0
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(attempts).
		SetRetryWaitTime(cfg.RetryDelay).
		SetRetryMaxWaitTime(cfg.RetryDelay).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		baseURL: cfg.BaseURL,
		http:    rc,
	}
}

// Enable enables the client
func (c *Client) Enable() {
	c.enabled.Store(true)
}

// Disable disables the client
func (c *Client) Disable() {
	c.enabled.Store(false)
}

// IsEnabled returns whether the client is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled.Load()
}

// BaseURL returns the plotting service address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendPlotData sends one plot to the plotting service. A disabled client
// returns an unsuccessful response without contacting the service.
func (c *Client) SendPlotData(ctx context.Context, plot PlotData) (*PlottingResponse, error) {
	if !c.IsEnabled() {
		return &PlottingResponse{Success: false, Message: ErrDisabled.Error()}, nil
	}

	var out PlottingResponse
	resp, err := c.request(ctx).
		SetBody(plot).
		SetResult(&out).
		SetError(&out).
		Post("/api/plot")
	if err != nil {
		return nil, fmt.Errorf("failed to send plot data: %w", err)
	}
	if resp.IsError() {
		return &out, fmt.Errorf("plot request failed with status %d: %s", resp.StatusCode(), out.Message)
	}
	return &out, nil
}

// BatchSendPlots sends multiple plots in a single request
func (c *Client) BatchSendPlots(ctx context.Context, plots []PlotData) (*BatchPlottingResponse, error) {
	if !c.IsEnabled() {
		return &BatchPlottingResponse{Success: false, Message: ErrDisabled.Error()}, nil
	}

	var out BatchPlottingResponse
	resp, err := c.request(ctx).
		SetBody(batchRequest{Plots: plots, Batch: true}).
		SetResult(&out).
		SetError(&out).
		Post("/api/batch-plot")
	if err != nil {
		return nil, fmt.Errorf("failed to send batch plot data: %w", err)
	}
	if resp.IsError() {
		return &out, fmt.Errorf("batch plot request failed with status %d: %s", resp.StatusCode(), out.Message)
	}
	return &out, nil
}

// CheckHealth checks if the plotting service is available
func (c *Client) CheckHealth(ctx context.Context) error {
	if !c.IsEnabled() {
		return ErrDisabled
	}

	resp, err := c.request(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("failed to send health check request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode())
	}
	return nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
}
