package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/tsawler/trainchart/chart"
	"github.com/tsawler/trainchart/history"
	"github.com/tsawler/trainchart/page"
	"github.com/tsawler/trainchart/raster"
	"github.com/tsawler/trainchart/sidecar"
)

// statusOf maps domain errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, history.ErrInvalidRun):
		return http.StatusBadRequest
	case errors.Is(err, history.ErrRunNotFound), errors.Is(err, history.ErrUnknownMetric):
		return http.StatusNotFound
	case errors.Is(err, chart.ErrMalformedSeriesData),
		errors.Is(err, chart.ErrLengthMismatch),
		errors.Is(err, history.ErrNoData),
		errors.Is(err, history.ErrNonFinite),
		errors.Is(err, history.ErrEpochOrder),
		errors.Is(err, history.ErrMetricSet),
		errors.Is(err, raster.ErrNothingToDraw),
		errors.Is(err, sidecar.ErrEmptyBatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sidecar.ErrDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		level.Error(s.logger).Log("msg", "request failed", "path", c.Request.URL.Path, "request_id", c.GetString(requestIDKey), "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      err.Error(),
		"request_id": c.GetString(requestIDKey),
	})
}

// renderOptions returns the renderer options for charts drawn by engine
func (s *Server) renderOptions(c *gin.Context, engine string) []chart.Option {
	opts := []chart.Option{
		chart.WithPalette(s.cfg.Charts.Palette()),
		chart.WithLogger(log.With(s.logger, "request_id", c.GetString(requestIDKey), "engine", engine)),
	}
	if s.stats != nil {
		opts = append(opts, chart.WithObserver(s.stats.Observer(engine)))
	}
	return opts
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.List()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) report(c *gin.Context) {
	h, err := s.store.Get(c.Param("run"))
	if err != nil {
		s.fail(c, err)
		return
	}

	r, _ := page.RunReport(h, s.cfg.Charts.Metrics, s.cfg.Charts.ChartJSURL)
	for id, err := range r.Draw(s.renderOptions(c, "script")...) {
		r.AddNotice(id + ": " + err.Error())
	}

	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) chartConfig(c *gin.Context) {
	h, err := s.store.Get(c.Param("run"))
	if err != nil {
		s.fail(c, err)
		return
	}

	var cfg chart.Config
	capture := chart.EngineFunc(func(_ string, built chart.Config) error {
		cfg = built
		return nil
	})
	if err := page.RenderMetric(h, c.Param("metric"), capture, s.renderOptions(c, "json")...); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) chartPNG(c *gin.Context) {
	h, err := s.store.Get(c.Param("run"))
	if err != nil {
		s.fail(c, err)
		return
	}

	metric := c.Param("metric")
	engine := raster.NewEngine(s.cfg.Charts.Width, s.cfg.Charts.Height)
	if err := page.RenderMetric(h, metric, engine, s.renderOptions(c, "png")...); err != nil {
		s.fail(c, err)
		return
	}
	img, _ := engine.Image(page.ChartID(metric))
	c.Data(http.StatusOK, "image/png", img)
}

func (s *Server) recordEpoch(c *gin.Context) {
	var m history.EpochMetrics
	if err := c.ShouldBindJSON(&m); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":      err.Error(),
			"request_id": c.GetString(requestIDKey),
		})
		return
	}

	run := c.Param("run")
	if err := s.store.Record(run, m); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"run": run, "epoch": m.Epoch})
}

func (s *Server) pushSidecar(c *gin.Context) {
	if s.sidecar == nil || !s.sidecar.IsEnabled() {
		s.fail(c, sidecar.ErrDisabled)
		return
	}

	run := c.Param("run")
	h, err := s.store.Get(run)
	if err != nil {
		s.fail(c, err)
		return
	}

	engine := sidecar.NewEngine(s.sidecar, s.sidecarModel(run))
	engine.Timeout = s.cfg.Sidecar.Timeout

	metric := c.Param("metric")
	if err := page.RenderMetric(h, metric, engine, s.renderOptions(c, "sidecar")...); err != nil {
		s.fail(c, err)
		return
	}
	resp, _ := engine.Response(page.ChartID(metric))
	c.JSON(http.StatusOK, resp)
}

// pushSidecarBatch sends the charts of every configured metric in one batch.
// Metrics that cannot be charted are reported back and left out of the batch.
func (s *Server) pushSidecarBatch(c *gin.Context) {
	if s.sidecar == nil || !s.sidecar.IsEnabled() {
		s.fail(c, sidecar.ErrDisabled)
		return
	}

	run := c.Param("run")
	h, err := s.store.Get(run)
	if err != nil {
		s.fail(c, err)
		return
	}

	engine := sidecar.NewBatchEngine(s.sidecar, s.sidecarModel(run))
	failures := make(map[string]string)
	for _, metric := range s.cfg.Charts.Metrics {
		if err := page.RenderMetric(h, metric, engine, s.renderOptions(c, "sidecar")...); err != nil {
			failures[metric] = err.Error()
		}
	}

	ctx := c.Request.Context()
	if s.cfg.Sidecar.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Sidecar.Timeout)
		defer cancel()
	}
	charts := engine.Pending()
	resp, err := engine.Flush(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"charts":   charts,
		"failures": failures,
		"batch":    resp,
	})
}

func (s *Server) sidecarModel(run string) string {
	if s.cfg.Sidecar.Model != "" {
		return s.cfg.Sidecar.Model
	}
	return run
}
