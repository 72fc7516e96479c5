// Package server serves training run reports, chart configurations and PNG
// renderings over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tsawler/trainchart/config"
	"github.com/tsawler/trainchart/history"
	"github.com/tsawler/trainchart/metrics"
	"github.com/tsawler/trainchart/sidecar"
)

// Option configures a Server
type Option func(*Server)

// WithSidecar enables pushing charts to the plotting service
func WithSidecar(c *sidecar.Client) Option {
	return func(s *Server) {
		s.sidecar = c
	}
}

// WithGatherer sets the registry exposed on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// Server serves the reports and charts of the runs in a history store
type Server struct {
	cfg      config.Config
	store    *history.Store
	stats    *metrics.Stats
	logger   log.Logger
	sidecar  *sidecar.Client
	gatherer prometheus.Gatherer

	router  *gin.Engine
	handler http.Handler
}

// New creates a server over store. stats may be nil.
func New(cfg config.Config, store *history.Store, stats *metrics.Stats, logger log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{
		cfg:      cfg,
		store:    store,
		stats:    stats,
		logger:   log.With(logger, "component", "server"),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	s.handler = gzhttp.GzipHandler(s.router)
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.GET("/runs/:run", s.report)
	r.GET("/runs/:run/charts/:metric/png", s.chartPNG)

	api := r.Group("/api")
	{
		api.GET("/runs", s.listRuns)
		api.GET("/runs/:run/charts/:metric", s.chartConfig)
		api.POST("/runs/:run/epochs", s.recordEpoch)
		api.POST("/runs/:run/charts/:metric/sidecar", s.pushSidecar)
		api.POST("/runs/:run/sidecar", s.pushSidecarBatch)
	}
	return r
}

// Handler returns the HTTP handler serving all routes. Responses are gzip
// compressed for clients that accept it.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully. When run watching is enabled the store watcher runs alongside.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		level.Info(s.logger).Log("msg", "listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		level.Info(s.logger).Log("msg", "shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if s.cfg.Runs.Watch {
		g.Go(func() error {
			return s.store.Watch(ctx)
		})
	}
	return g.Wait()
}
