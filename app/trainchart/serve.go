package main

import (
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/tsawler/trainchart/history"
	"github.com/tsawler/trainchart/metrics"
	"github.com/tsawler/trainchart/server"
	"github.com/tsawler/trainchart/sidecar"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run reports, chart configs and PNG charts over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	gin.SetMode(gin.ReleaseMode)

	store, err := history.NewStore(cfg.Runs.Dir, cfg.Runs.CacheSize, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := metrics.NewStats(reg)
	store.SetObserver(stats)

	opts := []server.Option{server.WithGatherer(reg)}
	if cfg.Sidecar.Enabled {
		client := sidecar.NewClient(cfg.Sidecar.Config)
		client.Enable()
		if err := client.CheckHealth(cmd.Context()); err != nil {
			level.Warn(logger).Log("msg", "plotting service is not reachable", "url", client.BaseURL(), "err", err)
		}
		opts = append(opts, server.WithSidecar(client))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level.Info(logger).Log("msg", "starting trainchart", "runs", cfg.Runs.Dir, "metrics", len(cfg.Charts.Metrics))
	return server.New(cfg, store, stats, logger, opts...).Run(ctx)
}
