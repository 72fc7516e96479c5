// Package config loads trainchart settings from a YAML file and
// TRAINCHART_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/tsawler/trainchart/chart"
	"github.com/tsawler/trainchart/page"
	"github.com/tsawler/trainchart/sidecar"
)

// EnvPrefix is prepended to every environment override, e.g. TRAINCHART_SERVER_ADDR
const EnvPrefix = "TRAINCHART"

// Config is the complete trainchart configuration
type Config struct {
	Server  Server  `mapstructure:"server"`
	Runs    Runs    `mapstructure:"runs"`
	Charts  Charts  `mapstructure:"charts"`
	Sidecar Sidecar `mapstructure:"sidecar"`
	Log     Log     `mapstructure:"log"`
}

// Server configures the HTTP listener
type Server struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Runs locates training histories on disk
type Runs struct {
	Dir       string `mapstructure:"dir"`
	CacheSize uint32 `mapstructure:"cache_size"`
	Watch     bool   `mapstructure:"watch"`
}

// Charts selects the metrics to chart and how they look
type Charts struct {
	Metrics        []string `mapstructure:"metrics"`
	PrimaryColor   string   `mapstructure:"primary_color"`
	SecondaryColor string   `mapstructure:"secondary_color"`
	Width          int      `mapstructure:"width"`
	Height         int      `mapstructure:"height"`
	ChartJSURL     string   `mapstructure:"chartjs_url"`
}

// Palette returns the configured series colors
func (c Charts) Palette() chart.Palette {
	return chart.Palette{Primary: c.PrimaryColor, Secondary: c.SecondaryColor}
}

// Sidecar configures the external plotting service.
// Model labels the plots; when empty the run name is used.
type Sidecar struct {
	Enabled        bool   `mapstructure:"enabled"`
	Model          string `mapstructure:"model"`
	sidecar.Config `mapstructure:",squash"`
}

// Log selects the log level and format (logfmt or json)
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration
func Default() Config {
	palette := chart.DefaultPalette()
	return Config{
		Server: Server{
			Addr:            ":8090",
			ShutdownTimeout: 10 * time.Second,
		},
		Runs: Runs{
			Dir:       "runs",
			CacheSize: 64,
			Watch:     true,
		},
		Charts: Charts{
			Metrics:        []string{"accuracy", "loss"},
			PrimaryColor:   palette.Primary,
			SecondaryColor: palette.Secondary,
			Width:          800,
			Height:         400,
			ChartJSURL:     page.DefaultChartJSURL,
		},
		Sidecar: Sidecar{
			Enabled: false,
			Model:   "trainchart",
			Config:  sidecar.DefaultConfig(),
		},
		Log: Log{
			Level:  "info",
			Format: "logfmt",
		},
	}
}

// Load reads path (if not empty) on top of the defaults, applies environment
// overrides and validates the result
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// every key needs a default for AutomaticEnv to reach it through Unmarshal
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("runs.dir", d.Runs.Dir)
	v.SetDefault("runs.cache_size", d.Runs.CacheSize)
	v.SetDefault("runs.watch", d.Runs.Watch)

	v.SetDefault("charts.metrics", d.Charts.Metrics)
	v.SetDefault("charts.primary_color", d.Charts.PrimaryColor)
	v.SetDefault("charts.secondary_color", d.Charts.SecondaryColor)
	v.SetDefault("charts.width", d.Charts.Width)
	v.SetDefault("charts.height", d.Charts.Height)
	v.SetDefault("charts.chartjs_url", d.Charts.ChartJSURL)

	v.SetDefault("sidecar.enabled", d.Sidecar.Enabled)
	v.SetDefault("sidecar.model", d.Sidecar.Model)
	v.SetDefault("sidecar.base_url", d.Sidecar.BaseURL)
	v.SetDefault("sidecar.timeout", d.Sidecar.Timeout)
	v.SetDefault("sidecar.retry_attempts", d.Sidecar.RetryAttempts)
	v.SetDefault("sidecar.retry_delay", d.Sidecar.RetryDelay)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate reports the first setting that cannot work
func (c Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return errors.New("server.addr must not be empty")
	case c.Server.ShutdownTimeout <= 0:
		return errors.New("server.shutdown_timeout must be positive")
	case c.Runs.CacheSize == 0:
		return errors.New("runs.cache_size must be positive")
	case len(c.Charts.Metrics) == 0:
		return errors.New("charts.metrics must name at least one metric")
	case c.Charts.Width <= 0 || c.Charts.Height <= 0:
		return errors.New("charts.width and charts.height must be positive")
	case c.Sidecar.Enabled && c.Sidecar.BaseURL == "":
		return errors.New("sidecar.base_url is required when the sidecar is enabled")
	}
	for _, m := range c.Charts.Metrics {
		if strings.TrimSpace(m) == "" {
			return errors.New("charts.metrics contains an empty metric name")
		}
	}
	return nil
}
