package chart

import (
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Engine draws a chart configuration into a container
type Engine interface {
	Draw(containerID string, cfg Config) error
}

// EngineFunc adapts a function to the Engine interface
type EngineFunc func(containerID string, cfg Config) error

// Draw calls f
func (f EngineFunc) Draw(containerID string, cfg Config) error {
	return f(containerID, cfg)
}

// Observer is notified of the outcome of every Render call
type Observer interface {
	RenderSucceeded(metricName string, elapsed time.Duration)
	RenderFailed(metricName, kind string)
}

// Option configures a Renderer
type Option func(*Renderer)

// WithPalette overrides the series colors
func WithPalette(p Palette) Option {
	return func(r *Renderer) {
		r.palette = p
	}
}

// WithLogger sets the logger used for render diagnostics
func WithLogger(l log.Logger) Option {
	return func(r *Renderer) {
		r.logger = l
	}
}

// WithObserver registers an observer for render outcomes
func WithObserver(o Observer) Option {
	return func(r *Renderer) {
		r.observer = o
	}
}

// Renderer reads metric series from a document's containers and submits one
// chart per container to an engine. A Renderer is bound to a single document
// and is not safe for concurrent use.
type Renderer struct {
	doc      Document
	engine   Engine
	palette  Palette
	logger   log.Logger
	observer Observer
}

// NewRenderer creates a renderer over doc that draws with engine
func NewRenderer(doc Document, engine Engine, opts ...Option) *Renderer {
	r := &Renderer{
		doc:     doc,
		engine:  engine,
		palette: DefaultPalette(),
		logger:  log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.With(r.logger, "component", "chart_renderer")
	return r
}

// Render draws the metricName chart from the data attributes of containerID.
// The engine is only invoked once the series have been read and validated.
func (r *Renderer) Render(metricName, containerID string) error {
	start := time.Now()

	cfg, err := r.configFor(metricName, containerID)
	if err == nil {
		if drawErr := r.engine.Draw(containerID, cfg); drawErr != nil {
			err = fmt.Errorf("failed to draw chart %q: %w", containerID, drawErr)
		}
	}

	if err != nil {
		level.Warn(r.logger).Log("msg", "render failed", "metric", metricName, "container", containerID, "err", err)
		if r.observer != nil {
			r.observer.RenderFailed(metricName, Kind(err))
		}
		return err
	}

	elapsed := time.Since(start)
	level.Debug(r.logger).Log("msg", "chart rendered", "metric", metricName, "container", containerID, "points", len(cfg.Data.Labels), "elapsed", elapsed)
	if r.observer != nil {
		r.observer.RenderSucceeded(metricName, elapsed)
	}
	return nil
}

func (r *Renderer) configFor(metricName, containerID string) (Config, error) {
	el, ok := r.doc.Element(containerID)
	if !ok {
		return Config{}, &MissingElementError{ID: containerID}
	}

	series, err := ReadSeries(el)
	if err != nil {
		return Config{}, err
	}

	return BuildConfig(metricName, series, r.palette)
}
