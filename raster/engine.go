// Package raster draws chart configurations as PNG images with go-chart.
package raster

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/tsawler/trainchart/chart"
)

// Default image size
const (
	DefaultWidth  = 800
	DefaultHeight = 400
)

// ErrNothingToDraw is returned for configurations without any data points
var ErrNothingToDraw = errors.New("chart has no data to draw")

// Engine renders every drawn chart to PNG and keeps the image per container.
// It is safe for concurrent use.
type Engine struct {
	width  int
	height int

	mu     sync.RWMutex
	images map[string][]byte
}

// NewEngine creates an engine producing width x height images.
// Non-positive sizes fall back to the defaults.
func NewEngine(width, height int) *Engine {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Engine{
		width:  width,
		height: height,
		images: make(map[string][]byte),
	}
}

// Draw renders cfg and stores the PNG under containerID, replacing any
// previous image for that container
func (e *Engine) Draw(containerID string, cfg chart.Config) error {
	var buf bytes.Buffer
	if err := Render(cfg, &buf, e.width, e.height); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[containerID] = buf.Bytes()
	return nil
}

// Image returns the PNG drawn into containerID
func (e *Engine) Image(containerID string) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	img, ok := e.images[containerID]
	return img, ok
}

// Render writes cfg as a PNG line chart to w
func Render(cfg chart.Config, w io.Writer, width, height int) error {
	n := len(cfg.Data.Labels)
	for _, ds := range cfg.Data.Datasets {
		if len(ds.Data) > n {
			n = len(ds.Data)
		}
	}
	if n == 0 || len(cfg.Data.Datasets) == 0 {
		return ErrNothingToDraw
	}

	series := make([]gochart.Series, 0, len(cfg.Data.Datasets))
	lo, hi := 0.0, 0.0
	first := true
	for _, ds := range cfg.Data.Datasets {
		if len(ds.Data) == 0 {
			continue
		}
		col, err := ParseColor(ds.BorderColor)
		if err != nil {
			return errors.Wrapf(err, "dataset %q", ds.Label)
		}

		xs := make([]float64, len(ds.Data))
		ys := append([]float64(nil), ds.Data...)
		for i, v := range ys {
			xs[i] = float64(i + 1)
			if first || v < lo {
				lo = v
			}
			if first || v > hi {
				hi = v
			}
			first = false
		}
		// a single point has no extent; repeat it so the line renders
		if len(xs) == 1 {
			xs = append(xs, xs[0]+1)
			ys = append(ys, ys[0])
		}

		series = append(series, gochart.ContinuousSeries{
			Name:    ds.Label,
			XValues: xs,
			YValues: ys,
			Style: gochart.Style{
				StrokeColor: col,
				StrokeWidth: float64(max(ds.BorderWidth, 1)),
			},
		})
	}
	if len(series) == 0 {
		return ErrNothingToDraw
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}

	ch := gochart.Chart{
		Title:      titleOf(cfg),
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      xAxis(cfg, n),
		YAxis: gochart.YAxis{
			Name:  axisName(cfg.Options.Scales.Y),
			Range: &gochart.ContinuousRange{Min: lo, Max: hi},
		},
		Series: series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}

	if err := ch.Render(gochart.PNG, w); err != nil {
		return errors.Wrap(err, "failed to render png")
	}
	return nil
}

// xAxis places points at 1..n and labels them with the chart's category labels
func xAxis(cfg chart.Config, n int) gochart.XAxis {
	ticks := make([]gochart.Tick, 0, n+1)
	for i := 0; i < n; i++ {
		label := strconv.Itoa(i + 1)
		if i < len(cfg.Data.Labels) {
			label = labelText(cfg.Data.Labels[i])
		}
		ticks = append(ticks, gochart.Tick{Value: float64(i + 1), Label: label})
	}

	minR, maxR := 0.5, float64(n)+0.5
	if n == 1 {
		maxR = 2.0
		ticks = append(ticks, gochart.Tick{Value: 2, Label: ""})
	}
	return gochart.XAxis{
		Name:  axisName(cfg.Options.Scales.X),
		Ticks: ticks,
		Range: &gochart.ContinuousRange{Min: minR, Max: maxR},
	}
}

func axisName(a chart.Axis) string {
	if !a.Title.Display {
		return ""
	}
	return a.Title.Text
}

func titleOf(cfg chart.Config) string {
	if len(cfg.Data.Datasets) == 0 {
		return ""
	}
	return cfg.Data.Datasets[0].Label
}

func labelText(v any) string {
	switch l := v.(type) {
	case nil:
		return ""
	case string:
		return l
	case float64:
		return strconv.FormatFloat(l, 'g', -1, 64)
	default:
		return fmt.Sprint(l)
	}
}

// ParseColor parses CSS colors of the form rgb(r, g, b), rgba(r, g, b, a)
// and #rrggbb. An empty string yields the default series color.
func ParseColor(s string) (drawing.Color, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return drawing.ColorFromHex("4bc0c0"), nil
	case strings.HasPrefix(s, "#"):
		if len(s) != 7 {
			return drawing.Color{}, errors.Errorf("invalid hex color %q", s)
		}
		if _, err := strconv.ParseUint(s[1:], 16, 32); err != nil {
			return drawing.Color{}, errors.Errorf("invalid hex color %q", s)
		}
		return drawing.ColorFromHex(s[1:]), nil
	}

	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return drawing.Color{}, errors.Errorf("invalid color %q", s)
	}
	fn := strings.ToLower(strings.TrimSpace(s[:open]))
	parts := strings.Split(s[open+1:len(s)-1], ",")

	want := 3
	if fn == "rgba" {
		want = 4
	} else if fn != "rgb" {
		return drawing.Color{}, errors.Errorf("unsupported color function %q", fn)
	}
	if len(parts) != want {
		return drawing.Color{}, errors.Errorf("invalid color %q", s)
	}

	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 8)
		if err != nil {
			return drawing.Color{}, errors.Wrapf(err, "invalid color %q", s)
		}
		rgb[i] = uint8(v)
	}

	alpha := uint8(255)
	if want == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return drawing.Color{}, errors.Errorf("invalid alpha in color %q", s)
		}
		alpha = uint8(a*255 + 0.5)
	}
	return drawing.Color{R: rgb[0], G: rgb[1], B: rgb[2], A: alpha}, nil
}
