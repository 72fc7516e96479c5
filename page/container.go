package page

import (
	"errors"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tsawler/trainchart/chart"
)

// ErrAlreadyDrawn is returned when a container is drawn into a second time
var ErrAlreadyDrawn = errors.New("container already holds a chart")

// Container builds a canvas element carrying s in its data attributes
func Container(id string, s chart.MetricSeries) (*html.Node, error) {
	attrs, err := chart.EncodeAttributes(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode series for %q: %w", id, err)
	}

	return &html.Node{
		Type:     html.ElementNode,
		Data:     "canvas",
		DataAtom: atom.Canvas,
		Attr: []html.Attribute{
			{Key: "id", Val: id},
			{Key: chart.AttrPrimary, Val: attrs[chart.AttrPrimary]},
			{Key: chart.AttrSecondary, Val: attrs[chart.AttrSecondary]},
			{Key: chart.AttrLabels, Val: attrs[chart.AttrLabels]},
		},
	}, nil
}

// ScriptEngine draws charts by inserting a Chart.js constructor call right
// after each container. Each container can be drawn at most once.
type ScriptEngine struct {
	doc   *Document
	drawn map[string]bool
}

// NewScriptEngine creates an engine that writes into doc
func NewScriptEngine(doc *Document) *ScriptEngine {
	return &ScriptEngine{
		doc:   doc,
		drawn: make(map[string]bool),
	}
}

// Draw implements chart.Engine
func (e *ScriptEngine) Draw(containerID string, cfg chart.Config) error {
	if e.drawn[containerID] {
		return fmt.Errorf("%w: %q", ErrAlreadyDrawn, containerID)
	}

	target := e.doc.find(containerID)
	if target == nil || target.Parent == nil {
		return &chart.MissingElementError{ID: containerID}
	}

	script, err := Script(containerID, cfg)
	if err != nil {
		return err
	}

	target.Parent.InsertBefore(script, target.NextSibling)
	e.drawn[containerID] = true
	return nil
}

// Drawn reports whether containerID has been drawn into
func (e *ScriptEngine) Drawn(containerID string) bool {
	return e.drawn[containerID]
}

// Script builds the <script> element that constructs the chart in containerID.
// The JSON encoder escapes '<' and '>', so the payload cannot close the script element.
func Script(containerID string, cfg chart.Config) (*html.Node, error) {
	cfgJSON, err := cfg.ToJSON()
	if err != nil {
		return nil, err
	}
	idJSON, err := jsonString(containerID)
	if err != nil {
		return nil, err
	}

	script := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
	}
	script.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: fmt.Sprintf("new Chart(document.getElementById(%s), %s);", idJSON, cfgJSON),
	})
	return script, nil
}
