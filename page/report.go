package page

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tsawler/trainchart/chart"
)

// DefaultChartJSURL is the Chart.js bundle referenced by generated reports
const DefaultChartJSURL = "https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js"

// Report is an HTML page holding one chart per metric
type Report struct {
	doc    *Document
	body   *html.Node
	charts []reportChart
}

type reportChart struct {
	id     string
	metric string
}

// NewReport creates an empty report page titled title that loads Chart.js from chartJSURL
func NewReport(title, chartJSURL string) *Report {
	if chartJSURL == "" {
		chartJSURL = DefaultChartJSURL
	}

	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	htmlEl := element(atom.Html, nil)
	root.AppendChild(htmlEl)

	head := element(atom.Head, nil)
	htmlEl.AppendChild(head)
	head.AppendChild(element(atom.Meta, []html.Attribute{{Key: "charset", Val: "utf-8"}}))
	titleEl := element(atom.Title, nil)
	titleEl.AppendChild(text(title))
	head.AppendChild(titleEl)
	head.AppendChild(element(atom.Script, []html.Attribute{{Key: "src", Val: chartJSURL}}))

	body := element(atom.Body, nil)
	htmlEl.AppendChild(body)
	h1 := element(atom.H1, nil)
	h1.AppendChild(text(title))
	body.AppendChild(h1)

	return &Report{
		doc:  &Document{root: root},
		body: body,
	}
}

// AddChart appends a section with a container for metricName holding s
func (r *Report) AddChart(id, metricName string, s chart.MetricSeries) error {
	for _, c := range r.charts {
		if c.id == id {
			return fmt.Errorf("duplicate chart id %q", id)
		}
	}

	canvas, err := Container(id, s)
	if err != nil {
		return err
	}

	section := element(atom.Section, []html.Attribute{{Key: "class", Val: "metric-chart"}})
	h2 := element(atom.H2, nil)
	h2.AppendChild(text(metricName))
	section.AppendChild(h2)
	section.AppendChild(canvas)
	r.body.AppendChild(section)

	r.charts = append(r.charts, reportChart{id: id, metric: metricName})
	return nil
}

// AddNotice appends a paragraph, used for charts that could not be built
func (r *Report) AddNotice(msg string) {
	p := element(atom.P, []html.Attribute{{Key: "class", Val: "notice"}})
	p.AppendChild(text(msg))
	r.body.AppendChild(p)
}

// Draw renders every added chart into the page. It returns the render error
// of each chart that failed, keyed by container id; the page keeps the others.
func (r *Report) Draw(opts ...chart.Option) map[string]error {
	renderer := chart.NewRenderer(r.doc, NewScriptEngine(r.doc), opts...)

	failures := make(map[string]error)
	for _, c := range r.charts {
		if err := renderer.Render(c.metric, c.id); err != nil {
			failures[c.id] = err
		}
	}
	return failures
}

// Document returns the underlying page
func (r *Report) Document() *Document {
	return r.doc
}

// Render writes the page
func (r *Report) Render(w io.Writer) error {
	return r.doc.Render(w)
}

func element(a atom.Atom, attrs []html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     a.String(),
		DataAtom: a,
		Attr:     attrs,
	}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func jsonString(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode %q: %w", s, err)
	}
	return string(b), nil
}
