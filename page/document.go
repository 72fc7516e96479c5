// Package page is the HTML boundary of the chart renderer: it parses
// server-rendered markup into a chart.Document, produces the data-carrying
// containers, and injects Chart.js initialization scripts.
package page

import (
	"fmt"
	"io"

	"golang.org/x/net/html"

	"github.com/tsawler/trainchart/chart"
)

// Document is a parsed HTML page
type Document struct {
	root *html.Node
}

// Element wraps an element node of a Document
type Element struct {
	node *html.Node
}

// Parse parses an HTML page
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{root: root}, nil
}

// Element returns the first element whose id attribute equals id
func (d *Document) Element(id string) (chart.Element, bool) {
	n := d.find(id)
	if n == nil {
		return nil, false
	}
	return &Element{node: n}, true
}

func (d *Document) find(id string) *html.Node {
	var walk func(n *html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode {
			if v, ok := attr(n, "id"); ok && v == id {
				return n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(d.root)
}

// Render writes the document, including any injected scripts
func (d *Document) Render(w io.Writer) error {
	if err := html.Render(w, d.root); err != nil {
		return fmt.Errorf("failed to render HTML: %w", err)
	}
	return nil
}

// Attribute returns the unescaped value of the named attribute
func (e *Element) Attribute(name string) (string, bool) {
	return attr(e.node, name)
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
