// Package render turns a parsed creole document into a view element tree.
package render

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/starford/creolewiki/internal/creole"
	"github.com/starford/creolewiki/internal/route"
)

const maxHeading = 6

// externalSchemes are the target prefixes that mark a link as leaving the wiki.
var externalSchemes = []string{"http://", "https://", "ftp://", "mailto:"}

// Node is one view node: an *Element or a Text leaf.
type Node interface {
	viewNode()
}

// Attr is one element attribute.
type Attr struct {
	Key, Val string
}

// Element is a tagged view node with ordered attributes and children.
type Element struct {
	Tag      string
	Attrs    []Attr
	Children []Node
}

// Text is a text leaf.
type Text string

func (*Element) viewNode() {}
func (Text) viewNode()     {}

// Attr returns the value of attribute key.
func (e *Element) Attr(key string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// IsExternal reports whether target starts with an absolute URI scheme.
func IsExternal(target string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	for _, s := range externalSchemes {
		if strings.HasPrefix(t, s) {
			return true
		}
	}
	return false
}

// Render converts one document node. Unknown variants render as an empty
// placeholder span.
func Render(n creole.Node) Node {
	switch v := n.(type) {
	case creole.Heading:
		level := min(max(v.Level, 1), maxHeading)
		return elem("h"+strconv.Itoa(level), nil, v.Children)
	case creole.Bold:
		return elem("strong", nil, v.Children)
	case creole.Italic:
		return elem("em", nil, v.Children)
	case creole.Text:
		return Text(v.Value)
	case creole.Literal:
		return &Element{Tag: "pre", Children: []Node{Text(v.Value)}}
	case creole.Link:
		return link(v)
	case creole.Line:
		return elem("p", nil, v.Children)
	case creole.Image:
		return image(v)
	case creole.SoftBreak:
		return Text(" ")
	case creole.HardBreak:
		return &Element{Tag: "br"}
	case creole.Rule:
		return &Element{Tag: "hr"}
	case creole.Table:
		return table(v)
	case creole.TableHeaderRow:
		return elem("tr", nil, v.Cells)
	case creole.TableRow:
		return elem("tr", nil, v.Cells)
	case creole.TableHeaderCell:
		return elem("th", nil, v.Children)
	case creole.TableCell:
		return elem("td", nil, v.Children)
	case creole.BulletList:
		return elem("ul", nil, v.Items)
	case creole.NumberedList:
		return elem("ol", nil, v.Items)
	case creole.ListItem:
		return elem("li", nil, v.Children)
	default:
		return &Element{Tag: "span"}
	}
}

// RenderAll converts a list of sibling nodes.
func RenderAll(nodes []creole.Node) []Node {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Render(n)
	}
	return out
}

// RenderDocument parses and renders markup text. A parse failure renders
// nothing.
func RenderDocument(text string, logger *slog.Logger) []Node {
	start := time.Now()
	doc, err := creole.Parse(text)
	if err != nil {
		if logger != nil {
			logger.Debug("render: parse failed", slog.String("error", err.Error()))
		}
		return nil
	}
	out := RenderAll(doc)
	if logger != nil {
		logger.Debug("render: parsed and rendered",
			slog.Int("blocks", len(doc)),
			slog.Duration("took", time.Since(start)))
	}
	return out
}

func elem(tag string, attrs []Attr, children []creole.Node) *Element {
	return &Element{Tag: tag, Attrs: attrs, Children: RenderAll(children)}
}

func link(l creole.Link) Node {
	children := RenderAll(l.Children)
	if len(children) == 0 {
		children = []Node{Text(l.Target)}
	}
	if IsExternal(l.Target) {
		return &Element{
			Tag: "a",
			Attrs: []Attr{
				{"href", l.Target},
				{"target", "_blank"},
				{"rel", "noopener noreferrer"},
			},
			Children: children,
		}
	}
	p := route.ViewPath(strings.Trim(strings.TrimSpace(l.Target), "/"))
	return &Element{
		Tag:      "a",
		Attrs:    []Attr{{"href", p}, {"data-navigate", p}},
		Children: children,
	}
}

func image(img creole.Image) Node {
	el := &Element{Tag: "img", Attrs: []Attr{{"src", img.Source}, {"alt", img.Caption}}}
	if img.Caption == "" {
		return el
	}
	return &Element{
		Tag: "figure",
		Children: []Node{
			el,
			&Element{Tag: "figcaption", Children: []Node{Text(img.Caption)}},
		},
	}
}

// table always emits thead and tbody, keeping source order inside each.
func table(t creole.Table) Node {
	head := &Element{Tag: "thead"}
	body := &Element{Tag: "tbody"}
	for _, row := range t.Rows {
		if _, ok := row.(creole.TableHeaderRow); ok {
			head.Children = append(head.Children, Render(row))
		} else {
			body.Children = append(body.Children, Render(row))
		}
	}
	return &Element{Tag: "table", Children: []Node{head, body}}
}
