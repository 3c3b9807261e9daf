package render

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// WriteHTML serializes view nodes as an HTML fragment.
func WriteHTML(w io.Writer, nodes []Node) error {
	for _, n := range nodes {
		if err := html.Render(w, toHTML(n)); err != nil {
			return fmt.Errorf("render: write html: %w", err)
		}
	}
	return nil
}

// HTML returns the fragment for nodes as a string.
func HTML(nodes []Node) string {
	var b bytes.Buffer
	if err := WriteHTML(&b, nodes); err != nil {
		return ""
	}
	return b.String()
}

func toHTML(n Node) *html.Node {
	switch v := n.(type) {
	case Text:
		return &html.Node{Type: html.TextNode, Data: string(v)}
	case *Element:
		hn := &html.Node{
			Type:     html.ElementNode,
			Data:     v.Tag,
			DataAtom: atom.Lookup([]byte(v.Tag)),
		}
		for _, a := range v.Attrs {
			hn.Attr = append(hn.Attr, html.Attribute{Key: a.Key, Val: a.Val})
		}
		for _, c := range v.Children {
			hn.AppendChild(toHTML(c))
		}
		return hn
	default:
		return &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
	}
}
