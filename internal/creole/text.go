package creole

import "strings"

// Title returns the plain text of the first heading, or "" when there is none.
func Title(nodes []Node) string {
	for _, n := range nodes {
		if h, ok := n.(Heading); ok {
			return strings.TrimSpace(PlainText(h.Children))
		}
	}
	return ""
}

// PlainText flattens inline nodes into their visible text.
func PlainText(nodes []Node) string {
	var b strings.Builder
	writePlain(&b, nodes)
	return b.String()
}

func writePlain(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch v := n.(type) {
		case Text:
			b.WriteString(v.Value)
		case Literal:
			b.WriteString(v.Value)
		case Bold:
			writePlain(b, v.Children)
		case Italic:
			writePlain(b, v.Children)
		case Link:
			if len(v.Children) == 0 {
				b.WriteString(v.Target)
			} else {
				writePlain(b, v.Children)
			}
		case Image:
			b.WriteString(v.Caption)
		case SoftBreak, HardBreak:
			b.WriteByte(' ')
		}
	}
}
