package creole

import (
	"strings"
	"unicode/utf8"
)

func parseInline(s string) []Node {
	p := &inlineParser{src: s}
	nodes, _ := p.parse("")
	return nodes
}

type inlineParser struct {
	src string
	pos int
}

// afterColon reports whether the cursor follows ':' so that "//" in
// "https://" is not read as an italic marker.
func (p *inlineParser) afterColon() bool {
	return p.pos > 0 && p.src[p.pos-1] == ':'
}

// parse consumes inline markup until stop (or the end of input) and reports
// whether stop was found.
func (p *inlineParser) parse(stop string) ([]Node, bool) {
	var out []Node
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, Text{Value: buf.String()})
			buf.Reset()
		}
	}

	for p.pos < len(p.src) {
		rest := p.src[p.pos:]
		if stop != "" && strings.HasPrefix(rest, stop) && !(stop == "//" && p.afterColon()) {
			p.pos += len(stop)
			flush()
			return out, true
		}

		switch {
		case rest[0] == '~' && len(rest) > 1:
			_, size := utf8.DecodeRuneInString(rest[1:])
			buf.WriteString(rest[1 : 1+size])
			p.pos += 1 + size

		case strings.HasPrefix(rest, `\\`):
			flush()
			out = append(out, HardBreak{})
			p.pos += 2

		case strings.HasPrefix(rest, "{{{"):
			end := strings.Index(rest[3:], "}}}")
			if end < 0 {
				buf.WriteString("{{{")
				p.pos += 3
				continue
			}
			flush()
			out = append(out, Literal{Value: rest[3 : 3+end]})
			p.pos += 3 + end + 3

		case strings.HasPrefix(rest, "[["):
			end := strings.Index(rest[2:], "]]")
			if end < 0 {
				buf.WriteString("[[")
				p.pos += 2
				continue
			}
			flush()
			out = append(out, link(rest[2:2+end]))
			p.pos += 2 + end + 2

		case strings.HasPrefix(rest, "{{"):
			end := strings.Index(rest[2:], "}}")
			if end < 0 {
				buf.WriteString("{{")
				p.pos += 2
				continue
			}
			flush()
			out = append(out, image(rest[2:2+end]))
			p.pos += 2 + end + 2

		case strings.HasPrefix(rest, "**"):
			flush()
			p.pos += 2
			inner, _ := p.parse("**")
			out = append(out, Bold{Children: inner})

		case strings.HasPrefix(rest, "//") && !p.afterColon():
			flush()
			p.pos += 2
			inner, _ := p.parse("//")
			out = append(out, Italic{Children: inner})

		default:
			buf.WriteByte(rest[0])
			p.pos++
		}
	}
	flush()
	return out, false
}

func link(inner string) Node {
	target, display, _ := strings.Cut(inner, "|")
	l := Link{Target: strings.TrimSpace(target)}
	if display = strings.TrimSpace(display); display != "" {
		l.Children = parseInline(display)
	}
	return l
}

func image(inner string) Node {
	src, caption, _ := strings.Cut(inner, "|")
	return Image{Source: strings.TrimSpace(src), Caption: strings.TrimSpace(caption)}
}
