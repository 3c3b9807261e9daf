package creole

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParseError reports markup that could not be turned into a document tree.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("creole: line %d: %s", e.Line, e.Msg)
}

// Parse converts markup text into an ordered list of block nodes.
func Parse(text string) ([]Node, error) {
	if !utf8.ValidString(text) {
		return nil, &ParseError{Line: invalidUTF8Line(text), Msg: "invalid UTF-8"}
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	p := &blockParser{lines: strings.Split(text, "\n")}
	p.run()
	return p.out, nil
}

type blockParser struct {
	lines []string
	pos   int
	para  []string
	out   []Node
}

func (p *blockParser) run() {
	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			p.flushParagraph()
			p.pos++

		case trimmed == "{{{":
			p.flushParagraph()
			p.nowikiBlock()

		case isRule(trimmed):
			p.flushParagraph()
			p.out = append(p.out, Rule{})
			p.pos++

		case strings.HasPrefix(trimmed, "="):
			p.flushParagraph()
			p.out = append(p.out, heading(trimmed))
			p.pos++

		case isListLine(trimmed):
			p.flushParagraph()
			p.list()

		case strings.HasPrefix(trimmed, "|"):
			p.flushParagraph()
			p.table()

		default:
			p.para = append(p.para, trimmed)
			p.pos++
		}
	}
	p.flushParagraph()
}

func (p *blockParser) flushParagraph() {
	if len(p.para) == 0 {
		return
	}
	var children []Node
	for i, l := range p.para {
		if i > 0 {
			children = append(children, SoftBreak{})
		}
		children = append(children, parseInline(l)...)
	}
	p.out = append(p.out, Line{Children: children})
	p.para = nil
}

// nowikiBlock reads a literal block. A block with no closing "}}}" runs to
// the end of the document.
func (p *blockParser) nowikiBlock() {
	p.pos++
	var body []string
	for p.pos < len(p.lines) {
		if strings.TrimSpace(p.lines[p.pos]) == "}}}" {
			p.pos++
			break
		}
		body = append(body, p.lines[p.pos])
		p.pos++
	}
	p.out = append(p.out, Literal{Value: strings.Join(body, "\n")})
}

func isRule(s string) bool {
	return len(s) >= 4 && strings.Trim(s, "-") == ""
}

// heading parses "== title ==". The dialect counts one level less than the
// number of '=' signs, so "==" is the top level.
func heading(s string) Node {
	n := len(s) - len(strings.TrimLeft(s, "="))
	title := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s[n:]), "="))
	level := n - 1
	if level < 1 {
		level = 1
	}
	return Heading{Level: level, Children: parseInline(title)}
}

type listLine struct {
	markers string
	text    string
}

// splitListLine returns the marker run and the item text. A marker run must be
// followed by whitespace, so "**bold**" at line start stays a paragraph.
func splitListLine(s string) (listLine, bool) {
	n := 0
	for n < len(s) && (s[n] == '*' || s[n] == '#') {
		n++
	}
	if n == 0 || n >= len(s) || (s[n] != ' ' && s[n] != '\t') {
		return listLine{}, false
	}
	return listLine{markers: s[:n], text: strings.TrimSpace(s[n:])}, true
}

func isListLine(s string) bool {
	_, ok := splitListLine(s)
	return ok
}

func (p *blockParser) list() {
	var items []listLine
	for p.pos < len(p.lines) {
		ll, ok := splitListLine(strings.TrimSpace(p.lines[p.pos]))
		if !ok {
			break
		}
		items = append(items, ll)
		p.pos++
	}
	p.out = append(p.out, buildLists(items, 0)...)
}

type listAcc struct {
	kind  byte
	items []ListItem
}

func (a *listAcc) node() Node {
	items := make([]Node, len(a.items))
	for i, it := range a.items {
		items[i] = it
	}
	if a.kind == '#' {
		return NumberedList{Items: items}
	}
	return BulletList{Items: items}
}

// buildLists turns marker-prefixed lines into nested lists. Every item in
// items has at least depth+1 markers.
func buildLists(items []listLine, depth int) []Node {
	var out []Node
	var cur *listAcc
	open := func(kind byte) {
		if cur != nil && cur.kind == kind {
			return
		}
		if cur != nil {
			out = append(out, cur.node())
		}
		cur = &listAcc{kind: kind}
	}

	for i := 0; i < len(items); {
		it := items[i]
		kind := it.markers[depth]
		open(kind)

		if len(it.markers) == depth+1 {
			cur.items = append(cur.items, ListItem{Children: parseInline(it.text)})
			i++
			continue
		}

		j := i
		for j < len(items) && len(items[j].markers) > depth+1 && items[j].markers[depth] == kind {
			j++
		}
		nested := buildLists(items[i:j], depth+1)
		if len(cur.items) == 0 {
			cur.items = append(cur.items, ListItem{})
		}
		last := &cur.items[len(cur.items)-1]
		last.Children = append(last.Children, nested...)
		i = j
	}
	if cur != nil {
		out = append(out, cur.node())
	}
	return out
}

func (p *blockParser) table() {
	var rows []Node
	for p.pos < len(p.lines) {
		trimmed := strings.TrimSpace(p.lines[p.pos])
		if !strings.HasPrefix(trimmed, "|") {
			break
		}
		rows = append(rows, tableRow(trimmed))
		p.pos++
	}
	p.out = append(p.out, Table{Rows: rows})
}

func tableRow(s string) Node {
	s = strings.TrimPrefix(s, "|")
	if strings.HasSuffix(s, "|") && !strings.HasSuffix(s, "~|") {
		s = strings.TrimSuffix(s, "|")
	}
	raw := splitCells(s)

	cells := make([]Node, 0, len(raw))
	allHeader := len(raw) > 0
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if strings.HasPrefix(c, "=") {
			cells = append(cells, TableHeaderCell{Children: parseInline(strings.TrimSpace(c[1:]))})
			continue
		}
		allHeader = false
		cells = append(cells, TableCell{Children: parseInline(c)})
	}
	if allHeader {
		return TableHeaderRow{Cells: cells}
	}
	return TableRow{Cells: cells}
}

// splitCells splits on '|' outside of [[...]] and {{...}} and escapes.
func splitCells(s string) []string {
	var cells []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '~':
			i++
		case strings.HasPrefix(s[i:], "[[") || strings.HasPrefix(s[i:], "{{"):
			depth++
			i++
		case depth > 0 && (strings.HasPrefix(s[i:], "]]") || strings.HasPrefix(s[i:], "}}")):
			depth--
			i++
		case s[i] == '|' && depth == 0:
			cells = append(cells, s[start:i])
			start = i + 1
		}
	}
	return append(cells, s[start:])
}

func invalidUTF8Line(s string) int {
	line := 1
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			return line
		}
		if r == '\n' {
			line++
		}
		i += size
	}
	return line
}
