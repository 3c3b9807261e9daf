// Package creole defines the parsed document tree for wiki markup and a
// parser that produces it.
package creole

// Node is one element of a parsed document. The set of variants is closed:
// only the types declared in this file implement it.
type Node interface {
	node()
}

// Heading is a section title. Level is 1-based.
type Heading struct {
	Level    int
	Children []Node
}

// Bold is strongly emphasised inline content.
type Bold struct {
	Children []Node
}

// Italic is emphasised inline content.
type Italic struct {
	Children []Node
}

// Text is a run of plain text.
type Text struct {
	Value string
}

// Literal is verbatim text that must not be interpreted as markup.
type Literal struct {
	Value string
}

// Link points at Target. Children is the display content and may be empty.
type Link struct {
	Target   string
	Children []Node
}

// Line is a paragraph-level sequence of inline nodes.
type Line struct {
	Children []Node
}

// Image embeds Source with an optional Caption.
type Image struct {
	Source  string
	Caption string
}

// SoftBreak joins two source lines of the same paragraph.
type SoftBreak struct{}

// HardBreak is an explicit line break.
type HardBreak struct{}

// Rule is a horizontal divider.
type Rule struct{}

// Table holds TableHeaderRow and TableRow nodes only.
type Table struct {
	Rows []Node
}

// TableHeaderRow is a row whose cells are all header cells.
type TableHeaderRow struct {
	Cells []Node
}

// TableRow is a data row.
type TableRow struct {
	Cells []Node
}

// TableHeaderCell is a header cell.
type TableHeaderCell struct {
	Children []Node
}

// TableCell is a data cell.
type TableCell struct {
	Children []Node
}

// BulletList holds ListItem nodes.
type BulletList struct {
	Items []Node
}

// NumberedList holds ListItem nodes.
type NumberedList struct {
	Items []Node
}

// ListItem is one list entry; nested lists appear among its children.
type ListItem struct {
	Children []Node
}

func (Heading) node()         {}
func (Bold) node()            {}
func (Italic) node()          {}
func (Text) node()            {}
func (Literal) node()         {}
func (Link) node()            {}
func (Line) node()            {}
func (Image) node()           {}
func (SoftBreak) node()       {}
func (HardBreak) node()       {}
func (Rule) node()            {}
func (Table) node()           {}
func (TableHeaderRow) node()  {}
func (TableRow) node()        {}
func (TableHeaderCell) node() {}
func (TableCell) node()       {}
func (BulletList) node()      {}
func (NumberedList) node()    {}
func (ListItem) node()        {}
