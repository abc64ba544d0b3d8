package paper

// Document is the structured form of a paper, shared by the on-screen editor and
// both export renderers.
type Document struct {
	Title string
	Nodes []Node
}

// Node is one top-level element of a Document. Concrete types: *TextBlock,
// *ImageBlock, *TableBlock and *GroupBlock.
type Node interface {
	node()
}

// Align controls how a TextBlock lays out its segments.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	// AlignSpread distributes segments across the line: first left, last right.
	AlignSpread
)

// Segment is a bold label followed by a value.
type Segment struct {
	Label string
	Value string
	// Field names the editable header field behind Value, if any.
	Field string
}

// TextBlock is a paragraph of one or more segments.
type TextBlock struct {
	Segments  []Segment
	Align     Align
	Heading   bool
	Bold      bool
	RuleBelow bool
}

// ImageBlock is a standalone picture such as the institution logo.
type ImageBlock struct {
	Source string
	Alt    string
}

// GroupKind tells renderers what a GroupBlock stands for.
type GroupKind int

const (
	GroupHeader GroupKind = iota
	GroupNote
)

// GroupBlock keeps its children together as one unit.
type GroupBlock struct {
	Kind     GroupKind
	Children []Node
}

// Column is a table column; Width is a fraction of the table width.
type Column struct {
	Title string
	Width float64
	Small bool
}

// TableItem is a *Row or a *Separator.
type TableItem interface {
	tableItem()
}

// Row is one question row.
type Row struct {
	// Ref addresses the question for edits: an index for plain papers,
	// "part:label" for partitioned ones.
	Ref      string
	Serial   string
	Question Question
	CO       string
}

// Separator is a full-width row between alternatives.
type Separator struct {
	Text string
}

// TableBlock is a question table.
type TableBlock struct {
	Columns  []Column
	Items    []TableItem
	Editable bool
}

func (*TextBlock) node()  {}
func (*ImageBlock) node() {}
func (*TableBlock) node() {}
func (*GroupBlock) node() {}

func (*Row) tableItem()       {}
func (*Separator) tableItem() {}

// Text returns the segments joined the way they read on paper.
func (t *TextBlock) Text() string {
	out := ""
	for i, s := range t.Segments {
		if i > 0 {
			out += " "
		}
		if s.Label != "" {
			out += s.Label
			if s.Value != "" {
				out += " "
			}
		}
		out += s.Value
	}
	return out
}

// Rows returns the question rows of the table, skipping separators.
func (t *TableBlock) Rows() []*Row {
	var rows []*Row
	for _, it := range t.Items {
		if r, ok := it.(*Row); ok {
			rows = append(rows, r)
		}
	}
	return rows
}
