package pdf

import (
	"github.com/gokatarajesh/exam-paper-studio/internal/layout"
	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

// contentBlock is a header group, note, part label, logo or footer.
type contentBlock struct {
	node paper.Node
}

func (contentBlock) Kind() layout.Kind { return layout.KindContent }

type tableHeaderBlock struct {
	columns []paper.Column
}

func (tableHeaderBlock) Kind() layout.Kind { return layout.KindTableHeader }

type rowBlock struct {
	columns []paper.Column
	row     *paper.Row
}

func (rowBlock) Kind() layout.Kind { return layout.KindRow }

type separatorBlock struct {
	columns []paper.Column
	text    string
}

func (separatorBlock) Kind() layout.Kind { return layout.KindSeparator }

// Blocks flattens a document into the atomic blocks the pagination engine places.
// Tables become a header block followed by one block per row or separator.
func Blocks(doc paper.Document) []layout.Block {
	var blocks []layout.Block
	for _, n := range doc.Nodes {
		tb, ok := n.(*paper.TableBlock)
		if !ok {
			blocks = append(blocks, contentBlock{node: n})
			continue
		}
		blocks = append(blocks, tableHeaderBlock{columns: tb.Columns})
		for _, it := range tb.Items {
			switch v := it.(type) {
			case *paper.Row:
				blocks = append(blocks, rowBlock{columns: tb.Columns, row: v})
			case *paper.Separator:
				blocks = append(blocks, separatorBlock{columns: tb.Columns, text: v.Text})
			}
		}
	}
	return blocks
}
