package paper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tables(doc Document) []*TableBlock {
	var out []*TableBlock
	for _, n := range doc.Nodes {
		if tb, ok := n.(*TableBlock); ok {
			out = append(out, tb)
		}
	}
	return out
}

func TestPlainTemplateBuildsSingleTable(t *testing.T) {
	in := Input{
		Details: Details{Subject: "Networks", PaperType: TypeMid2},
		Header:  Header{SubjectCode: "CS501", Branch: "CSE"},
		Questions: []Question{
			{Text: "q1", Unit: 1},
			{Text: "q2", Unit: 7},
		},
		Editable: true,
	}
	doc := PlainTemplate{}.Build(in)
	assert.Equal(t, "Networks", doc.Title)

	tbs := tables(doc)
	require.Len(t, tbs, 1)
	assert.Len(t, tbs[0].Columns, 6, "edit column on screen")

	rows := tbs[0].Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].Serial)
	assert.Equal(t, "0", rows[0].Ref)
	assert.Equal(t, "CO1", rows[0].CO)
	assert.Equal(t, "", rows[1].CO)

	header := doc.Nodes[0].(*GroupBlock)
	var text string
	for _, c := range header.Children {
		if tb, ok := c.(*TextBlock); ok {
			text += tb.Text() + "\n"
		}
	}
	assert.Contains(t, text, "Max Marks: 20")
	assert.Contains(t, text, "Time: 90 Min.")
	assert.Contains(t, text, "Mid II Examinations")
	assert.Contains(t, text, "Subject Code: CS501")

	last := doc.Nodes[len(doc.Nodes)-1].(*TextBlock)
	assert.Equal(t, ClosingLine, last.Text())
}

func TestPartitionedTemplateGroupsAndSeparators(t *testing.T) {
	in := Input{
		Details: Details{Subject: "DBMS", PaperType: TypeMid1},
		Questions: []Question{
			qa("3"), qa("1"), qa("2"),
			qb("2a"), qb("2b"), qb("3"), qb("4a"), qb("4b"), qb("5"), qb("6"), qb("7a"), qb("7b"),
		},
	}
	doc := PartitionedTemplate{}.Build(in)
	tbs := tables(doc)
	require.Len(t, tbs, 2)
	assert.Len(t, tbs[0].Columns, 5, "no edit column in export mode")

	var partA []string
	for _, r := range tbs[0].Rows() {
		partA = append(partA, r.Serial)
	}
	assert.Equal(t, []string{"1", "2", "3"}, partA)

	var seq []string
	for _, it := range tbs[1].Items {
		switch v := it.(type) {
		case *Row:
			seq = append(seq, v.Serial)
		case *Separator:
			seq = append(seq, v.Text)
		}
	}
	assert.Equal(t, []string{"2a", "2b", "OR", "3", "4a", "4b", "OR", "5", "6", "OR", "7a", "7b"}, seq)
	assert.Equal(t, "B:2a", tbs[1].Rows()[0].Ref)

	header := doc.Nodes[0].(*GroupBlock)
	found := false
	for _, c := range header.Children {
		if tb, ok := c.(*TextBlock); ok && tb.Align == AlignSpread && tb.Segments[0].Label == "Time:" {
			assert.Equal(t, "40", tb.Segments[1].Value)
			found = true
		}
	}
	assert.True(t, found)
}

func TestPartitionedTemplateEmptyGroupsKeepSeparators(t *testing.T) {
	doc := PartitionedTemplate{}.Build(Input{})
	tbs := tables(doc)
	require.Len(t, tbs, 2)
	assert.Empty(t, tbs[1].Rows())
	assert.Len(t, tbs[1].Items, 3)
}

func TestTemplateFor(t *testing.T) {
	assert.Equal(t, LayoutPartitioned, TemplateFor(LayoutPartitioned).Layout())
	assert.Equal(t, LayoutPlain, TemplateFor("").Layout())
	assert.Equal(t, 40, TemplateFor(LayoutPartitioned).MaxMarks())
	assert.Equal(t, 20, TemplateFor(LayoutPlain).MaxMarks())
}

func TestDetailsAcceptNumericFields(t *testing.T) {
	var d Details
	err := json.Unmarshal([]byte(`{"subject":"OS","year":3,"semester":"II","regulation":null}`), &d)
	require.NoError(t, err)
	assert.Equal(t, "3", d.Year.String())
	assert.Equal(t, "II", d.Semester.String())
	assert.Equal(t, "", d.Regulation.String())
}
