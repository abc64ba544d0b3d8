package paper

import (
	"strconv"
)

// Header field names, also used as session keys.
const (
	FieldSubjectCode = "subjectCode"
	FieldBranch      = "branch"
	FieldExamDate    = "examDate"
	FieldMonthYear   = "monthyear"
)

// Input carries everything a template needs to build a Document.
type Input struct {
	Details   Details
	Header    Header
	Questions []Question
	// Editable adds the on-screen Edit column.
	Editable bool
	Logo     string
}

// ExamTemplate builds the fixed institutional layout for one kind of paper.
type ExamTemplate interface {
	Layout() Layout
	MaxMarks() int
	Build(in Input) Document
}

// TemplateFor returns the template for a layout. Unknown layouts get the plain one.
func TemplateFor(l Layout) ExamTemplate {
	if l == LayoutPartitioned {
		return PartitionedTemplate{}
	}
	return PlainTemplate{}
}

// PlainTemplate is the single-table Mid paper.
type PlainTemplate struct{}

func (PlainTemplate) Layout() Layout { return LayoutPlain }
func (PlainTemplate) MaxMarks() int  { return 20 }

func (t PlainTemplate) Build(in Input) Document {
	table := &TableBlock{Columns: columns(in.Editable), Editable: in.Editable}
	for i, q := range in.Questions {
		table.Items = append(table.Items, &Row{
			Ref:      strconv.Itoa(i),
			Serial:   strconv.Itoa(i + 1),
			Question: q,
			CO:       COForUnit(q.Unit),
		})
	}

	nodes := []Node{
		headerGroup(in, t.MaxMarks()),
		noteGroup(
			"Question paper consists of 2 ½ Units, Answer any 4 full questions out of 6 questions.",
			"Each question carries 5 marks and may have sub-questions.",
		),
		table,
		footer(),
	}
	return Document{Title: in.Details.Subject.String(), Nodes: nodes}
}

// PartitionedTemplate is the Part A / Part B paper.
type PartitionedTemplate struct{}

func (PartitionedTemplate) Layout() Layout { return LayoutPartitioned }
func (PartitionedTemplate) MaxMarks() int  { return 40 }

func (t PartitionedTemplate) Build(in Input) Document {
	partA := &TableBlock{Columns: columns(in.Editable), Editable: in.Editable}
	for _, q := range SortPartA(in.Questions) {
		partA.Items = append(partA.Items, row(q))
	}

	partB := &TableBlock{Columns: columns(in.Editable), Editable: in.Editable}
	groups := GroupPartB(in.Questions)
	for i, g := range groups {
		for _, q := range g.Rows() {
			partB.Items = append(partB.Items, row(q))
		}
		if ORAfter(i, len(groups)) {
			partB.Items = append(partB.Items, &Separator{Text: "OR"})
		}
	}

	nodes := []Node{
		headerGroup(in, t.MaxMarks()),
		noteGroup(
			"Question paper consists of Part A and Part B. Part A is compulsory.",
			"In Part B answer one question from each pair; each question may have sub-questions.",
		),
		partLabel("PART - A"),
		partA,
		partLabel("PART - B"),
		partB,
		footer(),
	}
	return Document{Title: in.Details.Subject.String(), Nodes: nodes}
}

// RefFor returns the edit reference of a partitioned question.
func RefFor(q Question) string {
	return string(q.Part) + ":" + q.Label
}

func row(q Question) *Row {
	return &Row{
		Ref:      RefFor(q),
		Serial:   q.Label,
		Question: q,
		CO:       COForUnit(q.Unit),
	}
}

func columns(editable bool) []Column {
	cols := []Column{
		{Title: "S. No", Width: 0.10},
		{Title: "Question", Width: 0.60},
		{Title: "Unit", Width: 0.08},
		{Title: "B.T Level", Width: 0.12, Small: true},
		{Title: "CO", Width: 0.10},
	}
	if editable {
		cols = append(cols, Column{Title: "Edit", Width: 0.08})
	}
	return cols
}

func headerGroup(in Input, maxMarks int) *GroupBlock {
	d := in.Details
	children := []Node{
		&TextBlock{Segments: []Segment{{Label: "Subject Code:", Value: in.Header.SubjectCode, Field: FieldSubjectCode}}},
	}
	if in.Logo != "" {
		children = append(children, &ImageBlock{Source: in.Logo, Alt: "Institution Logo"})
	}
	children = append(children,
		&TextBlock{
			Segments: []Segment{
				{Value: "B.Tech " + d.Year.String() + " Year " + d.Semester.String() + " Semester " + TermLabel(d.PaperType) + " Examinations"},
				{Value: in.Header.MonthYear, Field: FieldMonthYear},
			},
			Align:   AlignCenter,
			Heading: true,
		},
		&TextBlock{Segments: []Segment{{Value: "(" + d.Regulation.String() + " Regulation)"}}, Align: AlignCenter},
		&TextBlock{
			Segments: []Segment{
				{Label: "Time:", Value: ExamTime},
				{Label: "Max Marks:", Value: strconv.Itoa(maxMarks)},
			},
			Align: AlignSpread,
		},
		&TextBlock{
			Segments: []Segment{
				{Label: "Subject:", Value: d.Subject.String()},
				{Label: "Branch:", Value: in.Header.Branch, Field: FieldBranch},
				{Label: "Date:", Value: in.Header.ExamDate, Field: FieldExamDate},
			},
			Align:     AlignSpread,
			RuleBelow: true,
		},
	)
	return &GroupBlock{Kind: GroupHeader, Children: children}
}

func noteGroup(first, second string) *GroupBlock {
	return &GroupBlock{
		Kind: GroupNote,
		Children: []Node{
			&TextBlock{Segments: []Segment{{Label: "Note:", Value: first}}},
			&TextBlock{Segments: []Segment{{Value: second}}},
		},
	}
}

func partLabel(text string) *TextBlock {
	return &TextBlock{Segments: []Segment{{Value: text}}, Align: AlignCenter, Bold: true}
}

func footer() *TextBlock {
	return &TextBlock{Segments: []Segment{{Value: ClosingLine}}, Align: AlignCenter, Bold: true}
}
