// Package editor renders a paper document as the editable page instructors work on.
// Header fields and question cells are content-editable; edits and toasts go through
// the studio API and notification socket.
package editor

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

//go:embed page.html.tmpl
var pageTemplate string

// Page is the data behind one render of the editor.
type Page struct {
	Title  string
	Layout paper.Layout
	// Doc is nil until a paper has been generated.
	Doc *paper.Document
}

type Renderer struct {
	tmpl *template.Template
}

func New() (*Renderer, error) {
	tmpl, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse editor template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the page as HTML.
func (r *Renderer) Render(w io.Writer, p Page) error {
	v := pageView{Title: p.Title, Layout: string(p.Layout)}
	if v.Title == "" {
		v.Title = "Question Paper"
	}
	if p.Doc != nil {
		v.HasPaper = true
		if p.Doc.Title != "" && p.Title == "" {
			v.Title = p.Doc.Title
		}
		v.Nodes = nodes(p.Doc.Nodes)
	}
	return r.tmpl.Execute(w, v)
}

type pageView struct {
	Title    string
	Layout   string
	HasPaper bool
	Nodes    []nodeView
}

// nodeView flattens the node interface for the template; exactly one field is set.
type nodeView struct {
	Text  *textView
	Image *imageView
	Group *groupView
	Table *tableView
}

type textView struct {
	Class    string
	Segments []segmentView
}

type segmentView struct {
	Label string
	Value string
	Field string
}

type imageView struct {
	Src template.URL
	Alt string
}

type groupView struct {
	Class    string
	Children []nodeView
}

type tableView struct {
	Columns  []columnView
	Rows     []rowView
	Editable bool
}

type columnView struct {
	Title   string
	Small   bool
	Percent int
}

type rowView struct {
	Separator string
	Span      int
	Ref       string
	Serial    string
	Lines     []string
	Unit      string
	BTLevel   string
	CO        string
	ImageURL  string
	Image     template.URL
}

func nodes(in []paper.Node) []nodeView {
	out := make([]nodeView, 0, len(in))
	for _, n := range in {
		switch n := n.(type) {
		case *paper.TextBlock:
			out = append(out, nodeView{Text: text(n)})
		case *paper.ImageBlock:
			out = append(out, nodeView{Image: &imageView{Src: template.URL(n.Source), Alt: n.Alt}})
		case *paper.GroupBlock:
			class := "header"
			if n.Kind == paper.GroupNote {
				class = "note"
			}
			out = append(out, nodeView{Group: &groupView{Class: class, Children: nodes(n.Children)}})
		case *paper.TableBlock:
			out = append(out, nodeView{Table: table(n)})
		}
	}
	return out
}

func text(t *paper.TextBlock) *textView {
	class := "left"
	switch t.Align {
	case paper.AlignCenter:
		class = "center"
	case paper.AlignSpread:
		class = "spread"
	}
	if t.Heading {
		class += " heading"
	}
	if t.Bold {
		class += " bold"
	}
	if t.RuleBelow {
		class += " rule"
	}
	v := &textView{Class: class}
	for _, s := range t.Segments {
		v.Segments = append(v.Segments, segmentView{Label: s.Label, Value: s.Value, Field: s.Field})
	}
	return v
}

func table(t *paper.TableBlock) *tableView {
	v := &tableView{Editable: t.Editable}
	for _, c := range t.Columns {
		v.Columns = append(v.Columns, columnView{Title: c.Title, Small: c.Small, Percent: int(c.Width*100 + 0.5)})
	}
	for _, it := range t.Items {
		switch it := it.(type) {
		case *paper.Separator:
			v.Rows = append(v.Rows, rowView{Separator: it.Text, Span: len(t.Columns)})
		case *paper.Row:
			q := it.Question
			row := rowView{
				Ref:      it.Ref,
				Serial:   it.Serial,
				Lines:    paper.Lines(q.Text),
				Unit:     unit(q.Unit),
				BTLevel:  q.BTLevel,
				CO:       it.CO,
				ImageURL: q.ImageURL,
			}
			if q.HasImage() {
				// Data URLs come from the image proxy or the built-in placeholder.
				row.Image = template.URL(q.ImageDataURL)
			}
			v.Rows = append(v.Rows, row)
		}
	}
	return v
}

func unit(u int) string {
	if u == 0 {
		return ""
	}
	return strconv.Itoa(u)
}
