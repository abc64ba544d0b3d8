// Package docx writes a paper document as a WordprocessingML (.docx) package. Word
// paginates the result itself; table header rows are marked to repeat.
package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	gd "github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/dml/dmlct"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-paper-studio/internal/images"
	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

const (
	emuPerPx  = 9525
	pxPerInch = 96
)

// coreProps takes the escaped document title.
const coreProps = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">
<dc:title>%s</dc:title>
<dc:creator>exam-paper-studio</dc:creator>
</cp:coreProperties>`

// Options sets page geometry in twips, body font size in points and the image bound
// in pixels.
type Options struct {
	PageWidth  int
	PageHeight int
	Margin     int
	FontSize   int
	ImageMaxPx int
}

// DefaultOptions is A4 portrait with 9 mm margins.
func DefaultOptions() Options {
	return Options{PageWidth: 11906, PageHeight: 16838, Margin: 510, FontSize: 11, ImageMaxPx: 200}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PageWidth <= 0 || o.PageHeight <= 0 {
		o.PageWidth, o.PageHeight = d.PageWidth, d.PageHeight
	}
	if o.Margin <= 0 {
		o.Margin = d.Margin
	}
	if o.FontSize <= 0 {
		o.FontSize = d.FontSize
	}
	if o.ImageMaxPx <= 0 {
		o.ImageMaxPx = d.ImageMaxPx
	}
	return o
}

type picture struct {
	path   string
	width  int
	height int
}

type writer struct {
	opts   Options
	logger zerolog.Logger
	root   *gd.RootDoc
	// dir holds normalized pictures; godocx only embeds images from files.
	dir    string
	// pics caches pictures by data URL. A nil entry marks one that failed to decode.
	pics   map[string]*picture
}

// Render returns the .docx bytes for doc.
func Render(doc paper.Document, opts Options, logger zerolog.Logger) ([]byte, error) {
	root, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	dir, err := os.MkdirTemp("", "paper-docx-")
	if err != nil {
		return nil, fmt.Errorf("create picture dir: %w", err)
	}
	defer os.RemoveAll(dir)

	w := &writer{
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "docx_renderer").Logger(),
		root:   root,
		dir:    dir,
		pics:   map[string]*picture{},
	}
	w.section()
	root.FileMap.Store("docProps/core.xml", []byte(fmt.Sprintf(coreProps, esc(doc.Title))))

	for _, n := range doc.Nodes {
		if err := w.node(n, false); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := root.Write(&buf); err != nil {
		return nil, fmt.Errorf("write package: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *writer) section() {
	body := w.root.Document.Body
	if body.SectPr == nil {
		body.SectPr = ctypes.NewSectionProper()
	}
	pw, ph := uint64(w.opts.PageWidth), uint64(w.opts.PageHeight)
	m, zero := w.opts.Margin, 0
	body.SectPr.PageSize = &ctypes.PageSize{Width: &pw, Height: &ph}
	body.SectPr.PageMargin = &ctypes.PageMargin{
		Top: &m, Right: &m, Bottom: &m, Left: &m,
		Header: &zero, Footer: &zero, Gutter: &zero,
	}
}

func (w *writer) contentWidth() int {
	return w.opts.PageWidth - 2*w.opts.Margin
}

func (w *writer) node(n paper.Node, keepNext bool) error {
	switch v := n.(type) {
	case *paper.GroupBlock:
		for i, child := range v.Children {
			if err := w.node(child, i < len(v.Children)-1); err != nil {
				return err
			}
		}
	case *paper.TextBlock:
		w.paragraph(v, keepNext)
	case *paper.ImageBlock:
		p := w.root.AddEmptyParagraph()
		if keepNext {
			props(p).KeepNext = &ctypes.OnOff{}
		}
		p.Justification(stypes.JustificationCenter)
		return w.picture(p, v.Source)
	case *paper.TableBlock:
		if err := w.table(v); err != nil {
			return err
		}
		// Word requires a paragraph between adjacent tables.
		w.root.AddEmptyParagraph()
	}
	return nil
}

func props(p *gd.Paragraph) *ctypes.ParagraphProp {
	ct := p.GetCT()
	if ct.Property == nil {
		ct.Property = &ctypes.ParagraphProp{}
	}
	return ct.Property
}

func (w *writer) paragraph(t *paper.TextBlock, keepNext bool) {
	size := w.opts.FontSize
	if t.Heading {
		size += 2
	}

	p := w.root.AddEmptyParagraph()
	pr := props(p)
	if keepNext {
		pr.KeepNext = &ctypes.OnOff{}
	}
	if t.RuleBelow {
		pr.Border = &ctypes.ParaBorder{Bottom: ctypes.NewCellBorder(stypes.BorderStyleSingle, "000000", "1", 8)}
	}
	if t.Align == paper.AlignSpread && len(t.Segments) > 1 {
		cw := w.contentWidth()
		if len(t.Segments) > 2 {
			pr.Tabs.Tab = append(pr.Tabs.Tab, ctypes.Tab{Val: stypes.CustTabStopCenter, Position: cw / 2})
		}
		pr.Tabs.Tab = append(pr.Tabs.Tab, ctypes.Tab{Val: stypes.CustTabStopRight, Position: cw})
	}
	p.Spacing(0, 60)
	if t.Align == paper.AlignCenter {
		p.Justification(stypes.JustificationCenter)
	}

	bold := t.Heading || t.Bold
	for i, s := range t.Segments {
		if i > 0 {
			if t.Align == paper.AlignSpread {
				tab(p)
			} else {
				run(p, " ", bold, size)
			}
		}
		if s.Label != "" {
			run(p, s.Label+" ", true, size)
		}
		run(p, s.Value, bold, size)
	}
}

func run(p *gd.Paragraph, text string, bold bool, size int) {
	if text == "" {
		return
	}
	r := p.AddText(text).Size(uint64(size))
	if bold {
		r.Bold(true)
	}
}

func tab(p *gd.Paragraph) {
	ct := p.GetCT()
	ct.Children = append(ct.Children, ctypes.ParagraphChild{
		Run: &ctypes.Run{Children: []ctypes.RunChild{{Tab: &ctypes.Empty{}}}},
	})
}

func columnWidths(cols []paper.Column, total int) []int {
	sum := 0.0
	for _, c := range cols {
		sum += c.Width
	}
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = int(float64(total) * c.Width / sum)
	}
	return widths
}

func (w *writer) table(t *paper.TableBlock) error {
	cw := w.contentWidth()
	widths := columnWidths(t.Columns, cw)
	grid := make([]uint64, len(widths))
	for i, width := range widths {
		grid[i] = uint64(width)
	}

	tbl := w.root.AddTable()
	tbl.Width(cw, stypes.TableWidthDxa).Layout(stypes.TableLayoutFixed).Grid(grid...)
	line := func() *ctypes.Border {
		return ctypes.NewCellBorder(stypes.BorderStyleSingle, "000000", "0", 4)
	}
	tbl.GetCT().TableProp.Borders = &ctypes.TableBorders{
		Top: line(), Left: line(), Bottom: line(), Right: line(), InsideH: line(), InsideV: line(),
	}

	head := tbl.AddRow()
	markRow(tbl, true)
	for i, c := range t.Columns {
		size := w.opts.FontSize
		if c.Small {
			size -= 2
		}
		p := head.AddCell().Width(widths[i], stypes.TableWidthDxa).BackgroundColor("E6E6E6").AddEmptyPara()
		p.Justification(stypes.JustificationCenter)
		run(p, c.Title, true, size)
	}

	for _, it := range t.Items {
		switch v := it.(type) {
		case *paper.Row:
			if err := w.row(tbl, v, widths); err != nil {
				return err
			}
		case *paper.Separator:
			row := tbl.AddRow()
			markRow(tbl, false)
			p := row.AddCell().Width(cw, stypes.TableWidthDxa).ColSpan(len(widths)).AddEmptyPara()
			p.Justification(stypes.JustificationCenter)
			run(p, v.Text, true, w.opts.FontSize)
		}
	}
	return nil
}

// markRow keeps the row just added to tbl on one page and, for header rows, repeats
// it after page breaks. godocx has no row property setters, so this goes through the
// table's underlying element.
func markRow(tbl *gd.Table, header bool) {
	rows := tbl.GetCT().RowContents
	prop := rows[len(rows)-1].Row.Property
	prop.CantSplit = &ctypes.OnOff{}
	if header {
		prop.Header = &ctypes.OnOff{}
	}
}

func (w *writer) row(tbl *gd.Table, r *paper.Row, widths []int) error {
	row := tbl.AddRow()
	markRow(tbl, false)
	for i, width := range widths {
		cell := row.AddCell().Width(width, stypes.TableWidthDxa)
		if i != 1 {
			p := cell.AddEmptyPara()
			p.Justification(stypes.JustificationCenter)
			run(p, cellText(r, i), false, w.opts.FontSize)
			continue
		}
		for _, line := range paper.Lines(r.Question.Text) {
			run(cell.AddEmptyPara(), line, false, w.opts.FontSize)
		}
		if r.Question.HasImage() {
			if err := w.picture(cell.AddEmptyPara(), r.Question.ImageDataURL); err != nil {
				return err
			}
		}
	}
	return nil
}

func cellText(r *paper.Row, col int) string {
	switch col {
	case 0:
		return r.Serial
	case 2:
		if r.Question.Unit > 0 {
			return fmt.Sprint(r.Question.Unit)
		}
	case 3:
		return r.Question.BTLevel
	case 4:
		return r.CO
	}
	return ""
}

// picture appends an inline image to p, bounded to ImageMaxPx. Undecodable images are
// logged and left out.
func (w *writer) picture(p *gd.Paragraph, dataURL string) error {
	pic, ok := w.pics[dataURL]
	if !ok {
		var err error
		if pic, err = w.stage(dataURL); err != nil {
			return err
		}
		w.pics[dataURL] = pic
	}
	if pic == nil {
		return nil
	}

	fw, fh := images.Fit(float64(pic.width), float64(pic.height), float64(w.opts.ImageMaxPx))
	if _, err := p.AddPicture(pic.path, units.Inch(fw/pxPerInch), units.Inch(fh/pxPerInch)); err != nil {
		return fmt.Errorf("add picture: %w", err)
	}
	// Inches lose a unit when truncated to EMU; the extent is pinned to whole pixels.
	setExtent(p, uint64(fw*emuPerPx), uint64(fh*emuPerPx))
	return nil
}

func (w *writer) stage(dataURL string) (*picture, error) {
	norm, err := images.Normalize(dataURL)
	if err != nil {
		w.logger.Warn().Err(err).Msg("skipping undecodable image")
		return nil, nil
	}
	path := filepath.Join(w.dir, fmt.Sprintf("picture%d.jpeg", len(w.pics)+1))
	if err := os.WriteFile(path, norm.JPEG, 0o600); err != nil {
		return nil, fmt.Errorf("stage picture: %w", err)
	}
	return &picture{path: path, width: norm.Width, height: norm.Height}, nil
}

func setExtent(p *gd.Paragraph, cx, cy uint64) {
	children := p.GetCT().Children
	r := children[len(children)-1].Run
	for i := range r.Children {
		if d := r.Children[i].Drawing; d != nil {
			for j := range d.Inline {
				d.Inline[j].Extent = dmlct.PSize2D{Width: cx, Height: cy}
			}
		}
	}
}

func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
