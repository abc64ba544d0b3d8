package pdf

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"

	"github.com/gokatarajesh/exam-paper-studio/internal/images"
	"github.com/gokatarajesh/exam-paper-studio/internal/layout"
	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

const (
	ptToMM      = 25.4 / 72
	pxToMM      = 25.4 / 96
	lineSpacing = 1.35
	cellPad     = 1.5
	groupGap    = 1.0
)

type picture struct {
	name string
	w, h float64
}

// canvas implements layout.Canvas on an fpdf document. Measure and Draw share one
// code path so a measured height is always the drawn height.
type canvas struct {
	f        *fpdf.Fpdf
	opts     Options
	tr       func(string) string
	contentW float64
	logger   zerolog.Logger
	pictures map[string]*picture
	// lossy records text already reported as not encodable in cp1252.
	lossy    map[string]struct{}
}

var _ layout.Canvas = (*canvas)(nil)

func newCanvas(f *fpdf.Fpdf, opts Options, logger zerolog.Logger) *canvas {
	c := &canvas{
		f:        f,
		opts:     opts,
		contentW: opts.PageWidth - 2*opts.Margin,
		logger:   logger,
		pictures: map[string]*picture{},
		lossy:    map[string]struct{}{},
	}
	toCP1252 := f.UnicodeTranslatorFromDescriptor("")
	c.tr = func(s string) string {
		c.checkEncodable(s)
		return toCP1252(s)
	}
	return c
}

// checkEncodable warns once per distinct text when the core fonts cannot show some
// of its characters.
func (c *canvas) checkEncodable(s string) {
	if _, seen := c.lossy[s]; seen {
		return
	}
	var lost []rune
	for _, r := range s {
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			lost = append(lost, r)
		}
	}
	if len(lost) == 0 {
		return
	}
	c.lossy[s] = struct{}{}
	c.logger.Warn().
		Str("text", s).
		Str("characters", string(lost)).
		Msg("text has characters outside cp1252; they will not render in the PDF")
}

func (c *canvas) AddPage() error {
	c.f.AddPage()
	return c.f.Error()
}

func (c *canvas) Measure(b layout.Block) (float64, error) {
	h := c.render(b, 0, false)
	return h, c.f.Error()
}

func (c *canvas) Draw(b layout.Block, y float64) error {
	c.render(b, y, true)
	return c.f.Error()
}

func (c *canvas) render(b layout.Block, y float64, draw bool) float64 {
	switch v := b.(type) {
	case contentBlock:
		return c.node(v.node, y, draw)
	case tableHeaderBlock:
		return c.tableHeader(v.columns, y, draw)
	case rowBlock:
		return c.row(v.columns, v.row, y, draw)
	case separatorBlock:
		return c.separator(v.columns, v.text, y, draw)
	}
	return 0
}

func (c *canvas) left() float64 { return c.opts.Margin }

func (c *canvas) font(style string, size float64) float64 {
	c.f.SetFont(c.opts.FontFamily, style, size)
	return size * ptToMM * lineSpacing
}

func (c *canvas) node(n paper.Node, y float64, draw bool) float64 {
	switch v := n.(type) {
	case *paper.GroupBlock:
		h := 0.0
		for i, child := range v.Children {
			if i > 0 {
				h += groupGap
			}
			h += c.node(child, y+h, draw)
		}
		return h
	case *paper.TextBlock:
		return c.text(v, y, draw)
	case *paper.ImageBlock:
		return c.logo(v, y, draw)
	case *paper.TableBlock:
		// Tables are split into blocks before layout; a nested one is drawn whole.
		h := c.tableHeader(v.Columns, y, draw)
		for _, it := range v.Items {
			switch item := it.(type) {
			case *paper.Row:
				h += c.row(v.Columns, item, y+h, draw)
			case *paper.Separator:
				h += c.separator(v.Columns, item.Text, y+h, draw)
			}
		}
		return h
	}
	return 0
}

func (c *canvas) text(t *paper.TextBlock, y float64, draw bool) float64 {
	size := c.opts.FontSize
	if t.Heading {
		size = c.opts.FontSize + 2
	}

	var h float64
	switch t.Align {
	case paper.AlignSpread:
		h = c.spread(t.Segments, size, y, draw)
	case paper.AlignCenter:
		style := ""
		if t.Heading || t.Bold {
			style = "B"
		}
		lh := c.font(style, size)
		lines := c.wrap(t.Text(), c.contentW)
		if draw {
			for i, line := range lines {
				c.f.SetXY(c.left(), y+float64(i)*lh)
				c.f.CellFormat(c.contentW, lh, line, "", 0, "C", false, 0, "")
			}
		}
		h = float64(len(lines)) * lh
	default:
		h = c.labelled(t, size, y, draw)
	}

	if t.RuleBelow {
		if draw {
			c.f.SetLineWidth(0.3)
			c.f.Line(c.left(), y+h+0.8, c.left()+c.contentW, y+h+0.8)
		}
		h += 1.6
	}
	return h
}

// labelled draws a bold label followed by its value, wrapped with a hanging indent.
func (c *canvas) labelled(t *paper.TextBlock, size, y float64, draw bool) float64 {
	label := ""
	if len(t.Segments) > 0 {
		label = t.Segments[0].Label
	}
	value := strings.TrimSpace(strings.TrimPrefix(t.Text(), label))

	style := ""
	if t.Bold {
		style = "B"
	}
	lh := c.font("B", size)
	labelW := 0.0
	if label != "" {
		labelW = c.f.GetStringWidth(c.tr(label + " "))
		if draw {
			c.f.SetXY(c.left(), y)
			c.f.CellFormat(labelW, lh, c.tr(label+" "), "", 0, "L", false, 0, "")
		}
	}

	c.font(style, size)
	lines := c.wrap(value, c.contentW-labelW)
	if draw {
		for i, line := range lines {
			c.f.SetXY(c.left()+labelW, y+float64(i)*lh)
			c.f.CellFormat(c.contentW-labelW, lh, line, "", 0, "L", false, 0, "")
		}
	}
	return float64(len(lines)) * lh
}

// spread places the first segment left, the last right and the rest evenly between.
func (c *canvas) spread(segs []paper.Segment, size, y float64, draw bool) float64 {
	lh := c.font("", size)
	if !draw {
		return lh
	}
	n := len(segs)
	for i, s := range segs {
		w := c.segmentWidth(s, size)
		x := c.left()
		switch {
		case n == 1 || i == 0:
		case i == n-1:
			x = c.left() + c.contentW - w
		default:
			x = c.left() + c.contentW*float64(i)/float64(n-1) - w/2
		}
		c.segment(s, size, x, y, lh)
	}
	return lh
}

func (c *canvas) segmentWidth(s paper.Segment, size float64) float64 {
	w := 0.0
	if s.Label != "" {
		c.font("B", size)
		w += c.f.GetStringWidth(c.tr(s.Label + " "))
	}
	c.font("", size)
	return w + c.f.GetStringWidth(c.tr(s.Value))
}

func (c *canvas) segment(s paper.Segment, size, x, y, lh float64) {
	c.f.SetXY(x, y)
	if s.Label != "" {
		c.font("B", size)
		label := c.tr(s.Label + " ")
		c.f.CellFormat(c.f.GetStringWidth(label), lh, label, "", 0, "L", false, 0, "")
	}
	c.font("", size)
	value := c.tr(s.Value)
	c.f.CellFormat(c.f.GetStringWidth(value), lh, value, "", 0, "L", false, 0, "")
}

func (c *canvas) logo(img *paper.ImageBlock, y float64, draw bool) float64 {
	pic := c.picture(img.Source)
	if pic == nil {
		return 0
	}
	w, h := images.Fit(pic.w, pic.h, c.opts.LogoMaxMM)
	if draw {
		c.image(pic, c.left()+(c.contentW-w)/2, y, w, h)
	}
	return h
}

func (c *canvas) columnWidths(cols []paper.Column) []float64 {
	total := 0.0
	for _, col := range cols {
		total += col.Width
	}
	widths := make([]float64, len(cols))
	for i, col := range cols {
		widths[i] = c.contentW * col.Width / total
	}
	return widths
}

func (c *canvas) tableHeader(cols []paper.Column, y float64, draw bool) float64 {
	lh := c.font("B", c.opts.FontSize)
	h := lh + 2*cellPad
	if !draw {
		return h
	}
	c.f.SetFillColor(230, 230, 230)
	c.f.SetLineWidth(0.2)
	x := c.left()
	for i, w := range c.columnWidths(cols) {
		size := c.opts.FontSize
		if cols[i].Small {
			size = c.opts.FontSize - 2
		}
		c.font("B", size)
		c.f.SetXY(x, y)
		c.f.CellFormat(w, h, c.tr(cols[i].Title), "1", 0, "C", true, 0, "")
		x += w
	}
	return h
}

func (c *canvas) row(cols []paper.Column, r *paper.Row, y float64, draw bool) float64 {
	widths := c.columnWidths(cols)
	lh := c.font("", c.opts.FontSize)

	cells := make([][]string, len(cols))
	var pic *picture
	var picW, picH float64
	height := lh
	for i := range cols {
		var text string
		switch i {
		case 0:
			text = r.Serial
		case 1:
			text = strings.Join(paper.Lines(r.Question.Text), "\n")
		case 2:
			if r.Question.Unit > 0 {
				text = strconv.Itoa(r.Question.Unit)
			}
		case 3:
			text = r.Question.BTLevel
		case 4:
			text = r.CO
		}
		cells[i] = c.wrap(text, widths[i]-2*cellPad)
		ch := float64(len(cells[i])) * lh
		if i == 1 && r.Question.HasImage() {
			if pic = c.picture(r.Question.ImageDataURL); pic != nil {
				picW, picH = images.Fit(pic.w, pic.h, min(widths[i]-2*cellPad, c.opts.ImageMaxMM))
				ch += cellPad + picH
			}
		}
		if ch > height {
			height = ch
		}
	}
	height += 2 * cellPad
	if !draw {
		return height
	}

	c.f.SetLineWidth(0.2)
	x := c.left()
	for i, w := range widths {
		c.f.Rect(x, y, w, height, "D")
		align := "C"
		if i == 1 {
			align = "L"
		}
		for j, line := range cells[i] {
			c.f.SetXY(x+cellPad, y+cellPad+float64(j)*lh)
			c.f.CellFormat(w-2*cellPad, lh, line, "", 0, align, false, 0, "")
		}
		if i == 1 && pic != nil {
			top := y + cellPad + float64(len(cells[i]))*lh + cellPad
			c.image(pic, x+cellPad, top, picW, picH)
		}
		x += w
	}
	return height
}

func (c *canvas) separator(cols []paper.Column, text string, y float64, draw bool) float64 {
	lh := c.font("B", c.opts.FontSize)
	h := lh + 2*cellPad
	if draw {
		width := 0.0
		for _, w := range c.columnWidths(cols) {
			width += w
		}
		c.f.SetLineWidth(0.2)
		c.f.SetXY(c.left(), y)
		c.f.CellFormat(width, h, c.tr(text), "1", 0, "C", false, 0, "")
	}
	return h
}

// wrap splits text on explicit newlines and then to width. It always returns at
// least one line.
func (c *canvas) wrap(text string, width float64) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		tr := c.tr(para)
		if strings.TrimSpace(tr) == "" || width <= 0 {
			out = append(out, tr)
			continue
		}
		for _, line := range c.f.SplitLines([]byte(tr), width) {
			out = append(out, string(line))
		}
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

// picture registers a data URL image once per render. Images that cannot be decoded
// are logged and skipped so they never poison the document.
func (c *canvas) picture(dataURL string) *picture {
	sum := sha1.Sum([]byte(dataURL))
	key := hex.EncodeToString(sum[:])
	if pic, ok := c.pictures[key]; ok {
		return pic
	}

	norm, err := images.Normalize(dataURL)
	if err != nil {
		c.logger.Warn().Err(err).Msg("skipping undecodable image")
		c.pictures[key] = nil
		return nil
	}
	name := fmt.Sprintf("img-%s", key[:16])
	c.f.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "JPG"}, bytes.NewReader(norm.JPEG))
	pic := &picture{name: name, w: float64(norm.Width) * pxToMM, h: float64(norm.Height) * pxToMM}
	c.pictures[key] = pic
	return pic
}

func (c *canvas) image(pic *picture, x, y, w, h float64) {
	c.f.ImageOptions(pic.name, x, y, w, h, false, fpdf.ImageOptions{ImageType: "JPG"}, 0, "")
}
