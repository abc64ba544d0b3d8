// Package pdf renders a paper document to PDF. Blocks are measured and placed by the
// layout engine; table headers repeat on continuation pages.
package pdf

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-paper-studio/internal/layout"
	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

// Options sets the page geometry in millimetres and the base font.
type Options struct {
	PageWidth  float64
	PageHeight float64
	Margin     float64
	FontFamily string
	FontSize   float64
	// ImageMaxMM bounds question images on both sides.
	ImageMaxMM float64
	LogoMaxMM  float64
}

// DefaultOptions is A4 portrait with a 9 mm margin.
func DefaultOptions() Options {
	return Options{
		PageWidth:  210,
		PageHeight: 297,
		Margin:     9,
		FontFamily: "Helvetica",
		FontSize:   10,
		ImageMaxMM: 50,
		LogoMaxMM:  22,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PageWidth <= 0 || o.PageHeight <= 0 {
		o.PageWidth, o.PageHeight = d.PageWidth, d.PageHeight
	}
	if o.Margin <= 0 {
		o.Margin = d.Margin
	}
	if o.FontFamily == "" {
		o.FontFamily = d.FontFamily
	}
	if o.FontSize <= 0 {
		o.FontSize = d.FontSize
	}
	if o.ImageMaxMM <= 0 {
		o.ImageMaxMM = d.ImageMaxMM
	}
	if o.LogoMaxMM <= 0 {
		o.LogoMaxMM = d.LogoMaxMM
	}
	return o
}

// Result is a rendered PDF.
type Result struct {
	Data  []byte
	Pages int
}

// Render lays the document out page by page and returns the encoded PDF.
func Render(doc paper.Document, opts Options, logger zerolog.Logger) (Result, error) {
	opts = opts.withDefaults()

	f := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: opts.PageWidth, Ht: opts.PageHeight},
	})
	f.SetMargins(opts.Margin, opts.Margin, opts.Margin)
	f.SetCellMargin(0)
	f.SetAutoPageBreak(false, 0)
	f.SetTitle(doc.Title, true)
	f.SetCreator("exam-paper-studio", true)
	f.SetFont(opts.FontFamily, "", opts.FontSize)

	c := newCanvas(f, opts, logger.With().Str("component", "pdf_renderer").Logger())

	engine := layout.New(layout.Config{PageHeight: opts.PageHeight, Margin: opts.Margin, Spacing: layout.DefaultSpacing}, c)
	res, err := engine.Run(Blocks(doc))
	if err != nil {
		return Result{}, fmt.Errorf("layout: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Output(&buf); err != nil {
		return Result{}, fmt.Errorf("write pdf: %w", err)
	}
	return Result{Data: buf.Bytes(), Pages: res.Pages}, nil
}
