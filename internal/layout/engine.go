// Package layout assigns measured content blocks to fixed-size pages without
// splitting a block, repeating the table header at the top of continuation pages.
package layout

import (
	"errors"
	"fmt"
)

// Kind classifies a block for spacing and header-repetition purposes.
type Kind int

const (
	// KindContent covers header, note, part label and footer blocks.
	KindContent Kind = iota
	KindTableHeader
	KindRow
	// KindSeparator is the "OR" row between Part B groups.
	KindSeparator
)

// DefaultSpacing is added after spaced blocks.
const DefaultSpacing = 2.0

// Block is an atomic unit of rendered content.
type Block interface {
	Kind() Kind
}

// Canvas measures and draws blocks for a concrete output backend.
type Canvas interface {
	Measure(b Block) (float64, error)
	Draw(b Block, y float64) error
	AddPage() error
}

// Config describes the page geometry in the canvas unit.
type Config struct {
	PageHeight float64
	Margin     float64
	// Spacing follows every spaced block. Callers wanting the usual gap pass
	// DefaultSpacing.
	Spacing    float64
}

// MaxContentHeight is the overflow threshold for the cursor.
func (c Config) MaxContentHeight() float64 {
	return c.PageHeight - 2*c.Margin
}

// Cursor is the engine's position on the current page.
type Cursor struct {
	Page int
	Y    float64
}

// Placement records where a block landed. Repeated table headers are recorded with
// Repeat set and Block pointing at the header they copy.
type Placement struct {
	Block  int
	Page   int
	Y      float64
	Height float64
	Repeat bool
}

// Result is the outcome of a pagination run.
type Result struct {
	Pages      int
	Placements []Placement
}

// PageOf returns the page the i-th input block was placed on, or -1.
func (r Result) PageOf(i int) int {
	for _, p := range r.Placements {
		if p.Block == i && !p.Repeat {
			return p.Page
		}
	}
	return -1
}

var ErrInvalidConfig = errors.New("layout: page height must exceed twice the margin")

// Engine paginates a block sequence onto a Canvas.
type Engine struct {
	cfg    Config
	canvas Canvas

	cursor       Cursor
	pages        int
	pageHasBody  bool
	inTableBody  bool
	header       Block
	headerIndex  int
	headerHeight float64
	placements   []Placement
}

// New returns an engine. Spacing is used as given; zero packs blocks flush.
func New(cfg Config, canvas Canvas) *Engine {
	return &Engine{cfg: cfg, canvas: canvas}
}

// Run places every block in order. It never looks ahead: a block taller than a page
// is drawn on a fresh page and overflows it. Any canvas error aborts the run.
func (e *Engine) Run(blocks []Block) (Result, error) {
	if e.cfg.MaxContentHeight() <= 0 {
		return Result{}, ErrInvalidConfig
	}
	e.reset()
	if err := e.newPage(); err != nil {
		return Result{}, err
	}

	for i, b := range blocks {
		h, err := e.canvas.Measure(b)
		if err != nil {
			return Result{}, fmt.Errorf("measure block %d: %w", i, err)
		}

		if e.overflows(h) && e.pageHasBody {
			if err := e.newPage(); err != nil {
				return Result{}, err
			}
			if e.inTableBody && b.Kind() != KindTableHeader {
				if err := e.place(e.header, e.headerIndex, e.headerHeight, true); err != nil {
					return Result{}, err
				}
			}
		}

		if err := e.place(b, i, h, false); err != nil {
			return Result{}, err
		}

		switch b.Kind() {
		case KindTableHeader:
			e.inTableBody = true
			e.header, e.headerIndex, e.headerHeight = b, i, h
		case KindContent:
			e.inTableBody = false
		}
	}

	return Result{Pages: e.pages, Placements: e.placements}, nil
}

// Cursor returns the current position.
func (e *Engine) Cursor() Cursor {
	return e.cursor
}

func (e *Engine) reset() {
	e.cursor = Cursor{}
	e.pages = 0
	e.pageHasBody = false
	e.inTableBody = false
	e.header = nil
	e.headerIndex = -1
	e.headerHeight = 0
	e.placements = nil
}

func (e *Engine) overflows(h float64) bool {
	return e.cursor.Y+h > e.cfg.MaxContentHeight()
}

func (e *Engine) newPage() error {
	if err := e.canvas.AddPage(); err != nil {
		return fmt.Errorf("add page %d: %w", e.pages+1, err)
	}
	e.pages++
	e.cursor = Cursor{Page: e.pages - 1, Y: e.cfg.Margin}
	e.pageHasBody = false
	return nil
}

func (e *Engine) place(b Block, index int, h float64, repeat bool) error {
	if err := e.canvas.Draw(b, e.cursor.Y); err != nil {
		return fmt.Errorf("draw block %d: %w", index, err)
	}
	e.placements = append(e.placements, Placement{
		Block:  index,
		Page:   e.cursor.Page,
		Y:      e.cursor.Y,
		Height: h,
		Repeat: repeat,
	})
	e.cursor.Y += h
	if spaced(b.Kind()) {
		e.cursor.Y += e.cfg.Spacing
	}
	if !repeat {
		e.pageHasBody = true
	}
	return nil
}

func spaced(k Kind) bool {
	return k == KindContent || k == KindSeparator
}
