package layout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBlock struct {
	name   string
	kind   Kind
	height float64
}

func (b testBlock) Kind() Kind { return b.kind }

type drawCall struct {
	name string
	page int
	y    float64
}

type recordingCanvas struct {
	pages   int
	draws   []drawCall
	failOn  string
	addErr  error
}

func (c *recordingCanvas) Measure(b Block) (float64, error) {
	tb := b.(testBlock)
	if tb.name == c.failOn {
		return 0, errors.New("rasterize failed")
	}
	return tb.height, nil
}

func (c *recordingCanvas) Draw(b Block, y float64) error {
	c.draws = append(c.draws, drawCall{name: b.(testBlock).name, page: c.pages - 1, y: y})
	return nil
}

func (c *recordingCanvas) AddPage() error {
	if c.addErr != nil {
		return c.addErr
	}
	c.pages++
	return nil
}

var testConfig = Config{PageHeight: 297, Margin: 10, Spacing: DefaultSpacing}

func TestOverflowStartsPageWithRepeatedHeader(t *testing.T) {
	maxH := testConfig.MaxContentHeight()
	blocks := []Block{
		testBlock{name: "thead", kind: KindTableHeader, height: 8},
		testBlock{name: "row1", kind: KindRow, height: maxH - 5 - 18},
		testBlock{name: "row2", kind: KindRow, height: 10},
	}
	canvas := &recordingCanvas{}
	res, err := New(testConfig, canvas).Run(blocks)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, []drawCall{
		{name: "thead", page: 0, y: 10},
		{name: "row1", page: 0, y: 18},
		{name: "thead", page: 1, y: testConfig.Margin},
		{name: "row2", page: 1, y: testConfig.Margin + 8},
	}, canvas.draws)

	require.Len(t, res.Placements, 4)
	assert.True(t, res.Placements[2].Repeat)
	assert.Equal(t, 0, res.Placements[2].Block)
	assert.Equal(t, 1, res.PageOf(2))
}

func TestSpacingOnlyAfterSpacedBlocks(t *testing.T) {
	blocks := []Block{
		testBlock{name: "header", kind: KindContent, height: 30},
		testBlock{name: "thead", kind: KindTableHeader, height: 8},
		testBlock{name: "row", kind: KindRow, height: 12},
		testBlock{name: "or", kind: KindSeparator, height: 6},
		testBlock{name: "row2", kind: KindRow, height: 12},
		testBlock{name: "footer", kind: KindContent, height: 6},
	}
	canvas := &recordingCanvas{}
	engine := New(testConfig, canvas)
	_, err := engine.Run(blocks)
	require.NoError(t, err)

	var ys []float64
	for _, d := range canvas.draws {
		ys = append(ys, d.y)
	}
	assert.Equal(t, []float64{10, 42, 50, 62, 70, 82}, ys)
	assert.Equal(t, 90.0, engine.Cursor().Y)
}

func TestZeroSpacingPacksBlocksFlush(t *testing.T) {
	blocks := []Block{
		testBlock{name: "header", kind: KindContent, height: 30},
		testBlock{name: "or", kind: KindSeparator, height: 6},
		testBlock{name: "footer", kind: KindContent, height: 6},
	}
	canvas := &recordingCanvas{}
	cfg := testConfig
	cfg.Spacing = 0
	engine := New(cfg, canvas)
	_, err := engine.Run(blocks)
	require.NoError(t, err)

	var ys []float64
	for _, d := range canvas.draws {
		ys = append(ys, d.y)
	}
	assert.Equal(t, []float64{10, 40, 46}, ys)
	assert.Equal(t, 52.0, engine.Cursor().Y)
}

func TestNoHeaderRepeatOutsideTableBody(t *testing.T) {
	maxH := testConfig.MaxContentHeight()
	blocks := []Block{
		testBlock{name: "thead", kind: KindTableHeader, height: 8},
		testBlock{name: "row", kind: KindRow, height: 100},
		testBlock{name: "label", kind: KindContent, height: maxH - 120},
		testBlock{name: "footer", kind: KindContent, height: 10},
	}
	canvas := &recordingCanvas{}
	res, err := New(testConfig, canvas).Run(blocks)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	last := canvas.draws[len(canvas.draws)-1]
	assert.Equal(t, drawCall{name: "footer", page: 1, y: 10}, last)
	assert.Len(t, canvas.draws, 4)
}

func TestNewTableHeaderIsNotPrecededByOldOne(t *testing.T) {
	maxH := testConfig.MaxContentHeight()
	blocks := []Block{
		testBlock{name: "theadA", kind: KindTableHeader, height: 8},
		testBlock{name: "rowA", kind: KindRow, height: maxH - 20},
		testBlock{name: "theadB", kind: KindTableHeader, height: 8},
		testBlock{name: "rowB", kind: KindRow, height: 10},
	}
	canvas := &recordingCanvas{}
	_, err := New(testConfig, canvas).Run(blocks)
	require.NoError(t, err)

	var names []string
	for _, d := range canvas.draws {
		names = append(names, d.name)
	}
	assert.Equal(t, []string{"theadA", "rowA", "theadB", "rowB"}, names)
	assert.Equal(t, 1, canvas.draws[2].page)
}

func TestOversizedBlockOverflowsSilently(t *testing.T) {
	blocks := []Block{
		testBlock{name: "thead", kind: KindTableHeader, height: 8},
		testBlock{name: "small", kind: KindRow, height: 10},
		testBlock{name: "huge", kind: KindRow, height: 400},
		testBlock{name: "after", kind: KindRow, height: 10},
	}
	canvas := &recordingCanvas{}
	res, err := New(testConfig, canvas).Run(blocks)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 1, res.PageOf(2))
	assert.Equal(t, 2, res.PageOf(3))
}

func TestRunIsDeterministic(t *testing.T) {
	var blocks []Block
	blocks = append(blocks, testBlock{name: "header", kind: KindContent, height: 40})
	blocks = append(blocks, testBlock{name: "thead", kind: KindTableHeader, height: 8})
	for i := 0; i < 40; i++ {
		blocks = append(blocks, testBlock{name: "row", kind: KindRow, height: float64(9 + i%7)})
	}
	blocks = append(blocks, testBlock{name: "footer", kind: KindContent, height: 6})

	first, err := New(testConfig, &recordingCanvas{}).Run(blocks)
	require.NoError(t, err)
	second, err := New(testConfig, &recordingCanvas{}).Run(blocks)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Greater(t, first.Pages, 1)
}

func TestMeasureFailureAborts(t *testing.T) {
	blocks := []Block{
		testBlock{name: "header", kind: KindContent, height: 40},
		testBlock{name: "broken", kind: KindRow, height: 10},
	}
	_, err := New(testConfig, &recordingCanvas{failOn: "broken"}).Run(blocks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "measure block 1")
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(Config{PageHeight: 10, Margin: 5}, &recordingCanvas{}).Run(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAddPageFailure(t *testing.T) {
	_, err := New(testConfig, &recordingCanvas{addErr: errors.New("closed")}).Run(nil)
	assert.Error(t, err)
}
