package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/exam-paper-studio/internal/images"
	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

func unpack(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		files[f.Name] = string(body)
	}
	return files
}

func requireWellFormed(t *testing.T, doc string) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return
		}
		require.NoError(t, err)
	}
}

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return images.EncodeDataURL(buf.Bytes())
}

func partitioned() paper.Document {
	in := paper.Input{
		Details: paper.Details{Subject: "Data & Structures", PaperType: paper.TypeMid1},
		Header:  paper.Header{SubjectCode: "CS201", Branch: "CSE"},
	}
	in.Questions = append(in.Questions,
		paper.Question{Label: "1", Part: paper.PartA, Text: "Define <stack>", Unit: 1},
		paper.Question{Label: "2a", Part: paper.PartB, Text: "Line one<br>Line two", Unit: 2, ImageDataURL: images.Placeholder},
		paper.Question{Label: "2b", Part: paper.PartB, Text: "b", Unit: 2, ImageDataURL: images.Placeholder},
		paper.Question{Label: "3", Part: paper.PartB, Text: "c", Unit: 3, ImageDataURL: "data:image/png;base64,AAAA"},
	)
	return paper.PartitionedTemplate{}.Build(in)
}

func TestRenderPackageLayout(t *testing.T) {
	data, err := Render(partitioned(), Options{}, zerolog.Nop())
	require.NoError(t, err)

	files := unpack(t, data)
	for _, name := range []string{
		"[Content_Types].xml", "_rels/.rels", "docProps/core.xml",
		"word/styles.xml", "word/document.xml", "word/_rels/document.xml.rels",
		"word/media/image1.jpeg", "word/media/image2.jpeg",
	} {
		assert.Contains(t, files, name)
	}
	assert.NotContains(t, files, "word/media/image3.jpeg", "undecodable image left out")
	assert.Contains(t, files["docProps/core.xml"], "Data &amp; Structures")
	assert.Contains(t, files["word/_rels/document.xml.rels"], `Target="media/image1.jpeg"`)
	assert.Contains(t, files["[Content_Types].xml"], "image/jpeg")

	doc := files["word/document.xml"]
	requireWellFormed(t, doc)
	requireWellFormed(t, files["docProps/core.xml"])

	assert.Equal(t, 2, strings.Count(doc, "<w:tblHeader"))
	assert.Equal(t, 3, strings.Count(doc, `<w:gridSpan w:val="5"`))
	assert.Equal(t, 2, strings.Count(doc, "<w:drawing>"), "undecodable image left out")
	assert.Contains(t, doc, "Define &lt;stack&gt;")
	assert.Contains(t, doc, "Line one</w:t>")
	assert.Contains(t, doc, "Line two</w:t>")
	assert.Contains(t, doc, `<w:pgSz w:w="11906" w:h="16838"`)
	assert.Contains(t, doc, `<w:tab w:val="right"`)
	assert.Contains(t, doc, `<w:pBdr>`)
	assert.Contains(t, doc, `w:fill="E6E6E6"`)
	assert.Contains(t, doc, paper.ClosingLine)
}

func TestImagesAreBoundedTo200px(t *testing.T) {
	doc := paper.PlainTemplate{}.Build(paper.Input{
		Questions: []paper.Question{{Text: "Label the diagram", Unit: 1, ImageDataURL: pngDataURL(t, 800, 400)}},
	})
	data, err := Render(doc, DefaultOptions(), zerolog.Nop())
	require.NoError(t, err)

	xmlDoc := unpack(t, data)["word/document.xml"]
	assert.Contains(t, xmlDoc, `<wp:extent cx="1905000" cy="952500"`)
}

func TestSmallImagesKeepTheirSize(t *testing.T) {
	doc := paper.PlainTemplate{}.Build(paper.Input{
		Questions: []paper.Question{{Text: "q", Unit: 1, ImageDataURL: pngDataURL(t, 40, 20)}},
	})
	data, err := Render(doc, DefaultOptions(), zerolog.Nop())
	require.NoError(t, err)

	xmlDoc := unpack(t, data)["word/document.xml"]
	assert.Contains(t, xmlDoc, `<wp:extent cx="381000" cy="190500"`)
}

func TestPlainPaperHasNoSeparators(t *testing.T) {
	doc := paper.PlainTemplate{}.Build(paper.Input{
		Questions: []paper.Question{{Text: "q1", Unit: 1}, {Text: "q2", Unit: 6}},
	})
	data, err := Render(doc, DefaultOptions(), zerolog.Nop())
	require.NoError(t, err)

	xmlDoc := unpack(t, data)["word/document.xml"]
	requireWellFormed(t, xmlDoc)
	assert.NotContains(t, xmlDoc, "gridSpan")
	assert.Equal(t, 1, strings.Count(xmlDoc, "<w:tblHeader"))
	assert.Contains(t, xmlDoc, ">CO1<")
	assert.NotContains(t, xmlDoc, ">CO6<")
}

func TestBlankQuestionRendersEmptyRow(t *testing.T) {
	doc := paper.PlainTemplate{}.Build(paper.Input{
		Questions: []paper.Question{{Text: "", Unit: 2}, {Text: "q2", Unit: 2}},
	})
	data, err := Render(doc, DefaultOptions(), zerolog.Nop())
	require.NoError(t, err)

	xmlDoc := unpack(t, data)["word/document.xml"]
	requireWellFormed(t, xmlDoc)
	// Header row plus one row per question.
	assert.Equal(t, 3, strings.Count(xmlDoc, "<w:cantSplit"))
	assert.Contains(t, xmlDoc, ">q2<")
}
