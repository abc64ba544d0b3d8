package main

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/exam-paper-studio/internal/images"
)

const partitioned = `{
  "partA": [
    {"label": "1", "question": "Define an operating system.", "unit": 1, "btLevel": "L1"},
    {"label": "2", "question": "What is a process?", "unit": 2, "btLevel": "L1"}
  ],
  "partB": [
    {"label": "3a", "question": "Explain paging.", "unit": 3, "btLevel": "L2"},
    {"label": "3b", "question": "Explain segmentation.", "unit": 3, "btLevel": "L2", "imageUrl": "/images/seg.png"}
  ],
  "paperDetails": {"subject": "Operating Systems", "subjectCode": "CS301", "branch": "CSE", "year": "II", "semester": "I", "regulation": "R22"}
}`

func writeResponse(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "response.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunWritesPDF(t *testing.T) {
	in := writeResponse(t, partitioned)
	out := filepath.Join(t.TempDir(), "paper.pdf")

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-in", in, "-out", out, "-type", "mid2", "-exam-date", "01-11-2026"}, &stdout, zerolog.Nop())
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.Contains(t, stdout.String(), "4 questions")
	assert.Contains(t, stdout.String(), "pages")
}

func TestRunWritesDOCXNamedAfterSubject(t *testing.T) {
	in := writeResponse(t, partitioned)
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-in", in, "-format", "docx", "-subject-code", "CS999"}, &stdout, zerolog.Nop())
	require.NoError(t, err)

	data, err := os.ReadFile("Operating Systems.docx")
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var body string
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		body = buf.String()
	}
	require.NotEmpty(t, body)
	assert.Contains(t, body, "CS999")
	assert.Contains(t, body, "Explain paging.")
}

func TestRunResolvesImagesThroughBackend(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/image-proxy-base64", r.URL.Path)
		assert.Equal(t, "/images/seg.png", r.URL.Query().Get("url"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"dataUrl":"` + images.Placeholder + `"}`))
	}))
	defer srv.Close()

	in := writeResponse(t, partitioned)
	out := filepath.Join(t.TempDir(), "out", "paper.pdf")
	err := run(context.Background(), []string{"-in", in, "-out", out, "-backend", srv.URL}, &bytes.Buffer{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.FileExists(t, out)
}

func TestRunRejectsBadArguments(t *testing.T) {
	in := writeResponse(t, partitioned)
	cases := map[string][]string{
		"missing input": {},
		"bad type":      {"-in", in, "-type", "final"},
		"bad format":    {"-in", in, "-format", "odt"},
		"missing file":  {"-in", filepath.Join(t.TempDir(), "nope.json")},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			err := run(context.Background(), args, &bytes.Buffer{}, zerolog.Nop())
			assert.Error(t, err)
		})
	}

	empty := writeResponse(t, `{"questions":[],"paperDetails":{"subject":"x"}}`)
	err := run(context.Background(), []string{"-in", empty}, &bytes.Buffer{}, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no questions"))
}
