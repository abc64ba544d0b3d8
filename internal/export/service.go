// Package export turns a paper document into a downloadable artifact.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-paper-studio/internal/export/docx"
	"github.com/gokatarajesh/exam-paper-studio/internal/export/pdf"
	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

// Format is an export file format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts "pdf", "docx" and "word". Empty means PDF.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return FormatPDF, nil
	case "docx", "word":
		return FormatDOCX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Artifact is a rendered file ready to be served.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
	// Pages is only known for PDF output.
	Pages int
}

// Recorder observes export outcomes.
type Recorder interface {
	Export(format string, pages int, took time.Duration, err error)
}

// Service renders documents in either format.
type Service struct {
	pdfOpts  pdf.Options
	docxOpts docx.Options
	recorder Recorder
	logger   zerolog.Logger
}

func NewService(pdfOpts pdf.Options, docxOpts docx.Options, recorder Recorder, logger zerolog.Logger) *Service {
	return &Service{
		pdfOpts:  pdfOpts,
		docxOpts: docxOpts,
		recorder: recorder,
		logger:   logger.With().Str("component", "export").Logger(),
	}
}

// Export renders doc. Rendering is CPU bound; ctx is only checked before starting.
func (s *Service) Export(ctx context.Context, format Format, doc paper.Document) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	start := time.Now()
	art, err := s.render(format, doc)
	if s.recorder != nil {
		s.recorder.Export(string(format), art.Pages, time.Since(start), err)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("format", string(format)).Msg("export failed")
		return Artifact{}, err
	}
	s.logger.Info().
		Str("format", string(format)).
		Str("file", art.Filename).
		Int("bytes", len(art.Data)).
		Int("pages", art.Pages).
		Dur("took", time.Since(start)).
		Msg("export rendered")
	return art, nil
}

func (s *Service) render(format Format, doc paper.Document) (Artifact, error) {
	base := Filename(doc.Title)
	switch format {
	case FormatPDF:
		res, err := pdf.Render(doc, s.pdfOpts, s.logger)
		if err != nil {
			return Artifact{}, fmt.Errorf("render pdf: %w", err)
		}
		return Artifact{Filename: base + ".pdf", ContentType: "application/pdf", Data: res.Data, Pages: res.Pages}, nil
	case FormatDOCX:
		data, err := docx.Render(doc, s.docxOpts, s.logger)
		if err != nil {
			return Artifact{}, fmt.Errorf("render docx: %w", err)
		}
		return Artifact{
			Filename:    base + ".docx",
			ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			Data:        data,
		}, nil
	}
	return Artifact{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Filename derives a file base name from the subject, dropping characters that are
// unsafe in a Content-Disposition header or a file system.
func Filename(subject string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(subject) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), " .")
	if name == "" {
		return "question-paper"
	}
	return name
}
