// Command papergen renders a question paper from a saved /generate response without
// running the studio.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gokatarajesh/exam-paper-studio/internal/backend"
	"github.com/gokatarajesh/exam-paper-studio/internal/export"
	"github.com/gokatarajesh/exam-paper-studio/internal/export/docx"
	"github.com/gokatarajesh/exam-paper-studio/internal/export/pdf"
	"github.com/gokatarajesh/exam-paper-studio/internal/images"
	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
	"github.com/gokatarajesh/exam-paper-studio/internal/session"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := run(context.Background(), os.Args[1:], os.Stdout, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("papergen failed")
	}
}

type options struct {
	in          string
	out         string
	paperType   string
	format      string
	subjectCode string
	branch      string
	examDate    string
	monthYear   string
	logo        string
	backendURL  string
	concurrency int
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("papergen", flag.ContinueOnError)
	fs.StringVar(&o.in, "in", "", "Saved /generate response (JSON)")
	fs.StringVar(&o.out, "out", "", "Output file (default: <subject>.<format> in the current directory)")
	fs.StringVar(&o.paperType, "type", paper.TypeMid1, "Paper type: mid1, mid2 or special")
	fs.StringVar(&o.format, "format", "pdf", "Export format: pdf or docx")
	fs.StringVar(&o.subjectCode, "subject-code", "", "Override the subject code")
	fs.StringVar(&o.branch, "branch", "", "Override the branch")
	fs.StringVar(&o.examDate, "exam-date", "", "Exam date printed in the header")
	fs.StringVar(&o.monthYear, "month-year", "", "Month and year printed in the title")
	fs.StringVar(&o.logo, "logo", "", "Logo image for the header")
	fs.StringVar(&o.backendURL, "backend", "", "Backend used to fetch question images (optional)")
	fs.IntVar(&o.concurrency, "image-concurrency", 4, "Parallel image fetches")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.in == "" {
		return o, fmt.Errorf("-in is required")
	}
	if !paper.ValidPaperType(o.paperType) {
		return o, fmt.Errorf("unknown paper type %q", o.paperType)
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout io.Writer, logger zerolog.Logger) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(o.format)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(o.in)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	gen, err := backend.DecodeGenerateResponse(raw, o.paperType, nil)
	if err != nil {
		return err
	}

	questions := gen.Questions
	if o.backendURL != "" {
		client := backend.NewClient(backend.Config{BaseURL: o.backendURL, Timeout: 30 * time.Second}, nil, logger)
		questions = images.NewResolver(client, nil, o.concurrency, logger).ResolveAll(ctx, questions)
	}

	var logo string
	if o.logo != "" {
		data, err := os.ReadFile(o.logo)
		if err != nil {
			return fmt.Errorf("read logo: %w", err)
		}
		logo = images.EncodeDataURL(data)
	}

	st := session.State{
		Layout:    gen.Layout,
		Questions: questions,
		Details:   &gen.Details,
		Overrides: map[string]string{
			session.KeySubjectCode: o.subjectCode,
			session.KeyBranch:      o.branch,
			session.KeyExamDate:    o.examDate,
			session.KeyMonthYear:   o.monthYear,
		},
	}
	doc := paper.TemplateFor(st.Layout).Build(st.Input(false, logo))

	svc := export.NewService(pdf.DefaultOptions(), docx.DefaultOptions(), nil, logger)
	art, err := svc.Export(ctx, format, doc)
	if err != nil {
		return err
	}

	out := o.out
	if out == "" {
		out = art.Filename
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(out, art.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	if art.Pages > 0 {
		fmt.Fprintf(stdout, "%s: %d questions, %d pages\n", out, len(questions), art.Pages)
	} else {
		fmt.Fprintf(stdout, "%s: %d questions\n", out, len(questions))
	}
	return nil
}
