package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/exam-paper-studio/internal/backend"
	"github.com/gokatarajesh/exam-paper-studio/internal/export"
	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
	"github.com/gokatarajesh/exam-paper-studio/internal/session"
	"github.com/gokatarajesh/exam-paper-studio/pkg/http/ws"
)

const resolvedImage = "data:image/png;base64,cmVzb2x2ZWQ="

type stubBackend struct {
	mu        sync.Mutex
	uploadMsg string
	uploadErr error
	uploaded  string
	gen       backend.Generated
	genErr    error
	requests  []backend.GenerateRequest
}

func (s *stubBackend) Upload(_ context.Context, filename string, r io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, _ := io.ReadAll(r)
	s.uploaded = filename + ":" + string(data)
	return s.uploadMsg, s.uploadErr
}

func (s *stubBackend) Generate(_ context.Context, req backend.GenerateRequest) (backend.Generated, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.gen, s.genErr
}

type stubResolver struct {
	mu   sync.Mutex
	urls []string
}

func (s *stubResolver) Resolve(_ context.Context, url string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
	return resolvedImage
}

func (s *stubResolver) ResolveAll(ctx context.Context, qs []paper.Question) []paper.Question {
	out := make([]paper.Question, len(qs))
	copy(out, qs)
	for i := range out {
		if out[i].ImageURL != "" {
			out[i].ImageDataURL = s.Resolve(ctx, out[i].ImageURL)
		}
	}
	return out
}

type stubExporter struct {
	doc    paper.Document
	format export.Format
	err    error
}

func (s *stubExporter) Export(_ context.Context, format export.Format, doc paper.Document) (export.Artifact, error) {
	s.doc, s.format = doc, format
	if s.err != nil {
		return export.Artifact{}, s.err
	}
	return export.Artifact{Filename: export.Filename(doc.Title) + "." + string(format), ContentType: "application/pdf", Data: []byte("%PDF"), Pages: 2}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs map[uuid.UUID][]ws.Message
}

func (n *recordingNotifier) SendToSession(sid uuid.UUID, msg ws.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.msgs == nil {
		n.msgs = map[uuid.UUID][]ws.Message{}
	}
	n.msgs[sid] = append(n.msgs[sid], msg)
	return nil
}

func (n *recordingNotifier) toasts(t *testing.T, sid uuid.UUID) []ws.NotificationPayload {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []ws.NotificationPayload
	for _, m := range n.msgs[sid] {
		if m.Type != ws.TypeNotification {
			continue
		}
		var p ws.NotificationPayload
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		out = append(out, p)
	}
	return out
}

func (n *recordingNotifier) updates(sid uuid.UUID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.msgs[sid] {
		if m.Type == ws.TypePaperUpdated {
			var p ws.PaperUpdatedPayload
			_ = json.Unmarshal(m.Payload, &p)
			out = append(out, p.Reason)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	backend  *stubBackend
	resolver *stubResolver
	exporter *stubExporter
	notifier *recordingNotifier
	sessions *session.Manager
}

func newFixture() *fixture {
	f := &fixture{
		backend:  &stubBackend{uploadMsg: "File uploaded successfully"},
		resolver: &stubResolver{},
		exporter: &stubExporter{},
		notifier: &recordingNotifier{},
		sessions: session.NewManager(session.NewMemoryStore(time.Hour), zerolog.Nop()),
	}
	f.svc = NewService(f.backend, f.resolver, f.exporter, f.sessions, f.notifier, ServiceOptions{}, zerolog.Nop())
	return f
}

func partitioned() backend.Generated {
	return backend.Generated{
		Layout: paper.LayoutPartitioned,
		Details: paper.Details{
			Subject: "Operating Systems", SubjectCode: "CS301", Branch: "CSE",
			Year: "II", Semester: "I", Regulation: "R22", PaperType: paper.TypeMid2,
		},
		Questions: []paper.Question{
			{Label: "1a", Part: paper.PartA, Text: "Define a process.", Unit: 3, BTLevel: "L1"},
			{Label: "2", Part: paper.PartB, Text: "Explain paging.", Unit: 4, BTLevel: "L2", ImageURL: "http://img/paging.png"},
		},
	}
}

func plain(n int) backend.Generated {
	g := backend.Generated{
		Layout:  paper.LayoutPlain,
		Details: paper.Details{Subject: "Networks", SubjectCode: "CS202", Branch: "IT", PaperType: paper.TypeMid1},
	}
	for i := 0; i < n; i++ {
		g.Questions = append(g.Questions, paper.Question{Text: fmt.Sprintf("Q%d", i), Unit: 1 + i%5, BTLevel: "L1"})
	}
	return g
}

func TestUploadToasts(t *testing.T) {
	f := newFixture()
	sid := uuid.New()

	msg, err := f.svc.Upload(context.Background(), sid, "bank.xlsx", strings.NewReader("rows"))
	require.NoError(t, err)
	assert.Equal(t, "File uploaded successfully", msg)
	assert.Equal(t, "bank.xlsx:rows", f.backend.uploaded)

	toasts := f.notifier.toasts(t, sid)
	require.Len(t, toasts, 2)
	assert.Equal(t, ws.NotificationPayload{ID: toasts[0].ID, Message: "File is uploading...", Kind: ws.KindInfo, Target: TargetUpload}, toasts[0])
	assert.Equal(t, "Successfully uploaded!", toasts[1].Message)
	assert.Equal(t, ws.KindSuccess, toasts[1].Kind)
	assert.Equal(t, ToastDurationMs, toasts[1].DurationMs)
	assert.Equal(t, toasts[0].ID, toasts[1].Replaces)
}

func TestUploadFailureUsesBackendMessage(t *testing.T) {
	f := newFixture()
	f.backend.uploadErr = &backend.Error{Status: 400, Message: "Invalid file format"}
	sid := uuid.New()

	_, err := f.svc.Upload(context.Background(), sid, "bank.csv", strings.NewReader(""))
	require.Error(t, err)

	toasts := f.notifier.toasts(t, sid)
	require.Len(t, toasts, 2)
	assert.Equal(t, "Error uploading file: Invalid file format", toasts[1].Message)
	assert.Equal(t, ws.KindError, toasts[1].Kind)
	assert.Equal(t, TargetUpload, toasts[1].Target)
}

func TestGenerateStoresPaperAndKeepsOverrides(t *testing.T) {
	f := newFixture()
	f.backend.gen = partitioned()
	sid := uuid.New()
	ctx := context.Background()

	_, err := f.svc.SetHeaderField(ctx, sid, paper.FieldBranch, " ECE ")
	require.NoError(t, err)

	unit := 3
	view, err := f.svc.Generate(ctx, sid, backend.GenerateRequest{PaperType: paper.TypeSpecial, MainUnit: &unit})
	require.NoError(t, err)

	assert.Equal(t, paper.LayoutPartitioned, view.Layout)
	assert.Equal(t, 40, view.MaxMarks)
	assert.Equal(t, "Mid II", view.TermLabel)
	assert.Equal(t, "ECE", view.Header.Branch)
	assert.Equal(t, "CS301", view.Header.SubjectCode)
	require.Len(t, view.Questions, 2)
	assert.Equal(t, "A:1a", view.Questions[0].Ref)
	assert.Equal(t, "CO3", view.Questions[0].CO)
	assert.Equal(t, resolvedImage, view.Questions[1].ImageDataURL)
	assert.Equal(t, []string{"http://img/paging.png"}, f.resolver.urls)

	stored, err := f.svc.Paper(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, view, stored)

	toasts := f.notifier.toasts(t, sid)
	require.Len(t, toasts, 2)
	assert.Equal(t, "Generating question paper...", toasts[0].Message)
	assert.Equal(t, TargetGenerate, toasts[0].Target)
	assert.Equal(t, "Question paper generated successfully!", toasts[1].Message)
	assert.Equal(t, []string{"generate"}, f.notifier.updates(sid))
}

func TestGenerateFailureStoresNothing(t *testing.T) {
	f := newFixture()
	f.backend.genErr = &backend.Error{Status: 500, Message: "Not enough questions in unit 3"}
	sid := uuid.New()

	_, err := f.svc.Generate(context.Background(), sid, backend.GenerateRequest{PaperType: paper.TypeMid1})
	require.Error(t, err)

	_, err = f.svc.Paper(context.Background(), sid)
	assert.ErrorIs(t, err, session.ErrPaperNotFound)

	toasts := f.notifier.toasts(t, sid)
	require.Len(t, toasts, 2)
	assert.Equal(t, "Error generating question paper: Not enough questions in unit 3", toasts[1].Message)
	assert.Equal(t, toasts[0].ID, toasts[1].Replaces)
	assert.Empty(t, f.notifier.updates(sid))
}

func TestUpdateQuestionStoresTextAsTyped(t *testing.T) {
	f := newFixture()
	f.backend.gen = plain(3)
	sid := uuid.New()
	ctx := context.Background()
	_, err := f.svc.Generate(ctx, sid, backend.GenerateRequest{PaperType: paper.TypeMid1})
	require.NoError(t, err)

	text := "  Edited<br>second line "
	q, err := f.svc.UpdateQuestion(ctx, sid, "1", InlineEdit{Question: &text})
	require.NoError(t, err)
	assert.Equal(t, text, q.Text)
	assert.Equal(t, "L1", q.BTLevel)
	assert.Equal(t, "1", q.Ref)

	level := "L4"
	_, err = f.svc.UpdateQuestion(ctx, sid, "1", InlineEdit{BTLevel: &level})
	require.NoError(t, err)

	view, err := f.svc.Paper(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, text, view.Questions[1].Text)
	assert.Equal(t, "L4", view.Questions[1].BTLevel)
	assert.Equal(t, "Q0", view.Questions[0].Text)

	_, err = f.svc.UpdateQuestion(ctx, sid, "7", InlineEdit{BTLevel: &level})
	assert.ErrorIs(t, err, session.ErrQuestionNotFound)
	_, err = f.svc.UpdateQuestion(ctx, uuid.New(), "0", InlineEdit{BTLevel: &level})
	assert.ErrorIs(t, err, session.ErrPaperNotFound)
}

func TestSaveQuestionImageRules(t *testing.T) {
	f := newFixture()
	f.backend.gen = partitioned()
	sid := uuid.New()
	ctx := context.Background()
	_, err := f.svc.Generate(ctx, sid, backend.GenerateRequest{PaperType: paper.TypeMid2})
	require.NoError(t, err)

	q, err := f.svc.SaveQuestion(ctx, sid, "A:1a", QuestionForm{Question: "What is a PCB?", BTLevel: "  L2 ", ImageURL: " http://img/pcb.png "})
	require.NoError(t, err)
	assert.Equal(t, "What is a PCB?", q.Text)
	assert.Equal(t, "L2", q.BTLevel)
	assert.Equal(t, "http://img/pcb.png", q.ImageURL)
	assert.Equal(t, resolvedImage, q.ImageDataURL)

	q, err = f.svc.SaveQuestion(ctx, sid, "b:2", QuestionForm{Question: "Explain paging.", BTLevel: "L2", ImageURL: "   "})
	require.NoError(t, err)
	assert.Empty(t, q.ImageURL)
	assert.Empty(t, q.ImageDataURL)

	view, err := f.svc.Paper(ctx, sid)
	require.NoError(t, err)
	assert.False(t, view.Questions[1].HasImage())
	assert.Equal(t, []string{"edit", "edit"}, f.notifier.updates(sid)[1:])

	_, err = f.svc.SaveQuestion(ctx, sid, "B:9", QuestionForm{ImageURL: "http://img/never.png"})
	assert.ErrorIs(t, err, session.ErrQuestionNotFound)
	assert.NotContains(t, f.resolver.urls, "http://img/never.png", "unknown questions are rejected before fetching")
}

func TestExportWithoutPaper(t *testing.T) {
	f := newFixture()
	sid := uuid.New()

	_, err := f.svc.Export(context.Background(), sid, export.FormatPDF)
	assert.ErrorIs(t, err, session.ErrPaperNotFound)

	toasts := f.notifier.toasts(t, sid)
	require.Len(t, toasts, 1)
	assert.Equal(t, MsgNoPaper, toasts[0].Message)
	assert.Equal(t, ws.KindError, toasts[0].Kind)
	assert.Equal(t, TargetDownload, toasts[0].Target)
}

func TestExportBuildsReadOnlyDocument(t *testing.T) {
	f := newFixture()
	f.backend.gen = plain(2)
	sid := uuid.New()
	ctx := context.Background()
	_, err := f.svc.Generate(ctx, sid, backend.GenerateRequest{PaperType: paper.TypeMid1})
	require.NoError(t, err)
	_, err = f.svc.SetHeaderField(ctx, sid, paper.FieldExamDate, "12-03-2025")
	require.NoError(t, err)

	art, err := f.svc.Export(ctx, sid, export.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "Networks.pdf", art.Filename)
	assert.Equal(t, export.FormatPDF, f.exporter.format)
	assert.Equal(t, "Networks", f.exporter.doc.Title)

	var table *paper.TableBlock
	var texts []string
	for _, n := range f.exporter.doc.Nodes {
		switch n := n.(type) {
		case *paper.TableBlock:
			table = n
		case *paper.GroupBlock:
			for _, c := range n.Children {
				if tb, ok := c.(*paper.TextBlock); ok {
					texts = append(texts, tb.Text())
				}
			}
		}
	}
	require.NotNil(t, table)
	assert.False(t, table.Editable)
	assert.Len(t, table.Columns, 5)
	assert.Contains(t, texts, "Subject: Networks Branch: IT Date: 12-03-2025")

	toasts := f.notifier.toasts(t, sid)
	last := toasts[len(toasts)-2:]
	assert.Equal(t, "Generating PDF...", last[0].Message)
	assert.Equal(t, "PDF downloaded successfully!", last[1].Message)
	assert.Equal(t, last[0].ID, last[1].Replaces)
	assert.Equal(t, []string{"generate", "export"}, f.notifier.updates(sid))
}

func TestExportFailure(t *testing.T) {
	f := newFixture()
	f.backend.gen = plain(1)
	f.exporter.err = errors.New("render pdf: boom")
	sid := uuid.New()
	ctx := context.Background()
	_, err := f.svc.Generate(ctx, sid, backend.GenerateRequest{PaperType: paper.TypeMid1})
	require.NoError(t, err)

	_, err = f.svc.Export(ctx, sid, export.FormatDOCX)
	assert.ErrorIs(t, err, ErrExportFailed)

	toasts := f.notifier.toasts(t, sid)
	assert.Equal(t, "Error generating Word document: render pdf: boom", toasts[len(toasts)-1].Message)
}

func TestConcurrentEditsAreNotLost(t *testing.T) {
	f := newFixture()
	f.backend.gen = plain(20)
	sid := uuid.New()
	ctx := context.Background()
	_, err := f.svc.Generate(ctx, sid, backend.GenerateRequest{PaperType: paper.TypeMid1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			level := "L" + strconv.Itoa(i)
			_, err := f.svc.UpdateQuestion(ctx, sid, strconv.Itoa(i), InlineEdit{BTLevel: &level})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	view, err := f.svc.Paper(ctx, sid)
	require.NoError(t, err)
	for i, q := range view.Questions {
		assert.Equal(t, "L"+strconv.Itoa(i), q.BTLevel)
	}
	assert.Zero(t, f.svc.locks.len())
}
