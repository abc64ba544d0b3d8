// Package studio implements the instructor-facing use cases: uploading a question bank,
// generating a paper, editing it on screen and exporting it.
package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-paper-studio/internal/backend"
	"github.com/gokatarajesh/exam-paper-studio/internal/export"
	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
	"github.com/gokatarajesh/exam-paper-studio/internal/session"
)

// MsgNoPaper is shown when an export or edit is attempted before generation.
const MsgNoPaper = "No question paper data found to download."

// MsgSessionUnavailable is returned when the session store cannot be reached.
const MsgSessionUnavailable = "Session storage is unavailable, please retry shortly."

var ErrExportFailed = errors.New("export failed")

// Backend is the subset of the question-bank client the studio drives.
type Backend interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
	Generate(ctx context.Context, req backend.GenerateRequest) (backend.Generated, error)
}

// ImageResolver turns image URLs into embeddable data URLs.
type ImageResolver interface {
	Resolve(ctx context.Context, url string) string
	ResolveAll(ctx context.Context, questions []paper.Question) []paper.Question
}

type Exporter interface {
	Export(ctx context.Context, format export.Format, doc paper.Document) (export.Artifact, error)
}

// Sessions persists per-session application state.
type Sessions interface {
	Load(ctx context.Context, sid string) (session.State, error)
	SavePaper(ctx context.Context, sid string, st session.State) error
	SaveQuestions(ctx context.Context, sid string, questions []paper.Question) error
	SetOverride(ctx context.Context, sid, field, value string) error
}

// ServiceOptions carries optional collaborators.
type ServiceOptions struct {
	// Logo is a data URL drawn in the header of every paper.
	Logo string
}

// Service coordinates the backend, session state, image resolution and exports.
type Service struct {
	backend  Backend
	images   ImageResolver
	exporter Exporter
	sessions Sessions
	toasts   *toaster
	locks    *keyedMutex
	logo     string
	logger   zerolog.Logger
}

func NewService(b Backend, images ImageResolver, exporter Exporter, sessions Sessions, notifier Notifier, opts ServiceOptions, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "studio").Logger()
	return &Service{
		backend:  b,
		images:   images,
		exporter: exporter,
		sessions: sessions,
		toasts:   &toaster{notifier: notifier, logger: logger},
		locks:    newKeyedMutex(),
		logo:     opts.Logo,
		logger:   logger,
	}
}

// QuestionView is a question as sent to the page, with its edit reference and CO.
type QuestionView struct {
	paper.Question
	Ref string `json:"ref"`
	CO  string `json:"co"`
}

// PaperView is the JSON form of the current paper.
type PaperView struct {
	Layout       paper.Layout   `json:"layout"`
	PaperDetails paper.Details  `json:"paperDetails"`
	Header       paper.Header   `json:"header"`
	TermLabel    string         `json:"termLabel"`
	MaxMarks     int            `json:"maxMarks"`
	Questions    []QuestionView `json:"questions"`
}

func newPaperView(st session.State) PaperView {
	tmpl := paper.TemplateFor(st.Layout)
	v := PaperView{
		Layout:    tmpl.Layout(),
		Header:    st.Header(),
		MaxMarks:  tmpl.MaxMarks(),
		Questions: make([]QuestionView, 0, len(st.Questions)),
	}
	if st.Details != nil {
		v.PaperDetails = *st.Details
	}
	v.TermLabel = paper.TermLabel(v.PaperDetails.PaperType)
	for i, q := range st.Questions {
		v.Questions = append(v.Questions, QuestionView{Question: q, Ref: refFor(st.Layout, i, q), CO: paper.COForUnit(q.Unit)})
	}
	return v
}

func refFor(l paper.Layout, i int, q paper.Question) string {
	if l == paper.LayoutPartitioned {
		return paper.RefFor(q)
	}
	return strconv.Itoa(i)
}

// Upload forwards a question-bank spreadsheet to the backend.
func (s *Service) Upload(ctx context.Context, sid uuid.UUID, filename string, r io.Reader) (string, error) {
	toast := s.toasts.info(sid, TargetUpload, "File is uploading...")
	msg, err := s.backend.Upload(ctx, filename, r)
	if err != nil {
		s.logger.Error().Err(err).Str("session", sid.String()).Str("file", filename).Msg("upload failed")
		s.toasts.fail(sid, TargetUpload, "Error uploading file: "+userMessage(err), toast)
		return "", err
	}
	s.logger.Info().Str("session", sid.String()).Str("file", filename).Msg("question bank uploaded")
	s.toasts.success(sid, TargetUpload, "Successfully uploaded!", toast)
	return msg, nil
}

// Generate asks the backend for a paper, resolves its images and replaces the
// session's paper. Header overrides survive regeneration. Nothing is stored when
// generation fails.
func (s *Service) Generate(ctx context.Context, sid uuid.UUID, req backend.GenerateRequest) (PaperView, error) {
	toast := s.toasts.info(sid, TargetGenerate, "Generating question paper...")
	view, err := s.generate(ctx, sid, req)
	if err != nil {
		s.logger.Error().Err(err).Str("session", sid.String()).Str("paper_type", req.PaperType).Msg("generation failed")
		s.toasts.fail(sid, TargetGenerate, "Error generating question paper: "+userMessage(err), toast)
		return PaperView{}, err
	}
	s.toasts.success(sid, TargetGenerate, "Question paper generated successfully!", toast)
	s.toasts.paperUpdated(sid, "generate")
	return view, nil
}

func (s *Service) generate(ctx context.Context, sid uuid.UUID, req backend.GenerateRequest) (PaperView, error) {
	gen, err := s.backend.Generate(ctx, req)
	if err != nil {
		return PaperView{}, err
	}
	questions := s.images.ResolveAll(ctx, gen.Questions)
	if gen.Layout == paper.LayoutPartitioned {
		for _, g := range paper.GroupPartB(questions) {
			if g.Malformed {
				s.logger.Warn().Str("session", sid.String()).Str("q_no", g.QNo).Msg("part B slot mixes a bare label with sub-labels; bare label dropped")
			}
		}
	}

	unlock := s.locks.Lock(sid)
	defer unlock()

	st, err := s.sessions.Load(ctx, sid.String())
	if err != nil {
		return PaperView{}, err
	}
	details := gen.Details
	st.Layout, st.Questions, st.Details = gen.Layout, questions, &details
	if err := s.sessions.SavePaper(ctx, sid.String(), st); err != nil {
		return PaperView{}, err
	}
	s.logger.Info().
		Str("session", sid.String()).
		Str("paper_type", details.PaperType).
		Str("layout", string(gen.Layout)).
		Int("questions", len(questions)).
		Msg("paper generated")
	return newPaperView(st), nil
}

// Paper returns the session's current paper.
func (s *Service) Paper(ctx context.Context, sid uuid.UUID) (PaperView, error) {
	st, err := s.loadPaper(ctx, sid)
	if err != nil {
		return PaperView{}, err
	}
	return newPaperView(st), nil
}

// Document builds the document tree of the session's paper. The editable variant
// carries the on-screen Edit column.
func (s *Service) Document(ctx context.Context, sid uuid.UUID, editable bool) (paper.Document, paper.Layout, error) {
	st, err := s.loadPaper(ctx, sid)
	if err != nil {
		return paper.Document{}, "", err
	}
	tmpl := paper.TemplateFor(st.Layout)
	return tmpl.Build(st.Input(editable, s.logo)), tmpl.Layout(), nil
}

// InlineEdit is a direct edit of a table cell. Values are stored as typed.
type InlineEdit struct {
	Question *string `json:"question"`
	BTLevel  *string `json:"btLevel"`
}

// UpdateQuestion applies an inline cell edit.
func (s *Service) UpdateQuestion(ctx context.Context, sid uuid.UUID, ref string, in InlineEdit) (QuestionView, error) {
	unlock := s.locks.Lock(sid)
	defer unlock()

	return s.apply(ctx, sid, ref, session.Edit{Text: in.Question, BTLevel: in.BTLevel})
}

// QuestionForm is the content of the edit dialog.
type QuestionForm struct {
	Question string `json:"question"`
	BTLevel  string `json:"btLevel"`
	ImageURL string `json:"imageUrl"`
}

// SaveQuestion applies the edit dialog. A non-empty image URL is fetched again; an
// empty one removes the image.
func (s *Service) SaveQuestion(ctx context.Context, sid uuid.UUID, ref string, form QuestionForm) (QuestionView, error) {
	st, err := s.loadPaper(ctx, sid)
	if err != nil {
		return QuestionView{}, err
	}
	if _, err := st.Find(ref); err != nil {
		return QuestionView{}, err
	}

	btLevel := strings.TrimSpace(form.BTLevel)
	img := &session.Image{URL: strings.TrimSpace(form.ImageURL)}
	if img.URL != "" {
		img.DataURL = s.images.Resolve(ctx, img.URL)
	}

	unlock := s.locks.Lock(sid)
	defer unlock()

	q, err := s.apply(ctx, sid, ref, session.Edit{Text: &form.Question, BTLevel: &btLevel, Image: img})
	if err != nil {
		return QuestionView{}, err
	}
	s.toasts.paperUpdated(sid, "edit")
	return q, nil
}

// apply must be called with the session lock held.
func (s *Service) apply(ctx context.Context, sid uuid.UUID, ref string, e session.Edit) (QuestionView, error) {
	st, err := s.loadPaper(ctx, sid)
	if err != nil {
		return QuestionView{}, err
	}
	i, err := st.Find(ref)
	if err != nil {
		return QuestionView{}, err
	}
	q, err := st.Apply(ref, e)
	if err != nil {
		return QuestionView{}, err
	}
	if err := s.sessions.SaveQuestions(ctx, sid.String(), st.Questions); err != nil {
		return QuestionView{}, err
	}
	s.logger.Debug().Str("session", sid.String()).Str("ref", ref).Msg("question updated")
	return QuestionView{Question: q, Ref: refFor(st.Layout, i, q), CO: paper.COForUnit(q.Unit)}, nil
}

// SetHeaderField stores a header override and returns the resolved header.
func (s *Service) SetHeaderField(ctx context.Context, sid uuid.UUID, field, value string) (paper.Header, error) {
	unlock := s.locks.Lock(sid)
	defer unlock()

	if err := s.sessions.SetOverride(ctx, sid.String(), field, value); err != nil {
		return paper.Header{}, err
	}
	st, err := s.sessions.Load(ctx, sid.String())
	if err != nil {
		return paper.Header{}, err
	}
	return st.Header(), nil
}

// Export renders the session's paper in the requested format.
func (s *Service) Export(ctx context.Context, sid uuid.UUID, format export.Format) (export.Artifact, error) {
	st, err := s.loadPaper(ctx, sid)
	if err != nil {
		if errors.Is(err, session.ErrPaperNotFound) {
			s.toasts.fail(sid, TargetDownload, MsgNoPaper, "")
		}
		return export.Artifact{}, err
	}

	name := formatName(format)
	toast := s.toasts.info(sid, TargetDownload, "Generating "+name+"...")
	doc := paper.TemplateFor(st.Layout).Build(st.Input(false, s.logo))
	art, err := s.exporter.Export(ctx, format, doc)
	if err != nil {
		s.toasts.fail(sid, TargetDownload, "Error generating "+name+": "+err.Error(), toast)
		return export.Artifact{}, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	s.toasts.success(sid, TargetDownload, name+" downloaded successfully!", toast)
	s.toasts.paperUpdated(sid, "export")
	return art, nil
}

func (s *Service) loadPaper(ctx context.Context, sid uuid.UUID) (session.State, error) {
	st, err := s.sessions.Load(ctx, sid.String())
	if err != nil {
		return session.State{}, err
	}
	if !st.HasPaper() {
		return session.State{}, session.ErrPaperNotFound
	}
	return st, nil
}

func formatName(f export.Format) string {
	if f == export.FormatDOCX {
		return "Word document"
	}
	return "PDF"
}

// userMessage is the text shown to the instructor for a failed backend call.
func userMessage(err error) string {
	var be *backend.Error
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
