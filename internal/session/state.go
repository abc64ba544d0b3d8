package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

var (
	ErrPaperNotFound    = errors.New("no question paper data found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrUnknownField     = errors.New("unknown header field")
	// ErrStoreUnavailable wraps every failure of the underlying Store.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// HeaderFields lists the header values that may be overridden.
var HeaderFields = []string{KeySubjectCode, KeyBranch, KeyExamDate, KeyMonthYear}

// ValidField reports whether field is an overridable header field.
func ValidField(field string) bool {
	for _, f := range HeaderFields {
		if f == field {
			return true
		}
	}
	return false
}

// State is the decoded application state of one session.
type State struct {
	Layout    paper.Layout      `json:"layout"`
	Questions []paper.Question  `json:"questions"`
	Details   *paper.Details    `json:"paperDetails"`
	Overrides map[string]string `json:"overrides"`
}

// HasPaper reports whether a paper has been generated in this session.
func (s State) HasPaper() bool {
	return s.Details != nil && s.Questions != nil
}

// Header resolves the header fields. An empty override falls back to the generated value.
func (s State) Header() paper.Header {
	var d paper.Details
	if s.Details != nil {
		d = *s.Details
	}
	return paper.Header{
		SubjectCode: firstNonEmpty(s.Overrides[KeySubjectCode], d.SubjectCode.String()),
		Branch:      firstNonEmpty(s.Overrides[KeyBranch], d.Branch.String()),
		ExamDate:    s.Overrides[KeyExamDate],
		MonthYear:   s.Overrides[KeyMonthYear],
	}
}

// Input returns the template input for the stored paper.
func (s State) Input(editable bool, logo string) paper.Input {
	var d paper.Details
	if s.Details != nil {
		d = *s.Details
	}
	return paper.Input{
		Details:   d,
		Header:    s.Header(),
		Questions: s.Questions,
		Editable:  editable,
		Logo:      logo,
	}
}

// Find returns the index of the question addressed by ref: a zero-based index on plain
// papers, "part:label" on partitioned ones.
func (s State) Find(ref string) (int, error) {
	if s.Layout == paper.LayoutPartitioned {
		part, label, ok := strings.Cut(ref, ":")
		if !ok {
			return -1, fmt.Errorf("%w: %q", ErrQuestionNotFound, ref)
		}
		for i, q := range s.Questions {
			if strings.EqualFold(string(q.Part), part) && strings.EqualFold(q.Label, label) {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%w: %q", ErrQuestionNotFound, ref)
	}

	i, err := strconv.Atoi(ref)
	if err != nil || i < 0 || i >= len(s.Questions) {
		return -1, fmt.Errorf("%w: %q", ErrQuestionNotFound, ref)
	}
	return i, nil
}

// Edit describes a change to one question. Nil fields are left unchanged.
type Edit struct {
	Text    *string
	BTLevel *string
	// Image, when set, replaces both image fields; an empty URL removes the image.
	Image *Image
}

type Image struct {
	URL     string
	DataURL string
}

// Apply edits the question addressed by ref in place.
func (s *State) Apply(ref string, e Edit) (paper.Question, error) {
	i, err := s.Find(ref)
	if err != nil {
		return paper.Question{}, err
	}
	q := &s.Questions[i]
	if e.Text != nil {
		q.Text = *e.Text
	}
	if e.BTLevel != nil {
		q.BTLevel = *e.BTLevel
	}
	if e.Image != nil {
		if e.Image.URL == "" {
			q.ImageURL, q.ImageDataURL = "", ""
		} else {
			q.ImageURL, q.ImageDataURL = e.Image.URL, e.Image.DataURL
		}
	}
	return *q, nil
}

func encodeState(st State) (map[string]string, error) {
	qs, err := json.Marshal(st.Questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	values := map[string]string{
		KeyQuestions: string(qs),
		KeyLayout:    string(st.Layout),
	}
	if st.Details != nil {
		d, err := json.Marshal(st.Details)
		if err != nil {
			return nil, fmt.Errorf("encode paper details: %w", err)
		}
		values[KeyPaperDetails] = string(d)
	}
	return values, nil
}

func decodeState(values map[string]string) (State, error) {
	st := State{Layout: paper.Layout(values[KeyLayout]), Overrides: map[string]string{}}
	if st.Layout == "" {
		st.Layout = paper.LayoutPlain
	}
	if raw, ok := values[KeyQuestions]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &st.Questions); err != nil {
			return State{}, fmt.Errorf("decode questions: %w", err)
		}
	}
	if raw, ok := values[KeyPaperDetails]; ok && raw != "" {
		var d paper.Details
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return State{}, fmt.Errorf("decode paper details: %w", err)
		}
		st.Details = &d
	}
	for _, f := range HeaderFields {
		if v, ok := values[f]; ok {
			st.Overrides[f] = v
		}
	}
	return st, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Manager reads and writes State through a Store.
type Manager struct {
	store  Store
	logger zerolog.Logger
}

func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{store: store, logger: logger.With().Str("component", "session").Logger()}
}

func (m *Manager) Load(ctx context.Context, sid string) (State, error) {
	values, err := m.store.Load(ctx, sid)
	if err != nil {
		return State{}, fmt.Errorf("load session: %w: %w", ErrStoreUnavailable, err)
	}
	st, err := decodeState(values)
	if err != nil {
		m.logger.Warn().Err(err).Str("session", sid).Msg("discarding unreadable session state")
		return State{Layout: paper.LayoutPlain, Overrides: map[string]string{}}, nil
	}
	return st, nil
}

// SavePaper stores the layout, questions and details. Header overrides are untouched.
func (m *Manager) SavePaper(ctx context.Context, sid string, st State) error {
	values, err := encodeState(st)
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, sid, values); err != nil {
		return fmt.Errorf("save paper: %w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// SaveQuestions stores only the question list.
func (m *Manager) SaveQuestions(ctx context.Context, sid string, questions []paper.Question) error {
	qs, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	if err := m.store.Save(ctx, sid, map[string]string{KeyQuestions: string(qs)}); err != nil {
		return fmt.Errorf("save questions: %w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// SetOverride stores a header override.
func (m *Manager) SetOverride(ctx context.Context, sid, field, value string) error {
	if !ValidField(field) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if err := m.store.Save(ctx, sid, map[string]string{field: strings.TrimSpace(value)}); err != nil {
		return fmt.Errorf("save %s: %w: %w", field, ErrStoreUnavailable, err)
	}
	return nil
}
