package studio

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-paper-studio/internal/backend"
	"github.com/gokatarajesh/exam-paper-studio/internal/editor"
	"github.com/gokatarajesh/exam-paper-studio/internal/export"
	"github.com/gokatarajesh/exam-paper-studio/internal/session"
	httperrors "github.com/gokatarajesh/exam-paper-studio/pkg/http/errors"
	"github.com/gokatarajesh/exam-paper-studio/pkg/http/ws"
)

// HandlerOptions configures the HTTP surface.
type HandlerOptions struct {
	MaxUploadBytes int64
	SessionTTL     time.Duration
	SecureCookie   bool
	Upgrader       *websocket.Upgrader
}

// Handler serves the studio API, the editor page and the notification socket.
type Handler struct {
	svc    *Service
	hub    *ws.Hub
	page   *editor.Renderer
	opts   HandlerOptions
	logger zerolog.Logger
}

func NewHandler(svc *Service, hub *ws.Hub, page *editor.Renderer, opts HandlerOptions, logger zerolog.Logger) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = session.DefaultTTL
	}
	if opts.Upgrader == nil {
		opts.Upgrader = &websocket.Upgrader{}
	}
	return &Handler{
		svc:    svc,
		hub:    hub,
		page:   page,
		opts:   opts,
		logger: logger.With().Str("component", "studio_http").Logger(),
	}
}

// Routes mounts the studio endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(h.opts.SessionTTL, h.opts.SecureCookie))

		r.Get("/", h.EditorPage)
		r.Get("/paper", h.EditorPage)
		r.Get("/ws", h.HandleWebSocket)

		r.Route("/api", func(r chi.Router) {
			r.Post("/upload", h.Upload)
			r.Post("/generate", h.Generate)
			r.Get("/paper", h.GetPaper)
			r.Patch("/questions/{ref}", h.UpdateQuestion)
			r.Put("/questions/{ref}", h.SaveQuestion)
			r.Put("/header/{field}", h.SetHeaderField)
			r.Get("/export", h.Export)
		})
	})
}

// Upload handles POST /api/upload
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	sid := mustSession(r)
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperrors.RespondError(w, http.StatusRequestEntityTooLarge, httperrors.ErrCodeFileTooLarge, "Question bank file is too large")
			return
		}
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid multipart payload")
		return
	}
	f, header, err := r.FormFile("excelFile")
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "No file uploaded", "excelFile")
		return
	}
	defer f.Close()

	msg, err := h.svc.Upload(r.Context(), sid, header.Filename, f)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// Generate handles POST /api/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req backend.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	view, err := h.svc.Generate(r.Context(), mustSession(r), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetPaper handles GET /api/paper
func (h *Handler) GetPaper(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Paper(r.Context(), mustSession(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// EditorPage handles GET /paper
func (h *Handler) EditorPage(w http.ResponseWriter, r *http.Request) {
	page := editor.Page{}
	doc, layout, err := h.svc.Document(r.Context(), mustSession(r), true)
	switch {
	case err == nil:
		page.Doc, page.Layout = &doc, layout
	case errors.Is(err, session.ErrPaperNotFound):
	default:
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.page.Render(w, page); err != nil {
		h.logger.Error().Err(err).Msg("render editor page")
	}
}

// UpdateQuestion handles PATCH /api/questions/{ref}
func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var in InlineEdit
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	q, err := h.svc.UpdateQuestion(r.Context(), mustSession(r), urlParam(r, "ref"), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// SaveQuestion handles PUT /api/questions/{ref}
func (h *Handler) SaveQuestion(w http.ResponseWriter, r *http.Request) {
	var form QuestionForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	q, err := h.svc.SaveQuestion(r.Context(), mustSession(r), urlParam(r, "ref"), form)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// SetHeaderField handles PUT /api/header/{field}
func (h *Handler) SetHeaderField(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	header, err := h.svc.SetHeaderField(r.Context(), mustSession(r), urlParam(r, "field"), body.Value)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, header)
}

// Export handles GET /api/export?format=pdf|docx
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.fail(w, err)
		return
	}
	art, err := h.svc.Export(r.Context(), mustSession(r), format)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+art.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	if art.Pages > 0 {
		w.Header().Set("X-Page-Count", strconv.Itoa(art.Pages))
	}
	_, _ = w.Write(art.Data)
}

// HandleWebSocket upgrades GET /ws and streams the session's notifications.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sid := mustSession(r)
	raw, err := h.opts.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	conn := ws.NewConnection(raw, h.logger)
	h.hub.Register(sid, conn)
	defer h.hub.Unregister(sid, conn)

	go conn.WritePump()
	conn.ReadPump(func(msg ws.Message) error {
		switch msg.Type {
		case ws.TypePing:
			pong, _ := ws.NewMessage(ws.TypePong, nil)
			pong.RequestID = msg.RequestID
			return conn.Send(pong)
		case ws.TypeDismiss:
			var p ws.ClearPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return err
			}
			cleared, err := ws.NewMessage(ws.TypeClear, p)
			if err != nil {
				return err
			}
			return h.hub.SendToSession(sid, cleared)
		}
		errMsg, _ := ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: "unknown_type", Message: "Unknown message type"})
		errMsg.RequestID = msg.RequestID
		return conn.Send(errMsg)
	})
}

// fail maps service errors onto the error envelope.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var (
		be *backend.Error
		ve validator.ValidationErrors
	)
	switch {
	case errors.As(err, &be):
		httperrors.RespondBadGateway(w, be.Message)
	case errors.Is(err, session.ErrStoreUnavailable):
		h.logger.Error().Err(err).Msg("session store failed")
		httperrors.RespondError(w, http.StatusServiceUnavailable, httperrors.ErrCodeSessionUnavailable, MsgSessionUnavailable)
	case errors.Is(err, session.ErrPaperNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodePaperNotFound, MsgNoPaper)
	case errors.Is(err, session.ErrQuestionNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeQuestionNotFound, err.Error())
	case errors.Is(err, session.ErrUnknownField):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeUnknownField, err.Error())
	case errors.Is(err, export.ErrUnknownFormat):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeUnknownFormat, err.Error())
	case errors.Is(err, backend.ErrMainUnitRequired):
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, err.Error(), "mainUnit")
	case errors.As(err, &ve) && len(ve) > 0:
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, ve[0].Error(), jsonName(ve[0].Field()))
	case errors.Is(err, ErrExportFailed):
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeExportFailed, err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		httperrors.RespondInternalError(w, "Internal server error")
	}
}

func mustSession(r *http.Request) uuid.UUID {
	sid, _ := SessionFromContext(r.Context())
	return sid
}

func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// jsonName lowers the first letter of a struct field name.
func jsonName(field string) string {
	r, n := utf8.DecodeRuneInString(field)
	if r == utf8.RuneError {
		return field
	}
	return string(unicode.ToLower(r)) + field[n:]
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
