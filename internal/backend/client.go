// Package backend talks to the question-bank service that stores uploaded question
// banks, generates papers and proxies question images.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

// Config holds connection details for the backend.
type Config struct {
	BaseURL string
	// Timeout of zero means requests are bounded only by their context.
	Timeout time.Duration
}

// Recorder counts backend calls by endpoint and status.
type Recorder interface {
	BackendRequest(endpoint string, status int)
}

// Error is returned for non-2xx responses, unreadable bodies and transport failures.
// Status is zero when no response was received.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "backend: " + e.Message
	}
	return fmt.Sprintf("backend: %s (status %d)", e.Message, e.Status)
}

// Client implements the backend endpoints used by the studio.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
	recorder   Recorder
	validate   *validator.Validate
}

func NewClient(cfg Config, recorder Recorder, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:     logger.With().Str("component", "backend_client").Logger(),
		recorder:   recorder,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Upload sends a question-bank spreadsheet as multipart field "excelFile" and
// returns the backend's message.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("excelFile", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := c.do(req, "upload", "Error uploading file")
	if err != nil {
		return "", err
	}
	c.logger.Debug().Str("body", string(raw)).Msg("upload response")

	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &Error{Status: http.StatusOK, Message: "malformed upload response"}
	}
	return resp.Message, nil
}

// GenerateRequest selects the paper to generate. MainUnit is only sent for special papers.
type GenerateRequest struct {
	PaperType string `json:"paperType" validate:"required,oneof=mid1 mid2 special"`
	MainUnit  *int   `json:"mainUnit,omitempty" validate:"omitempty,min=1,max=5"`
}

var ErrMainUnitRequired = errors.New("mainUnit is required for special papers")

// Generated is a paper as returned by /generate, normalised to one question list.
type Generated struct {
	Layout    paper.Layout
	Questions []paper.Question
	Details   paper.Details
}

// Generate asks the backend for a paper.
func (c *Client) Generate(ctx context.Context, in GenerateRequest) (Generated, error) {
	if err := c.validate.Struct(in); err != nil {
		return Generated{}, fmt.Errorf("invalid generate request: %w", err)
	}
	if in.PaperType == paper.TypeSpecial && in.MainUnit == nil {
		return Generated{}, ErrMainUnitRequired
	}
	if in.PaperType != paper.TypeSpecial {
		in.MainUnit = nil
	}
	body, err := json.Marshal(in)
	if err != nil {
		return Generated{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return Generated{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req, "generate", "Error generating question paper")
	if err != nil {
		return Generated{}, err
	}

	gen, err := DecodeGenerateResponse(raw, in.PaperType, c.validate)
	if err != nil {
		return Generated{}, &Error{Status: http.StatusOK, Message: err.Error()}
	}
	return gen, nil
}

// ImageDataURL fetches an image through the backend proxy as a data URL.
func (c *Client) ImageDataURL(ctx context.Context, imageURL string) (string, error) {
	endpoint := c.baseURL + "/image-proxy-base64?url=" + url.QueryEscape(imageURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	raw, err := c.do(req, "image_proxy", "Failed to fetch image")
	if err != nil {
		return "", err
	}

	var resp struct {
		DataURL string `json:"dataUrl"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &Error{Status: http.StatusOK, Message: "malformed image response"}
	}
	if !strings.HasPrefix(resp.DataURL, "data:") {
		return "", &Error{Status: http.StatusOK, Message: "image response is not a data url"}
	}
	return resp.DataURL, nil
}

// Ping wakes the backend. Any response, even an error status, counts as awake.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record("ping", 0)
		return &Error{Message: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	c.record("ping", resp.StatusCode)
	return nil
}

// do executes req and returns the body of a 2xx response. Failures become *Error,
// using the envelope's "error" field when present and fallback otherwise.
func (c *Client) do(req *http.Request, endpoint, fallback string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, 0)
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()
	c.record(endpoint, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}

	if resp.StatusCode >= 300 {
		msg := fallback
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			msg = envelope.Error
		}
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}
	return raw, nil
}

func (c *Client) record(endpoint string, status int) {
	if c.recorder != nil {
		c.recorder.BackendRequest(endpoint, status)
	}
}

// IsBackendError reports whether err came from the backend or the transport to it.
func IsBackendError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}
