package studio

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-paper-studio/pkg/http/ws"
)

// Page controls that toasts are anchored to.
const (
	TargetUpload   = "excelFile"
	TargetGenerate = "generateButton"
	TargetDownload = "downloadButton"
)

// ToastDurationMs is how long success and error toasts stay visible.
const ToastDurationMs = 3000

// Notifier delivers messages to a session's open pages.
type Notifier interface {
	SendToSession(sessionID uuid.UUID, msg ws.Message) error
}

// toaster sends transient notifications. Delivery is best effort: a session without
// an open page simply misses them.
type toaster struct {
	notifier Notifier
	logger   zerolog.Logger
}

// info shows a persistent toast and returns its id so a later toast can replace it.
func (t *toaster) info(sid uuid.UUID, target, message string) string {
	id := uuid.NewString()
	t.send(sid, ws.TypeNotification, ws.NotificationPayload{
		ID: id, Message: message, Kind: ws.KindInfo, Target: target,
	})
	return id
}

func (t *toaster) success(sid uuid.UUID, target, message, replaces string) {
	t.send(sid, ws.TypeNotification, ws.NotificationPayload{
		ID: uuid.NewString(), Message: message, Kind: ws.KindSuccess, Target: target,
		DurationMs: ToastDurationMs, Replaces: replaces,
	})
}

func (t *toaster) fail(sid uuid.UUID, target, message, replaces string) {
	t.send(sid, ws.TypeNotification, ws.NotificationPayload{
		ID: uuid.NewString(), Message: message, Kind: ws.KindError, Target: target,
		DurationMs: ToastDurationMs, Replaces: replaces,
	})
}

func (t *toaster) paperUpdated(sid uuid.UUID, reason string) {
	t.send(sid, ws.TypePaperUpdated, ws.PaperUpdatedPayload{Reason: reason})
}

func (t *toaster) send(sid uuid.UUID, msgType string, payload any) {
	if t.notifier == nil {
		return
	}
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		t.logger.Warn().Err(err).Msg("encode notification")
		return
	}
	if err := t.notifier.SendToSession(sid, msg); err != nil {
		t.logger.Debug().Err(err).Str("session", sid.String()).Msg("notification not delivered")
	}
}
