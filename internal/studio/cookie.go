package studio

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionCookie names the cookie that carries the session id.
const SessionCookie = "studio_session"

type sessionKey struct{}

// SessionMiddleware ensures every request carries a session id, issuing a new one when
// the cookie is missing or unreadable. The cookie is refreshed on each request so it
// expires together with the stored state.
func SessionMiddleware(ttl time.Duration, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sid uuid.UUID
			if c, err := r.Cookie(SessionCookie); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					sid = id
				}
			}
			if sid == uuid.Nil {
				sid = uuid.New()
			}

			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sid.String(),
				Path:     "/",
				MaxAge:   int(ttl / time.Second),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sid)))
		})
	}
}

// WithSession stores a session id in ctx.
func WithSession(ctx context.Context, sid uuid.UUID) context.Context {
	return context.WithValue(ctx, sessionKey{}, sid)
}

// SessionFromContext returns the session id set by SessionMiddleware.
func SessionFromContext(ctx context.Context) (uuid.UUID, bool) {
	sid, ok := ctx.Value(sessionKey{}).(uuid.UUID)
	return sid, ok && sid != uuid.Nil
}
