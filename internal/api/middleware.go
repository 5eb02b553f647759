package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rosa/internal/session"
)

// SessionCookie carries the dashboard session id.
const SessionCookie = "rosa_session"

type ctxKey int

const sessionKey ctxKey = iota

// BearerAuthMiddleware requires "Authorization: Bearer <token>". An empty
// token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionMiddleware attaches the caller's session state. With create, an
// absent or unknown cookie starts and registers a new session. Without it
// the request gets an unregistered empty state and no cookie, so read-only
// traffic never grows the session table.
func (s *Server) sessionMiddleware(create bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var st *session.State
			if c, err := r.Cookie(SessionCookie); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					st, _ = s.deps.Sessions.Get(id)
				}
			}
			switch {
			case st != nil:
				setSessionCookie(w, st)
			case create:
				st = s.deps.Sessions.Create()
				s.deps.Metrics.SessionsActive.Set(float64(s.deps.Sessions.Len()))
				s.logger.Info("session started", "session_id", st.ID)
				setSessionCookie(w, st)
			default:
				st = s.deps.Sessions.New()
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, st)))
		})
	}
}

func setSessionCookie(w http.ResponseWriter, st *session.State) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    st.ID.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionFrom(ctx context.Context) *session.State {
	st, _ := ctx.Value(sessionKey).(*session.State)
	return st
}
