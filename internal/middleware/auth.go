package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/togetherplan/internal/auth"
	"github.com/dukerupert/togetherplan/internal/model"
)

// SessionCookieName is the cookie the auth service sets alongside bearer tokens.
const SessionCookieName = "togetherplan_session"

// SessionValidator resolves a raw token to a live session.
type SessionValidator interface {
	GetByToken(ctx context.Context, token string) (*model.Session, error)
}

// RequireAuth validates the bearer token (or session cookie) and populates
// AuthContext. Requests without a live session get a 401 JSON body.
func RequireAuth(sessions SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				unauthenticated(w)
				return
			}

			sess, err := sessions.GetByToken(r.Context(), token)
			if err != nil {
				logger.Error("validate session", "error", err)
				writeMessage(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if sess == nil {
				unauthenticated(w)
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{
				UserID:    sess.UserID,
				SessionID: sess.ID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func unauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="togetherplan"`)
	writeMessage(w, http.StatusUnauthorized, "unauthenticated")
}

// writeMessage writes the {"message": ...} body the JSON handlers use.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
