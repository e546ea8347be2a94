package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/flarerag-go/internal/logging"
)

// authMiddleware requires "Authorization: Bearer <apiKey>" on every request
// it wraps. An empty apiKey disables the check; New logs that once at
// startup. Rejections are 401 with a JSON error body and a Bearer challenge.
// The presented token is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		switch {
		case !ok:
			unauthorized(w, r, `Bearer realm="flarerag"`, "authorization required")
		case subtle.ConstantTimeCompare([]byte(token), want) != 1:
			unauthorized(w, r, `Bearer realm="flarerag", error="invalid_token"`, "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, challenge, msg string) {
	log := logging.FromContext(r.Context())
	log.Warn("auth: request rejected", slog.String("path", r.URL.Path), slog.String("reason", msg))
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSON(w, log, http.StatusUnauthorized, errorResponse{Error: msg})
}

// bearerToken extracts the token from an Authorization header using the
// Bearer scheme (case-insensitive). ok is false when the header is absent,
// uses another scheme, or carries an empty token.
func bearerToken(r *http.Request) (token string, ok bool) {
	scheme, rest, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(rest)
	return token, token != ""
}
