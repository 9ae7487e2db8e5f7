package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aidotmarket/vectoraiz-sub002/internal/verrors"
)

// Middleware requires a valid "Authorization: Bearer <key>" header,
// checked against authenticator. A missing or invalid key raises
// VAI-SEC-001 through the structured error registry. Pass a nil
// authenticator to mount a permissive no-auth middleware (standalone mode).
func Middleware(authenticator *BearerAuthenticator, registry *verrors.Registry, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authenticator == nil {
				next.ServeHTTP(w, r)
				return
			}

			rawKey := bearerToken(r.Header.Get("Authorization"))
			if rawKey == "" || !authenticator.Authenticate(rawKey) {
				verrors.Handle(registry, logger, w, verrors.New("VAI-SEC-001", "missing or invalid bearer token", nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
