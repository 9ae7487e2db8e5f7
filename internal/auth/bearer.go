// Package auth implements the single internal-API-key bearer check that
// gates authenticated vectorAIz endpoints in connected mode, plus the
// generic rate limiter reused for the diagnostic bundle's global 1/min
// limit.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoKeyConfigured is returned by NewBearerAuthenticator when hash is
// empty — connected mode requires an internal API key, but the zero value
// is still constructible so standalone mode can skip auth entirely.
var ErrNoKeyConfigured = errors.New("auth: no internal API key hash configured")

// BearerAuthenticator validates a single bearer token against one bcrypt
// hash loaded from configuration. There is no per-caller identity here —
// vectorAIz has exactly one internal API key, not a multi-tenant key store.
type BearerAuthenticator struct {
	hash []byte
}

// NewBearerAuthenticator wraps the configured bcrypt hash. An empty hash is
// valid and produces an authenticator that rejects every request.
func NewBearerAuthenticator(hash string) *BearerAuthenticator {
	return &BearerAuthenticator{hash: []byte(hash)}
}

// Authenticate reports whether rawKey matches the configured hash.
func (a *BearerAuthenticator) Authenticate(rawKey string) bool {
	if len(a.hash) == 0 || rawKey == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.hash, []byte(rawKey)) == nil
}
