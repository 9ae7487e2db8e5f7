// Package correlation propagates request_id, correlation_id, and
// session_id across a single request's goroutine using context.Context —
// Go's mechanism for carrying values across suspension points within one
// call tree without leaking across unrelated goroutines.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	correlationIDKey
	sessionIDKey
)

// NewID generates an opaque, globally-unique identifier. It is not a UUID
// on purpose — callers that need RFC 4122 shape use google/uuid directly;
// this is for the cheap, high-frequency case of stamping a request.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the platform is broken; a predictable
		// fallback is safer than crashing the request path.
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(b[:])
}

// WithRequestID returns a context carrying id as the scoped request_id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the scoped request_id, or "" if unset.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithCorrelationID returns a context carrying id as the scoped correlation_id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the scoped correlation_id, or "" if unset.
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// WithSessionID returns a context carrying id as the scoped session_id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID returns the scoped session_id, or "" if unset.
func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// NewStreamScope generates a fresh (session_id, correlation_id) pair for a
// long-lived streaming connection and returns a context carrying both.
func NewStreamScope(ctx context.Context) (context.Context, sessionAndCorrelation) {
	sc := sessionAndCorrelation{SessionID: NewID(), CorrelationID: NewID()}
	ctx = WithSessionID(ctx, sc.SessionID)
	ctx = WithCorrelationID(ctx, sc.CorrelationID)
	return ctx, sc
}

// sessionAndCorrelation is the pair returned by NewStreamScope.
type sessionAndCorrelation struct {
	SessionID     string
	CorrelationID string
}
