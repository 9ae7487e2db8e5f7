package verrors

import "maps"

// StructuredError is the runtime value a handler raises when it wants a
// registry-backed, sanitized HTTP response. InternalDetail never reaches an
// external response or an audit record — it exists for logs only.
type StructuredError struct {
	Code           string
	InternalDetail string
	Context        map[string]any
}

// New constructs a StructuredError. It panics if code does not satisfy
// CodePattern — construction-time validation is the contract in §4.B, and a
// malformed literal code is a programmer error, not a runtime condition.
func New(code string, internalDetail string, context map[string]any) *StructuredError {
	if !CodePattern.MatchString(code) {
		panic("verrors: malformed error code: " + code)
	}
	ctx := make(map[string]any, len(context))
	maps.Copy(ctx, context)
	return &StructuredError{
		Code:           code,
		InternalDetail: internalDetail,
		Context:        ctx,
	}
}

// Error satisfies the error interface using the internal detail, so that
// %v/%s formatting and log.Error(err) calls never leak into a response body
// by accident — only the middleware is allowed to render the safe form.
func (e *StructuredError) Error() string {
	if e.InternalDetail != "" {
		return e.Code + ": " + e.InternalDetail
	}
	return e.Code
}
