package verrors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"

	"github.com/aidotmarket/vectoraiz-sub002/internal/serial"
)

// errorBody is the sanitized envelope sent to clients. It never carries
// InternalDetail or the context map — only what the registry declares safe.
type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code                string   `json:"code"`
	Title               string   `json:"title"`
	Message             string   `json:"message"`
	Retryable           bool     `json:"retryable"`
	UserActionRequired  bool     `json:"user_action_required"`
	Remediation         []string `json:"remediation"`
}

// Handle looks up se in the registry, logs a record at the entry's declared
// severity, and writes the sanitized JSON response. If the code is
// unregistered it falls back to a synthetic 500 and logs at ERROR — an
// unknown code reaching this point is itself an incident.
func Handle(registry *Registry, logger *slog.Logger, w http.ResponseWriter, se *StructuredError) {
	entry := registry.Get(se.Code)
	if entry == nil {
		logger.Error("unregistered error code surfaced to middleware",
			"error.code", se.Code,
			"error.message", se.InternalDetail,
		)
		writeBody(w, 500, errorBody{Error: errorPayload{
			Code:               se.Code,
			Title:              "Internal error",
			Message:            "An unexpected error occurred.",
			Retryable:          false,
			UserActionRequired: false,
			Remediation:        nil,
		}})
		return
	}

	logFields := make([]any, 0, 8+2*len(se.Context))
	logFields = append(logFields,
		"error.code", entry.Code,
		"error.kind", "StructuredError",
		"error.message", se.InternalDetail,
		"error.message_safe", entry.SafeMessage,
		"error.retryable", entry.Retryable,
		"error.user_action_required", entry.UserActionRequired,
	)
	for k, v := range se.Context {
		logFields = append(logFields, "error.ctx."+k, v)
	}
	logAtSeverity(logger, entry.Severity, entry.Title, logFields...)

	writeBody(w, entry.HTTPStatus, errorBody{Error: errorPayload{
		Code:               entry.Code,
		Title:              entry.Title,
		Message:            entry.SafeMessage,
		Retryable:          entry.Retryable,
		UserActionRequired: entry.UserActionRequired,
		Remediation:        entry.Remediation,
	}})
}

// HandleUnexpected writes the last-resort 500 body for any error that is
// not a *StructuredError — a genuinely unhandled failure. It logs the raw
// error at ERROR and never puts err.Error() in the response.
func HandleUnexpected(logger *slog.Logger, w http.ResponseWriter, err error) {
	logger.Error("unhandled internal error", "error", err)
	writeBody(w, http.StatusInternalServerError, map[string]any{
		"detail": "Internal Server Error",
	})
}

// Middleware adapts a chi-style handler that returns an error into a plain
// http.Handler. It type-switches the returned error into the response
// shapes documented per error kind — *StructuredError goes through Handle,
// the three serial-package metering errors each get their own status and
// JSON body — and falls back to the generic 500 for anything else,
// including recovered panics (logged with a stack trace, since a panic
// reaching here is never expected).
func Middleware(registry *Registry, logger *slog.Logger, registerBaseURL string, next func(w http.ResponseWriter, r *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic in http handler", "panic", rec, "stack", string(debug.Stack()))
				HandleUnexpected(logger, w, fmt.Errorf("panic: %v", rec))
			}
		}()

		err := next(w, r)
		if err == nil {
			return
		}

		switch e := err.(type) {
		case *StructuredError:
			Handle(registry, logger, w, e)
		case serial.CreditExhaustedError:
			handleCreditExhausted(logger, w, e, registerBaseURL)
		case serial.ActivationRequiredError:
			handleActivationRequired(logger, w, e)
		case serial.UnprovisionedError:
			handleUnprovisioned(logger, w, e)
		default:
			HandleUnexpected(logger, w, err)
		}
	})
}

// handleCreditExhausted writes the 402 response from spec.md §7/§8: the
// reason token, both remaining balances, payment_enabled, and a
// register_url derived from the serial when one is known.
func handleCreditExhausted(logger *slog.Logger, w http.ResponseWriter, e serial.CreditExhaustedError, registerBaseURL string) {
	errCode := "setup_credits_exhausted"
	if e.Category == "data" {
		errCode = "data_credits_exhausted"
	}

	registerURL := registerBaseURL
	if e.Serial != "" {
		registerURL = fmt.Sprintf("%s?serial=%s", registerBaseURL, url.QueryEscape(e.Serial))
	}

	logger.Warn("credit exhausted",
		"category", e.Category,
		"reason", e.Reason,
		"serial", e.Serial,
	)

	writeBody(w, http.StatusPaymentRequired, map[string]any{
		"error":               errCode,
		"message":             fmt.Sprintf("You've used your free %s credits.", e.Category),
		"setup_remaining_usd": e.SetupRemainingUSD,
		"data_remaining_usd":  e.RemainingUSD,
		"payment_enabled":     e.PaymentEnabled,
		"register_url":        registerURL,
	})
}

// handleActivationRequired writes the 403 response for a serial that is
// provisioned but not (or no longer) activated.
func handleActivationRequired(logger *slog.Logger, w http.ResponseWriter, e serial.ActivationRequiredError) {
	logger.Warn("activation required", "message", e.Error())
	writeBody(w, http.StatusForbidden, map[string]any{
		"error":   "activation_required",
		"message": e.Error(),
	})
}

// handleUnprovisioned writes the 403 response for a process with no
// serial provisioned at all.
func handleUnprovisioned(logger *slog.Logger, w http.ResponseWriter, e serial.UnprovisionedError) {
	logger.Warn("serial required")
	writeBody(w, http.StatusForbidden, map[string]any{
		"error":   "serial_required",
		"message": e.Error(),
	})
}

func logAtSeverity(logger *slog.Logger, severity, msg string, fields ...any) {
	switch severity {
	case "DEBUG":
		logger.Debug(msg, fields...)
	case "INFO":
		logger.Info(msg, fields...)
	case "WARN":
		logger.Warn(msg, fields...)
	case "CRITICAL":
		logger.Error(msg, fields...)
	default: // ERROR and anything unrecognized
		logger.Error(msg, fields...)
	}
}

func writeBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
