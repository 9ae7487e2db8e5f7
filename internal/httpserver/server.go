// Package httpserver mounts the vectorAIz control-plane HTTP surface:
// liveness/deep health, the issue feed, the diagnostic bundle endpoint, and
// system info — wired with correlation, structured-error, metrics, and
// bearer-auth middleware.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aidotmarket/vectoraiz-sub002/internal/auth"
	"github.com/aidotmarket/vectoraiz-sub002/internal/config"
	"github.com/aidotmarket/vectoraiz-sub002/internal/correlation"
	"github.com/aidotmarket/vectoraiz-sub002/internal/diagnostics"
	"github.com/aidotmarket/vectoraiz-sub002/internal/health"
	"github.com/aidotmarket/vectoraiz-sub002/internal/issues"
	"github.com/aidotmarket/vectoraiz-sub002/internal/telemetry"
	"github.com/aidotmarket/vectoraiz-sub002/internal/verrors"
)

// BundleRateLimitKey namespaces the global diagnostic-bundle rate limit —
// there is exactly one bucket, not one per caller, per the design's
// documented 1/min *global* limit.
const BundleRateLimitKey = "diagnostics_bundle_global"

// Deps collects every component the HTTP surface wires together.
type Deps struct {
	Config        *config.Config
	Logger        *slog.Logger
	Registry      *verrors.Registry
	Prober        *health.Prober
	IssueTracker  *issues.Tracker
	Bundler       *diagnostics.Bundler
	BundleLimiter auth.Limiter
	Authenticator *auth.BearerAuthenticator // nil in standalone mode: auth is skipped
	MetricsReg    *prometheus.Registry
	Version       string
	Features      map[string]bool
}

// Server holds the mounted chi router and the dependencies its handlers
// close over.
type Server struct {
	Router *chi.Mux
	deps   Deps
}

// NewServer builds the router and mounts every route described in the
// design's external-interfaces section.
func NewServer(d Deps) *Server {
	s := &Server{Router: chi.NewRouter(), deps: d}

	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.Config.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	s.Router.Use(recoverer(d.Logger))
	s.Router.Use(correlation.Middleware(d.Logger))
	s.Router.Use(Metrics)

	s.Router.Get("/health", s.handleHealth)
	s.Router.Get("/system/info", s.handleSystemInfo)
	s.Router.Get("/system/mode", s.handleSystemMode)
	s.Router.Handle("/metrics", promhttp.HandlerFor(d.MetricsReg, promhttp.HandlerOpts{}))

	s.Router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Authenticator, d.Registry, d.Logger))
		r.Get("/health/deep", s.handleHealthDeep)
		r.Get("/health/issues", s.handleHealthIssues)
		r.Post("/diagnostics/bundle", s.handleDiagnosticsBundle)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// handleHealth serves the unauthenticated liveness check: no network calls.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, s.deps.Prober.Cheap(s.deps.Config.ServiceName))
}

// handleHealthDeep runs every registered probe concurrently and reports the
// aggregated status.
func (s *Server) handleHealthDeep(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Prober.Deep(r.Context())
	Respond(w, http.StatusOK, report)
}

// handleHealthIssues returns the currently active tracked issues.
func (s *Server) handleHealthIssues(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]any{
		"issues": s.deps.IssueTracker.GetActiveIssues(),
	})
}

// handleDiagnosticsBundle enforces the global 1/min rate limit, generates
// the bundle under its own bounded context, and streams it as a zip
// attachment. A budget overrun surfaces as a plain 504 — it is a timeout,
// not a generation failure — while any other collection error surfaces as
// VAI-SYS-004 through the registry.
func (s *Server) handleDiagnosticsBundle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.deps.BundleLimiter != nil {
		res, err := s.deps.BundleLimiter.Check(ctx, BundleRateLimitKey)
		if err != nil {
			s.deps.Logger.Error("diagnostics bundle rate limit check failed", "error", err)
		} else if !res.Allowed {
			telemetry.DiagnosticBundlesTotal.WithLabelValues("rate_limited").Inc()
			verrors.Handle(s.deps.Registry, s.deps.Logger, w, verrors.New("VAI-SYS-003", "diagnostic bundle rate limited", nil))
			return
		}
		if err := s.deps.BundleLimiter.Record(ctx, BundleRateLimitKey); err != nil {
			s.deps.Logger.Error("diagnostics bundle rate limit record failed", "error", err)
		}
	}

	bundleCtx, cancel := context.WithTimeout(ctx, diagnostics.GlobalBudget)
	defer cancel()

	type result struct {
		archive []byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		archive, err := s.deps.Bundler.Generate(bundleCtx)
		done <- result{archive, err}
	}()

	select {
	case <-bundleCtx.Done():
		telemetry.DiagnosticBundlesTotal.WithLabelValues("timeout").Inc()
		w.WriteHeader(http.StatusGatewayTimeout)
		return
	case res := <-done:
		if res.err != nil {
			telemetry.DiagnosticBundlesTotal.WithLabelValues("error").Inc()
			verrors.Handle(s.deps.Registry, s.deps.Logger, w, verrors.New("VAI-SYS-004", res.err.Error(), nil))
			return
		}
		telemetry.DiagnosticBundlesTotal.WithLabelValues("ok").Inc()
		filename := fmt.Sprintf("%s-diagnostics-%s.zip", s.deps.Config.ServiceName, time.Now().UTC().Format("20060102T150405Z"))
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.archive)
	}
}

// handleSystemInfo and handleSystemMode both report the same unauthenticated
// surface — mode, version, and the feature flags this process was wired
// with — under the two paths the design names separately.
func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, s.systemInfo())
}

func (s *Server) handleSystemMode(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, s.systemInfo())
}

func (s *Server) systemInfo() map[string]any {
	return map[string]any{
		"mode":     s.deps.Config.Mode,
		"version":  s.deps.Version,
		"features": s.deps.Features,
	}
}

// recoverer is the catch-all handler for unhandled panics: it logs at ERROR
// with the recovered value and responds with the generic 500 body, never
// leaking the panic's message to the caller.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("unhandled panic in http handler", "panic", rec, "path", r.URL.Path)
					verrors.HandleUnexpected(logger, w, fmt.Errorf("panic: %v", rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
