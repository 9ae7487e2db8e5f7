package diagnostics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"regexp"
	"runtime"
	"time"

	"github.com/aidotmarket/vectoraiz-sub002/internal/health"
	"github.com/aidotmarket/vectoraiz-sub002/internal/issues"
	"github.com/aidotmarket/vectoraiz-sub002/internal/logging"
	"github.com/aidotmarket/vectoraiz-sub002/internal/verrors"
)

// HealthCollector re-invokes the deep probe and returns its body.
func HealthCollector(prober *health.Prober) Collector {
	return Collector{
		Name: "health",
		Collect: func(ctx context.Context) (map[string]any, error) {
			report := prober.Deep(ctx)
			return map[string]any{
				"status":     report.Status,
				"checked_at": report.CheckedAt,
				"version":    report.Version,
				"uptime_s":   report.UptimeS,
				"components": report.Components,
			}, nil
		},
	}
}

// ConfigCollector produces the full configuration snapshot, redacted by
// the key-based rules, so secrets never leave the process in a bundle.
func ConfigCollector(snapshot func() map[string]any) Collector {
	return Collector{
		Name: "config",
		Collect: func(ctx context.Context) (map[string]any, error) {
			return logging.RedactConfig(snapshot()), nil
		},
	}
}

// LogCollector reads up to 1000 entries from the ring buffer and redacts
// each one.
func LogCollector(ring *logging.RingBuffer) Collector {
	return Collector{
		Name: "logs",
		Collect: func(ctx context.Context) (map[string]any, error) {
			entries := ring.GetEntries(1000)
			redacted := make([]map[string]any, len(entries))
			for i, e := range entries {
				redacted[i] = logging.RedactLogEntry(e)
			}
			return map[string]any{"count": len(redacted), "entries": redacted}, nil
		},
	}
}

// hashedHostID returns a truncated SHA-256 of the hostname — never the raw
// hostname itself.
func hashedHostID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	sum := sha256.Sum256([]byte(hostname))
	return hex.EncodeToString(sum[:])[:12]
}

// SystemCollector reports process/runtime/OS facts plus a hashed host id —
// never the raw hostname.
func SystemCollector(appVersion string, startedAt time.Time, diskFreeGB, diskTotalGB func() (float64, float64, error), memTotalMB, memAvailMB func() (float64, float64, error)) Collector {
	return Collector{
		Name: "system",
		Collect: func(ctx context.Context) (map[string]any, error) {
			data := map[string]any{
				"go_version":       runtime.Version(),
				"os":               runtime.GOOS,
				"architecture":     runtime.GOARCH,
				"host_id":          hashedHostID(),
				"cpu_count":        runtime.NumCPU(),
				"uptime_s":         time.Since(startedAt).Seconds(),
				"vectoraiz_version": appVersion,
			}
			if free, total, err := diskFreeGB(); err == nil {
				data["disk_free_gb"] = free
				data["disk_total_gb"] = total
			}
			if avail, total, err := memAvailMB(); err == nil {
				data["memory_available_mb"] = avail
				data["memory_total_mb"] = total
			}
			return data, nil
		},
	}
}

// QdrantCollector performs lightweight vector-store introspection; a
// connection failure is isolated to this collector via SafeCollect.
func QdrantCollector(listCollections func(ctx context.Context) ([]string, error)) Collector {
	return Collector{
		Name: "qdrant",
		Collect: func(ctx context.Context) (map[string]any, error) {
			cols, err := listCollections(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"collection_count": len(cols), "collections": cols}, nil
		},
	}
}

// DatabaseCollector reports the relational store's backend and a
// best-effort migration version.
func DatabaseCollector(backend string, migrationVersion func(ctx context.Context) (string, error)) Collector {
	return Collector{
		Name: "database",
		Collect: func(ctx context.Context) (map[string]any, error) {
			result := map[string]any{"backend": backend}
			version, err := migrationVersion(ctx)
			if err != nil {
				result["migration_version"] = nil
				result["migration_error"] = "migration version table not found"
			} else {
				result["migration_version"] = version
			}
			return result, nil
		},
	}
}

// ErrorCollector dumps the full registry (codes and metadata, never
// internal detail) plus the most recent 100 ERROR/CRITICAL log entries.
func ErrorCollector(registry *verrors.Registry, ring *logging.RingBuffer) Collector {
	return Collector{
		Name: "errors",
		Collect: func(ctx context.Context) (map[string]any, error) {
			codes := registry.AllCodes()
			dump := make([]map[string]any, 0, len(codes))
			for _, code := range codes {
				e := registry.Get(code)
				if e == nil {
					continue
				}
				dump = append(dump, map[string]any{
					"code":         e.Code,
					"domain":       e.Domain,
					"title":        e.Title,
					"severity":     e.Severity,
					"retryable":    e.Retryable,
					"http_status":  e.HTTPStatus,
					"safe_message": e.SafeMessage,
				})
			}

			all := ring.GetEntries(1000)
			var errorEntries []map[string]any
			for _, e := range all {
				level, _ := e["level"].(string)
				if level == "ERROR" || level == "CRITICAL" {
					errorEntries = append(errorEntries, logging.RedactLogEntry(e))
				}
			}
			if len(errorEntries) > 100 {
				errorEntries = errorEntries[len(errorEntries)-100:]
			}

			return map[string]any{
				"registry": map[string]any{
					"schema_version": registry.SchemaVersion(),
					"total_codes":    registry.Len(),
					"codes":          dump,
				},
				"recent_errors": map[string]any{
					"count":   len(errorEntries),
					"entries": errorEntries,
				},
			}, nil
		},
	}
}

// IssueCollector returns the current active issue set.
func IssueCollector(tracker *issues.Tracker) Collector {
	return Collector{
		Name: "issues",
		Collect: func(ctx context.Context) (map[string]any, error) {
			active := tracker.GetActiveIssues()
			return map[string]any{"active_count": len(active), "issues": active}, nil
		},
	}
}

// ProcessInfo describes one tracked background task.
type ProcessInfo struct {
	Name      string `json:"name"`
	Done      bool   `json:"done"`
	Cancelled bool   `json:"cancelled"`
}

// ProcessCollector reports the set of named background tasks the wiring
// layer is tracking, plus the current goroutine count as a sanity figure.
func ProcessCollector(snapshot func() []ProcessInfo) Collector {
	return Collector{
		Name: "processes",
		Collect: func(ctx context.Context) (map[string]any, error) {
			procs := snapshot()
			return map[string]any{
				"task_count":      len(procs),
				"tasks":           procs,
				"goroutine_count": runtime.NumGoroutine(),
			}, nil
		},
	}
}

var controlCharPattern = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)

// SanitizeLabel strips control characters and caps length at 255 — used
// anywhere an operator-supplied label reaches a diagnostic output.
func SanitizeLabel(label string) string {
	if label == "" {
		return ""
	}
	sanitized := controlCharPattern.ReplaceAllString(label, "")
	if len(sanitized) > 255 {
		sanitized = sanitized[:255]
	}
	return sanitized
}

// ConnectivityTokenSummary is a sanitized, secret-free view of one
// external API token.
type ConnectivityTokenSummary struct {
	ID           string     `json:"id"`
	Label        string     `json:"label"`
	IsActive     bool       `json:"is_active"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	RequestCount int64      `json:"request_count"`
}

// ConnectivityCollector reports external-token summaries (labels
// sanitized, never raw secrets), active counts, a metrics snapshot, and a
// recent-audit slice from the log buffer.
func ConnectivityCollector(enabled bool, bindHost string, tokens func() ([]ConnectivityTokenSummary, error), metricsSnapshot func() (map[string]any, error), ring *logging.RingBuffer) Collector {
	return Collector{
		Name: "connectivity",
		Collect: func(ctx context.Context) (map[string]any, error) {
			result := map[string]any{"enabled": enabled, "bind_host": bindHost}

			if tokens != nil {
				tokenList, err := tokens()
				if err != nil {
					result["tokens_error"] = "token listing failed"
				} else {
					active := 0
					summaries := make([]map[string]any, 0, len(tokenList))
					for _, t := range tokenList {
						if t.IsActive {
							active++
						}
						summaries = append(summaries, map[string]any{
							"id":            t.ID,
							"label":         SanitizeLabel(t.Label),
							"is_active":     t.IsActive,
							"last_used_at":  t.LastUsedAt,
							"request_count": t.RequestCount,
						})
					}
					result["token_count"] = len(tokenList)
					result["active_token_count"] = active
					result["tokens"] = summaries
				}
			}

			if metricsSnapshot != nil {
				if snap, err := metricsSnapshot(); err == nil {
					result["metrics"] = snap
				} else {
					result["metrics_error"] = "metrics snapshot failed"
				}
			}

			all := ring.GetEntries(500)
			var audit []map[string]any
			for _, e := range all {
				if tag, _ := e["audit"].(string); tag == "connectivity" {
					audit = append(audit, logging.RedactLogEntry(e))
				}
			}
			if len(audit) > 20 {
				audit = audit[len(audit)-20:]
			}
			result["recent_audit_entries"] = audit

			return result, nil
		},
	}
}
