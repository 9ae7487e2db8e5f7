package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment
// variables. Unrecognized variables are ignored by design (env.Parse only
// looks at tagged fields).
type Config struct {
	// Mode selects the operating mode: "standalone" or "connected".
	// In standalone mode the metering guard always allows; in connected
	// mode it consults the serial state machine and authority.
	Mode string `env:"VECTORAIZ_MODE" envDefault:"standalone"`

	// Server
	Host string `env:"VECTORAIZ_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"VECTORAIZ_PORT" envDefault:"8080"`

	// DataDir holds all on-disk state: the serial state file, the issue
	// tracker snapshot, the offline meter queue, and the process lock.
	DataDir string `env:"VECTORAIZ_DATA_DIR" envDefault:"./data"`

	// Logging
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"json"`
	LogDir       string `env:"LOG_DIR" envDefault:""`
	RingBufferSize int  `env:"LOG_RING_BUFFER_SIZE" envDefault:"5000"`

	// Database (external collaborator — owns its own schema/migrations)
	DatabaseURL         string `env:"DATABASE_URL" envDefault:""`
	MigrationsGlobalDir string `env:"MIGRATIONS_GLOBAL_DIR" envDefault:"migrations/global"`

	// Redis (optional accelerator for diagnostic-bundle rate limiting and
	// meter idempotency caching; absent entirely is a supported mode)
	RedisURL string `env:"REDIS_URL" envDefault:""`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Serial authority (connected mode only)
	SerialAuthorityURL string `env:"SERIAL_AUTHORITY_URL" envDefault:"https://authority.vectoraiz.ai"`
	SerialRequestTimeout string `env:"SERIAL_REQUEST_TIMEOUT" envDefault:"10s"`
	ActivationRetryInterval string `env:"ACTIVATION_RETRY_INTERVAL" envDefault:"30s"`
	StatusPollInterval     string `env:"STATUS_POLL_INTERVAL" envDefault:"300s"`
	FailureThreshold        int    `env:"SERIAL_FAILURE_THRESHOLD" envDefault:"5"`
	// OfflineDataFailureThreshold is the cutover documented in spec.md §9:
	// a DATA-category request is allowed offline while
	// consecutive_failures < OfflineDataFailureThreshold (checked *after*
	// record_failure() has already incremented the counter).
	OfflineDataFailureThreshold int `env:"SERIAL_OFFLINE_DATA_FAILURE_THRESHOLD" envDefault:"3"`

	// Internal API key (required in connected mode) gates /health/deep,
	// /health/issues, and /diagnostics/bundle.
	InternalAPIKeyHash string `env:"VECTORAIZ_INTERNAL_API_KEY_HASH" envDefault:""`

	// RegisterBaseURL is the base URL the credit-exhausted error response
	// derives its register_url from (?serial=<serial> appended when known).
	RegisterBaseURL string `env:"VECTORAIZ_REGISTER_BASE_URL" envDefault:"https://ai.market/register"`

	// Keystore passphrase for the device-crypto external collaborator.
	KeystorePassphrase string `env:"VECTORAIZ_KEYSTORE_PASSPHRASE" envDefault:""`

	// Resource guards
	ResourceGuardInterval string  `env:"RESOURCE_GUARD_INTERVAL" envDefault:"60s"`
	DiskCriticalPercent   float64 `env:"DISK_CRITICAL_PERCENT" envDefault:"5"`
	DiskWarnPercent       float64 `env:"DISK_WARN_PERCENT" envDefault:"15"`
	MemCriticalPercent    float64 `env:"MEM_CRITICAL_PERCENT" envDefault:"3"`
	MemWarnPercent        float64 `env:"MEM_WARN_PERCENT" envDefault:"10"`

	// Issue tracker
	IssueTrackerCapacity   int    `env:"ISSUE_TRACKER_CAPACITY" envDefault:"100"`
	IssueAutoClearWindow   string `env:"ISSUE_AUTO_CLEAR_WINDOW" envDefault:"1h"`

	// Diagnostics
	CollectorTimeout string `env:"DIAGNOSTIC_COLLECTOR_TIMEOUT" envDefault:"10s"`
	BundleBudget     string `env:"DIAGNOSTIC_BUNDLE_BUDGET" envDefault:"30s"`
	ProbeTimeout     string `env:"HEALTH_PROBE_TIMEOUT" envDefault:"2s"`
	ProbeLatencyWarnMs int  `env:"HEALTH_PROBE_LATENCY_WARN_MS" envDefault:"250"`

	// Slack (optional — if not set, resource-guard notifications are disabled)
	SlackBotToken     string `env:"SLACK_BOT_TOKEN" envDefault:""`
	SlackAlertChannel string `env:"SLACK_ALERT_CHANNEL" envDefault:""`

	// ServiceName/Version are surfaced in /health, /system/info, and every
	// log record.
	ServiceName string `env:"VECTORAIZ_SERVICE_NAME" envDefault:"vectoraiz"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Connected reports whether the service is running in connected mode, i.e.
// whether the metering guard and activation manager are active at all.
func (c *Config) Connected() bool {
	return c.Mode == "connected"
}

// Snapshot returns the configuration as a plain map for the diagnostics
// bundle's config collector. Secret-shaped fields are included here in
// full; logging.RedactConfig masks them by key name before the bundle is
// ever written to disk.
func (c *Config) Snapshot() map[string]any {
	return map[string]any{
		"mode":                              c.Mode,
		"host":                              c.Host,
		"port":                              c.Port,
		"data_dir":                          c.DataDir,
		"log_level":                         c.LogLevel,
		"log_format":                        c.LogFormat,
		"log_dir":                           c.LogDir,
		"log_ring_buffer_size":              c.RingBufferSize,
		"database_url":                      c.DatabaseURL,
		"migrations_global_dir":             c.MigrationsGlobalDir,
		"redis_url":                         c.RedisURL,
		"cors_allowed_origins":              c.CORSAllowedOrigins,
		"serial_authority_url":              c.SerialAuthorityURL,
		"serial_request_timeout":            c.SerialRequestTimeout,
		"activation_retry_interval":         c.ActivationRetryInterval,
		"status_poll_interval":              c.StatusPollInterval,
		"serial_failure_threshold":          c.FailureThreshold,
		"serial_offline_data_failure_threshold": c.OfflineDataFailureThreshold,
		"internal_api_key_hash":             c.InternalAPIKeyHash,
		"register_base_url":                 c.RegisterBaseURL,
		"keystore_passphrase":               c.KeystorePassphrase,
		"resource_guard_interval":           c.ResourceGuardInterval,
		"disk_critical_percent":             c.DiskCriticalPercent,
		"disk_warn_percent":                 c.DiskWarnPercent,
		"mem_critical_percent":              c.MemCriticalPercent,
		"mem_warn_percent":                  c.MemWarnPercent,
		"issue_tracker_capacity":            c.IssueTrackerCapacity,
		"issue_auto_clear_window":           c.IssueAutoClearWindow,
		"diagnostic_collector_timeout":      c.CollectorTimeout,
		"diagnostic_bundle_budget":          c.BundleBudget,
		"health_probe_timeout":              c.ProbeTimeout,
		"health_probe_latency_warn_ms":      c.ProbeLatencyWarnMs,
		"slack_bot_token":                   c.SlackBotToken,
		"slack_alert_channel":               c.SlackAlertChannel,
		"service_name":                      c.ServiceName,
	}
}
