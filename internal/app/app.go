// Package app wires every vectorAIz component together: structured
// logging, the error registry, issue tracking, resource guards, the
// offline meter queue, the serial activation lifecycle, and the HTTP
// control-plane surface described by the design.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aidotmarket/vectoraiz-sub002/internal/auth"
	"github.com/aidotmarket/vectoraiz-sub002/internal/config"
	"github.com/aidotmarket/vectoraiz-sub002/internal/diagnostics"
	"github.com/aidotmarket/vectoraiz-sub002/internal/health"
	"github.com/aidotmarket/vectoraiz-sub002/internal/httpserver"
	"github.com/aidotmarket/vectoraiz-sub002/internal/issues"
	"github.com/aidotmarket/vectoraiz-sub002/internal/logging"
	"github.com/aidotmarket/vectoraiz-sub002/internal/meterqueue"
	"github.com/aidotmarket/vectoraiz-sub002/internal/platform"
	"github.com/aidotmarket/vectoraiz-sub002/internal/resource"
	"github.com/aidotmarket/vectoraiz-sub002/internal/serial"
	"github.com/aidotmarket/vectoraiz-sub002/internal/telemetry"
	"github.com/aidotmarket/vectoraiz-sub002/internal/verrors"
	"github.com/aidotmarket/vectoraiz-sub002/pkg/slack"
)

// Version is the running build's version string, overridable at build
// time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

// shutdownGrace bounds how long Run waits for the HTTP server to drain
// once ctx is cancelled.
const shutdownGrace = 10 * time.Second

// Run builds every component, serves the HTTP control plane until ctx is
// cancelled, then tears everything down in reverse order.
func Run(ctx context.Context, cfg *config.Config) error {
	logger, ring := logging.NewLogger(logging.Config{
		Level:        cfg.LogLevel,
		Format:       cfg.LogFormat,
		Service:      cfg.ServiceName,
		Version:      Version,
		LogDir:       cfg.LogDir,
		RingCapacity: cfg.RingBufferSize,
	})
	slog.SetDefault(logger)
	logging.EnsureStderrFallback(logger)

	registry := verrors.NewRegistry()
	if err := registry.LoadDefault(); err != nil {
		return fmt.Errorf("loading error registry: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	lock, err := acquireProcessLock(filepath.Join(cfg.DataDir, "vectoraiz.lock"))
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.release(); err != nil {
			logger.Error("releasing process lock", "error", err)
		}
	}()

	issueAutoClear, err := time.ParseDuration(cfg.IssueAutoClearWindow)
	if err != nil {
		return fmt.Errorf("parsing issue_auto_clear_window: %w", err)
	}
	tracker := issues.New(cfg.IssueTrackerCapacity, issueAutoClear, filepath.Join(cfg.DataDir, "issues.json"), logger)
	tracker.Reload()
	defer tracker.Persist()

	startedAt := time.Now()

	dbPool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	if dbPool != nil {
		defer dbPool.Close()
		if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsGlobalDir); err != nil {
			return fmt.Errorf("running global migrations: %w", err)
		}
	}

	redisClient, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	keystorePath := filepath.Join(cfg.DataDir, "keystore.json")
	passphraseSet := cfg.KeystorePassphrase != ""

	resourceInterval, err := time.ParseDuration(cfg.ResourceGuardInterval)
	if err != nil {
		return fmt.Errorf("parsing resource_guard_interval: %w", err)
	}
	notifier := slack.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	guard := resource.New(resource.Thresholds{
		DiskCriticalPercent: cfg.DiskCriticalPercent,
		DiskWarnPercent:     cfg.DiskWarnPercent,
		MemCriticalPercent:  cfg.MemCriticalPercent,
		MemWarnPercent:      cfg.MemWarnPercent,
	}, resourceInterval, logger, tracker, notifier)

	meterQueue, err := meterqueue.Open(filepath.Join(cfg.DataDir, "meter_queue.ndjson"))
	if err != nil {
		return fmt.Errorf("opening meter queue: %w", err)
	}
	defer meterQueue.Close()

	serialStore, err := serial.Open(filepath.Join(cfg.DataDir, "serial_state.json"))
	if err != nil {
		return fmt.Errorf("opening serial state store: %w", err)
	}

	requestTimeout, err := time.ParseDuration(cfg.SerialRequestTimeout)
	if err != nil {
		return fmt.Errorf("parsing serial_request_timeout: %w", err)
	}
	serialClient := serial.NewClient(cfg.SerialAuthorityURL, requestTimeout)

	resourceCtx, resourceCancel := context.WithCancel(ctx)

	var activationCancel context.CancelFunc
	var activationCtx context.Context
	if cfg.Connected() {
		if cfg.InternalAPIKeyHash == "" {
			logger.Error("connected mode requires VECTORAIZ_INTERNAL_API_KEY_HASH to be set; refusing to start unauthenticated")
			return auth.ErrNoKeyConfigured
		}

		retryInterval, err := time.ParseDuration(cfg.ActivationRetryInterval)
		if err != nil {
			return fmt.Errorf("parsing activation_retry_interval: %w", err)
		}
		pollInterval, err := time.ParseDuration(cfg.StatusPollInterval)
		if err != nil {
			return fmt.Errorf("parsing status_poll_interval: %w", err)
		}
		instanceID, err := loadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("establishing instance id: %w", err)
		}

		activationManager := serial.NewManager(serialStore, serialClient, logger, retryInterval, pollInterval, Version, instanceID, meterQueue)

		activationCtx, activationCancel = context.WithCancel(ctx)
		go activationManager.Run(activationCtx)
	}

	var bundleLimiter auth.Limiter
	if redisClient != nil {
		bundleLimiter = auth.NewRedisLimiter(redisClient, 1, time.Minute, "vai_bundle")
	} else {
		bundleLimiter = auth.NewLocalLimiter(1, time.Minute)
	}

	var authenticator *auth.BearerAuthenticator
	if cfg.InternalAPIKeyHash != "" {
		authenticator = auth.NewBearerAuthenticator(cfg.InternalAPIKeyHash)
	}

	probeTimeout, err := time.ParseDuration(cfg.ProbeTimeout)
	if err != nil {
		return fmt.Errorf("parsing health_probe_timeout: %w", err)
	}
	probes := []health.Probe{
		health.VectorStoreProbe(nil),
		health.RelationalStoreProbe(dbPool),
		health.LLMProviderProbe(false, "none"),
		health.DeviceCryptoProbe(passphraseSet, keystorePath),
		health.DiskProbe(guard.FreeDiskPercent),
		health.MemoryProbe(guard.AvailableMemoryPercent),
	}
	prober := health.New(probes, probeTimeout, Version, startedAt)

	processSnapshot := func() []diagnostics.ProcessInfo {
		procs := []diagnostics.ProcessInfo{
			{
				Name:      "resource_guard",
				Done:      resourceCtx.Err() != nil,
				Cancelled: errors.Is(resourceCtx.Err(), context.Canceled),
			},
		}
		if activationCtx != nil {
			procs = append(procs, diagnostics.ProcessInfo{
				Name:      "activation_manager",
				Done:      activationCtx.Err() != nil,
				Cancelled: errors.Is(activationCtx.Err(), context.Canceled),
			})
		}
		return procs
	}

	bundler := &diagnostics.Bundler{
		AppVersion: Version,
		Ring:       ring,
		Collectors: []diagnostics.Collector{
			diagnostics.HealthCollector(prober),
			diagnostics.ConfigCollector(cfg.Snapshot),
			diagnostics.SystemCollector(Version, startedAt,
				func() (float64, float64, error) {
					pct, err := guard.FreeDiskPercent(context.Background())
					return pct, 100, err
				},
				func() (float64, float64, error) {
					pct, err := guard.AvailableMemoryPercent(context.Background())
					return pct, 100, err
				},
			),
			diagnostics.QdrantCollector(func(ctx context.Context) ([]string, error) {
				return nil, errors.New("vector store not configured")
			}),
			diagnostics.DatabaseCollector("postgres", func(ctx context.Context) (string, error) {
				if dbPool == nil {
					return "", errors.New("database not configured")
				}
				var version string
				if err := dbPool.QueryRow(ctx, "select version()").Scan(&version); err != nil {
					return "", err
				}
				return version, nil
			}),
			diagnostics.ErrorCollector(registry, ring),
			diagnostics.IssueCollector(tracker),
			diagnostics.ConnectivityCollector(cfg.Connected(), cfg.Host, func() ([]diagnostics.ConnectivityTokenSummary, error) {
				snap := serialStore.Snapshot()
				if snap.Serial == "" {
					return nil, nil
				}
				return []diagnostics.ConnectivityTokenSummary{{
					ID:       "serial_authority",
					Label:    fmt.Sprintf("serial authority (%s)", snap.LifecycleState),
					IsActive: snap.LifecycleState == serial.Active || snap.LifecycleState == serial.Migrated,
				}}, nil
			}, func() (map[string]any, error) {
				return map[string]any{
					"ingestion_blocked": guard.IngestionBlocked(),
					"meter_queue_depth": meterQueue.Count(),
				}, nil
			}, ring),
			diagnostics.ProcessCollector(processSnapshot),
		},
	}

	metricsReg := prometheus.NewRegistry()
	for _, c := range telemetry.All() {
		metricsReg.MustRegister(c)
	}

	srv := httpserver.NewServer(httpserver.Deps{
		Config:        cfg,
		Logger:        logger,
		Registry:      registry,
		Prober:        prober,
		IssueTracker:  tracker,
		Bundler:       bundler,
		BundleLimiter: bundleLimiter,
		Authenticator: authenticator,
		MetricsReg:    metricsReg,
		Version:       Version,
		Features: map[string]bool{
			"connected": cfg.Connected(),
		},
	})

	go guard.Run(resourceCtx)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("vectoraiz listening", "addr", cfg.ListenAddr(), "mode", cfg.Mode)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "error", err)
		}
	case err := <-errCh:
		runErr = err
	}

	resourceCancel()
	if activationCancel != nil {
		activationCancel()
	}

	return runErr
}
