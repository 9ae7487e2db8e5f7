package serial

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aidotmarket/vectoraiz-sub002/internal/meterqueue"
)

// Default intervals for the activation manager's background loop.
const (
	DefaultActivationRetryInterval = 30 * time.Second
	DefaultStatusPollInterval      = 300 * time.Second
)

// Manager owns the one background task per process that drives a serial
// through activation, periodic status polling, and refresh.
type Manager struct {
	store         *Store
	client        *Client
	logger        *slog.Logger
	queue         *meterqueue.Queue
	retryInterval time.Duration
	pollInterval  time.Duration
	appVersion    string
	instanceID    string
	hostname      string
}

// NewManager builds an activation Manager. retryInterval and pollInterval
// fall back to their package defaults when zero. queue is the offline meter
// queue; its depth is logged when a refresh is attempted while it is
// non-empty.
func NewManager(store *Store, client *Client, logger *slog.Logger, retryInterval, pollInterval time.Duration, appVersion, instanceID string, queue *meterqueue.Queue) *Manager {
	if retryInterval <= 0 {
		retryInterval = DefaultActivationRetryInterval
	}
	if pollInterval <= 0 {
		pollInterval = DefaultStatusPollInterval
	}
	hostname, _ := os.Hostname()
	return &Manager{
		store: store, client: client, logger: logger, queue: queue,
		retryInterval: retryInterval, pollInterval: pollInterval,
		appVersion: appVersion, instanceID: instanceID, hostname: hostname,
	}
}

// Run executes the startup reconciliation once, then loops forever on
// the state-dependent tick schedule until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.startupReconcile(ctx)

	for {
		wait := m.nextTick()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		m.safeTick(ctx)
	}
}

func (m *Manager) nextTick() time.Duration {
	switch m.store.Snapshot().LifecycleState {
	case Provisioned:
		return m.retryInterval
	case Active, Degraded:
		return m.pollInterval
	default: // Migrated, Unprovisioned: sleep at the (longer) poll cadence
		return m.pollInterval
	}
}

func (m *Manager) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("activation manager tick panicked", "recover", r)
		}
	}()

	switch m.store.Snapshot().LifecycleState {
	case Provisioned:
		m.attemptActivation(ctx)
	case Active, Degraded:
		m.pollStatus(ctx)
	case Migrated, Unprovisioned:
		// Nothing to do; the next wakeup reassesses state.
	}
}

func (m *Manager) startupReconcile(ctx context.Context) {
	state := m.store.Snapshot()

	switch state.LifecycleState {
	case Unprovisioned, Migrated:
		// Wait for externally-triggered provisioning, or nothing to do.
	case Provisioned:
		m.attemptActivation(ctx)
	case Active:
		if state.LastAppVersion != m.appVersion && state.InstallToken != nil {
			m.refresh(ctx, *state.InstallToken)
		}
		if err := m.store.UpdateAppVersion(m.appVersion); err != nil {
			m.logger.Error("failed to record app version", "error", err)
		}
	}
}

// attemptActivation requires both a serial and a bootstrap token; on
// success it transitions to ACTIVE and records the current app version.
func (m *Manager) attemptActivation(ctx context.Context) {
	state := m.store.Snapshot()
	if state.Serial == "" || state.BootstrapToken == nil {
		m.logger.Warn("activation attempted without serial or bootstrap token")
		return
	}

	result := m.client.Activate(ctx, state.Serial, *state.BootstrapToken, m.instanceID, m.hostname, m.appVersion)
	if result.Success {
		if err := m.store.TransitionToActive(result.InstallToken); err != nil {
			m.logger.Error("failed to persist activation", "error", err)
			return
		}
		if err := m.store.UpdateAppVersion(m.appVersion); err != nil {
			m.logger.Error("failed to record app version after activation", "error", err)
		}
		m.logger.Info("serial activated", "serial", state.Serial)
		return
	}

	if result.StatusCode == 401 {
		if err := m.store.TransitionToUnprovisioned(); err != nil {
			m.logger.Error("failed to transition to unprovisioned", "error", err)
		}
		m.logger.Warn("activation rejected, serial unprovisioned", "serial", state.Serial)
		return
	}

	m.logger.Warn("activation attempt failed, will retry", "serial", state.Serial, "error", result.Error, "status_code", result.StatusCode)
}

// pollStatus polls the authority for the current status, reconciling the
// local state based on the response.
func (m *Manager) pollStatus(ctx context.Context) {
	state := m.store.Snapshot()
	if state.InstallToken == nil {
		return
	}

	result := m.client.Status(ctx, state.Serial, *state.InstallToken)
	if result.Success {
		if err := m.store.RecordSuccess(); err != nil {
			m.logger.Error("failed to record status-poll success", "error", err)
		}
		if err := m.store.UpdateStatusCache(result.Data, time.Now()); err != nil {
			m.logger.Error("failed to update status cache", "error", err)
		}
		if result.Migrated {
			if err := m.store.TransitionToMigrated(""); err != nil {
				m.logger.Error("failed to transition to migrated", "error", err)
			}
		}
		return
	}

	if result.StatusCode == 401 {
		if err := m.store.TransitionToUnprovisioned(); err != nil {
			m.logger.Error("failed to transition to unprovisioned on status poll", "error", err)
		}
		return
	}

	if err := m.store.RecordFailure(); err != nil {
		m.logger.Error("failed to record status-poll failure", "error", err)
	}
}

// refresh requests a new install token; on 401 it falls back to
// PROVISIONED (clearing the install token); on network failure it keeps
// the existing token and logs.
func (m *Manager) refresh(ctx context.Context, installToken string) {
	state := m.store.Snapshot()
	if m.queue != nil && m.queue.Count() > 0 {
		m.logger.Warn("refreshing install token while offline queue is non-empty", "serial", state.Serial, "queue_depth", m.queue.Count())
	}
	result := m.client.Refresh(ctx, state.Serial, installToken, m.instanceID)

	if result.Success {
		if err := m.store.TransitionToActive(result.InstallToken); err != nil {
			m.logger.Error("failed to persist refreshed token", "error", err)
		}
		return
	}

	if result.StatusCode == 401 {
		m.logger.Warn("refresh rejected, falling back to provisioned", "serial", state.Serial)
		if err := m.store.FallbackToProvisioned(); err != nil {
			m.logger.Error("failed to fall back to provisioned", "error", err)
		}
		return
	}

	m.logger.Warn("refresh failed, keeping existing token", "serial", state.Serial, "error", result.Error)
}
