// Package resource implements the periodic disk/memory exhaustion guards
// that trip the process-wide ingestion-blocked flag and record issues.
package resource

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/aidotmarket/vectoraiz-sub002/internal/issues"
	"github.com/aidotmarket/vectoraiz-sub002/internal/telemetry"
	"github.com/aidotmarket/vectoraiz-sub002/pkg/slack"
)

// criticalNotifyCooldown bounds how often the Slack notifier fires while a
// resource stays critical across repeated ticks — once per tick at the
// default 60s interval would otherwise spam the channel.
const criticalNotifyCooldown = 15 * time.Minute

// Status is the outcome of one resource check.
type Status struct {
	State    string // ok | degraded | down
	FreePct  float64
	RSSBytes uint64
}

// Thresholds configures the free-percent cutoffs for disk and memory.
type Thresholds struct {
	DiskCriticalPercent float64
	DiskWarnPercent     float64
	MemCriticalPercent  float64
	MemWarnPercent      float64
}

// DefaultThresholds matches the design's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DiskCriticalPercent: 5,
		DiskWarnPercent:     15,
		MemCriticalPercent:  3,
		MemWarnPercent:      10,
	}
}

// Guard periodically checks disk and memory and maintains the process-wide
// ingestion-blocked flag. Zero value is not usable; construct with New.
type Guard struct {
	thresholds Thresholds
	interval   time.Duration
	logger     *slog.Logger
	tracker    *issues.Tracker
	notifier   *slack.Notifier

	blocked            atomic.Bool
	lastCriticalNotify atomic.Int64 // unix nanos, 0 if never notified
}

// New constructs a Guard. interval is the periodic check cadence (default
// 60s is the caller's responsibility to apply if zero is undesired). notifier
// may be nil or disabled — Slack is an optional external collaborator.
func New(thresholds Thresholds, interval time.Duration, logger *slog.Logger, tracker *issues.Tracker, notifier *slack.Notifier) *Guard {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Guard{thresholds: thresholds, interval: interval, logger: logger, tracker: tracker, notifier: notifier}
}

// IngestionBlocked reports the current value of the racy, single-bit flag.
// Readers accept a racy read per the design's shared-state model.
func (g *Guard) IngestionBlocked() bool {
	return g.blocked.Load()
}

// CheckDisk computes free-disk-percent for "/" and applies the documented
// policy: below DiskCriticalPercent blocks ingestion and logs CRITICAL;
// below DiskWarnPercent clears the block and logs WARN; otherwise clears
// the block silently.
func (g *Guard) CheckDisk(ctx context.Context) Status {
	usage, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		g.logger.Error("disk check failed", "error", err)
		return Status{State: "unknown"}
	}
	freePct := 100.0 - usage.UsedPercent

	switch classifyDisk(g.thresholds, freePct) {
	case "down":
		g.blocked.Store(true)
		g.tracker.Record("VAI-SYS-001", "disk")
		telemetry.ResourceGuardTripsTotal.WithLabelValues("disk", "critical").Inc()
		telemetry.IngestionBlockedGauge.Set(1)
		g.logger.Error("disk space critical", "disk.free_pct", freePct, "ingestion_blocked", true)
		g.notifyCritical(ctx, "VAI-SYS-001", "disk", "free disk space below critical threshold, ingestion blocked", freePct)
		return Status{State: "down", FreePct: freePct}
	case "degraded":
		g.blocked.Store(false)
		g.tracker.Record("VAI-SYS-001", "disk")
		telemetry.ResourceGuardTripsTotal.WithLabelValues("disk", "warn").Inc()
		telemetry.IngestionBlockedGauge.Set(0)
		g.logger.Warn("disk space low", "disk.free_pct", freePct)
		return Status{State: "degraded", FreePct: freePct}
	default:
		g.blocked.Store(false)
		telemetry.IngestionBlockedGauge.Set(0)
		return Status{State: "ok", FreePct: freePct}
	}
}

// FreeDiskPercent reports the current free-disk-percent for "/" with no
// side effects — reused by the health prober's disk component so it
// doesn't duplicate the guard's own filesystem query.
func (g *Guard) FreeDiskPercent(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return 0, err
	}
	return 100.0 - usage.UsedPercent, nil
}

// AvailableMemoryPercent reports the current available-memory-percent
// with no side effects — reused by the health prober's memory component.
func (g *Guard) AvailableMemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return 100.0 - vm.UsedPercent, nil
}

// classifyDisk is the pure threshold decision behind CheckDisk, split out
// so the policy can be tested without touching the real filesystem.
func classifyDisk(t Thresholds, freePct float64) string {
	switch {
	case freePct < t.DiskCriticalPercent:
		return "down"
	case freePct < t.DiskWarnPercent:
		return "degraded"
	default:
		return "ok"
	}
}

// CheckMemory computes available-memory-percent and applies the documented
// policy. Memory pressure never toggles the ingestion-blocked flag.
func (g *Guard) CheckMemory(ctx context.Context) Status {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		g.logger.Error("memory check failed", "error", err)
		return Status{State: "unknown"}
	}
	availPct := 100.0 - vm.UsedPercent

	switch {
	case availPct < g.thresholds.MemCriticalPercent:
		g.tracker.Record("VAI-SYS-002", "memory")
		telemetry.ResourceGuardTripsTotal.WithLabelValues("memory", "critical").Inc()
		g.logger.Error("memory critical", "mem.avail_pct", availPct)
		g.notifyCritical(ctx, "VAI-SYS-002", "memory", "available memory below critical threshold", availPct)
		return Status{State: "down", FreePct: availPct, RSSBytes: vm.Used}
	case availPct < g.thresholds.MemWarnPercent:
		g.tracker.Record("VAI-SYS-002", "memory")
		telemetry.ResourceGuardTripsTotal.WithLabelValues("memory", "warn").Inc()
		g.logger.Warn("memory pressure", "mem.avail_pct", availPct)
		return Status{State: "degraded", FreePct: availPct, RSSBytes: vm.Used}
	default:
		return Status{State: "ok", FreePct: availPct, RSSBytes: vm.Used}
	}
}

// Run executes one check immediately, then re-checks every interval until
// ctx is cancelled. Exceptions inside one iteration never stop the loop.
func (g *Guard) Run(ctx context.Context) {
	g.safeCheckOnce(ctx)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.safeCheckOnce(ctx)
		}
	}
}

// notifyCritical posts a Slack notification for a critical resource event,
// rate-limited to one per criticalNotifyCooldown so a resource that stays
// critical across many ticks doesn't spam the channel. A disabled or nil
// notifier is a silent no-op.
func (g *Guard) notifyCritical(ctx context.Context, code, component, message string, freePct float64) {
	if g.notifier == nil || !g.notifier.IsEnabled() {
		return
	}

	now := time.Now().UnixNano()
	last := g.lastCriticalNotify.Load()
	if last != 0 && time.Duration(now-last) < criticalNotifyCooldown {
		return
	}
	if !g.lastCriticalNotify.CompareAndSwap(last, now) {
		return
	}

	if err := g.notifier.NotifyCritical(ctx, slack.ResourceIssue{
		Code:      code,
		Component: component,
		Message:   message,
		FreePct:   freePct,
	}); err != nil {
		g.logger.Error("slack notification failed", "error", err, "code", code)
	}
}

func (g *Guard) safeCheckOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("resource monitor panic recovered", "panic", r)
		}
	}()
	g.CheckDisk(ctx)
	g.CheckMemory(ctx)
}
