// Package diagnostics implements the named, timeout-bounded diagnostic
// collectors and the bundler that packages their output into a zip archive.
package diagnostics

import (
	"context"
	"fmt"
	"time"
)

// CollectorResult is the outcome of one collector run.
type CollectorResult struct {
	Name        string
	Data        map[string]any
	CollectedAt time.Time
	DurationMs  float64
	Error       string
}

// DefaultTimeout is the per-collector bound applied when none is configured.
const DefaultTimeout = 10 * time.Second

// Collector is a named unit of diagnostic data collection.
type Collector struct {
	Name    string
	Timeout time.Duration
	Collect func(ctx context.Context) (map[string]any, error)
}

// SafeCollect enforces the collector's timeout, captures duration, and
// converts any failure (including a timeout) into a zero-data result with
// a single-line error — it never propagates a panic or raw error upward.
func SafeCollect(ctx context.Context, c Collector) (result CollectorResult) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	boundedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	type outcome struct {
		data map[string]any
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		data, err := c.Collect(boundedCtx)
		done <- outcome{data: data, err: err}
	}()

	select {
	case <-boundedCtx.Done():
		return CollectorResult{
			Name:        c.Name,
			Data:        map[string]any{},
			CollectedAt: time.Now().UTC(),
			DurationMs:  float64(time.Since(start).Milliseconds()),
			Error:       fmt.Sprintf("Collector timed out after %s", timeout),
		}
	case o := <-done:
		durationMs := float64(time.Since(start).Milliseconds())
		if o.err != nil {
			return CollectorResult{
				Name:        c.Name,
				Data:        map[string]any{},
				CollectedAt: time.Now().UTC(),
				DurationMs:  durationMs,
				Error:       o.err.Error(),
			}
		}
		return CollectorResult{
			Name:        c.Name,
			Data:        o.data,
			CollectedAt: time.Now().UTC(),
			DurationMs:  durationMs,
		}
	}
}
