package diagnostics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSafeCollectSuccess(t *testing.T) {
	c := Collector{
		Name: "ok",
		Collect: func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"a": 1}, nil
		},
	}
	r := SafeCollect(context.Background(), c)
	if r.Error != "" {
		t.Fatalf("expected no error, got %q", r.Error)
	}
	if r.Data["a"] != 1 {
		t.Errorf("expected data to survive, got %v", r.Data)
	}
	if r.Name != "ok" {
		t.Errorf("expected name ok, got %s", r.Name)
	}
}

func TestSafeCollectError(t *testing.T) {
	c := Collector{
		Name: "failing",
		Collect: func(ctx context.Context) (map[string]any, error) {
			return nil, errors.New("boom")
		},
	}
	r := SafeCollect(context.Background(), c)
	if r.Error != "boom" {
		t.Errorf("expected boom, got %q", r.Error)
	}
	if len(r.Data) != 0 {
		t.Errorf("expected empty data on error, got %v", r.Data)
	}
}

func TestSafeCollectTimeout(t *testing.T) {
	c := Collector{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Collect: func(ctx context.Context) (map[string]any, error) {
			time.Sleep(200 * time.Millisecond)
			return map[string]any{"unreachable": true}, nil
		},
	}
	r := SafeCollect(context.Background(), c)
	if r.Error == "" {
		t.Fatal("expected a timeout error")
	}
	if !strings.Contains(r.Error, "timed out") {
		t.Errorf("expected error to mention timeout, got %q", r.Error)
	}
	if r.DurationMs < 10 {
		t.Errorf("expected duration to reflect the timeout window, got %v", r.DurationMs)
	}
}

func TestSafeCollectPanicRecovers(t *testing.T) {
	c := Collector{
		Name: "panicky",
		Collect: func(ctx context.Context) (map[string]any, error) {
			panic("collector exploded")
		},
	}
	r := SafeCollect(context.Background(), c)
	if r.Error == "" {
		t.Fatal("expected panic to surface as an error, not crash the test")
	}
}

func TestSafeCollectDefaultTimeoutApplied(t *testing.T) {
	c := Collector{
		Name: "no-timeout-set",
		Collect: func(ctx context.Context) (map[string]any, error) {
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Error("expected a deadline to be set from DefaultTimeout")
			}
			if time.Until(deadline) > DefaultTimeout {
				t.Error("expected deadline to respect DefaultTimeout")
			}
			return map[string]any{}, nil
		},
	}
	SafeCollect(context.Background(), c)
}
