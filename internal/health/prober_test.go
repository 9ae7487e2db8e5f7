package health

import (
	"context"
	"testing"
	"time"
)

func TestCheapHealthShape(t *testing.T) {
	p := New(nil, 0, "1.0.0", time.Now().Add(-5*time.Second))
	body := p.Cheap("vectoraiz")
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["version"] != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %v", body["version"])
	}
	if body["service"] != "vectoraiz" {
		t.Errorf("expected service vectoraiz, got %v", body["service"])
	}
}

func TestDeepAggregatesWorstStatus(t *testing.T) {
	probes := []Probe{
		{Name: "a", Run: func(ctx context.Context) ComponentStatus { return ComponentStatus{Status: "ok"} }},
		{Name: "b", Run: func(ctx context.Context) ComponentStatus { return ComponentStatus{Status: "degraded"} }},
	}
	p := New(probes, time.Second, "1.0.0", time.Now())
	report := p.Deep(context.Background())
	if report.Status != "degraded" {
		t.Errorf("expected overall degraded, got %s", report.Status)
	}
	if len(report.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(report.Components))
	}
}

func TestDeepDownBeatsDegraded(t *testing.T) {
	probes := []Probe{
		{Name: "a", Run: func(ctx context.Context) ComponentStatus { return ComponentStatus{Status: "down"} }},
		{Name: "b", Run: func(ctx context.Context) ComponentStatus { return ComponentStatus{Status: "degraded"} }},
	}
	p := New(probes, time.Second, "1.0.0", time.Now())
	report := p.Deep(context.Background())
	if report.Status != "down" {
		t.Errorf("expected overall down, got %s", report.Status)
	}
}

func TestDeepProbeTimeoutBecomesDown(t *testing.T) {
	probes := []Probe{
		{Name: "slow", Run: func(ctx context.Context) ComponentStatus {
			<-ctx.Done()
			return ComponentStatus{Status: "ok"}
		}},
	}
	p := New(probes, 10*time.Millisecond, "1.0.0", time.Now())
	report := p.Deep(context.Background())
	if report.Components["slow"].Status != "down" {
		t.Errorf("expected timed-out probe to report down, got %s", report.Components["slow"].Status)
	}
	if report.Components["slow"].DetailSafe == "" {
		t.Error("expected a safe detail message for the timeout")
	}
}

func TestDeepHighLatencyDowngradesOkToDegraded(t *testing.T) {
	probes := []Probe{
		{Name: "slow-ok", Run: func(ctx context.Context) ComponentStatus {
			return ComponentStatus{Status: "ok", LatencyMs: 9000}
		}},
	}
	p := New(probes, time.Second, "1.0.0", time.Now())
	report := p.Deep(context.Background())
	if report.Components["slow-ok"].Status != "degraded" {
		t.Errorf("expected high-latency ok to downgrade to degraded, got %s", report.Components["slow-ok"].Status)
	}
}

func TestDeepProbePanicRecovers(t *testing.T) {
	probes := []Probe{
		{Name: "panicky", Run: func(ctx context.Context) ComponentStatus {
			panic("boom")
		}},
	}
	p := New(probes, time.Second, "1.0.0", time.Now())
	report := p.Deep(context.Background())
	if report.Components["panicky"].Status != "down" {
		t.Errorf("expected panicking probe to report down, got %s", report.Components["panicky"].Status)
	}
}

func TestDeepEmptyProbeSetIsOk(t *testing.T) {
	p := New(nil, time.Second, "1.0.0", time.Now())
	report := p.Deep(context.Background())
	if report.Status != "ok" {
		t.Errorf("expected ok with no probes, got %s", report.Status)
	}
}
