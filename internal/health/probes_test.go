package health

import (
	"context"
	"errors"
	"testing"
)

func TestVectorStoreProbeNilClient(t *testing.T) {
	p := VectorStoreProbe(nil)
	status := p.Run(context.Background())
	if status.Status != "down" {
		t.Errorf("expected down for nil client, got %s", status.Status)
	}
}

func TestRelationalStoreProbeNilPool(t *testing.T) {
	p := RelationalStoreProbe(nil)
	status := p.Run(context.Background())
	if status.Status != "down" {
		t.Errorf("expected down for nil pool, got %s", status.Status)
	}
}

func TestLLMProviderProbe(t *testing.T) {
	ok := LLMProviderProbe(true, "openai").Run(context.Background())
	if ok.Status != "ok" {
		t.Errorf("expected ok when api key set, got %s", ok.Status)
	}
	down := LLMProviderProbe(false, "").Run(context.Background())
	if down.Status != "down" {
		t.Errorf("expected down when api key unset, got %s", down.Status)
	}
}

func TestDeviceCryptoProbeNoPassphrase(t *testing.T) {
	status := DeviceCryptoProbe(false, "/nonexistent").Run(context.Background())
	if status.Status != "down" {
		t.Errorf("expected down, got %s", status.Status)
	}
}

func TestDeviceCryptoProbeMissingKeystore(t *testing.T) {
	status := DeviceCryptoProbe(true, "/nonexistent/path/keystore.json").Run(context.Background())
	if status.Status != "down" {
		t.Errorf("expected down for missing keystore file, got %s", status.Status)
	}
}

func TestDiskProbeThresholds(t *testing.T) {
	cases := []struct {
		freePct float64
		want    string
	}{{2, "down"}, {10, "degraded"}, {50, "ok"}}
	for _, c := range cases {
		p := DiskProbe(func(ctx context.Context) (float64, error) { return c.freePct, nil })
		got := p.Run(context.Background())
		if got.Status != c.want {
			t.Errorf("freePct=%v: expected %s, got %s", c.freePct, c.want, got.Status)
		}
	}
}

func TestDiskProbeError(t *testing.T) {
	p := DiskProbe(func(ctx context.Context) (float64, error) { return 0, errors.New("boom") })
	got := p.Run(context.Background())
	if got.Status != "down" {
		t.Errorf("expected down on error, got %s", got.Status)
	}
	if got.DetailSafe == "" || got.DetailSafe == "boom" {
		t.Errorf("expected a safe, non-leaking detail message, got %q", got.DetailSafe)
	}
}

func TestMemoryProbeThresholds(t *testing.T) {
	cases := []struct {
		availPct float64
		want     string
	}{{1, "down"}, {5, "degraded"}, {50, "ok"}}
	for _, c := range cases {
		p := MemoryProbe(func(ctx context.Context) (float64, error) { return c.availPct, nil })
		got := p.Run(context.Background())
		if got.Status != c.want {
			t.Errorf("availPct=%v: expected %s, got %s", c.availPct, c.want, got.Status)
		}
	}
}
