package auth

import (
	"context"
	"testing"
	"time"
)

func TestLocalLimiterAllowsUpToMax(t *testing.T) {
	rl := NewLocalLimiter(2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := rl.Check(ctx, "diagnostics_bundle_global")
		if err != nil || !res.Allowed {
			t.Fatalf("attempt %d: expected allowed, got %+v err=%v", i, res, err)
		}
		if err := rl.Record(ctx, "diagnostics_bundle_global"); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	res, err := rl.Check(ctx, "diagnostics_bundle_global")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Allowed {
		t.Error("expected third check to be rate limited")
	}
}

func TestLocalLimiterResetsAfterWindow(t *testing.T) {
	rl := NewLocalLimiter(1, 10*time.Millisecond)
	ctx := context.Background()

	rl.Record(ctx, "k")
	res, _ := rl.Check(ctx, "k")
	if res.Allowed {
		t.Fatal("expected limit reached immediately after one record")
	}

	time.Sleep(20 * time.Millisecond)
	res, _ = rl.Check(ctx, "k")
	if !res.Allowed {
		t.Error("expected the window to have reset")
	}
}

func TestLocalLimiterKeysAreIndependent(t *testing.T) {
	rl := NewLocalLimiter(1, time.Minute)
	ctx := context.Background()

	rl.Record(ctx, "a")
	resA, _ := rl.Check(ctx, "a")
	resB, _ := rl.Check(ctx, "b")

	if resA.Allowed {
		t.Error("expected key a to be limited")
	}
	if !resB.Allowed {
		t.Error("expected key b to be unaffected by key a's usage")
	}
}
