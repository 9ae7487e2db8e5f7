package serial

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenStartsUnprovisioned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap := s.Snapshot()
	if snap.LifecycleState != Unprovisioned {
		t.Errorf("expected unprovisioned, got %s", snap.LifecycleState)
	}
	if snap.Serial != "" {
		t.Errorf("expected empty serial, got %s", snap.Serial)
	}
}

func TestOpenLoadsExistingState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	data := map[string]any{
		"serial":                "VZ-abcd1234-efgh5678",
		"install_token":         "vzit_test123",
		"bootstrap_token":       nil,
		"state":                 "active",
		"last_app_version":      "1.0.0",
		"last_status_cache":     map[string]any{"setup_remaining_usd": "8.00"},
		"consecutive_failures":  0,
	}
	raw, _ := json.Marshal(data)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap := s.Snapshot()
	if snap.Serial != "VZ-abcd1234-efgh5678" {
		t.Errorf("expected serial to load, got %s", snap.Serial)
	}
	if snap.LifecycleState != Active {
		t.Errorf("expected active, got %s", snap.LifecycleState)
	}
}

func TestOpenInvalidStateResetsToUnprovisioned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	raw, _ := json.Marshal(map[string]any{"serial": "VZ-test", "state": "bogus"})
	os.WriteFile(path, raw, 0o600)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Snapshot().LifecycleState != Unprovisioned {
		t.Errorf("expected reset to unprovisioned on bad state value")
	}
}

func TestSaveCreatesFileMode600(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.UpdateAppVersion("9.9.9"); err != nil {
		t.Fatalf("UpdateAppVersion: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
	}
}

func TestSaveSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	s1, _ := Open(path)
	s1.SetSerial("VZ-persist-test1234", "vzbt_boot")
	s1.TransitionToActive("vzit_abc")

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap := s2.Snapshot()
	if snap.Serial != "VZ-persist-test1234" {
		t.Errorf("expected serial to persist, got %s", snap.Serial)
	}
	if snap.LifecycleState != Active {
		t.Errorf("expected active, got %s", snap.LifecycleState)
	}
	if snap.InstallToken == nil || *snap.InstallToken != "vzit_abc" {
		t.Errorf("expected install token to persist, got %v", snap.InstallToken)
	}
}

func TestTransitionToActiveClearsBootstrapToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	s, _ := Open(path)
	s.SetSerial("VZ-test", "vzbt_boot")
	s.TransitionToActive("vzit_install")

	snap := s.Snapshot()
	if snap.LifecycleState != Active {
		t.Errorf("expected active, got %s", snap.LifecycleState)
	}
	if snap.BootstrapToken != nil {
		t.Errorf("expected bootstrap token cleared, got %v", *snap.BootstrapToken)
	}
}

func TestRecordFailureTriggersDegraded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	s, _ := Open(path)
	s.SetSerial("VZ-test", "x")
	s.TransitionToActive("vzit_x")

	for i := 0; i < FailureThreshold; i++ {
		s.RecordFailure()
	}
	snap := s.Snapshot()
	if snap.LifecycleState != Degraded {
		t.Errorf("expected degraded after %d failures, got %s", FailureThreshold, snap.LifecycleState)
	}
	if snap.ConsecutiveFailures != FailureThreshold {
		t.Errorf("expected counter at %d, got %d", FailureThreshold, snap.ConsecutiveFailures)
	}
}

func TestRecordSuccessClearsDegraded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	s, _ := Open(path)
	s.SetSerial("VZ-test", "x")
	s.TransitionToActive("vzit_x")
	for i := 0; i < FailureThreshold; i++ {
		s.RecordFailure()
	}

	s.RecordSuccess()
	snap := s.Snapshot()
	if snap.LifecycleState != Active {
		t.Errorf("expected active after recovery, got %s", snap.LifecycleState)
	}
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("expected counter reset, got %d", snap.ConsecutiveFailures)
	}
}

func TestTransitionToMigratedMergesGatewayUserID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	s, _ := Open(path)
	s.SetSerial("VZ-test", "x")
	s.TransitionToActive("vzit_x")

	s.TransitionToMigrated("user_123")
	snap := s.Snapshot()
	if snap.LifecycleState != Migrated {
		t.Errorf("expected migrated, got %s", snap.LifecycleState)
	}
	if snap.LastStatusCache["gateway_user_id"] != "user_123" {
		t.Errorf("expected gateway_user_id merged, got %v", snap.LastStatusCache)
	}
}

func TestTransitionToUnprovisionedClearsTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	s, _ := Open(path)
	s.SetSerial("VZ-test", "x")
	s.TransitionToActive("vzit_test")

	s.TransitionToUnprovisioned()
	snap := s.Snapshot()
	if snap.LifecycleState != Unprovisioned {
		t.Errorf("expected unprovisioned, got %s", snap.LifecycleState)
	}
	if snap.InstallToken != nil || snap.BootstrapToken != nil {
		t.Errorf("expected both tokens cleared, got install=%v bootstrap=%v", snap.InstallToken, snap.BootstrapToken)
	}
}

func TestSnapshotIsACopyNotALiveReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.json")
	s, _ := Open(path)
	s.SetSerial("VZ-test", "x")

	snap := s.Snapshot()
	snap.LastStatusCache["mutated"] = true

	fresh := s.Snapshot()
	if _, ok := fresh.LastStatusCache["mutated"]; ok {
		t.Error("expected Snapshot to return a defensive copy")
	}
}
