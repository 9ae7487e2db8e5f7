// Package serial implements the activation lifecycle for a single serial:
// the on-disk state store, the HTTP client to the authority, the metering
// strategy it drives, and the startup activation manager.
package serial

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Lifecycle states. The persisted "state" field must be one of these
// exact strings; anything else resets to Unprovisioned on load.
const (
	Unprovisioned = "unprovisioned"
	Provisioned   = "provisioned"
	Active        = "active"
	Degraded      = "degraded"
	Migrated      = "migrated"
)

var validStates = map[string]bool{
	Unprovisioned: true, Provisioned: true, Active: true, Degraded: true, Migrated: true,
}

// FailureThreshold is the number of consecutive authority-call failures
// that demotes an ACTIVE serial to DEGRADED.
const FailureThreshold = 5

// State is a snapshot of the serial's persisted lifecycle. Callers must
// treat a returned State as read-only; mutations only happen through the
// Store's methods.
type State struct {
	Serial              string         `json:"serial"`
	InstallToken        *string        `json:"install_token"`
	BootstrapToken      *string        `json:"bootstrap_token"`
	LifecycleState      string         `json:"state"`
	LastAppVersion      string         `json:"last_app_version"`
	LastStatusCache     map[string]any `json:"last_status_cache"`
	LastStatusAt        *time.Time     `json:"last_status_at"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
}

// Store is the process-singleton holder of one serial's lifecycle state,
// persisted as a single JSON document at path with file mode 0600.
// Mutators are serialized by mu and each is followed by an atomic save.
type Store struct {
	mu    sync.Mutex
	path  string
	state State
}

// Open loads the state document at path, or initializes an in-memory
// Unprovisioned state (without touching the file) if it is missing or its
// persisted state value is not one of the five recognized states.
func Open(path string) (*Store, error) {
	s := &Store{path: path, state: State{LifecycleState: Unprovisioned, LastStatusCache: map[string]any{}}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading serial state: %w", err)
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return s, nil
	}
	if !validStates[loaded.LifecycleState] {
		return s, nil
	}
	if loaded.LastStatusCache == nil {
		loaded.LastStatusCache = map[string]any{}
	}
	s.state = loaded
	return s, nil
}

// Snapshot returns a copy of the current state, safe to read without
// further synchronization.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyState()
}

func (s *Store) copyState() State {
	cp := s.state
	cache := make(map[string]any, len(s.state.LastStatusCache))
	for k, v := range s.state.LastStatusCache {
		cache[k] = v
	}
	cp.LastStatusCache = cache
	return cp
}

// save writes the current state atomically: a sibling temp file, chmod
// 0600, then rename over the destination. Caller must hold mu.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating serial state directory: %w", err)
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling serial state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing serial state temp file: %w", err)
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		return fmt.Errorf("chmod serial state temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming serial state into place: %w", err)
	}
	return nil
}

// TransitionToActive sets state=ACTIVE, stores the install token, and
// clears the bootstrap token.
func (s *Store) TransitionToActive(installToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LifecycleState = Active
	s.state.InstallToken = &installToken
	s.state.BootstrapToken = nil
	return s.save()
}

// TransitionToUnprovisioned clears both tokens and sets state=UNPROVISIONED.
func (s *Store) TransitionToUnprovisioned() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LifecycleState = Unprovisioned
	s.state.InstallToken = nil
	s.state.BootstrapToken = nil
	return s.save()
}

// TransitionToMigrated sets state=MIGRATED and merges gatewayUserID (if
// non-empty) into the cached status payload.
func (s *Store) TransitionToMigrated(gatewayUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LifecycleState = Migrated
	if gatewayUserID != "" {
		if s.state.LastStatusCache == nil {
			s.state.LastStatusCache = map[string]any{}
		}
		s.state.LastStatusCache["gateway_user_id"] = gatewayUserID
	}
	return s.save()
}

// RecordSuccess resets the consecutive-failure counter; if the state was
// DEGRADED it returns to ACTIVE.
func (s *Store) RecordSuccess() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ConsecutiveFailures = 0
	if s.state.LifecycleState == Degraded {
		s.state.LifecycleState = Active
	}
	return s.save()
}

// RecordFailure increments the consecutive-failure counter; if the state
// was ACTIVE and the counter reaches FailureThreshold, transitions to
// DEGRADED.
func (s *Store) RecordFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ConsecutiveFailures++
	if s.state.LifecycleState == Active && s.state.ConsecutiveFailures >= FailureThreshold {
		s.state.LifecycleState = Degraded
	}
	return s.save()
}

// UpdateStatusCache replaces the cached status payload and timestamp.
func (s *Store) UpdateStatusCache(payload map[string]any, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastStatusCache = payload
	s.state.LastStatusAt = &at
	return s.save()
}

// UpdateAppVersion records the last-seen application version.
func (s *Store) UpdateAppVersion(version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastAppVersion = version
	return s.save()
}

// SetSerial assigns the serial identifier and persists it. Used by the
// activation manager once a serial has been entered, before an install
// token exists.
func (s *Store) SetSerial(serial, bootstrapToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Serial = serial
	s.state.BootstrapToken = &bootstrapToken
	s.state.LifecycleState = Provisioned
	return s.save()
}

// FallbackToProvisioned clears the install token and returns to
// PROVISIONED, keeping the serial and any existing bootstrap token
// untouched. Used when a refresh is rejected (401) rather than failing
// outright.
func (s *Store) FallbackToProvisioned() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.InstallToken = nil
	s.state.LifecycleState = Provisioned
	return s.save()
}
