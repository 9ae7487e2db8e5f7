package serial

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aidotmarket/vectoraiz-sub002/internal/meterqueue"
)

// Default per-operation costs in USD, used when a caller doesn't override.
const (
	DefaultSetupCostUSD = "0.01"
	DefaultDataCostUSD  = "0.03"
)

// setupViews are UI views classified as "setup" for the co-pilot category
// classifier; everything else (including unknown or absent) is "data".
var setupViews = map[string]bool{
	"onboarding": true, "setup": true, "connectivity": true,
	"metadata_builder": true, "publish": true,
}

// ClassifyCopilotCategory maps an active UI view name onto a metering
// category.
func ClassifyCopilotCategory(activeView string) string {
	if setupViews[activeView] {
		return "setup"
	}
	return "data"
}

// UnprovisionedError is raised when no serial is provisioned at all.
type UnprovisionedError struct{}

func (UnprovisionedError) Error() string { return "Enter serial to continue" }

// ActivationRequiredError is raised when metering fails because the
// serial isn't (or is no longer) activated.
type ActivationRequiredError struct {
	Message string
}

func (e ActivationRequiredError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Activation required"
}

// CreditExhaustedError is raised when metering is denied — the $4 wall.
type CreditExhaustedError struct {
	Category          string
	Reason            string
	RemainingUSD      string
	SetupRemainingUSD string
	PaymentEnabled    bool
	Serial            string
}

func (e CreditExhaustedError) Error() string {
	return fmt.Sprintf("credit exhausted: %s", e.Reason)
}

// MeterDecision is the outcome of a successful check_and_meter call.
type MeterDecision struct {
	Allowed  bool
	Category string
	Offline  bool
	Reason   string
}

// Strategy is the single operation both metering implementations expose.
type Strategy interface {
	CheckAndMeter(ctx context.Context, category, estimatedCostUSD, requestID string) (MeterDecision, error)
}

// SerialMeteringStrategy meters against the authority's credit pools
// while the serial is in any pre-migration state.
type SerialMeteringStrategy struct {
	Store  *Store
	Client *Client
	Queue  *meterqueue.Queue
}

func (s *SerialMeteringStrategy) enqueueOffline(category, cost, requestID, description string) error {
	return s.Queue.Append(meterqueue.PendingEvent{
		Category:    category,
		CostUSD:     cost,
		RequestID:   requestID,
		Description: description,
		Timestamp:   float64(time.Now().Unix()),
	})
}

// CheckAndMeter implements the pre-migration state table from the
// lifecycle design: UNPROVISIONED blocks everything, PROVISIONED and
// DEGRADED allow setup offline while blocking data, and ACTIVE meters
// through the authority.
func (s *SerialMeteringStrategy) CheckAndMeter(ctx context.Context, category, estimatedCostUSD, requestID string) (MeterDecision, error) {
	state := s.Store.Snapshot()

	switch state.LifecycleState {
	case Unprovisioned:
		return MeterDecision{}, UnprovisionedError{}

	case Provisioned:
		if category == "setup" {
			if err := s.enqueueOffline(category, estimatedCostUSD, requestID, "provisioned-offline"); err != nil {
				return MeterDecision{}, err
			}
			return MeterDecision{Allowed: true, Category: category, Offline: true}, nil
		}
		return MeterDecision{}, ActivationRequiredError{}

	case Degraded:
		if category == "setup" {
			if err := s.enqueueOffline(category, estimatedCostUSD, requestID, "degraded-offline"); err != nil {
				return MeterDecision{}, err
			}
			return MeterDecision{Allowed: true, Category: category, Offline: true}, nil
		}
		return MeterDecision{}, CreditExhaustedError{Category: category, Reason: "offline_data_blocked", Serial: state.Serial}

	case Active:
		if state.InstallToken == nil {
			return MeterDecision{}, ActivationRequiredError{}
		}
		return s.meterActive(ctx, state, category, estimatedCostUSD, requestID)

	default:
		return MeterDecision{}, UnprovisionedError{}
	}
}

func (s *SerialMeteringStrategy) meterActive(ctx context.Context, state State, category, estimatedCostUSD, requestID string) (MeterDecision, error) {
	result := s.Client.Meter(ctx, state.Serial, *state.InstallToken, category, estimatedCostUSD, requestID, "")

	if result.Migrated {
		if err := s.Store.TransitionToMigrated(""); err != nil {
			return MeterDecision{}, err
		}
		return MeterDecision{Allowed: true, Category: category}, nil
	}

	if result.Allowed {
		if err := s.Store.RecordSuccess(); err != nil {
			return MeterDecision{}, err
		}
		return MeterDecision{Allowed: true, Category: category}, nil
	}

	if result.StatusCode == 200 || result.StatusCode == 402 {
		if err := s.Store.RecordSuccess(); err != nil {
			return MeterDecision{}, err
		}
		cached := s.Store.Snapshot().LastStatusCache
		setupRemaining, _ := cached["setup_remaining_usd"].(string)
		if setupRemaining == "" {
			setupRemaining = "0.00"
		}
		reason := result.Reason
		if reason == "" {
			reason = "insufficient_" + category + "_credits"
		}
		return MeterDecision{}, CreditExhaustedError{
			Category:          category,
			Reason:            reason,
			RemainingUSD:      result.RemainingUSD,
			SetupRemainingUSD: setupRemaining,
			PaymentEnabled:    result.PaymentEnabled,
			Serial:            state.Serial,
		}
	}

	if result.StatusCode == 401 {
		if err := s.Store.TransitionToUnprovisioned(); err != nil {
			return MeterDecision{}, err
		}
		return MeterDecision{}, ActivationRequiredError{Message: "Token revoked — re-activation required"}
	}

	// Network failure or unexpected status: count it and fall back to
	// the offline policy.
	if err := s.Store.RecordFailure(); err != nil {
		return MeterDecision{}, err
	}

	if category == "setup" {
		if err := s.enqueueOffline(category, estimatedCostUSD, requestID, "network-failure-offline"); err != nil {
			return MeterDecision{}, err
		}
		return MeterDecision{Allowed: true, Category: category, Offline: true}, nil
	}

	if s.Store.Snapshot().ConsecutiveFailures < 3 {
		return MeterDecision{Allowed: true, Category: category, Offline: true, Reason: "transient_offline"}, nil
	}
	return MeterDecision{}, CreditExhaustedError{Category: category, Reason: "offline_data_blocked", Serial: state.Serial}
}

// LedgerMeteringStrategy is used once a serial has migrated: billing is
// handled by an external system downstream, so every request is allowed.
type LedgerMeteringStrategy struct{}

func (LedgerMeteringStrategy) CheckAndMeter(ctx context.Context, category, estimatedCostUSD, requestID string) (MeterDecision, error) {
	return MeterDecision{Allowed: true, Category: category}, nil
}

// MakeRequestID builds the idempotent request_id the authority
// deduplicates on: "vz:" + serial_short8 + ":" + md5_prefix8(method+":"+path) + ":" + millis_since_epoch.
func MakeRequestID(serial, method, path string, now time.Time) string {
	serialShort := serial
	if strings.HasPrefix(serial, "VZ-") && len(serial) >= 11 {
		serialShort = serial[3:11]
	} else if len(serial) > 8 {
		serialShort = serial[:8]
	}

	sum := md5.Sum([]byte(method + ":" + path))
	endpointHash := hex.EncodeToString(sum[:])[:8]

	return fmt.Sprintf("vz:%s:%s:%d", serialShort, endpointHash, now.UnixMilli())
}

// Metered is the guard factory: given the current operating mode and
// serial state, it picks a strategy, computes a default cost, builds an
// idempotent request id, and invokes CheckAndMeter. In "standalone" mode
// it allows immediately without ever touching the store or the network.
func Metered(ctx context.Context, mode string, store *Store, strategyFor func(state State) Strategy, category, method, path string, overrideCostUSD string, now time.Time) (MeterDecision, error) {
	if mode == "standalone" {
		return MeterDecision{Allowed: true, Category: category}, nil
	}

	state := store.Snapshot()
	strategy := strategyFor(state)

	cost := overrideCostUSD
	if cost == "" {
		if category == "data" {
			cost = DefaultDataCostUSD
		} else {
			cost = DefaultSetupCostUSD
		}
	}

	requestID := MakeRequestID(state.Serial, method, path, now)
	return strategy.CheckAndMeter(ctx, category, cost, requestID)
}

// DefaultStrategyFor selects LedgerMeteringStrategy once migrated,
// SerialMeteringStrategy otherwise.
func DefaultStrategyFor(store *Store, client *Client, queue *meterqueue.Queue) func(State) Strategy {
	return func(state State) Strategy {
		if state.LifecycleState == Migrated {
			return LedgerMeteringStrategy{}
		}
		return &SerialMeteringStrategy{Store: store, Client: client, Queue: queue}
	}
}
