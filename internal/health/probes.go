package health

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	qdrant "github.com/qdrant/go-client/qdrant"
)

// VectorStoreProbe checks Qdrant reachability via its gRPC collections
// listing. A nil client (vector store not configured) reports down without
// attempting a connection.
func VectorStoreProbe(client *qdrant.Client) Probe {
	return Probe{
		Name: "vector_store",
		Run: func(ctx context.Context) ComponentStatus {
			if client == nil {
				return ComponentStatus{Status: "down", DetailSafe: "Vector store not configured"}
			}
			start := time.Now()
			collections, err := client.ListCollections(ctx)
			latency := float64(time.Since(start).Milliseconds())
			if err != nil {
				return ComponentStatus{Status: "down", LatencyMs: latency, DetailSafe: "Connection failed"}
			}
			_ = collections
			return ComponentStatus{Status: "ok", LatencyMs: latency}
		},
	}
}

// RelationalStoreProbe runs SELECT 1 against the relational store pool. A
// nil pool reports down without attempting a connection.
func RelationalStoreProbe(pool *pgxpool.Pool) Probe {
	return Probe{
		Name: "relational_store",
		Run: func(ctx context.Context) ComponentStatus {
			if pool == nil {
				return ComponentStatus{Status: "down", DetailSafe: "Relational store not configured"}
			}
			start := time.Now()
			var one int
			err := pool.QueryRow(ctx, "SELECT 1").Scan(&one)
			latency := float64(time.Since(start).Milliseconds())
			if err != nil || one != 1 {
				return ComponentStatus{Status: "down", LatencyMs: latency, DetailSafe: "Query failed"}
			}
			return ComponentStatus{Status: "ok", LatencyMs: latency}
		},
	}
}

// LLMProviderProbe reports whether a model provider API key is configured.
// It never contacts the provider — configuration presence only.
func LLMProviderProbe(apiKeySet bool, provider string) Probe {
	return Probe{
		Name: "llm_provider",
		Run: func(ctx context.Context) ComponentStatus {
			if !apiKeySet {
				return ComponentStatus{Status: "down", DetailSafe: "API key not configured"}
			}
			return ComponentStatus{Status: "ok", DetailSafe: "Provider: " + provider}
		},
	}
}

// DeviceCryptoProbe reports whether the keystore passphrase is configured
// and the keystore file is present, without ever opening or decrypting it
// as part of a health check.
func DeviceCryptoProbe(passphraseSet bool, keystorePath string) Probe {
	return Probe{
		Name: "device_crypto",
		Run: func(ctx context.Context) ComponentStatus {
			if !passphraseSet {
				return ComponentStatus{Status: "down", DetailSafe: "Keystore passphrase not set"}
			}
			if _, err := os.Stat(keystorePath); err != nil {
				return ComponentStatus{Status: "down", DetailSafe: "No keypairs available"}
			}
			return ComponentStatus{Status: "ok"}
		},
	}
}

// DiskProbe reuses the resource guard's thresholds to report free disk
// space as a health component.
func DiskProbe(checkFn func(ctx context.Context) (freePct float64, err error)) Probe {
	return Probe{
		Name: "disk",
		Run: func(ctx context.Context) ComponentStatus {
			freePct, err := checkFn(ctx)
			if err != nil {
				return ComponentStatus{Status: "down", DetailSafe: "Disk check failed"}
			}
			switch {
			case freePct < 5:
				return ComponentStatus{Status: "down"}
			case freePct < 15:
				return ComponentStatus{Status: "degraded"}
			default:
				return ComponentStatus{Status: "ok"}
			}
		},
	}
}

// MemoryProbe reuses the resource guard's thresholds to report available
// memory as a health component.
func MemoryProbe(checkFn func(ctx context.Context) (availPct float64, err error)) Probe {
	return Probe{
		Name: "memory",
		Run: func(ctx context.Context) ComponentStatus {
			availPct, err := checkFn(ctx)
			if err != nil {
				return ComponentStatus{Status: "down", DetailSafe: "Memory check failed"}
			}
			switch {
			case availPct < 3:
				return ComponentStatus{Status: "down"}
			case availPct < 10:
				return ComponentStatus{Status: "degraded"}
			default:
				return ComponentStatus{Status: "ok"}
			}
		},
	}
}
