package diagnostics

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aidotmarket/vectoraiz-sub002/internal/logging"
)

// GlobalBudget bounds the entire bundle generation regardless of how many
// collectors are registered or how long any one of them takes.
const GlobalBudget = 30 * time.Second

// SchemaVersion is recorded in every bundle's metadata.json.
const SchemaVersion = 1

// collectorPaths maps well-known collector names onto the archive path
// described in the bundle layout; unrecognized names fall back to
// "<name>.json" at the archive root.
var collectorPaths = map[string]string{
	"health":       "health/health_snapshot.json",
	"config":       "config/redacted_config.json",
	"system":       "system/runtime.json",
	"qdrant":       "qdrant/collections.json",
	"database":     "database/introspection.json",
	"errors":       "errors/registry_and_recent.json",
	"issues":       "issues/active.json",
	"processes":    "processes/tasks.json",
	"connectivity": "connectivity/summary.json",
	"logs":         "logs/collector.json",
}

func pathForCollector(name string) string {
	if p, ok := collectorPaths[name]; ok {
		return p
	}
	return name + ".json"
}

// Bundler runs a fixed set of collectors concurrently and packages the
// results into an in-memory zip archive.
type Bundler struct {
	Collectors []Collector
	Ring       *logging.RingBuffer
	AppVersion string
	HostID     func() string
}

// Generate runs every collector concurrently under the global budget and
// returns a zip archive as bytes, ready to be streamed to a client.
func (b *Bundler) Generate(ctx context.Context) ([]byte, error) {
	boundedCtx, cancel := context.WithTimeout(ctx, GlobalBudget)
	defer cancel()

	results := make([]CollectorResult, len(b.Collectors))
	var wg sync.WaitGroup
	for i, c := range b.Collectors {
		wg.Add(1)
		go func(i int, c Collector) {
			defer wg.Done()
			results[i] = SafeCollect(boundedCtx, c)
		}(i, c)
	}
	wg.Wait()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	if err := writeJSONEntry(zw, "metadata.json", map[string]any{
		"schema_version": SchemaVersion,
		"generated_at":   time.Now().UTC(),
		"app_version":    b.AppVersion,
		"host_id":        b.hostID(),
	}); err != nil {
		return nil, err
	}

	summary := make(map[string]any, len(results))
	for _, r := range results {
		body := map[string]any{}
		for k, v := range r.Data {
			body[k] = v
		}
		body["_collector_duration_ms"] = r.DurationMs
		body["_collected_at"] = r.CollectedAt
		if r.Error != "" {
			body["_collector_error"] = r.Error
		}

		if err := writeJSONEntry(zw, pathForCollector(r.Name), body); err != nil {
			return nil, err
		}

		entry := map[string]any{"duration_ms": r.DurationMs}
		if r.Error != "" {
			entry["error"] = r.Error
		}
		summary[r.Name] = entry
	}

	if err := writeJSONEntry(zw, "collector_summary.json", summary); err != nil {
		return nil, err
	}

	if err := b.writeLogs(zw); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing bundle archive: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Bundler) hostID() string {
	if b.HostID != nil {
		return b.HostID()
	}
	return hashedHostID()
}

func (b *Bundler) writeLogs(zw *zip.Writer) error {
	var entries []logging.Record
	if b.Ring != nil {
		entries = b.Ring.GetEntries(0)
	}

	recent, err := zw.Create("logs/recent.jsonl")
	if err != nil {
		return fmt.Errorf("creating logs/recent.jsonl: %w", err)
	}
	for _, e := range entries {
		redacted := logging.RedactLogEntry(e)
		line, err := json.Marshal(redacted)
		if err != nil {
			continue
		}
		recent.Write(line)
		recent.Write([]byte("\n"))
	}

	return writeJSONEntry(zw, "logs/summary.json", map[string]any{
		"entry_count": len(entries),
	})
}

func writeJSONEntry(zw *zip.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	w, err := zw.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	_, err = w.Write(data)
	return err
}
