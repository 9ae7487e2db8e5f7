package meterqueue

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.ndjson")
	q, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()

	for i := 0; i < 3; i++ {
		if err := q.Append(PendingEvent{Category: "setup", RequestID: "r1"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if q.Count() != 3 {
		t.Errorf("expected count 3, got %d", q.Count())
	}
}

func TestReopenReplaysExistingCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.ndjson")
	q1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	q1.Append(PendingEvent{Category: "data", RequestID: "a"})
	q1.Append(PendingEvent{Category: "data", RequestID: "b"})
	q1.Close()

	q2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer q2.Close()
	if q2.Count() != 2 {
		t.Errorf("expected reopened count 2, got %d", q2.Count())
	}
}

func TestTruncatedLastRecordDiscardedButEarlierPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.ndjson")
	q1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	q1.Append(PendingEvent{Category: "setup", RequestID: "good-1"})
	q1.Append(PendingEvent{Category: "setup", RequestID: "good-2"})
	q1.Close()

	// Simulate a crash mid-write: append a truncated, non-JSON final line.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("appending truncated line: %v", err)
	}
	f.WriteString(`{"category":"data","request_id":"trunc`)
	f.Close()

	q2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen after truncation: %v", err)
	}
	defer q2.Close()
	if q2.Count() != 2 {
		t.Errorf("expected truncated record discarded, earlier 2 preserved, got %d", q2.Count())
	}
}

func TestReplayReturnsEventsInInsertionOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.ndjson")
	q, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()

	q.Append(PendingEvent{RequestID: "first"})
	q.Append(PendingEvent{RequestID: "second"})
	q.Append(PendingEvent{RequestID: "third"})

	events, err := q.Replay()
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if events[i].RequestID != w {
			t.Errorf("index %d: expected %s, got %s", i, w, events[i].RequestID)
		}
	}
}

func TestOpenOnMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queue.ndjson")
	q, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()
	if q.Count() != 0 {
		t.Errorf("expected empty count on fresh file, got %d", q.Count())
	}
}
