package logging

import "testing"

func TestRingBufferOverflowDiscardsOldest(t *testing.T) {
	b := NewRingBuffer(3)
	b.Add(Record{"i": 1})
	b.Add(Record{"i": 2})
	b.Add(Record{"i": 3})
	b.Add(Record{"i": 4})

	entries := b.GetEntries(0)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	got := []int{}
	for _, e := range entries {
		got = append(got, e["i"].(int))
	}
	want := []int{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestRingBufferGetEntriesLimit(t *testing.T) {
	b := NewRingBuffer(10)
	for i := 1; i <= 5; i++ {
		b.Add(Record{"i": i})
	}
	entries := b.GetEntries(2)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["i"].(int) != 4 || entries[1]["i"].(int) != 5 {
		t.Errorf("expected last 2 entries oldest->newest [4,5], got %v %v", entries[0]["i"], entries[1]["i"])
	}
}

func TestRingBufferClear(t *testing.T) {
	b := NewRingBuffer(4)
	b.Add(Record{"i": 1})
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("expected 0 after clear, got %d", b.Len())
	}
	if len(b.GetEntries(0)) != 0 {
		t.Error("expected no entries after clear")
	}
}

func TestRingBufferAddCopiesRecord(t *testing.T) {
	b := NewRingBuffer(2)
	r := Record{"k": "v"}
	b.Add(r)
	r["k"] = "mutated"

	entries := b.GetEntries(0)
	if entries[0]["k"] != "v" {
		t.Errorf("expected stored snapshot unaffected by later mutation, got %v", entries[0]["k"])
	}
}

func TestRingBufferLen(t *testing.T) {
	b := NewRingBuffer(5)
	if b.Len() != 0 {
		t.Errorf("expected 0, got %d", b.Len())
	}
	b.Add(Record{"i": 1})
	b.Add(Record{"i": 2})
	if b.Len() != 2 {
		t.Errorf("expected 2, got %d", b.Len())
	}
}
