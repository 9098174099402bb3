package store

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWatermarkRoundTrip(t *testing.T) {
	s := openTestStore(t)

	v, err := s.LoadWatermark()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if v != 0 {
		t.Errorf("fresh watermark: got %d, want 0", v)
	}

	if err := s.SaveWatermark(42); err != nil {
		t.Fatalf("save: %v", err)
	}
	v, err = s.LoadWatermark()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if v != 42 {
		t.Errorf("watermark: got %d, want 42", v)
	}
}

func TestOpenCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SaveWatermark(7); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	// Reopen and verify persistence.
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, err := s2.LoadWatermark()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if v != 7 {
		t.Errorf("watermark after reopen: got %d, want 7", v)
	}
}

func TestHistoryTail(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	for i, kind := range []string{"incremental", "incremental", "fallback"} {
		if err := s.AppendHistory(base.Add(time.Duration(i)*time.Minute), kind, i, i, ""); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := s.AppendHistory(base.Add(time.Hour), "incremental", 0, 0, "backend down"); err != nil {
		t.Fatalf("append failure row: %v", err)
	}

	entries, err := s.HistoryTail(2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	if entries[0].Error != "backend down" {
		t.Errorf("newest entry error: %q", entries[0].Error)
	}
	if entries[1].Kind != "fallback" {
		t.Errorf("second entry kind: %q", entries[1].Kind)
	}
	if entries[0].StartedAt.IsZero() {
		t.Error("timestamp not parsed")
	}
}

func TestDayCountsReplace(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpdateDayCounts(map[string]int{"2026-03-10": 5, "2026-03-09": 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateDayCounts(map[string]int{"2026-03-10": 6}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	totals, err := s.DayCounts()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(totals) != 1 || totals["2026-03-10"] != 6 {
		t.Errorf("totals: %v (stale rows should be replaced)", totals)
	}
}
