package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tempohq/tempo/internal/models"
	"github.com/tempohq/tempo/internal/timeline"
)

func bucket(date time.Time, recs ...models.ActivityRecord) models.DayBucket {
	return models.DayBucket{Date: date.Local().Format("2006-01-02"), Activities: recs}
}

func TestFallbackPartialRefreshFirst(t *testing.T) {
	backend := newFakeBackend()
	backend.timeline = []timelineResult{
		{buckets: []models.DayBucket{bucket(testStart, rec("a1", testStart, 4))}},
	}
	cache := timeline.New()
	state := NewState()
	f := newFallbackController(backend, cache, state)

	if err := f.execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if backend.timelineCalls != 1 {
		t.Errorf("timeline calls: got %d, want 1 (partial refresh only)", backend.timelineCalls)
	}
	if cache.ActivityCount() != 1 {
		t.Errorf("cache activities: got %d, want 1", cache.ActivityCount())
	}
	if state.Watermark() != 4 {
		t.Errorf("watermark: got %d, want 4", state.Watermark())
	}
	if snap := state.Get(); !snap.Healthy {
		t.Error("successful fallback should restore health")
	}
}

func TestFallbackOrderingPartialFailsFullSucceeds(t *testing.T) {
	backend := newFakeBackend()
	backend.timeline = []timelineResult{
		{err: errors.New("partial refresh failed")},
		{buckets: []models.DayBucket{bucket(testStart, rec("a2", testStart, 8))}},
	}
	cache := timeline.New()
	state := NewState()
	state.AdvanceWatermark(99)
	f := newFallbackController(backend, cache, state)

	if err := f.execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	// Partial refresh then full refresh; data-cleanup never invoked.
	if backend.timelineCalls != 2 {
		t.Fatalf("timeline calls: got %d, want 2", backend.timelineCalls)
	}
	// Full refresh resets the watermark before re-advancing from the batch.
	if state.Watermark() != 8 {
		t.Errorf("watermark: got %d, want 8", state.Watermark())
	}
	if cache.ActivityCount() != 1 {
		t.Errorf("cache activities: got %d, want 1", cache.ActivityCount())
	}
}

func TestFallbackDataCleanupClearsCache(t *testing.T) {
	backend := newFakeBackend()
	backend.timeline = []timelineResult{
		{err: errors.New("partial failed")},
		{err: errors.New("full failed")},
		{buckets: []models.DayBucket{bucket(testStart, rec("fresh", testStart, 2))}},
	}
	cache := timeline.New()
	cache.MergeTop([]models.DayBucket{bucket(testStart.AddDate(0, 0, -1), rec("stale", testStart.AddDate(0, 0, -1), 1))})
	state := NewState()
	state.AdvanceWatermark(50)
	state.AddPending(3)
	f := newFallbackController(backend, cache, state)

	if err := f.execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if backend.timelineCalls != 3 {
		t.Fatalf("timeline calls: got %d, want 3", backend.timelineCalls)
	}
	snap := cache.Snapshot()
	if len(snap) != 1 || snap[0].Activities[0].ID != "fresh" {
		t.Errorf("cache not reset to minimal reload: %+v", snap)
	}
	if state.Watermark() != 2 {
		t.Errorf("watermark: got %d, want 2", state.Watermark())
	}
	if state.Get().PendingUpdates != 0 {
		t.Error("pending updates survived data cleanup")
	}
}

func TestFallbackAllStrategiesFail(t *testing.T) {
	backend := newFakeBackend()
	lastErr := errors.New("cleanup reload failed")
	backend.timeline = []timelineResult{
		{err: errors.New("partial failed")},
		{err: errors.New("full failed")},
		{err: lastErr},
	}
	cache := timeline.New()
	f := newFallbackController(backend, cache, NewState())

	err := f.execute(context.Background())
	if !errors.Is(err, lastErr) {
		t.Fatalf("error: got %v, want last strategy's error", err)
	}
}

func TestFallbackSerializedExecution(t *testing.T) {
	backend := newFakeBackend()
	release := make(chan struct{})
	slow := &slowTimelineFetcher{backend: backend, release: release, started: make(chan struct{})}
	backend.timeline = []timelineResult{
		{buckets: []models.DayBucket{bucket(testStart, rec("a1", testStart, 1))}},
	}
	f := newFallbackController(slow, timeline.New(), NewState())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.execute(context.Background())
	}()

	<-slow.started
	// Second escalation while the first is in flight is dropped.
	if err := f.execute(context.Background()); err != nil {
		t.Errorf("dropped escalation returned error: %v", err)
	}
	close(release)
	wg.Wait()

	if slow.calls != 1 {
		t.Errorf("fetch calls: got %d, want 1 (second chain dropped)", slow.calls)
	}
}

type slowTimelineFetcher struct {
	backend     *fakeBackend
	release     chan struct{}
	started     chan struct{}
	calls       int
	startedOnce sync.Once
}

func (s *slowTimelineFetcher) FetchTimeline(ctx context.Context, limit, offset int) ([]models.DayBucket, error) {
	s.calls++
	s.startedOnce.Do(func() {
		if s.started != nil {
			close(s.started)
		}
	})
	<-s.release
	return s.backend.FetchTimeline(ctx, limit, offset)
}
