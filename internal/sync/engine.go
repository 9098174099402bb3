package sync

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tempohq/tempo/internal/models"
	"github.com/tempohq/tempo/internal/timeline"
)

const (
	// defaultIncrementalLimit is the page size for a change-event
	// driven incremental fetch.
	defaultIncrementalLimit = 15
	// defaultPageSize is the page size for manual scroll pagination.
	defaultPageSize = 20
	// escalationThreshold is how many consecutive failures trigger
	// the fallback chain.
	escalationThreshold = 3
)

// Options tunes the engine. The zero value uses production defaults;
// tests inject millisecond schedules.
type Options struct {
	IncrementalLimit    int
	PageSize            int
	MaxRetryAttempts    int
	SyncTimeout         time.Duration
	RetryBackoff        []time.Duration
	HealthCheckInterval time.Duration
	EscalationThreshold int

	// Notifier receives advisory notifications; nil discards them.
	Notifier Notifier
	// Bookkeeper persists the watermark, history and day counts across
	// runs; nil disables persistence.
	Bookkeeper Bookkeeper
	// DisableHealthMonitor skips the background probe loop (one-shot
	// CLI syncs have no use for it).
	DisableHealthMonitor bool
}

// Engine is the sync orchestrator: it reacts to backend change events,
// drives incremental fetches through the retry layer, merges results
// into the timeline cache, advances the version watermark, and
// escalates sustained failure to the fallback chain. All recoverable
// failures are absorbed here; the presentation layer only ever sees
// advisory state.
type Engine struct {
	backend Backend
	events  EventSource
	opts    Options

	cache    *Cache
	state    *State
	fetcher  *fetcher
	health   *healthMonitor
	fallback *fallbackController

	// syncMu serializes sync cycles so merges from close-together
	// triggers cannot interleave.
	syncMu sync.Mutex

	atLatest     atomic.Bool
	bottomOffset atomic.Int64

	unsubscribe func()
	wg          sync.WaitGroup
	closeOnce   sync.Once
	done        chan struct{}
	started     bool
}

// Cache is re-exported so callers hold one type for the reactive
// snapshot surface.
type Cache = timeline.Cache

// New constructs an engine around the injected collaborators. Nothing
// runs until Start.
func New(backend Backend, events EventSource, opts Options) *Engine {
	if opts.IncrementalLimit <= 0 {
		opts.IncrementalLimit = defaultIncrementalLimit
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.EscalationThreshold <= 0 {
		opts.EscalationThreshold = escalationThreshold
	}

	cache := timeline.New()
	state := NewState()
	e := &Engine{
		backend:  backend,
		events:   events,
		opts:     opts,
		cache:    cache,
		state:    state,
		fetcher:  newFetcher(backend, state, opts.MaxRetryAttempts, opts.SyncTimeout, opts.RetryBackoff),
		fallback: newFallbackController(backend, cache, state),
		done:     make(chan struct{}),
	}
	if !opts.DisableHealthMonitor {
		e.health = newHealthMonitor(backend, state, opts.HealthCheckInterval, opts.SyncTimeout)
	}
	e.atLatest.Store(true)
	return e
}

// Start loads the persisted watermark, subscribes to change events and
// begins health probing.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return nil
	}
	e.started = true

	if e.opts.Bookkeeper != nil {
		if v, err := e.opts.Bookkeeper.LoadWatermark(); err != nil {
			slog.Warn("load persisted watermark", "err", err)
		} else {
			e.state.AdvanceWatermark(v)
		}
	}

	if e.events != nil {
		unsub, err := e.events.Subscribe(ctx, func(ev models.ChangeEvent) {
			e.handleChangeEvent(ctx, ev)
		})
		if err != nil {
			return err
		}
		e.unsubscribe = unsub
	}

	if e.health != nil {
		e.health.start()
	}
	return nil
}

// Close tears the engine down deterministically: the event
// subscription is removed, every retry timer and the health interval
// are cancelled, and background recounts are drained. After Close no
// late callback can touch the cache.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
		if e.health != nil {
			e.health.stop()
		}
		e.fetcher.close()
		// Drain any in-flight sync cycle before waiting: a cycle that
		// already passed the shutdown check must register its recount
		// goroutine before wg.Wait starts counting.
		e.syncMu.Lock()
		e.syncMu.Unlock()
		e.wg.Wait()
	})
}

// handleChangeEvent treats the event payload as a re-sync hint only;
// data is always re-fetched, never merged from the event body.
func (e *Engine) handleChangeEvent(ctx context.Context, ev models.ChangeEvent) {
	select {
	case <-e.done:
		return
	default:
	}
	if err := e.SyncOnce(ctx); err != nil {
		slog.Debug("change-event sync failed", "activity", ev.ActivityID, "err", err)
	}
}

// SyncOnce runs one incremental sync cycle: fetch everything newer
// than the watermark, merge it at the top of the cache, advance the
// watermark, and notify if the user is scrolled away from the live
// edge. Merging always happens; the notification is purely advisory.
//
// Failure below the escalation threshold is absorbed into a transient
// "retrying" notification. At the threshold the fallback chain runs,
// and the engine returns to an idle, responsive state regardless of
// its outcome.
func (e *Engine) SyncOnce(ctx context.Context) error {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	select {
	case <-e.done:
		return ErrEngineClosed
	default:
	}

	started := time.Now()
	since := e.state.Watermark()

	records, err := e.fetcher.fetchWithRetry(ctx, since, e.opts.IncrementalLimit)
	if err != nil {
		e.recordHistory(started, "incremental", 0, 0, err)
		e.handleSyncFailure(ctx)
		return err
	}
	if len(records) == 0 {
		e.recordHistory(started, "incremental", 0, 0, nil)
		return nil
	}

	// Records for already-cached ids are updates: route them through
	// replace so an edit lands in the right bucket. The rest merge in
	// as new activities.
	var fresh []models.ActivityRecord
	updated := 0
	for _, rec := range records {
		if changed, _ := e.cache.Replace(rec); changed {
			updated++
			continue
		}
		fresh = append(fresh, rec)
	}
	applied := e.cache.MergeTop(timeline.Bucketize(fresh))

	var maxVersion int64
	for _, rec := range records {
		if rec.Version > maxVersion {
			maxVersion = rec.Version
		}
	}
	e.state.AdvanceWatermark(maxVersion)
	e.persistWatermark()

	if applied > 0 && !e.atLatest.Load() {
		e.state.AddPending(applied)
		e.notify(Notification{
			ID:    uuid.NewString(),
			Kind:  NotificationNewActivities,
			Count: applied,
		})
	}

	e.recordHistory(started, "incremental", len(records), applied+updated, nil)
	e.recountDayTotals()
	slog.Debug("incremental sync applied",
		"fetched", len(records), "new", applied, "updated", updated,
		"watermark", e.state.Watermark())
	return nil
}

// handleSyncFailure decides between a transient notification and a
// fallback escalation. It never propagates an error upward.
func (e *Engine) handleSyncFailure(ctx context.Context) {
	snap := e.state.Get()
	if snap.ConsecutiveFailures < e.opts.EscalationThreshold {
		e.notify(Notification{ID: uuid.NewString(), Kind: NotificationRetrying})
		return
	}

	started := time.Now()
	if err := e.fallback.execute(ctx); err != nil {
		// Cache stays in its last consistent state; the next change
		// event or health tick retries the whole cycle.
		e.recordHistory(started, "fallback", 0, 0, err)
		slog.Warn("fallback chain exhausted", "err", err)
		return
	}
	e.persistWatermark()
	e.recordHistory(started, "fallback", 0, e.cache.ActivityCount(), nil)
	e.recountDayTotals()
}

// LoadMoreBottom pages older activities past the synced window using
// the point-in-time fetch. Returns how many activities were added.
func (e *Engine) LoadMoreBottom(ctx context.Context) (int, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	select {
	case <-e.done:
		return 0, ErrEngineClosed
	default:
	}

	offset := int(e.bottomOffset.Load())
	buckets, err := e.backend.FetchTimeline(ctx, e.opts.PageSize, offset)
	if err != nil {
		return 0, err
	}
	fetched := 0
	for _, b := range buckets {
		fetched += len(b.Activities)
	}
	e.bottomOffset.Add(int64(fetched))
	applied := e.cache.MergeBottom(buckets)
	e.recountDayTotals()
	return applied, nil
}

// LoadMoreTop refreshes the newest page, re-anchoring the window at
// the live edge after top-side eviction.
func (e *Engine) LoadMoreTop(ctx context.Context) (int, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	select {
	case <-e.done:
		return 0, ErrEngineClosed
	default:
	}

	buckets, err := e.backend.FetchTimeline(ctx, e.opts.PageSize, 0)
	if err != nil {
		return 0, err
	}
	applied := e.cache.MergeTop(buckets)
	e.state.AdvanceWatermark(maxBucketVersion(buckets))
	e.persistWatermark()
	e.recountDayTotals()
	return applied, nil
}

// DeleteActivity removes the record from the backend, then from the
// cache on success.
func (e *Engine) DeleteActivity(ctx context.Context, id string) (bool, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	select {
	case <-e.done:
		return false, ErrEngineClosed
	default:
	}

	deleted, err := e.backend.DeleteActivity(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		e.cache.RemoveByID(id)
		e.recountDayTotals()
	}
	return deleted, nil
}

// SetAtLatest records whether the user's view is anchored at the live
// edge. Returning to the edge acknowledges deferred updates.
func (e *Engine) SetAtLatest(atLatest bool) {
	e.atLatest.Store(atLatest)
	if atLatest {
		e.state.ClearPending()
	}
}

// Snapshot returns the cache contents for rendering.
func (e *Engine) Snapshot() []models.DayBucket {
	return e.cache.Snapshot()
}

// ActivityCount returns the number of cached activities.
func (e *Engine) ActivityCount() int {
	return e.cache.ActivityCount()
}

// State returns the current diagnostic sync state.
func (e *Engine) State() Snapshot {
	return e.state.Get()
}

// PendingRetryTimers reports in-flight retry timers; zero after Close.
func (e *Engine) PendingRetryTimers() int {
	return e.fetcher.pendingCount()
}

func (e *Engine) notify(n Notification) {
	if e.opts.Notifier != nil {
		e.opts.Notifier(n)
	}
}

func (e *Engine) persistWatermark() {
	if e.opts.Bookkeeper == nil {
		return
	}
	if err := e.opts.Bookkeeper.SaveWatermark(e.state.Watermark()); err != nil {
		slog.Warn("persist watermark", "err", err)
	}
}

func (e *Engine) recordHistory(started time.Time, kind string, fetched, applied int, err error) {
	if e.opts.Bookkeeper == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if herr := e.opts.Bookkeeper.AppendHistory(started, kind, fetched, applied, msg); herr != nil {
		slog.Warn("record sync history", "err", herr)
	}
}

// recountDayTotals refreshes the persisted per-date totals in the
// background. Fire-and-forget: failures are logged only.
func (e *Engine) recountDayTotals() {
	if e.opts.Bookkeeper == nil {
		return
	}
	totals := e.cache.DayTotals()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.opts.Bookkeeper.UpdateDayCounts(totals); err != nil {
			slog.Warn("recount day totals", "err", err)
		}
	}()
}
