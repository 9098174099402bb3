package sync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tempohq/tempo/internal/models"
	"github.com/tempohq/tempo/internal/timeline"
)

// Fallback page sizes, cheapest strategy first.
const (
	partialRefreshLimit = 20
	fullRefreshLimit    = 50
	cleanupReloadLimit  = 15
)

// fallbackController runs the ordered recovery chain when incremental
// sync fails repeatedly: partial refresh, then full refresh, then cache
// reset with a minimal reload. The first strategy that succeeds stops
// the chain; only the last strategy's error propagates.
type fallbackController struct {
	source  TimelineFetcher
	cache   *timeline.Cache
	state   *State
	running atomic.Bool
}

func newFallbackController(source TimelineFetcher, cache *timeline.Cache, state *State) *fallbackController {
	return &fallbackController{source: source, cache: cache, state: state}
}

// execute runs the chain. At most one execution is in flight; a second
// escalation arriving mid-chain is dropped, since the outcome of the
// first determines whether another is still needed.
func (f *fallbackController) execute(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		slog.Debug("fallback chain already running, dropping escalation")
		return nil
	}
	defer f.running.Store(false)

	strategies := []struct {
		name string
		run  func(context.Context) error
	}{
		{"partial-refresh", f.partialRefresh},
		{"full-refresh", f.fullRefresh},
		{"data-cleanup", f.dataCleanup},
	}

	var lastErr error
	for _, s := range strategies {
		err := s.run(ctx)
		if err == nil {
			slog.Info("fallback recovered sync", "strategy", s.name)
			f.state.MarkSuccess(time.Now())
			return nil
		}
		lastErr = err
		slog.Warn("fallback strategy failed", "strategy", s.name, "err", err)
	}
	return lastErr
}

// partialRefresh merges a small recent page as a bottom batch. Least
// disruptive: existing cache entries are untouched.
func (f *fallbackController) partialRefresh(ctx context.Context) error {
	buckets, err := f.source.FetchTimeline(ctx, partialRefreshLimit, 0)
	if err != nil {
		return err
	}
	f.cache.MergeBottom(buckets)
	f.state.AdvanceWatermark(maxBucketVersion(buckets))
	return nil
}

// fullRefresh resets the watermark and refetches a larger working set
// from scratch, without clearing what is already cached.
func (f *fallbackController) fullRefresh(ctx context.Context) error {
	f.state.ResetWatermark()
	buckets, err := f.source.FetchTimeline(ctx, fullRefreshLimit, 0)
	if err != nil {
		return err
	}
	f.cache.MergeTop(buckets)
	f.state.AdvanceWatermark(maxBucketVersion(buckets))
	return nil
}

// dataCleanup is the strategy of last resort: drop all cached view
// state and reload a minimal page for a guaranteed-consistent restart.
func (f *fallbackController) dataCleanup(ctx context.Context) error {
	f.cache.Clear()
	f.state.ResetWatermark()
	f.state.ClearPending()
	buckets, err := f.source.FetchTimeline(ctx, cleanupReloadLimit, 0)
	if err != nil {
		return err
	}
	f.cache.MergeTop(buckets)
	f.state.AdvanceWatermark(maxBucketVersion(buckets))
	return nil
}

func maxBucketVersion(buckets []models.DayBucket) int64 {
	var max int64
	for _, b := range buckets {
		for _, rec := range b.Activities {
			if rec.Version > max {
				max = rec.Version
			}
		}
	}
	return max
}
