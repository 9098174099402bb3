package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tempohq/tempo/internal/models"
)

const (
	// MaxRetryAttempts bounds how many times a single incremental
	// fetch is tried before the failure escalates.
	MaxRetryAttempts = 3
	// SyncTimeout is the per-attempt deadline for network-bound calls.
	SyncTimeout = 10 * time.Second
)

// defaultRetryBackoff is the delay before attempt N+1. The schedule is
// fixed, not jittered.
var defaultRetryBackoff = []time.Duration{
	1000 * time.Millisecond,
	2000 * time.Millisecond,
	4000 * time.Millisecond,
}

var (
	// ErrSyncTimeout marks an attempt that exceeded SyncTimeout.
	ErrSyncTimeout = errors.New("sync timed out")
	// ErrEngineClosed is returned by operations after Close.
	ErrEngineClosed = errors.New("sync engine closed")
)

// fetcher wraps the incremental-fetch collaborator with a per-attempt
// timeout race and a fixed retry/backoff schedule. Every scheduled
// retry is registered under a unique operation ID so teardown can
// cancel all in-flight timers deterministically.
type fetcher struct {
	source   IncrementalSource
	state    *State
	attempts int
	timeout  time.Duration
	backoff  []time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	done    chan struct{}
	closed  bool
}

func newFetcher(source IncrementalSource, state *State, attempts int, timeout time.Duration, backoff []time.Duration) *fetcher {
	if attempts <= 0 {
		attempts = MaxRetryAttempts
	}
	if timeout <= 0 {
		timeout = SyncTimeout
	}
	if len(backoff) == 0 {
		backoff = defaultRetryBackoff
	}
	return &fetcher{
		source:   source,
		state:    state,
		attempts: attempts,
		timeout:  timeout,
		backoff:  backoff,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
}

// fetchWithRetry runs up to f.attempts attempts, sleeping the backoff
// schedule between failures. Success resets the shared failure
// counter; exhausting every attempt marks the channel unhealthy and
// returns the final attempt's error. Cancellation and engine shutdown
// abort without touching the failure counter: tearing down a sync is
// not a channel fault.
func (f *fetcher) fetchWithRetry(ctx context.Context, sinceVersion int64, limit int) ([]models.ActivityRecord, error) {
	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		records, err := f.attemptOnce(ctx, sinceVersion, limit)
		if err == nil {
			f.state.MarkSuccess(time.Now())
			return records, nil
		}
		if isAbort(err) {
			return nil, err
		}
		lastErr = err
		slog.Debug("incremental fetch attempt failed",
			"attempt", attempt+1, "since", sinceVersion, "err", err)

		if attempt == f.attempts-1 {
			break
		}
		delay := f.backoff[attempt%len(f.backoff)]
		if err := f.waitRetry(ctx, delay); err != nil {
			return nil, err
		}
	}

	failures := f.state.MarkFailure()
	slog.Warn("incremental fetch exhausted retries",
		"since", sinceVersion, "consecutive_failures", failures, "err", lastErr)
	return nil, lastErr
}

// isAbort reports whether an attempt ended because the caller or the
// engine gave up, as opposed to the channel faulting. Per-attempt
// timeouts stay faults.
func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrEngineClosed)
}

// attemptOnce races a single collaborator call against the timeout. A
// timeout is a per-attempt failure, not a fatal error.
func (f *fetcher) attemptOnce(ctx context.Context, sinceVersion int64, limit int) ([]models.ActivityRecord, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	type result struct {
		records []models.ActivityRecord
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		records, err := f.source.FetchIncremental(attemptCtx, sinceVersion, limit)
		ch <- result{records, err}
	}()

	select {
	case r := <-ch:
		if errors.Is(r.err, context.DeadlineExceeded) {
			return nil, ErrSyncTimeout
		}
		return r.records, r.err
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrSyncTimeout
		}
		return nil, attemptCtx.Err()
	case <-f.done:
		return nil, ErrEngineClosed
	}
}

// waitRetry blocks for the backoff delay. The timer lives in the
// pending set for its whole lifetime so Close can cancel it.
func (f *fetcher) waitRetry(ctx context.Context, delay time.Duration) error {
	opID := uuid.NewString()
	timer := time.NewTimer(delay)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		timer.Stop()
		return ErrEngineClosed
	}
	f.pending[opID] = timer
	f.mu.Unlock()

	defer func() {
		timer.Stop()
		f.mu.Lock()
		delete(f.pending, opID)
		f.mu.Unlock()
	}()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return ErrEngineClosed
	}
}

// pendingCount reports in-flight retry timers; zero after close.
func (f *fetcher) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// close cancels every scheduled retry and fails in-flight attempts.
func (f *fetcher) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for id, timer := range f.pending {
		timer.Stop()
		delete(f.pending, id)
	}
	f.mu.Unlock()
	close(f.done)
}
