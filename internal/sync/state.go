package sync

import (
	"sync"
	"time"
)

// State is the single sync bookkeeping record shared by the fetcher,
// the health monitor and the orchestrator. Consolidating the failure
// counter here keeps every component reading the same snapshot instead
// of racing on independent counters.
type State struct {
	mu                  sync.Mutex
	healthy             bool
	lastSyncTime        time.Time
	consecutiveFailures int
	pendingUpdates      int
	watermark           int64
}

// Snapshot is a point-in-time copy of State for display and decisions.
type Snapshot struct {
	Healthy             bool      `json:"healthy"`
	LastSyncTime        time.Time `json:"last_sync_time"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	PendingUpdates      int       `json:"pending_updates"`
	Watermark           int64     `json:"watermark"`
}

// NewState creates a State that starts healthy with a zero watermark.
func NewState() *State {
	return &State{healthy: true}
}

// MarkSuccess records a successful fetch: the channel is healthy, the
// failure streak is over.
func (s *State) MarkSuccess(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = true
	s.consecutiveFailures = 0
	s.lastSyncTime = now
}

// MarkFailure records a failed fetch cycle and returns the new
// consecutive failure count.
func (s *State) MarkFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = false
	s.consecutiveFailures++
	return s.consecutiveFailures
}

// Watermark returns the highest backend revision incorporated so far.
func (s *State) Watermark() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

// AdvanceWatermark moves the watermark forward to v. It never
// regresses: a smaller v leaves the watermark unchanged. Returns the
// effective watermark.
func (s *State) AdvanceWatermark(v int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.watermark {
		s.watermark = v
	}
	return s.watermark
}

// ResetWatermark drops the watermark to zero. Only the fallback
// controller's full-refresh and data-cleanup strategies call this.
func (s *State) ResetWatermark() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermark = 0
}

// AddPending adds n deferred activities awaiting user acknowledgement.
func (s *State) AddPending(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingUpdates += n
}

// ClearPending resets the deferred-update counter, typically when the
// user scrolls back to the live edge.
func (s *State) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingUpdates = 0
}

// Get returns a consistent snapshot of the whole record.
func (s *State) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Healthy:             s.healthy,
		LastSyncTime:        s.lastSyncTime,
		ConsecutiveFailures: s.consecutiveFailures,
		PendingUpdates:      s.pendingUpdates,
		Watermark:           s.watermark,
	}
}
