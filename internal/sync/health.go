package sync

import (
	"context"
	"log/slog"
	"time"
)

// HealthCheckInterval is how often the sync channel is probed
// independently of user activity.
const HealthCheckInterval = 30 * time.Second

// healthMonitor periodically issues a minimal incremental fetch
// (limit 1) against the current watermark to classify the sync channel
// as healthy or unhealthy. It never triggers fallback itself; it only
// feeds the shared failure counter the orchestrator escalates on.
type healthMonitor struct {
	source   IncrementalSource
	state    *State
	interval time.Duration
	timeout  time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

func newHealthMonitor(source IncrementalSource, state *State, interval, timeout time.Duration) *healthMonitor {
	if interval <= 0 {
		interval = HealthCheckInterval
	}
	if timeout <= 0 {
		timeout = SyncTimeout
	}
	return &healthMonitor{
		source:   source,
		state:    state,
		interval: interval,
		timeout:  timeout,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// start launches the probe loop: one immediate probe, then one per
// interval until stop.
func (h *healthMonitor) start() {
	go h.run()
}

func (h *healthMonitor) run() {
	defer close(h.stopped)
	h.probe()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.probe()
		case <-h.done:
			return
		}
	}
}

// probe is a single attempt with no retries; a failed probe just
// flips the health flag and bumps the failure streak.
func (h *healthMonitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	_, err := h.source.FetchIncremental(ctx, h.state.Watermark(), 1)
	if err != nil {
		failures := h.state.MarkFailure()
		slog.Warn("sync health probe failed", "consecutive_failures", failures, "err", err)
		return
	}
	h.state.MarkSuccess(time.Now())
	slog.Debug("sync health probe ok")
}

// stop cancels the probe timer and waits for the loop to exit.
func (h *healthMonitor) stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	<-h.stopped
}
