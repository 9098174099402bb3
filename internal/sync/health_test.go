package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/tempohq/tempo/internal/models"
)

func TestHealthMonitorImmediateProbe(t *testing.T) {
	backend := newFakeBackend()
	backend.incremental = []incrementalResult{
		{records: []models.ActivityRecord{rec("a1", testStart, 1)}},
	}
	state := NewState()
	h := newHealthMonitor(backend, state, time.Hour, time.Second)
	h.start()
	defer h.stop()

	waitFor(t, func() bool { return backend.incrementalCalls() >= 1 })
	snap := state.Get()
	if !snap.Healthy {
		t.Error("state unhealthy after successful startup probe")
	}
	if snap.LastSyncTime.IsZero() {
		t.Error("last sync time not updated by probe")
	}
}

func TestHealthMonitorFailureFlipsHealth(t *testing.T) {
	backend := newFakeBackend()
	backend.incremental = []incrementalResult{{err: errors.New("probe failed")}}
	state := NewState()
	h := newHealthMonitor(backend, state, 10*time.Millisecond, time.Second)
	h.start()
	defer h.stop()

	waitFor(t, func() bool { return state.Get().ConsecutiveFailures >= 2 })
	if state.Get().Healthy {
		t.Error("state healthy despite failing probes")
	}
}

func TestHealthMonitorRecovery(t *testing.T) {
	backend := newFakeBackend()
	backend.incremental = []incrementalResult{
		{err: errors.New("probe failed")},
		{records: nil}, // second and later probes succeed
	}
	state := NewState()
	h := newHealthMonitor(backend, state, 10*time.Millisecond, time.Second)
	h.start()
	defer h.stop()

	waitFor(t, func() bool {
		snap := state.Get()
		return snap.Healthy && snap.ConsecutiveFailures == 0 && backend.incrementalCalls() >= 2
	})
}

func TestHealthMonitorStopHaltsProbes(t *testing.T) {
	backend := newFakeBackend()
	backend.incremental = []incrementalResult{{}}
	state := NewState()
	h := newHealthMonitor(backend, state, 5*time.Millisecond, time.Second)
	h.start()
	waitFor(t, func() bool { return backend.incrementalCalls() >= 2 })
	h.stop()

	calls := backend.incrementalCalls()
	time.Sleep(30 * time.Millisecond)
	if backend.incrementalCalls() != calls {
		t.Error("probes continued after stop")
	}

	// stop is idempotent
	h.stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never met")
		case <-time.After(time.Millisecond):
		}
	}
}
