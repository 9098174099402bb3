package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tempohq/tempo/internal/models"
)

func TestEventStreamDeliversEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/events" {
			t.Errorf("path: %s", r.URL.Path)
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		wsjson.Write(ctx, conn, models.ChangeEvent{ActivityID: "a1"})
		wsjson.Write(ctx, conn, models.ChangeEvent{ActivityID: "a2"})
		// Hold the socket open until the client hangs up.
		conn.Reader(ctx)
	}))
	defer srv.Close()

	stream := NewEventStream(srv.URL, "")
	got := make(chan models.ChangeEvent, 4)
	stop, err := stream.Subscribe(context.Background(), func(ev models.ChangeEvent) {
		got <- ev
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for _, want := range []string{"a1", "a2"} {
		select {
		case ev := <-got:
			if ev.ActivityID != want {
				t.Errorf("event: got %q, want %q", ev.ActivityID, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("event %q never delivered", want)
		}
	}

	stop()
	// After stop, no further deliveries.
	select {
	case ev := <-got:
		t.Errorf("unexpected event after stop: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventStreamDialFailure(t *testing.T) {
	stream := NewEventStream("http://127.0.0.1:1", "")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := stream.Subscribe(ctx, func(models.ChangeEvent) {}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestEventStreamStopIsDeterministic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		conn.Reader(r.Context())
	}))
	defer srv.Close()

	stream := NewEventStream(srv.URL, "")
	stop, err := stream.Subscribe(context.Background(), func(models.ChangeEvent) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}
