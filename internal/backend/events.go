package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tempohq/tempo/internal/models"
)

// EventStream subscribes to the service's change-event WebSocket. The
// service pushes {activity_id, data?} messages whenever the activity
// log changes; consumers treat them as re-sync hints only.
type EventStream struct {
	BaseURL string
	APIKey  string
}

// NewEventStream creates a stream against the given service base URL.
func NewEventStream(baseURL, apiKey string) *EventStream {
	return &EventStream{BaseURL: baseURL, APIKey: apiKey}
}

// Subscribe dials the event socket and delivers each change event to
// fn from a single reader goroutine. The returned stop function closes
// the socket and waits for delivery to halt before returning.
func (s *EventStream) Subscribe(ctx context.Context, fn func(models.ChangeEvent)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	opts := &websocket.DialOptions{}
	if s.APIKey != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + s.APIKey}}
	}
	conn, _, err := websocket.Dial(ctx, wsURL(s.BaseURL)+"/v1/events", opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial event stream: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var ev models.ChangeEvent
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				if ctx.Err() == nil {
					slog.Warn("event stream closed", "err", err)
				}
				return
			}
			fn(ev)
		}
	}()

	stop := func() {
		cancel()
		conn.Close(websocket.StatusNormalClosure, "client shutdown")
		<-done
	}
	return stop, nil
}

// wsURL rewrites an http(s) base URL to its ws(s) equivalent.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
