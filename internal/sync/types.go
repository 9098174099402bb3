package sync

import (
	"context"
	"time"

	"github.com/tempohq/tempo/internal/models"
)

// TimelineFetcher is the point-in-time page fetch: newest-first
// day-grouped activities, snapshot semantics assumed.
type TimelineFetcher interface {
	FetchTimeline(ctx context.Context, limit, offset int) ([]models.DayBucket, error)
}

// IncrementalSource returns activities with version > sinceVersion, up
// to limit, in no particular order (the engine re-sorts).
type IncrementalSource interface {
	FetchIncremental(ctx context.Context, sinceVersion int64, limit int) ([]models.ActivityRecord, error)
}

// ActivityDeleter deletes an activity by ID. The bool reports whether
// the backend actually held the record.
type ActivityDeleter interface {
	DeleteActivity(ctx context.Context, id string) (bool, error)
}

// Backend is the full collaborator surface the engine consumes.
type Backend interface {
	TimelineFetcher
	IncrementalSource
	ActivityDeleter
}

// EventSource delivers backend change notifications. Subscribe returns
// a stop function that must unregister the handler and halt delivery
// before returning.
type EventSource interface {
	Subscribe(ctx context.Context, fn func(models.ChangeEvent)) (func(), error)
}

// NotificationKind classifies user-visible sync notifications.
type NotificationKind string

const (
	// NotificationNewActivities reports deferred updates merged while
	// the user was scrolled away from the live edge.
	NotificationNewActivities NotificationKind = "new-activities"
	// NotificationRetrying reports a transient sync failure that is
	// being retried in the background.
	NotificationRetrying NotificationKind = "retrying"
)

// Notification is advisory state surfaced to the presentation layer.
// It never gates merging: the cache is updated regardless.
type Notification struct {
	ID    string
	Kind  NotificationKind
	Count int
}

// Notifier receives notifications. It must not block.
type Notifier func(Notification)

// Bookkeeper persists sync bookkeeping between runs. All methods are
// optional conveniences: the engine treats errors as non-fatal.
type Bookkeeper interface {
	LoadWatermark() (int64, error)
	SaveWatermark(v int64) error
	AppendHistory(startedAt time.Time, kind string, fetched, applied int, errMsg string) error
	UpdateDayCounts(totals map[string]int) error
}
