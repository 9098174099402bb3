package models

import (
	"encoding/json"
	"time"
)

// ActivityRecord is a single synthesized activity on the timeline.
// Records are immutable once merged; the backend replaces them by ID
// when an activity is edited. Version is assigned by the backend and is
// the sole ordering key for incremental sync (not StartTime).
type ActivityRecord struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Version        int64     `json:"version"`
	SourceEventIDs []string  `json:"source_event_ids,omitempty"`
}

// Day returns the calendar date (local time, YYYY-MM-DD) the record
// belongs to. Bucketing is derived from StartTime only.
func (a ActivityRecord) Day() string {
	return a.StartTime.Local().Format("2006-01-02")
}

// DayBucket groups the activities of one calendar date.
// Activities are sorted descending by StartTime.
type DayBucket struct {
	Date       string           `json:"date"`
	Activities []ActivityRecord `json:"activities"`
}

// ChangeEvent is a backend change notification. The payload is a hint
// to re-sync, never authoritative data: the engine always re-fetches
// instead of merging the event body.
type ChangeEvent struct {
	ActivityID string          `json:"activity_id"`
	Data       json.RawMessage `json:"data,omitempty"`
}
