package timeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tempohq/tempo/internal/models"
)

// MaxTimelineItems caps how many day buckets the cache holds. Overflow
// is trimmed from whichever edge is opposite the most recent growth.
const MaxTimelineItems = 100

// edge marks which end of the cache grew last.
type edge int

const (
	edgeTop edge = iota
	edgeBottom
)

// Cache is the bounded in-memory timeline: an ordered sequence of day
// buckets, most recent date first, each bucket's activities unique by
// ID and sorted descending by StartTime. It is the single source of
// truth rendered by the UI; all mutation goes through the methods
// below, which are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	buckets []models.DayBucket
	byID    map[string]string // activity ID -> bucket date
	growth  edge
	cap     int
}

// New creates an empty cache with the default bucket cap.
func New() *Cache {
	return NewWithCap(MaxTimelineItems)
}

// NewWithCap creates an empty cache holding at most maxBuckets days.
func NewWithCap(maxBuckets int) *Cache {
	return &Cache{
		byID: make(map[string]string),
		cap:  maxBuckets,
	}
}

// Bucketize groups records into day buckets sorted descending by date,
// activities descending by StartTime. Duplicate IDs within the input
// keep the first occurrence.
func Bucketize(records []models.ActivityRecord) []models.DayBucket {
	byDate := make(map[string][]models.ActivityRecord)
	seen := make(map[string]bool)
	for _, rec := range records {
		if rec.ID == "" || seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		day := rec.Day()
		byDate[day] = append(byDate[day], rec)
	}

	buckets := make([]models.DayBucket, 0, len(byDate))
	for date, acts := range byDate {
		sortActivities(acts)
		buckets = append(buckets, models.DayBucket{Date: date, Activities: acts})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Date > buckets[j].Date })
	return buckets
}

// MergeTop merges newer day buckets into the cache. Returns how many
// activities were inserted. Already-present IDs are skipped, so
// re-merging the same batch is a no-op.
func (c *Cache) MergeTop(batch []models.DayBucket) int {
	return c.merge(batch, edgeTop)
}

// MergeBottom merges older day buckets into the cache. Returns how
// many activities were inserted.
func (c *Cache) MergeBottom(batch []models.DayBucket) int {
	return c.merge(batch, edgeBottom)
}

func (c *Cache) merge(batch []models.DayBucket, dir edge) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	inserted := 0
	for _, in := range batch {
		if in.Date == "" {
			continue
		}
		fresh := make([]models.ActivityRecord, 0, len(in.Activities))
		for _, rec := range in.Activities {
			if rec.ID == "" {
				continue
			}
			if _, ok := c.byID[rec.ID]; ok {
				continue
			}
			fresh = append(fresh, rec)
		}
		if len(fresh) == 0 {
			continue
		}

		idx := c.bucketIndex(in.Date)
		if idx < 0 {
			bucket := models.DayBucket{Date: in.Date, Activities: fresh}
			sortActivities(bucket.Activities)
			c.buckets = append(c.buckets, bucket)
		} else {
			acts := c.buckets[idx].Activities
			if dir == edgeTop {
				acts = append(fresh, acts...)
			} else {
				acts = append(acts, fresh...)
			}
			sortActivities(acts)
			c.buckets[idx].Activities = acts
		}
		for _, rec := range fresh {
			c.byID[rec.ID] = in.Date
		}
		inserted += len(fresh)
	}

	sort.Slice(c.buckets, func(i, j int) bool { return c.buckets[i].Date > c.buckets[j].Date })
	c.growth = dir
	c.trimLocked()
	c.assertInvariantsLocked()
	return inserted
}

// trimLocked enforces the bucket cap, evicting from the edge opposite
// the most recent growth so the window slides with the user.
func (c *Cache) trimLocked() {
	for len(c.buckets) > c.cap {
		var victim models.DayBucket
		if c.growth == edgeTop {
			victim = c.buckets[len(c.buckets)-1]
			c.buckets = c.buckets[:len(c.buckets)-1]
		} else {
			victim = c.buckets[0]
			c.buckets = c.buckets[1:]
		}
		for _, rec := range victim.Activities {
			delete(c.byID, rec.ID)
		}
	}
}

// Replace updates an existing activity in place. If the update moved
// the record across a day boundary (a midnight-spanning edit), it is
// removed from its old bucket and inserted into the bucket for its new
// date, creating or deleting buckets as needed.
// Returns whether anything changed and whether the date changed.
func (c *Cache) Replace(updated models.ActivityRecord) (changed, dateChanged bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldDate, ok := c.byID[updated.ID]
	if !ok {
		return false, false
	}
	newDate := updated.Day()

	if oldDate == newDate {
		idx := c.bucketIndex(oldDate)
		acts := c.buckets[idx].Activities
		for i := range acts {
			if acts[i].ID == updated.ID {
				acts[i] = updated
				break
			}
		}
		sortActivities(acts)
		c.assertInvariantsLocked()
		return true, false
	}

	c.removeLocked(updated.ID)
	idx := c.bucketIndex(newDate)
	if idx < 0 {
		c.buckets = append(c.buckets, models.DayBucket{Date: newDate})
		sort.Slice(c.buckets, func(i, j int) bool { return c.buckets[i].Date > c.buckets[j].Date })
		idx = c.bucketIndex(newDate)
	}
	c.buckets[idx].Activities = append(c.buckets[idx].Activities, updated)
	sortActivities(c.buckets[idx].Activities)
	c.byID[updated.ID] = newDate
	// Creating the target bucket can push the cache past its cap; trim
	// from the edge opposite the insertion, like a merge would.
	if idx == len(c.buckets)-1 {
		c.growth = edgeBottom
	} else {
		c.growth = edgeTop
	}
	c.trimLocked()
	c.assertInvariantsLocked()
	return true, true
}

// RemoveByID deletes an activity from whichever bucket holds it,
// dropping the bucket if it becomes empty. Returns whether it existed.
func (c *Cache) RemoveByID(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.removeLocked(id)
	if ok {
		c.assertInvariantsLocked()
	}
	return ok
}

func (c *Cache) removeLocked(id string) bool {
	date, ok := c.byID[id]
	if !ok {
		return false
	}
	idx := c.bucketIndex(date)
	acts := c.buckets[idx].Activities
	for i := range acts {
		if acts[i].ID == id {
			c.buckets[idx].Activities = append(acts[:i:i], acts[i+1:]...)
			break
		}
	}
	if len(c.buckets[idx].Activities) == 0 {
		c.buckets = append(c.buckets[:idx:idx], c.buckets[idx+1:]...)
	}
	delete(c.byID, id)
	return true
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets = nil
	c.byID = make(map[string]string)
}

// Snapshot returns a deep copy of the current buckets for rendering.
func (c *Cache) Snapshot() []models.DayBucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.DayBucket, len(c.buckets))
	for i, b := range c.buckets {
		acts := make([]models.ActivityRecord, len(b.Activities))
		copy(acts, b.Activities)
		out[i] = models.DayBucket{Date: b.Date, Activities: acts}
	}
	return out
}

// Len returns the current bucket count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// ActivityCount returns the total number of cached activities.
func (c *Cache) ActivityCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// MaxVersion returns the highest activity version in the cache, or 0
// when empty.
func (c *Cache) MaxVersion() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var max int64
	for _, b := range c.buckets {
		for _, rec := range b.Activities {
			if rec.Version > max {
				max = rec.Version
			}
		}
	}
	return max
}

// DayTotals returns the number of activities per cached date.
func (c *Cache) DayTotals() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	totals := make(map[string]int, len(c.buckets))
	for _, b := range c.buckets {
		totals[b.Date] = len(b.Activities)
	}
	return totals
}

func (c *Cache) bucketIndex(date string) int {
	for i := range c.buckets {
		if c.buckets[i].Date == date {
			return i
		}
	}
	return -1
}

func sortActivities(acts []models.ActivityRecord) {
	sort.SliceStable(acts, func(i, j int) bool {
		return acts[i].StartTime.After(acts[j].StartTime)
	})
}

// assertInvariantsLocked panics on a corrupted cache. A violation here
// is a programming error in the mutation paths, not a recoverable
// runtime condition.
func (c *Cache) assertInvariantsLocked() {
	if len(c.buckets) > c.cap {
		panic(fmt.Sprintf("timeline: bucket count %d exceeds cap %d", len(c.buckets), c.cap))
	}
	seen := make(map[string]bool, len(c.byID))
	for i, b := range c.buckets {
		if i > 0 && c.buckets[i-1].Date <= b.Date {
			panic(fmt.Sprintf("timeline: buckets out of order at %q", b.Date))
		}
		for _, rec := range b.Activities {
			if seen[rec.ID] {
				panic(fmt.Sprintf("timeline: duplicate activity id %q", rec.ID))
			}
			seen[rec.ID] = true
		}
	}
}
