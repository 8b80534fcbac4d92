// Package window implements spike detection: events are bucketed by
// (location, category) inside a sliding time window, and a bucket that
// reaches the event threshold escalates to an Alert.
package window

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crisiswatch/crisiswatch/classify"
	"github.com/crisiswatch/crisiswatch/post"
)

// bucketKey identifies one aggregation bucket.
type bucketKey struct {
	location string
	category string
}

// entry is the per-event data retained inside the window.
type entry struct {
	at         time.Time
	id         string
	severity   post.Severity
	confidence float64
}

// bucket holds the windowed entries for one (location, category) pair.
type bucket struct {
	entries   []entry // ordered by insertion time
	lastAlert time.Time
}

// Detector aggregates events into sliding-window buckets and escalates
// alerts when event density crosses the threshold. Safe for concurrent
// use.
type Detector struct {
	mu        sync.Mutex
	window    time.Duration
	minEvents int
	cooldown  time.Duration
	buckets   map[bucketKey]*bucket

	now func() time.Time // swapped in tests
}

// NewDetector creates a Detector. An alert fires when minEvents events for
// the same (location, category) land inside window. After firing, the
// bucket is silent for cooldown so a sustained spike produces one alert
// per cooldown rather than one per post.
func NewDetector(window time.Duration, minEvents int, cooldown time.Duration) *Detector {
	if window <= 0 {
		window = time.Hour
	}
	if minEvents < 1 {
		minEvents = 3
	}
	if cooldown <= 0 {
		cooldown = window
	}
	return &Detector{
		window:    window,
		minEvents: minEvents,
		cooldown:  cooldown,
		buckets:   make(map[bucketKey]*bucket),
		now:       time.Now,
	}
}

// Add places the event in its bucket and returns an Alert if the bucket
// crossed the threshold. Events in the unknown-location bucket are
// tracked but never escalate.
func (d *Detector) Add(e post.Event) (post.Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	key := bucketKey{location: e.Location, category: e.Category}
	b, ok := d.buckets[key]
	if !ok {
		b = &bucket{}
		d.buckets[key] = b
	}

	b.trim(now.Add(-d.window))
	b.entries = append(b.entries, entry{
		at:         now,
		id:         e.ID,
		severity:   e.Severity,
		confidence: e.Confidence,
	})

	if e.Location == classify.UnknownLocation {
		return post.Alert{}, false
	}
	if len(b.entries) < d.minEvents {
		return post.Alert{}, false
	}
	if !b.lastAlert.IsZero() && now.Sub(b.lastAlert) < d.cooldown {
		return post.Alert{}, false
	}

	b.lastAlert = now
	return d.buildAlert(key, b, now), true
}

// buildAlert assembles the Alert for a bucket. Severity is the max over
// member events, confidence the mean. Caller holds d.mu.
func (d *Detector) buildAlert(key bucketKey, b *bucket, now time.Time) post.Alert {
	severity := post.SeverityLow
	confidence := 0.0
	ids := make([]string, 0, len(b.entries))
	for _, en := range b.entries {
		severity = post.MaxSeverity(severity, en.severity)
		confidence += en.confidence
		ids = append(ids, en.id)
	}
	confidence /= float64(len(b.entries))

	return post.Alert{
		ID:          uuid.NewString(),
		Location:    key.location,
		Category:    key.category,
		Severity:    severity,
		Confidence:  confidence,
		EventIDs:    ids,
		EventCount:  len(b.entries),
		WindowStart: now.Add(-d.window),
		WindowEnd:   now,
		CreatedAt:   now,
	}
}

// Prune drops entries older than the window and removes buckets that end
// up empty. Called periodically by the coordinator so idle buckets do not
// accumulate.
func (d *Detector) Prune(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.window)
	for key, b := range d.buckets {
		b.trim(cutoff)
		if len(b.entries) == 0 && now.Sub(b.lastAlert) > d.cooldown {
			delete(d.buckets, key)
		}
	}
}

// BucketCount returns the number of live buckets.
func (d *Detector) BucketCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buckets)
}

// trim drops entries at or before cutoff. Entries are insertion-ordered so
// a single scan from the front suffices.
func (b *bucket) trim(cutoff time.Time) {
	i := 0
	for i < len(b.entries) && !b.entries[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		b.entries = append(b.entries[:0], b.entries[i:]...)
	}
}
