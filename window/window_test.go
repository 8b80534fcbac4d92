package window

import (
	"fmt"
	"testing"
	"time"

	"github.com/crisiswatch/crisiswatch/classify"
	"github.com/crisiswatch/crisiswatch/post"
)

func testEvent(id, location, category string, sev post.Severity, conf float64) post.Event {
	return post.Event{
		ID:         id,
		Location:   location,
		Category:   category,
		Severity:   sev,
		Confidence: conf,
	}
}

func TestAlertFiresAtThreshold(t *testing.T) {
	d := NewDetector(time.Hour, 3, time.Hour)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }

	for i := 0; i < 2; i++ {
		if _, fired := d.Add(testEvent(fmt.Sprintf("e%d", i), "tokyo", "earthquake", post.SeverityModerate, 0.6)); fired {
			t.Fatalf("alert fired below threshold at event %d", i)
		}
		current = current.Add(time.Minute)
	}

	alert, fired := d.Add(testEvent("e2", "tokyo", "earthquake", post.SeverityCritical, 0.9))
	if !fired {
		t.Fatal("expected alert at threshold")
	}
	if alert.Location != "tokyo" || alert.Category != "earthquake" {
		t.Errorf("unexpected alert bucket: %s/%s", alert.Location, alert.Category)
	}
	if alert.EventCount != 3 {
		t.Errorf("expected 3 member events, got %d", alert.EventCount)
	}
	if len(alert.EventIDs) != 3 {
		t.Errorf("expected 3 event ids, got %d", len(alert.EventIDs))
	}
	if alert.Severity != post.SeverityCritical {
		t.Errorf("expected max severity CRITICAL, got %s", alert.Severity)
	}
	want := (0.6 + 0.6 + 0.9) / 3
	if diff := alert.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected mean confidence %f, got %f", want, alert.Confidence)
	}
	if alert.ID == "" {
		t.Error("alert should carry an id")
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	d := NewDetector(time.Hour, 3, time.Hour)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }

	d.Add(testEvent("a1", "tokyo", "earthquake", post.SeverityHigh, 0.7))
	d.Add(testEvent("b1", "tokyo", "flood", post.SeverityHigh, 0.7))
	d.Add(testEvent("c1", "osaka", "earthquake", post.SeverityHigh, 0.7))
	d.Add(testEvent("a2", "tokyo", "earthquake", post.SeverityHigh, 0.7))

	if _, fired := d.Add(testEvent("b2", "tokyo", "flood", post.SeverityHigh, 0.7)); fired {
		t.Error("flood bucket has only 2 events, should not fire")
	}
	if _, fired := d.Add(testEvent("a3", "tokyo", "earthquake", post.SeverityHigh, 0.7)); !fired {
		t.Error("earthquake bucket reached 3 events, should fire")
	}
	if d.BucketCount() != 3 {
		t.Errorf("expected 3 buckets, got %d", d.BucketCount())
	}
}

func TestOldEventsFallOutOfWindow(t *testing.T) {
	d := NewDetector(time.Hour, 3, time.Hour)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }

	d.Add(testEvent("e0", "tokyo", "flood", post.SeverityHigh, 0.7))
	d.Add(testEvent("e1", "tokyo", "flood", post.SeverityHigh, 0.7))

	// The first two events age out before the third arrives.
	current = current.Add(2 * time.Hour)
	if _, fired := d.Add(testEvent("e2", "tokyo", "flood", post.SeverityHigh, 0.7)); fired {
		t.Error("stale events should not count toward the threshold")
	}
}

func TestCooldownSuppressesRepeatAlerts(t *testing.T) {
	d := NewDetector(time.Hour, 2, 30*time.Minute)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }

	d.Add(testEvent("e0", "tokyo", "flood", post.SeverityHigh, 0.7))
	if _, fired := d.Add(testEvent("e1", "tokyo", "flood", post.SeverityHigh, 0.7)); !fired {
		t.Fatal("expected first alert")
	}

	current = current.Add(10 * time.Minute)
	if _, fired := d.Add(testEvent("e2", "tokyo", "flood", post.SeverityHigh, 0.7)); fired {
		t.Error("alert fired inside cooldown")
	}

	current = current.Add(25 * time.Minute)
	if _, fired := d.Add(testEvent("e3", "tokyo", "flood", post.SeverityHigh, 0.7)); !fired {
		t.Error("expected alert after cooldown elapsed")
	}
}

func TestUnknownLocationNeverEscalates(t *testing.T) {
	d := NewDetector(time.Hour, 2, time.Hour)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }

	for i := 0; i < 10; i++ {
		if _, fired := d.Add(testEvent(fmt.Sprintf("e%d", i), classify.UnknownLocation, "flood", post.SeverityCritical, 0.9)); fired {
			t.Fatal("unknown-location bucket must never escalate")
		}
	}
}

func TestPruneRemovesIdleBuckets(t *testing.T) {
	d := NewDetector(time.Hour, 3, 30*time.Minute)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }

	d.Add(testEvent("e0", "tokyo", "flood", post.SeverityHigh, 0.7))
	d.Add(testEvent("e1", "osaka", "earthquake", post.SeverityHigh, 0.7))
	if d.BucketCount() != 2 {
		t.Fatalf("expected 2 buckets, got %d", d.BucketCount())
	}

	// Inside the window nothing is pruned.
	d.Prune(current.Add(30 * time.Minute))
	if d.BucketCount() != 2 {
		t.Errorf("expected buckets retained inside window, got %d", d.BucketCount())
	}

	// Past window and cooldown both buckets are empty and idle.
	d.Prune(current.Add(3 * time.Hour))
	if d.BucketCount() != 0 {
		t.Errorf("expected idle buckets removed, got %d", d.BucketCount())
	}
}

func TestDetectorDefaults(t *testing.T) {
	d := NewDetector(0, 0, 0)
	if d.window != time.Hour {
		t.Errorf("expected default window 1h, got %v", d.window)
	}
	if d.minEvents != 3 {
		t.Errorf("expected default minEvents 3, got %d", d.minEvents)
	}
	if d.cooldown != d.window {
		t.Errorf("expected cooldown to default to the window, got %v", d.cooldown)
	}
}
