// Package metrics collects pipeline counters, generates the final run
// report, and optionally exposes the counters to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects pipeline counters. Counter updates are atomic; the
// Prometheus collectors mirror the same counts for scraping.
type Metrics struct {
	mu sync.RWMutex

	postsFetched   int64
	corrupt        int64
	duplicates     int64
	classified     int64
	disasters      int64
	degraded       int64
	eventsStored   int64
	alertsFired    int64
	alertsVerified int64
	dispatchErrors int64
	errors         int64

	processingTime time.Duration
	startTime      time.Time

	registry *prometheus.Registry
	promOps  *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with a fresh Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
	}
	m.promOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crisiswatch",
		Name:      "pipeline_operations_total",
		Help:      "Pipeline operations by kind.",
	}, []string{"kind"})
	m.registry.MustRegister(m.promOps)
	return m
}

// Handler returns the Prometheus scrape handler for this instance.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) record(counter *int64, kind string) {
	atomic.AddInt64(counter, 1)
	m.promOps.WithLabelValues(kind).Inc()
}

// RecordPostFetched counts a post received from any source.
func (m *Metrics) RecordPostFetched() { m.record(&m.postsFetched, "post_fetched") }

// RecordCorrupt counts a line/message that could not be decoded.
func (m *Metrics) RecordCorrupt() { m.record(&m.corrupt, "corrupt") }

// RecordDuplicate counts a post dropped by the dedup store.
func (m *Metrics) RecordDuplicate() { m.record(&m.duplicates, "duplicate") }

// RecordClassified counts a post that went through classification.
func (m *Metrics) RecordClassified() { m.record(&m.classified, "classified") }

// RecordDisaster counts a post classified as disaster-related.
func (m *Metrics) RecordDisaster() { m.record(&m.disasters, "disaster") }

// RecordDegraded counts a classification that fell back to heuristics.
func (m *Metrics) RecordDegraded() { m.record(&m.degraded, "degraded") }

// RecordEventStored counts an event persisted to the store.
func (m *Metrics) RecordEventStored() { m.record(&m.eventsStored, "event_stored") }

// RecordAlertFired counts an escalated alert.
func (m *Metrics) RecordAlertFired() { m.record(&m.alertsFired, "alert_fired") }

// RecordAlertVerified counts an alert confirmed by an official source.
func (m *Metrics) RecordAlertVerified() { m.record(&m.alertsVerified, "alert_verified") }

// RecordDispatchError counts a failed notification delivery.
func (m *Metrics) RecordDispatchError() { m.record(&m.dispatchErrors, "dispatch_error") }

// RecordError counts any other pipeline error.
func (m *Metrics) RecordError() { m.record(&m.errors, "error") }

// RecordProcessingTime accumulates time spent classifying and storing.
func (m *Metrics) RecordProcessingTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processingTime += d
}

// Report is the final run summary emitted on shutdown.
type Report struct {
	StartTime      time.Time     `json:"startTime"`
	EndTime        time.Time     `json:"endTime"`
	PostsFetched   int64         `json:"postsFetched"`
	CorruptCount   int64         `json:"corruptCount"`
	Duplicates     int64         `json:"duplicates"`
	Classified     int64         `json:"classified"`
	Disasters      int64         `json:"disasters"`
	Degraded       int64         `json:"degraded"`
	EventsStored   int64         `json:"eventsStored"`
	AlertsFired    int64         `json:"alertsFired"`
	AlertsVerified int64         `json:"alertsVerified"`
	DispatchErrors int64         `json:"dispatchErrors"`
	Errors         int64         `json:"errors"`
	Duration       time.Duration `json:"duration"`
	Throughput     float64       `json:"throughput"` // posts per second
}

// GenerateReport snapshots the counters into a Report.
func (m *Metrics) GenerateReport() Report {
	endTime := time.Now()
	duration := endTime.Sub(m.startTime)

	var throughput float64
	if duration > 0 {
		throughput = float64(atomic.LoadInt64(&m.postsFetched)) / duration.Seconds()
	}

	return Report{
		StartTime:      m.startTime,
		EndTime:        endTime,
		PostsFetched:   atomic.LoadInt64(&m.postsFetched),
		CorruptCount:   atomic.LoadInt64(&m.corrupt),
		Duplicates:     atomic.LoadInt64(&m.duplicates),
		Classified:     atomic.LoadInt64(&m.classified),
		Disasters:      atomic.LoadInt64(&m.disasters),
		Degraded:       atomic.LoadInt64(&m.degraded),
		EventsStored:   atomic.LoadInt64(&m.eventsStored),
		AlertsFired:    atomic.LoadInt64(&m.alertsFired),
		AlertsVerified: atomic.LoadInt64(&m.alertsVerified),
		DispatchErrors: atomic.LoadInt64(&m.dispatchErrors),
		Errors:         atomic.LoadInt64(&m.errors),
		Duration:       duration,
		Throughput:     throughput,
	}
}

// MarshalJSON formats the report as JSON with a human-readable duration.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// String returns a human-readable summary for console output.
func (r Report) String() string {
	return fmt.Sprintf(
		"Run finished in %s\n"+
			"Posts fetched: %d (corrupt: %d, duplicates: %d)\n"+
			"Classified: %d (disasters: %d, degraded: %d)\n"+
			"Events stored: %d\n"+
			"Alerts fired: %d (verified: %d, dispatch errors: %d)\n"+
			"Errors: %d\n"+
			"Throughput: %.2f posts/sec",
		r.Duration,
		r.PostsFetched, r.CorruptCount, r.Duplicates,
		r.Classified, r.Disasters, r.Degraded,
		r.EventsStored,
		r.AlertsFired, r.AlertsVerified, r.DispatchErrors,
		r.Errors,
		r.Throughput,
	)
}
