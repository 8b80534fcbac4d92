package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/classify"
	"github.com/crisiswatch/crisiswatch/config"
	"github.com/crisiswatch/crisiswatch/dedup"
	"github.com/crisiswatch/crisiswatch/metrics"
	"github.com/crisiswatch/crisiswatch/post"
	"github.com/crisiswatch/crisiswatch/source"
	"github.com/crisiswatch/crisiswatch/verify"
	"github.com/crisiswatch/crisiswatch/window"
)

type mockSource struct {
	name  string
	posts []post.Post
	err   error
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Fetch(ctx context.Context) ([]post.Post, error) {
	return m.posts, m.err
}

// mockClassifier treats any post whose text mentions "quake" as an
// earthquake in tokyo.
type mockClassifier struct {
	calls int
	err   error
}

func (m *mockClassifier) Classify(ctx context.Context, p post.Post) (classify.Result, error) {
	m.calls++
	if m.err != nil {
		return classify.Result{}, m.err
	}
	if !strings.Contains(p.Text, "quake") {
		return classify.Result{Disaster: false}, nil
	}
	return classify.Result{
		Disaster:   true,
		Category:   "earthquake",
		Severity:   post.SeverityHigh,
		Location:   "tokyo",
		Confidence: 0.8,
	}, nil
}

type mockWriter struct {
	batches [][]post.Event
	err     error
}

func (m *mockWriter) WriteBatch(ctx context.Context, events []post.Event) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, events)
	return nil
}

func (m *mockWriter) Flush(ctx context.Context) error { return nil }

func (m *mockWriter) storedEvents() int {
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

type mockArchive struct {
	batches [][]post.Post
	keys    []string
	err     error
}

func (m *mockArchive) ArchiveBatch(ctx context.Context, posts []post.Post) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.batches = append(m.batches, posts)
	key := fmt.Sprintf("posts/%06d.jsonl", len(m.batches))
	m.keys = append(m.keys, key)
	return key, nil
}

func (m *mockArchive) List(ctx context.Context) ([]string, error) {
	return m.keys, nil
}

func (m *mockArchive) Bucket() string { return "test-archive" }

type mockNotifier struct {
	alerts []post.Alert
	err    error
}

func (m *mockNotifier) Notify(ctx context.Context, a post.Alert) error {
	if m.err != nil {
		return m.err
	}
	m.alerts = append(m.alerts, a)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Region:       "eu-west-1",
		PollInterval: time.Minute,
		MaxWorkers:   2,
		Window: config.WindowConfig{
			Duration:  time.Hour,
			MinEvents: 3,
			Cooldown:  time.Hour,
		},
	}
}

func quakePosts(n int) []post.Post {
	posts := make([]post.Post, n)
	for i := range posts {
		posts[i] = post.Post{
			ID:        fmt.Sprintf("p%d", i),
			Source:    "reddit",
			Text:      fmt.Sprintf("quake report number %d, shaking felt", i),
			CreatedAt: time.Now().UTC(),
		}
	}
	return posts
}

func newTestCoordinator(cfg *config.Config, sources []source.Source, writer *mockWriter, archive Archive, notifier *mockNotifier, roster []verify.OfficialSource) *Coordinator {
	return NewCoordinator(
		cfg,
		sources,
		&mockClassifier{},
		writer,
		archive,
		window.NewDetector(cfg.Window.Duration, cfg.Window.MinEvents, cfg.Window.Cooldown),
		verify.NewRoster(roster),
		notifier,
		dedup.NewStore(1000, time.Hour),
		metrics.NewMetrics(),
		nil,
		zap.NewNop(),
	)
}

func TestRunCycleHappyPath(t *testing.T) {
	writer := &mockWriter{}
	archive := &mockArchive{}
	notifier := &mockNotifier{}
	roster := []verify.OfficialSource{{Name: "JMA", Locations: []string{"tokyo"}}}

	sources := []source.Source{
		&mockSource{name: "a", posts: quakePosts(3)},
		&mockSource{name: "b", posts: []post.Post{
			{ID: "x", Source: "sqs", Text: "nothing to see here", CreatedAt: time.Now().UTC()},
		}},
	}

	c := newTestCoordinator(testConfig(), sources, writer, archive, notifier, roster)

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if writer.storedEvents() != 3 {
		t.Errorf("expected 3 stored events, got %d", writer.storedEvents())
	}
	if len(archive.batches) != 1 || len(archive.batches[0]) != 4 {
		t.Errorf("expected 1 archived batch of 4 posts, got %+v", archive.batches)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected 1 alert at the 3-event threshold, got %d", len(notifier.alerts))
	}

	a := notifier.alerts[0]
	if a.Location != "tokyo" || a.Category != "earthquake" {
		t.Errorf("unexpected alert bucket: %s/%s", a.Location, a.Category)
	}
	if !a.Verified || a.VerifiedBy != "JMA" {
		t.Errorf("alert should be verified by JMA, got %+v", a)
	}
	if a.EventCount != 3 {
		t.Errorf("expected 3 member events, got %d", a.EventCount)
	}

	report := c.Metrics().GenerateReport()
	if report.PostsFetched != 4 {
		t.Errorf("expected 4 posts fetched, got %d", report.PostsFetched)
	}
	if report.Classified != 4 {
		t.Errorf("expected 4 classified, got %d", report.Classified)
	}
	if report.Disasters != 3 {
		t.Errorf("expected 3 disasters, got %d", report.Disasters)
	}
	if report.AlertsFired != 1 || report.AlertsVerified != 1 {
		t.Errorf("expected 1 fired and verified alert, got %d/%d", report.AlertsFired, report.AlertsVerified)
	}
}

func TestRunCycleDeduplicates(t *testing.T) {
	writer := &mockWriter{}
	notifier := &mockNotifier{}
	posts := quakePosts(2)

	src := &mockSource{name: "a", posts: posts}
	c := newTestCoordinator(testConfig(), []source.Source{src}, writer, nil, notifier, nil)

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	// Same posts again: everything is a duplicate.
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	if writer.storedEvents() != 2 {
		t.Errorf("expected 2 stored events across both cycles, got %d", writer.storedEvents())
	}
	report := c.Metrics().GenerateReport()
	if report.Duplicates != 2 {
		t.Errorf("expected 2 duplicates, got %d", report.Duplicates)
	}
}

func TestRunCycleDeduplicatesAcrossSources(t *testing.T) {
	writer := &mockWriter{}
	notifier := &mockNotifier{}

	// The same report lands on reddit and on the queue; only one copy
	// should make it through.
	text := "quake felt downtown, shelves rattling"
	sources := []source.Source{
		&mockSource{name: "a", posts: []post.Post{
			{ID: "r1", Source: "reddit", Text: text, CreatedAt: time.Now().UTC()},
		}},
		&mockSource{name: "b", posts: []post.Post{
			{ID: "s1", Source: "sqs", Text: text, CreatedAt: time.Now().UTC()},
		}},
	}
	c := newTestCoordinator(testConfig(), sources, writer, nil, notifier, nil)

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if writer.storedEvents() != 1 {
		t.Errorf("expected 1 stored event, got %d", writer.storedEvents())
	}
	report := c.Metrics().GenerateReport()
	if report.Duplicates != 1 {
		t.Errorf("expected 1 duplicate, got %d", report.Duplicates)
	}
}

func TestRunCycleSourceFailureIsNotFatal(t *testing.T) {
	writer := &mockWriter{}
	notifier := &mockNotifier{}

	sources := []source.Source{
		&mockSource{name: "broken", err: errors.New("connection refused")},
		&mockSource{name: "ok", posts: quakePosts(1)},
	}
	c := newTestCoordinator(testConfig(), sources, writer, nil, notifier, nil)

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle should survive a failing source: %v", err)
	}
	if writer.storedEvents() != 1 {
		t.Errorf("expected 1 stored event from the healthy source, got %d", writer.storedEvents())
	}
	if c.Metrics().GenerateReport().Errors != 1 {
		t.Errorf("expected 1 recorded error, got %d", c.Metrics().GenerateReport().Errors)
	}
}

func TestRunCycleArchiveFailureIsBestEffort(t *testing.T) {
	writer := &mockWriter{}
	notifier := &mockNotifier{}
	archive := &mockArchive{err: errors.New("no such bucket")}

	src := &mockSource{name: "a", posts: quakePosts(1)}
	c := newTestCoordinator(testConfig(), []source.Source{src}, writer, archive, notifier, nil)

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle should survive archive failure: %v", err)
	}
	if writer.storedEvents() != 1 {
		t.Errorf("expected event stored despite archive failure, got %d", writer.storedEvents())
	}
}

func TestRunCycleWriterFailureIsFatal(t *testing.T) {
	writer := &mockWriter{err: errors.New("table missing")}
	notifier := &mockNotifier{}

	src := &mockSource{name: "a", posts: quakePosts(1)}
	c := newTestCoordinator(testConfig(), []source.Source{src}, writer, nil, notifier, nil)

	if err := c.RunCycle(context.Background()); err == nil {
		t.Error("expected cycle error when the event store fails")
	}
}

func TestRunCycleDispatchErrorCounted(t *testing.T) {
	writer := &mockWriter{}
	notifier := &mockNotifier{err: errors.New("topic gone")}

	src := &mockSource{name: "a", posts: quakePosts(3)}
	c := newTestCoordinator(testConfig(), []source.Source{src}, writer, nil, notifier, nil)

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("dispatch failure should not fail the cycle: %v", err)
	}
	report := c.Metrics().GenerateReport()
	if report.AlertsFired != 1 {
		t.Fatalf("expected 1 fired alert, got %d", report.AlertsFired)
	}
	if report.DispatchErrors != 1 {
		t.Errorf("expected 1 dispatch error, got %d", report.DispatchErrors)
	}
}

func TestUnverifiedAlertStillDispatches(t *testing.T) {
	writer := &mockWriter{}
	notifier := &mockNotifier{}

	// Roster covers a different location.
	roster := []verify.OfficialSource{{Name: "NWS", Locations: []string{"houston"}}}
	src := &mockSource{name: "a", posts: quakePosts(3)}
	c := newTestCoordinator(testConfig(), []source.Source{src}, writer, nil, notifier, roster)

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(notifier.alerts))
	}
	if notifier.alerts[0].Verified {
		t.Error("alert outside roster coverage should stay unverified")
	}
	if c.Metrics().GenerateReport().AlertsVerified != 0 {
		t.Error("no alert should count as verified")
	}
}

func TestClassifierErrorSkipsPost(t *testing.T) {
	writer := &mockWriter{}
	notifier := &mockNotifier{}

	c := NewCoordinator(
		testConfig(),
		[]source.Source{&mockSource{name: "a", posts: quakePosts(2)}},
		&mockClassifier{err: errors.New("model down")},
		writer,
		nil,
		window.NewDetector(time.Hour, 3, time.Hour),
		verify.NewRoster(nil),
		notifier,
		dedup.NewStore(1000, time.Hour),
		metrics.NewMetrics(),
		nil,
		zap.NewNop(),
	)

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if writer.storedEvents() != 0 {
		t.Errorf("expected no stored events, got %d", writer.storedEvents())
	}
	if c.Metrics().GenerateReport().Errors != 2 {
		t.Errorf("expected 2 recorded errors, got %d", c.Metrics().GenerateReport().Errors)
	}
}
