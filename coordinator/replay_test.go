package coordinator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/checkpoint"
	"github.com/crisiswatch/crisiswatch/dedup"
	"github.com/crisiswatch/crisiswatch/metrics"
	"github.com/crisiswatch/crisiswatch/post"
	"github.com/crisiswatch/crisiswatch/verify"
	"github.com/crisiswatch/crisiswatch/window"
)

// mockStreamer serves archive objects from an in-memory map, treating the
// offset as a line number the way the production streamer treats bytes.
type mockStreamer struct {
	objects map[string][][]byte
}

func (m *mockStreamer) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	lines, ok := m.objects[key]
	if !ok {
		return fmt.Errorf("mock streamer: key not found: %s", key)
	}
	for i, line := range lines {
		if int64(i) < offset {
			continue
		}
		if err := fn(line, int64(i)); err != nil {
			return err
		}
	}
	return nil
}

func archiveLines(t *testing.T, posts []post.Post) [][]byte {
	t.Helper()
	lines := make([][]byte, 0, len(posts))
	for _, p := range posts {
		b, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("failed to marshal post: %v", err)
		}
		lines = append(lines, b)
	}
	return lines
}

func newReplayCoordinator(archive Archive, streamer *mockStreamer, cursors checkpoint.Store, writer *mockWriter, notifier *mockNotifier) *Coordinator {
	return NewCoordinator(
		testConfig(),
		nil,
		&mockClassifier{},
		writer,
		archive,
		window.NewDetector(time.Hour, 3, time.Hour),
		verify.NewRoster(nil),
		notifier,
		dedup.NewStore(1000, time.Hour),
		metrics.NewMetrics(),
		nil,
		zap.NewNop(),
	).WithReplay(streamer, cursors)
}

func TestReplayProcessesArchivedPosts(t *testing.T) {
	writer := &mockWriter{}
	notifier := &mockNotifier{}
	archive := &mockArchive{keys: []string{"posts/000001.jsonl", "posts/000002.jsonl"}}

	streamer := &mockStreamer{objects: map[string][][]byte{
		"posts/000001.jsonl": archiveLines(t, quakePosts(2)),
		"posts/000002.jsonl": append(
			archiveLines(t, []post.Post{{ID: "p9", Source: "reddit", Text: "quake report number 9", CreatedAt: time.Now().UTC()}}),
			[]byte("corrupt garbage"),
		),
	}}

	cursors := checkpoint.NewMemoryStore()
	c := newReplayCoordinator(archive, streamer, cursors, writer, notifier)

	if err := c.Replay(context.Background()); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if writer.storedEvents() != 3 {
		t.Errorf("expected 3 replayed events, got %d", writer.storedEvents())
	}
	if len(notifier.alerts) != 1 {
		t.Errorf("expected 1 alert from replayed spike, got %d", len(notifier.alerts))
	}

	report := c.Metrics().GenerateReport()
	if report.CorruptCount != 1 {
		t.Errorf("expected 1 corrupt line, got %d", report.CorruptCount)
	}
	if report.PostsFetched != 3 {
		t.Errorf("expected 3 replayed posts, got %d", report.PostsFetched)
	}

	// The cursor ends on the last object with the completion sentinel.
	cursor, err := cursors.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load cursor: %v", err)
	}
	if cursor.LastKey != "posts/000002.jsonl" {
		t.Errorf("expected cursor on last object, got %s", cursor.LastKey)
	}
	if cursor.LastByteOffset != checkpoint.CompletedOffset {
		t.Errorf("expected completion sentinel, got %d", cursor.LastByteOffset)
	}
}

func TestReplaySkipsCompletedObjects(t *testing.T) {
	writer := &mockWriter{}
	notifier := &mockNotifier{}
	archive := &mockArchive{keys: []string{"posts/000001.jsonl", "posts/000002.jsonl"}}

	streamer := &mockStreamer{objects: map[string][][]byte{
		// Object 1 is intentionally missing: touching it would fail.
		"posts/000002.jsonl": archiveLines(t, []post.Post{
			{ID: "p5", Source: "reddit", Text: "quake report number 5", CreatedAt: time.Now().UTC()},
		}),
	}}

	cursors := checkpoint.NewMemoryStore()
	if err := cursors.Save(context.Background(), checkpoint.Cursor{
		LastKey:        "posts/000001.jsonl",
		LastByteOffset: checkpoint.CompletedOffset,
	}); err != nil {
		t.Fatalf("failed to seed cursor: %v", err)
	}

	c := newReplayCoordinator(archive, streamer, cursors, writer, notifier)

	if err := c.Replay(context.Background()); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if writer.storedEvents() != 1 {
		t.Errorf("expected only the second object replayed, got %d events", writer.storedEvents())
	}
}

func TestReplayResumesAtOffset(t *testing.T) {
	writer := &mockWriter{}
	notifier := &mockNotifier{}
	archive := &mockArchive{keys: []string{"posts/000001.jsonl"}}

	streamer := &mockStreamer{objects: map[string][][]byte{
		"posts/000001.jsonl": archiveLines(t, quakePosts(4)),
	}}

	cursors := checkpoint.NewMemoryStore()
	if err := cursors.Save(context.Background(), checkpoint.Cursor{
		LastKey:        "posts/000001.jsonl",
		LastByteOffset: 2,
	}); err != nil {
		t.Fatalf("failed to seed cursor: %v", err)
	}

	c := newReplayCoordinator(archive, streamer, cursors, writer, notifier)

	if err := c.Replay(context.Background()); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	// Lines 0 and 1 were already processed; only 2 and 3 replay.
	if writer.storedEvents() != 2 {
		t.Errorf("expected 2 events from resumed replay, got %d", writer.storedEvents())
	}
}

func TestReplayRequiresDependencies(t *testing.T) {
	c := NewCoordinator(
		testConfig(), nil, &mockClassifier{}, &mockWriter{}, nil,
		window.NewDetector(time.Hour, 3, time.Hour), verify.NewRoster(nil),
		&mockNotifier{}, dedup.NewStore(1000, time.Hour), metrics.NewMetrics(),
		nil, zap.NewNop(),
	)

	err := c.Replay(context.Background())
	if err == nil {
		t.Fatal("expected error without replay dependencies")
	}
	if !strings.Contains(err.Error(), "replay requires") {
		t.Errorf("unexpected error: %v", err)
	}
}
