// Package coordinator orchestrates the pipeline: it polls sources, fans
// posts out to a classification worker pool, persists events, feeds the
// spike detector, and dispatches verified alerts.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gurre/s3streamer"
	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/alert"
	"github.com/crisiswatch/crisiswatch/checkpoint"
	"github.com/crisiswatch/crisiswatch/classify"
	"github.com/crisiswatch/crisiswatch/config"
	"github.com/crisiswatch/crisiswatch/dedup"
	"github.com/crisiswatch/crisiswatch/metrics"
	"github.com/crisiswatch/crisiswatch/post"
	"github.com/crisiswatch/crisiswatch/source"
	"github.com/crisiswatch/crisiswatch/store"
	"github.com/crisiswatch/crisiswatch/verify"
	"github.com/crisiswatch/crisiswatch/window"
)

// WorkerStatus tracks one classification worker for monitoring.
// Fields are ordered largest-to-smallest for memory alignment.
type WorkerStatus struct {
	LastErrorTime  time.Time
	StartTime      time.Time
	LastActive     time.Time
	LastError      error
	CurrentPost    string
	PostsProcessed int64
	EventsFound    int64
	ID             int
}

// Archive is the raw-post archive surface the coordinator needs.
type Archive interface {
	ArchiveBatch(ctx context.Context, posts []post.Post) (string, error)
	List(ctx context.Context) ([]string, error)
	Bucket() string
}

// ReportUploader uploads the final run report to S3.
type ReportUploader interface {
	UploadReport(ctx context.Context, uri string, report metrics.Report) error
}

// Coordinator wires the pipeline stages together and runs the poll loop.
type Coordinator struct {
	cfg            *config.Config
	sources        []source.Source
	classifier     classify.Classifier
	writer         store.EventWriter
	archive        Archive // nil disables archival
	detector       *window.Detector
	verifier       verify.Verifier
	notifier       alert.Notifier
	seen           *dedup.Store
	metrics        *metrics.Metrics
	reportUploader ReportUploader
	log            *zap.Logger

	// Replay dependencies, nil outside replay runs.
	streamer s3streamer.Streamer
	cursors  checkpoint.Store

	workerStatus map[int]*WorkerStatus
	statusMu     sync.RWMutex
}

// NewCoordinator creates a Coordinator with all pipeline dependencies.
func NewCoordinator(
	cfg *config.Config,
	sources []source.Source,
	classifier classify.Classifier,
	writer store.EventWriter,
	archive Archive,
	detector *window.Detector,
	verifier verify.Verifier,
	notifier alert.Notifier,
	seen *dedup.Store,
	m *metrics.Metrics,
	reportUploader ReportUploader,
	log *zap.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:            cfg,
		sources:        sources,
		classifier:     classifier,
		writer:         writer,
		archive:        archive,
		detector:       detector,
		verifier:       verifier,
		notifier:       notifier,
		seen:           seen,
		metrics:        m,
		reportUploader: reportUploader,
		log:            log,
		workerStatus:   make(map[int]*WorkerStatus),
	}
}

// Metrics exposes the coordinator's metrics instance.
func (c *Coordinator) Metrics() *metrics.Metrics {
	return c.metrics
}

// Run executes pipeline cycles until the context is cancelled or an
// interrupt arrives. Cycle errors are logged and counted; only
// cancellation stops the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go c.reportProgress(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return c.finish(context.Background())
			}
			c.metrics.RecordError()
			c.log.Error("cycle failed", zap.Error(err))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return c.finish(context.Background())
		}
	}
}

// RunCycle performs one fetch-classify-aggregate pass over all sources.
func (c *Coordinator) RunCycle(ctx context.Context) error {
	posts := c.fetchAll(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(posts) == 0 {
		return nil
	}

	// Dedup before the expensive classification stage.
	fresh := make([]post.Post, 0, len(posts))
	for _, p := range posts {
		c.metrics.RecordPostFetched()
		key := p.Fingerprint()
		if c.seen.Seen(key) {
			c.metrics.RecordDuplicate()
			continue
		}
		c.seen.Mark(key)
		fresh = append(fresh, p)
	}
	if len(fresh) == 0 {
		return nil
	}

	if c.archive != nil {
		key, err := c.archive.ArchiveBatch(ctx, fresh)
		if err != nil {
			// Archival is best-effort; the cycle proceeds without it.
			c.metrics.RecordError()
			c.log.Warn("failed to archive batch", zap.Error(err))
		} else if key != "" {
			c.log.Debug("archived batch", zap.String("key", key), zap.Int("posts", len(fresh)))
		}
	}

	events := c.classifyPosts(ctx, fresh)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return c.dispatchEvents(ctx, events)
}

// fetchAll polls every source concurrently. A failing source is logged
// and skipped so the cycle degrades instead of aborting.
func (c *Coordinator) fetchAll(ctx context.Context) []post.Post {
	var mu sync.Mutex
	var posts []post.Post
	var wg sync.WaitGroup

	for _, src := range c.sources {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			batch, err := src.Fetch(ctx)
			if err != nil {
				c.metrics.RecordError()
				c.log.Warn("source fetch failed", zap.String("source", src.Name()), zap.Error(err))
				return
			}
			mu.Lock()
			posts = append(posts, batch...)
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	return posts
}

// classifyPosts fans posts out to MaxWorkers classification workers and
// collects the disaster events.
func (c *Coordinator) classifyPosts(ctx context.Context, posts []post.Post) []post.Event {
	tasks := make(chan post.Post)
	var mu sync.Mutex
	var events []post.Event
	var wg sync.WaitGroup

	for i := 0; i < c.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.initWorker(workerID)
			for p := range tasks {
				e, ok := c.classifyOne(ctx, workerID, p)
				if !ok {
					continue
				}
				mu.Lock()
				events = append(events, e)
				mu.Unlock()
			}
		}(i)
	}

	for _, p := range posts {
		select {
		case tasks <- p:
		case <-ctx.Done():
			close(tasks)
			wg.Wait()
			return events
		}
	}
	close(tasks)
	wg.Wait()

	return events
}

// classifyOne classifies a single post and converts a positive result
// into an Event.
func (c *Coordinator) classifyOne(ctx context.Context, workerID int, p post.Post) (post.Event, bool) {
	c.updateWorkerStatus(workerID, func(s *WorkerStatus) {
		s.CurrentPost = p.ID
	})

	start := time.Now()
	result, err := c.classifier.Classify(ctx, p)
	c.metrics.RecordProcessingTime(time.Since(start))
	if err != nil {
		c.recordWorkerError(workerID, err)
		return post.Event{}, false
	}

	c.metrics.RecordClassified()
	c.updateWorkerStatus(workerID, func(s *WorkerStatus) {
		s.PostsProcessed++
	})

	if !result.Disaster {
		return post.Event{}, false
	}

	c.metrics.RecordDisaster()
	c.updateWorkerStatus(workerID, func(s *WorkerStatus) {
		s.EventsFound++
	})

	return post.Event{
		ID:         uuid.NewString(),
		PostID:     p.ID,
		Source:     p.Source,
		Category:   result.Category,
		Severity:   result.Severity,
		Location:   result.Location,
		Confidence: result.Confidence,
		Summary:    result.Summary,
		Text:       p.Text,
		Timestamp:  p.CreatedAt,
	}, true
}

// dispatchEvents persists the events, feeds the spike detector, and
// verifies + dispatches any escalated alerts.
func (c *Coordinator) dispatchEvents(ctx context.Context, events []post.Event) error {
	if len(events) == 0 {
		c.detector.Prune(time.Now())
		return nil
	}

	if err := c.writer.WriteBatch(ctx, events); err != nil {
		return fmt.Errorf("failed to store events: %w", err)
	}
	for range events {
		c.metrics.RecordEventStored()
	}

	for _, e := range events {
		a, fired := c.detector.Add(e)
		if !fired {
			continue
		}

		c.metrics.RecordAlertFired()
		if name, ok := c.verifier.Verify(a); ok {
			a.Verified = true
			a.VerifiedBy = name
			c.metrics.RecordAlertVerified()
		}

		if err := c.notifier.Notify(ctx, a); err != nil {
			c.metrics.RecordDispatchError()
			c.log.Error("failed to dispatch alert",
				zap.String("alert", a.ID),
				zap.String("location", a.Location),
				zap.Error(err))
		}
	}

	c.detector.Prune(time.Now())
	return nil
}

// finish flushes the writer, prints the final report, and uploads it when
// configured.
func (c *Coordinator) finish(ctx context.Context) error {
	if err := c.writer.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	report := c.metrics.GenerateReport()
	fmt.Println(report)

	if c.cfg.ReportS3URI != "" && c.reportUploader != nil {
		if err := c.reportUploader.UploadReport(ctx, c.cfg.ReportS3URI, report); err != nil {
			return fmt.Errorf("failed to upload report: %w", err)
		}
		fmt.Printf("Report uploaded to %s\n", c.cfg.ReportS3URI)
	}

	return nil
}

// initWorker initializes a worker's status tracking.
func (c *Coordinator) initWorker(id int) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if _, ok := c.workerStatus[id]; ok {
		return
	}
	c.workerStatus[id] = &WorkerStatus{
		ID:        id,
		StartTime: time.Now(),
	}
}

// updateWorkerStatus updates a worker's status for monitoring.
func (c *Coordinator) updateWorkerStatus(id int, fn func(*WorkerStatus)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if status, ok := c.workerStatus[id]; ok {
		fn(status)
		status.LastActive = time.Now()
	}
}

// recordWorkerError records a worker error.
func (c *Coordinator) recordWorkerError(id int, err error) {
	c.metrics.RecordError()
	c.updateWorkerStatus(id, func(s *WorkerStatus) {
		s.LastError = err
		s.LastErrorTime = time.Now()
	})
}

// reportProgress periodically logs pipeline totals.
func (c *Coordinator) reportProgress(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.statusMu.RLock()
			var totalPosts, totalEvents int64
			activeWorkers := 0
			for _, status := range c.workerStatus {
				if time.Since(status.LastActive) < time.Minute {
					activeWorkers++
				}
				totalPosts += status.PostsProcessed
				totalEvents += status.EventsFound
			}
			c.statusMu.RUnlock()

			c.log.Info("progress",
				zap.Int64("posts_classified", totalPosts),
				zap.Int64("events_found", totalEvents),
				zap.Int("active_workers", activeWorkers),
				zap.Int("window_buckets", c.detector.BucketCount()))

		case <-ctx.Done():
			return
		}
	}
}
