package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gurre/s3streamer"
	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/checkpoint"
	"github.com/crisiswatch/crisiswatch/post"
)

// replayChunkSize is how many decoded posts accumulate before a chunk is
// classified, dispatched, and checkpointed.
const replayChunkSize = 200

// WithReplay attaches the archive streamer and cursor store needed by
// Replay.
func (c *Coordinator) WithReplay(streamer s3streamer.Streamer, cursors checkpoint.Store) *Coordinator {
	c.streamer = streamer
	c.cursors = cursors
	return c
}

// Replay streams archived post objects back through the pipeline. The
// cursor store makes the replay resumable: completed objects are skipped
// and a partially processed object resumes at its saved byte offset.
func (c *Coordinator) Replay(ctx context.Context) error {
	if c.streamer == nil || c.cursors == nil || c.archive == nil {
		return fmt.Errorf("replay requires an archive, a streamer, and a cursor store")
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	keys, err := c.archive.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list archive: %w", err)
	}

	cursor, err := c.cursors.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	decoder := post.NewJSONDecoder()
	bucket := c.archive.Bucket()

	for _, key := range keys {
		// Skip objects already completed in an earlier run.
		if key < cursor.LastKey {
			continue
		}

		offset := int64(0)
		if key == cursor.LastKey {
			if cursor.LastByteOffset == checkpoint.CompletedOffset {
				continue
			}
			offset = cursor.LastByteOffset
		}

		if err := c.replayObject(ctx, decoder, bucket, key, offset); err != nil {
			return fmt.Errorf("failed to replay %s: %w", key, err)
		}

		// Mark the object complete with the sentinel offset.
		if err := c.cursors.Save(ctx, checkpoint.Cursor{
			LastKey:        key,
			LastByteOffset: checkpoint.CompletedOffset,
		}); err != nil {
			return fmt.Errorf("failed to save completion checkpoint for %s: %w", key, err)
		}

		c.log.Info("replayed archive object", zap.String("key", key))
	}

	return c.finish(context.Background())
}

// replayObject streams one archive object, processing posts in chunks and
// checkpointing after each dispatched chunk.
func (c *Coordinator) replayObject(ctx context.Context, decoder post.Decoder, bucket, key string, offset int64) error {
	chunk := make([]post.Post, 0, replayChunkSize)
	var currentOffset int64

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		events := c.classifyPosts(ctx, chunk)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.dispatchEvents(ctx, events); err != nil {
			return err
		}
		chunk = chunk[:0]
		return c.cursors.Save(ctx, checkpoint.Cursor{
			LastKey:        key,
			LastByteOffset: currentOffset,
		})
	}

	streamErr := c.streamer.Stream(ctx, bucket, key, offset, func(line []byte, byteOffset int64) error {
		currentOffset = byteOffset

		p, err := decoder.Decode(line)
		if err != nil {
			if errors.Is(err, post.ErrCorrupt) {
				c.metrics.RecordCorrupt()
				return nil
			}
			c.metrics.RecordError()
			return err
		}

		c.metrics.RecordPostFetched()
		if c.seen.Seen(p.Fingerprint()) {
			c.metrics.RecordDuplicate()
			return nil
		}
		c.seen.Mark(p.Fingerprint())

		chunk = append(chunk, p)
		if len(chunk) >= replayChunkSize {
			return flush()
		}
		return nil
	})
	if streamErr != nil {
		return streamErr
	}

	if err := flush(); err != nil {
		return err
	}

	c.detector.Prune(time.Now())
	return nil
}
