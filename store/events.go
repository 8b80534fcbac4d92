// Package store persists classified events to DynamoDB and archives raw
// posts to S3 as JSON lines for later replay.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/crisiswatch/crisiswatch/aws"
	"github.com/crisiswatch/crisiswatch/post"
)

// maxBatchSize is the DynamoDB BatchWriteItem limit.
const maxBatchSize = 25

// EventWriter persists batches of classified events.
type EventWriter interface {
	WriteBatch(ctx context.Context, events []post.Event) error
	Flush(ctx context.Context) error
}

// DynamoDBEventWriter implements EventWriter against a DynamoDB table,
// retrying throttled batches with exponential backoff.
type DynamoDBEventWriter struct {
	client    aws.DynamoDBClient
	tableName string
	batchSize int
}

// NewDynamoDBEventWriter creates an event writer. batchSize is clamped to
// the DynamoDB maximum of 25.
func NewDynamoDBEventWriter(client aws.DynamoDBClient, tableName string, batchSize int) *DynamoDBEventWriter {
	if batchSize < 1 || batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	return &DynamoDBEventWriter{
		client:    client,
		tableName: tableName,
		batchSize: batchSize,
	}
}

// isThrottlingError returns true if the error is a DynamoDB throughput
// throttling error. These are recoverable by waiting: capacity refills
// over time, so throttled batches retry indefinitely.
func isThrottlingError(err error) bool {
	var throughputErr *types.ProvisionedThroughputExceededException
	var requestLimitErr *types.RequestLimitExceeded
	return errors.As(err, &throughputErr) || errors.As(err, &requestLimitErr)
}

// backoffWait sleeps for an exponentially increasing duration with jitter.
// Returns false if the context is cancelled during the wait.
func backoffWait(ctx context.Context, attempt int) bool {
	base := 100 * time.Millisecond
	maxDelay := 30 * time.Second

	delay := base * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}

	// Add jitter: random value between 0 and delay
	jitter := time.Duration(rand.Int64N(int64(delay)))
	delay = delay + jitter

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// WriteBatch marshals the events with attributevalue and writes them in
// batches of w.batchSize. Throttling errors retry indefinitely until the
// context is cancelled; other errors fail after maxRetries attempts.
// Unprocessed items returned by DynamoDB are re-submitted.
func (w *DynamoDBEventWriter) WriteBatch(ctx context.Context, events []post.Event) error {
	if len(events) == 0 {
		return nil
	}

	for i := 0; i < len(events); i += w.batchSize {
		end := i + w.batchSize
		if end > len(events) {
			end = len(events)
		}
		batch := events[i:end]

		requests := make([]types.WriteRequest, 0, len(batch))
		for _, e := range batch {
			item, err := attributevalue.MarshalMap(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event %s: %w", e.ID, err)
			}
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		input := &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				w.tableName: requests,
			},
		}

		const maxRetries = 5
		attempt := 0
		for {
			output, err := w.client.BatchWriteItem(ctx, input)
			if err != nil {
				if isThrottlingError(err) {
					if !backoffWait(ctx, attempt) {
						return ctx.Err()
					}
					attempt++
					continue
				}
				if attempt < maxRetries {
					if !backoffWait(ctx, attempt) {
						return ctx.Err()
					}
					attempt++
					continue
				}
				return fmt.Errorf("failed to write batch after %d retries: %w", maxRetries, err)
			}

			// Unprocessed items indicate partial throttling.
			if len(output.UnprocessedItems) > 0 {
				input.RequestItems = output.UnprocessedItems
				if !backoffWait(ctx, attempt) {
					return ctx.Err()
				}
				attempt++
				continue
			}

			break
		}
	}

	return nil
}

// Flush is a no-op: batches are written as they arrive.
func (w *DynamoDBEventWriter) Flush(ctx context.Context) error {
	return nil
}
