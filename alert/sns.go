package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	json "github.com/goccy/go-json"

	"github.com/crisiswatch/crisiswatch/aws"
	"github.com/crisiswatch/crisiswatch/post"
)

// SNSNotifier publishes alerts as JSON to an SNS topic.
type SNSNotifier struct {
	client   aws.SNSClient
	topicARN string
}

// NewSNSNotifier creates an SNS notifier for the given topic ARN.
func NewSNSNotifier(client aws.SNSClient, topicARN string) (*SNSNotifier, error) {
	if topicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}
	return &SNSNotifier{client: client, topicARN: topicARN}, nil
}

// Notify publishes the alert. Transient publish failures are retried a
// few times with exponential backoff before giving up; dispatch failures
// are counted by the caller, not fatal to the pipeline.
func (n *SNSNotifier) Notify(ctx context.Context, a post.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode alert %s: %w", a.ID, err)
	}

	message := string(body)
	subject := a.Subject()

	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt)) * 500 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		_, lastErr = n.client.Publish(ctx, &sns.PublishInput{
			TopicArn: &n.topicARN,
			Subject:  &subject,
			Message:  &message,
		})
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("failed to publish alert %s after %d retries: %w", a.ID, maxRetries, lastErr)
}
