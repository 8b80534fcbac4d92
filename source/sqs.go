package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/aws"
	"github.com/crisiswatch/crisiswatch/config"
	"github.com/crisiswatch/crisiswatch/post"
)

// SQSSource receives post JSON bodies from an SQS queue. Messages are
// deleted after decoding; corrupt bodies are logged, counted against the
// decoder, and deleted too so they do not poison the queue.
type SQSSource struct {
	client  aws.SQSClient
	cfg     config.SQSConfig
	decoder post.Decoder
	corrupt func()
	log     *zap.Logger

	urlMu    sync.Mutex
	queueURL string
}

// NewSQSSource creates an SQS post consumer. The queue URL is resolved
// lazily on first fetch. onCorrupt is invoked once per message body that
// fails to decode; nil disables the counter.
func NewSQSSource(client aws.SQSClient, cfg config.SQSConfig, onCorrupt func(), log *zap.Logger) *SQSSource {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 10
	}
	if cfg.WaitSeconds <= 0 {
		cfg.WaitSeconds = 1
	}
	if onCorrupt == nil {
		onCorrupt = func() {}
	}
	return &SQSSource{
		client:  client,
		cfg:     cfg,
		decoder: post.NewJSONDecoder(),
		corrupt: onCorrupt,
		log:     log,
	}
}

// Name implements Source.
func (s *SQSSource) Name() string { return "sqs:" + s.cfg.QueueName }

// Fetch drains one ReceiveMessage batch from the queue.
func (s *SQSSource) Fetch(ctx context.Context) ([]post.Post, error) {
	url, err := s.resolveQueueURL(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &url,
		MaxNumberOfMessages: s.cfg.MaxMessages,
		WaitTimeSeconds:     s.cfg.WaitSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}

	posts := lo.FilterMap(resp.Messages, func(msg sqstypes.Message, _ int) (post.Post, bool) {
		if msg.Body == nil {
			return post.Post{}, false
		}
		p, err := s.decoder.Decode([]byte(*msg.Body))
		if err != nil {
			if errors.Is(err, post.ErrCorrupt) {
				s.corrupt()
				s.log.Warn("corrupt sqs message", zap.Error(err))
			}
			return post.Post{}, false
		}
		if p.Source == "" {
			p.Source = "sqs"
		}
		return p, true
	})

	// Delete everything received, decoded or not. A body that failed to
	// decode will fail again on redelivery.
	for _, msg := range resp.Messages {
		if msg.ReceiptHandle == nil {
			continue
		}
		if _, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &url,
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			s.log.Warn("failed to delete sqs message", zap.Error(err))
		}
	}

	return posts, nil
}

// resolveQueueURL looks up the queue URL and caches it on success, so a
// transient lookup failure is retried on the next cycle.
func (s *SQSSource) resolveQueueURL(ctx context.Context) (string, error) {
	s.urlMu.Lock()
	defer s.urlMu.Unlock()
	if s.queueURL != "" {
		return s.queueURL, nil
	}

	resp, err := s.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: &s.cfg.QueueName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL for %s: %w", s.cfg.QueueName, err)
	}
	s.queueURL = *resp.QueueUrl
	return s.queueURL, nil
}
