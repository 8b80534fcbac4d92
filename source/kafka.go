package source

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/config"
	"github.com/crisiswatch/crisiswatch/post"
)

// KafkaSource reads post JSON from a Kafka topic via a consumer group.
// Each fetch drains at most MaxBatch messages inside the read timeout so
// one cycle cannot block the others.
type KafkaSource struct {
	reader  *kafka.Reader
	cfg     config.KafkaConfig
	decoder post.Decoder
	corrupt func()
	log     *zap.Logger
}

// NewKafkaSource creates a Kafka post consumer. onCorrupt is invoked once
// per message that fails to decode; nil disables the counter.
func NewKafkaSource(cfg config.KafkaConfig, onCorrupt func(), log *zap.Logger) *KafkaSource {
	if cfg.GroupID == "" {
		cfg.GroupID = "crisiswatch-posts"
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 100
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	if onCorrupt == nil {
		onCorrupt = func() {}
	}

	return &KafkaSource{
		reader:  reader,
		cfg:     cfg,
		decoder: post.NewJSONDecoder(),
		corrupt: onCorrupt,
		log:     log,
	}
}

// Name implements Source.
func (s *KafkaSource) Name() string { return "kafka:" + s.cfg.Topic }

// Fetch reads up to MaxBatch messages within the read timeout. Hitting
// the timeout with an empty topic is a normal empty fetch, not an error.
func (s *KafkaSource) Fetch(ctx context.Context) ([]post.Post, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var posts []post.Post
	for len(posts) < s.cfg.MaxBatch {
		msg, err := s.reader.ReadMessage(readCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if ctx.Err() != nil {
				return posts, ctx.Err()
			}
			return posts, err
		}

		p, err := s.decoder.Decode(msg.Value)
		if err != nil {
			if errors.Is(err, post.ErrCorrupt) {
				s.corrupt()
				s.log.Warn("corrupt kafka message",
					zap.String("topic", s.cfg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
				continue
			}
			return posts, err
		}
		if p.Source == "" {
			p.Source = "kafka"
		}
		posts = append(posts, p)
	}

	return posts, nil
}

// Close releases the underlying reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
