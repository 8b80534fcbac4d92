// Package source implements the post sources the pipeline polls each
// cycle: the Reddit listing API, an SQS queue, and a Kafka topic.
package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/aws"
	"github.com/crisiswatch/crisiswatch/config"
	"github.com/crisiswatch/crisiswatch/post"
)

// Source produces a batch of posts per pipeline cycle.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]post.Post, error)
}

// Deps carries the shared dependencies source constructors need. Corrupt
// is invoked once per message body that fails to decode.
type Deps struct {
	SQS     aws.SQSClient
	Corrupt func()
	Log     *zap.Logger
}

// NewFromConfig builds a Source from its configuration.
func NewFromConfig(c config.SourceConfig, deps Deps) (Source, error) {
	switch c.Type {
	case "reddit":
		return NewRedditSource(c.Reddit, deps.Log), nil
	case "sqs":
		return NewSQSSource(deps.SQS, c.SQS, deps.Corrupt, deps.Log), nil
	case "kafka":
		return NewKafkaSource(c.Kafka, deps.Corrupt, deps.Log), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", c.Type)
	}
}
