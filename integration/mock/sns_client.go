package mock

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

// PublishedMessage records one SNS publish call.
type PublishedMessage struct {
	TopicARN string
	Subject  string
	Message  string
}

// SNSClient is a mock implementation of aws.SNSClient.
type SNSClient struct {
	mu        sync.Mutex
	Published []PublishedMessage
}

// NewSNSClient creates an empty mock SNS client.
func NewSNSClient() *SNSClient {
	return &SNSClient{}
}

// Publish records the message and returns a fresh message ID.
func (m *SNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := PublishedMessage{}
	if params.TopicArn != nil {
		msg.TopicARN = *params.TopicArn
	}
	if params.Subject != nil {
		msg.Subject = *params.Subject
	}
	if params.Message != nil {
		msg.Message = *params.Message
	}
	m.Published = append(m.Published, msg)

	id := uuid.NewString()
	return &sns.PublishOutput{MessageId: &id}, nil
}
