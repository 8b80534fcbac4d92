package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

// SQSClient is a mock implementation of aws.SQSClient holding one
// in-memory queue. Messages are removed from the pending list when
// received and tracked until deleted.
type SQSClient struct {
	mu        sync.Mutex
	QueueName string
	pending   []types.Message
	inFlight  map[string]types.Message
	Deleted   int
}

// NewSQSClient creates a mock client serving the named queue.
func NewSQSClient(queueName string) *SQSClient {
	return &SQSClient{
		QueueName: queueName,
		inFlight:  make(map[string]types.Message),
	}
}

// Enqueue adds a message body to the pending queue.
func (m *SQSClient) Enqueue(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	handle := "handle-" + id
	m.pending = append(m.pending, types.Message{
		MessageId:     &id,
		Body:          &body,
		ReceiptHandle: &handle,
	})
}

// GetQueueUrl resolves only the configured queue name.
func (m *SQSClient) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	if params.QueueName == nil || *params.QueueName != m.QueueName {
		return nil, fmt.Errorf("queue does not exist")
	}
	url := "https://sqs.test.amazonaws.com/000000000000/" + m.QueueName
	return &sqs.GetQueueUrlOutput{QueueUrl: &url}, nil
}

// ReceiveMessage returns up to MaxNumberOfMessages pending messages and
// moves them in flight.
func (m *SQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int(params.MaxNumberOfMessages)
	if n <= 0 || n > len(m.pending) {
		n = len(m.pending)
	}

	batch := m.pending[:n]
	m.pending = m.pending[n:]
	for _, msg := range batch {
		m.inFlight[*msg.ReceiptHandle] = msg
	}

	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

// DeleteMessage removes an in-flight message by receipt handle.
func (m *SQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if params.ReceiptHandle == nil {
		return nil, fmt.Errorf("missing receipt handle")
	}
	if _, ok := m.inFlight[*params.ReceiptHandle]; !ok {
		return nil, fmt.Errorf("unknown receipt handle: %s", *params.ReceiptHandle)
	}
	delete(m.inFlight, *params.ReceiptHandle)
	m.Deleted++
	return &sqs.DeleteMessageOutput{}, nil
}

// SendMessage enqueues a message, mirroring Enqueue for SDK callers.
func (m *SQSClient) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if params.MessageBody == nil {
		return nil, fmt.Errorf("missing message body")
	}
	m.Enqueue(*params.MessageBody)

	id := uuid.NewString()
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}
