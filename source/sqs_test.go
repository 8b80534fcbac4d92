package source

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/config"
)

// mockSQSClient implements the aws.SQSClient interface for testing
type mockSQSClient struct {
	queueURL     string
	urlErr       error
	urlCalls     int
	messages     []sqstypes.Message
	receiveErr   error
	deleted      []string
	sentMessages []string
}

func (m *mockSQSClient) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	m.urlCalls++
	if m.urlErr != nil {
		return nil, m.urlErr
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: &m.queueURL}, nil
}

func (m *mockSQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if m.receiveErr != nil {
		return nil, m.receiveErr
	}
	msgs := m.messages
	m.messages = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (m *mockSQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.deleted = append(m.deleted, *params.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func (m *mockSQSClient) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.sentMessages = append(m.sentMessages, *params.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

func strPtr(s string) *string { return &s }

func TestSQSFetch(t *testing.T) {
	client := &mockSQSClient{
		queueURL: "https://sqs.eu-west-1.amazonaws.com/123/crisis-posts",
		messages: []sqstypes.Message{
			{Body: strPtr(`{"id":"m1","source":"twitter","text":"flooding downtown houston"}`), ReceiptHandle: strPtr("rh1")},
			{Body: strPtr(`not json`), ReceiptHandle: strPtr("rh2")},
			{Body: strPtr(`{"id":"m3","text":"earthquake felt in tokyo"}`), ReceiptHandle: strPtr("rh3")},
		},
	}

	corrupt := 0
	s := NewSQSSource(client, config.SQSConfig{QueueName: "crisis-posts"}, func() { corrupt++ }, zap.NewNop())

	posts, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 decoded posts, got %d", len(posts))
	}
	if corrupt != 1 {
		t.Errorf("expected 1 corrupt message counted, got %d", corrupt)
	}
	if posts[0].Source != "twitter" {
		t.Errorf("explicit source should survive, got %s", posts[0].Source)
	}
	if posts[1].Source != "sqs" {
		t.Errorf("missing source should default to sqs, got %s", posts[1].Source)
	}

	// All three messages are deleted, including the corrupt one.
	if len(client.deleted) != 3 {
		t.Errorf("expected 3 deletions, got %d: %v", len(client.deleted), client.deleted)
	}
}

func TestSQSQueueURLCachedOnSuccess(t *testing.T) {
	client := &mockSQSClient{queueURL: "https://sqs/q"}
	s := NewSQSSource(client, config.SQSConfig{QueueName: "q"}, nil, zap.NewNop())

	if _, err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if _, err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if client.urlCalls != 1 {
		t.Errorf("expected queue URL resolved once, got %d lookups", client.urlCalls)
	}
}

func TestSQSQueueURLRetriedAfterFailure(t *testing.T) {
	client := &mockSQSClient{queueURL: "https://sqs/q", urlErr: errors.New("transient")}
	s := NewSQSSource(client, config.SQSConfig{QueueName: "q"}, nil, zap.NewNop())

	if _, err := s.Fetch(context.Background()); err == nil {
		t.Fatal("expected error while queue URL lookup fails")
	}

	client.urlErr = nil
	if _, err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("lookup should be retried after a failure: %v", err)
	}
	if client.urlCalls != 2 {
		t.Errorf("expected 2 lookups, got %d", client.urlCalls)
	}
}

func TestSQSFetchEmptyQueue(t *testing.T) {
	client := &mockSQSClient{queueURL: "https://sqs/q"}
	s := NewSQSSource(client, config.SQSConfig{QueueName: "q"}, nil, zap.NewNop())

	posts, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("expected no posts from empty queue, got %d", len(posts))
	}
	if len(client.deleted) != 0 {
		t.Errorf("expected no deletions, got %d", len(client.deleted))
	}
}

func TestSQSName(t *testing.T) {
	s := NewSQSSource(&mockSQSClient{}, config.SQSConfig{QueueName: "crisis-posts"}, nil, zap.NewNop())
	if s.Name() != "sqs:crisis-posts" {
		t.Errorf("unexpected name: %s", s.Name())
	}
}
