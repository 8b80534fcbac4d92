// Package mock provides in-memory AWS client implementations for
// integration tests. They satisfy the narrow client interfaces in the
// aws package and record every call for assertions.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBClient is a mock implementation of aws.DynamoDBClient.
// Items are stored per table keyed by their "id" attribute, matching the
// event table schema.
type DynamoDBClient struct {
	mu            sync.RWMutex
	tableData     map[string]map[string]map[string]types.AttributeValue
	batchWrites   []dynamodb.BatchWriteItemInput
	failNextWrite bool
}

// NewDynamoDBClient creates an empty mock DynamoDB client.
func NewDynamoDBClient() *DynamoDBClient {
	return &DynamoDBClient{
		tableData: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

// SetFailNextWrite makes the next BatchWriteItem call fail once.
func (m *DynamoDBClient) SetFailNextWrite(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNextWrite = fail
}

func (m *DynamoDBClient) shouldFail() bool {
	if m.failNextWrite {
		m.failNextWrite = false
		return true
	}
	return false
}

// itemKey extracts the partition key from an item's attributes.
func itemKey(item map[string]types.AttributeValue) string {
	if v, ok := item["id"]; ok {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			return s.Value
		}
	}
	return fmt.Sprintf("%v", item)
}

// BatchWriteItem stores put requests and removes delete requests.
func (m *DynamoDBClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchWrites = append(m.batchWrites, *params)
	if m.shouldFail() {
		return nil, fmt.Errorf("simulated batch write failure")
	}

	for tableName, writeRequests := range params.RequestItems {
		if _, exists := m.tableData[tableName]; !exists {
			m.tableData[tableName] = make(map[string]map[string]types.AttributeValue)
		}
		for _, wr := range writeRequests {
			if wr.PutRequest != nil {
				m.tableData[tableName][itemKey(wr.PutRequest.Item)] = wr.PutRequest.Item
			}
			if wr.DeleteRequest != nil {
				delete(m.tableData[tableName], itemKey(wr.DeleteRequest.Key))
			}
		}
	}

	return &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: make(map[string][]types.WriteRequest),
	}, nil
}

// ItemCount returns the number of items stored in a table.
func (m *DynamoDBClient) ItemCount(tableName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tableData[tableName])
}

// GetItem returns a stored item by id, or nil if absent.
func (m *DynamoDBClient) GetItem(tableName, id string) map[string]types.AttributeValue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tableData[tableName][id]
}

// BatchWriteCount returns how many BatchWriteItem calls were made.
func (m *DynamoDBClient) BatchWriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.batchWrites)
}
