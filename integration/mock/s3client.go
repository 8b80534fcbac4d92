package mock

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is a mock implementation of aws.S3Client backed by a
// "bucket/key" map.
type S3Client struct {
	mu    sync.RWMutex
	Files map[string][]byte
}

// NewS3Client creates an empty mock S3 client.
func NewS3Client() *S3Client {
	return &S3Client{Files: make(map[string][]byte)}
}

// AddFile stores an object.
func (m *S3Client) AddFile(bucket, key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[bucket+"/"+key] = content
}

// GetObject returns a stored object or a NoSuchKey error.
func (m *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.Files[*params.Bucket+"/"+*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	size := int64(len(content))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		ContentLength: &size,
	}, nil
}

// PutObject stores an object.
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	content, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.AddFile(*params.Bucket, *params.Key, content)
	return &s3.PutObjectOutput{}, nil
}

// ListObjectsV2 returns the keys in a bucket matching the prefix, sorted.
func (m *S3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucketPrefix := *params.Bucket + "/"
	var keys []string
	for path := range m.Files {
		if !strings.HasPrefix(path, bucketPrefix) {
			continue
		}
		key := strings.TrimPrefix(path, bucketPrefix)
		if params.Prefix != nil && !strings.HasPrefix(key, *params.Prefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	contents := make([]types.Object, 0, len(keys))
	for i := range keys {
		size := int64(len(m.Files[bucketPrefix+keys[i]]))
		contents = append(contents, types.Object{Key: &keys[i], Size: &size})
	}

	truncated := false
	return &s3.ListObjectsV2Output{
		Contents:    contents,
		IsTruncated: &truncated,
	}, nil
}
