// Package checkpoint persists the replay cursor so an interrupted archive
// replay can resume where it stopped.
package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"

	"github.com/crisiswatch/crisiswatch/aws"
)

// CompletedOffset marks an archive object as fully replayed. Using -1
// distinguishes "completed" from "resume at offset 0".
const CompletedOffset = int64(-1)

// Cursor is the replay position: the last archive object touched and the
// byte offset reached within it.
type Cursor struct {
	LastKey        string `json:"lastKey"`
	LastByteOffset int64  `json:"lastByteOffset"`
}

// Store saves and loads the replay cursor.
// Example:
//
//	store, err := checkpoint.NewS3Store(client, "s3://my-bucket/checkpoints/replay.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cursor, err := store.Load(ctx)
type Store interface {
	Load(ctx context.Context) (Cursor, error)
	Save(ctx context.Context, c Cursor) error
}

// S3Store implements Store using an S3 object.
type S3Store struct {
	client aws.S3Client
	bucket string
	key    string
}

// NewS3Store creates a new S3Store instance from an S3 URI.
func NewS3Store(client aws.S3Client, uri string) (*S3Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 URI: %w", err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("invalid S3 URI scheme: %s", u.Scheme)
	}

	return &S3Store{
		client: client,
		bucket: u.Host,
		key:    strings.TrimPrefix(u.Path, "/"),
	}, nil
}

// Load reads the cursor object. A missing object loads an empty cursor so
// a first replay starts from the beginning.
func (s *S3Store) Load(ctx context.Context) (Cursor, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return Cursor{}, nil
		}
		// Some S3-compatible stores return NotFound instead.
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return Cursor{}, nil
		}
		return Cursor{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var cursor Cursor
	if err := json.NewDecoder(resp.Body).Decode(&cursor); err != nil {
		return Cursor{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return cursor, nil
}

// Save writes the cursor object.
func (s *S3Store) Save(ctx context.Context, cursor Cursor) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// FileStore implements Store using the local filesystem.
type FileStore struct {
	path string
}

// NewFileStore creates a new FileStore instance from a file URI. The path
// must be absolute and is cleaned to prevent path traversal.
func NewFileStore(uri string) (*FileStore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid file URI: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("invalid file URI scheme: %s", u.Scheme)
	}

	cleanPath := filepath.Clean(u.Path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("checkpoint path must be absolute: %s", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &FileStore{path: cleanPath}, nil
}

// Load reads the cursor file. A missing file loads an empty cursor.
func (f *FileStore) Load(ctx context.Context) (Cursor, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Cursor{}, nil
		}
		return Cursor{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return cursor, nil
}

// Save writes the cursor file.
func (f *FileStore) Save(ctx context.Context, cursor Cursor) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}

	return nil
}
