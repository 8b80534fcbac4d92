package store

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/crisiswatch/crisiswatch/aws"
	"github.com/crisiswatch/crisiswatch/post"
)

// Archiver writes raw post batches to S3 as JSON-line objects, one object
// per cycle batch. Archived objects can be replayed through the pipeline.
type Archiver struct {
	client aws.S3Client
	bucket string
	prefix string
	seq    atomic.Int64
}

// NewArchiver creates an Archiver from an s3://bucket/prefix URI.
func NewArchiver(client aws.S3Client, uri string) (*Archiver, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid archive S3 URI: %w", err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("invalid archive S3 URI scheme: %s", u.Scheme)
	}

	prefix := strings.Trim(u.Path, "/")
	return &Archiver{
		client: client,
		bucket: u.Host,
		prefix: prefix,
	}, nil
}

// ArchiveBatch encodes the posts as JSON lines and writes them to a new
// object named <prefix>/<unix-ts>-<seq>.jsonl. Returns the object key.
func (a *Archiver) ArchiveBatch(ctx context.Context, posts []post.Post) (string, error) {
	if len(posts) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range posts {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("failed to encode post %s: %w", p.ID, err)
		}
	}

	key := fmt.Sprintf("%s/%d-%06d.jsonl", a.prefix, time.Now().UTC().Unix(), a.seq.Add(1))
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive batch: %w", err)
	}

	return key, nil
}

// Bucket returns the archive bucket name.
func (a *Archiver) Bucket() string {
	return a.bucket
}

// List returns the archived object keys under the prefix in ascending
// order. Key names start with the unix timestamp so lexical order is
// chronological.
func (a *Archiver) List(ctx context.Context) ([]string, error) {
	prefix := a.prefix + "/"
	var keys []string
	var continuation *string

	for {
		resp, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &a.bucket,
			Prefix:            &prefix,
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list archive objects: %w", err)
		}
		for _, obj := range resp.Contents {
			if obj.Key != nil && strings.HasSuffix(*obj.Key, ".jsonl") {
				keys = append(keys, *obj.Key)
			}
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		continuation = resp.NextContinuationToken
	}

	sort.Strings(keys)
	return keys, nil
}
