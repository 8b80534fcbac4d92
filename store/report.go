package store

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/crisiswatch/crisiswatch/aws"
	"github.com/crisiswatch/crisiswatch/metrics"
)

// S3ReportUploader uploads the final run report to S3.
type S3ReportUploader struct {
	client aws.S3Client
}

// NewS3ReportUploader creates a report uploader.
func NewS3ReportUploader(client aws.S3Client) *S3ReportUploader {
	return &S3ReportUploader{client: client}
}

// UploadReport marshals the report as JSON and writes it to the given
// s3://bucket/key URI.
func (u *S3ReportUploader) UploadReport(ctx context.Context, uri string, report metrics.Report) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid report S3 URI: %w", err)
	}
	if parsed.Scheme != "s3" {
		return fmt.Errorf("invalid report S3 URI scheme: %s", parsed.Scheme)
	}
	bucket := parsed.Host
	key := strings.TrimPrefix(parsed.Path, "/")

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}

	return nil
}
