package mock

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
)

// Stream is a simplified implementation of s3streamer.Streamer reading
// straight from the Files map. Offsets are line numbers rather than byte
// positions; resuming at offset n skips the first n lines.
func (m *S3Client) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	m.mu.RLock()
	content, ok := m.Files[bucket+"/"+key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("mock S3: key not found: %s/%s", bucket, key)
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	lineNum := int64(0)
	for scanner.Scan() {
		if lineNum < offset {
			lineNum++
			continue
		}
		if err := fn(scanner.Bytes(), lineNum); err != nil {
			return err
		}
		lineNum++

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return scanner.Err()
}
