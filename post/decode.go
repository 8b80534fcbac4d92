package post

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ErrCorrupt is returned when a line cannot be decoded into a usable Post.
// Callers count corrupt lines and move on rather than aborting.
var ErrCorrupt = fmt.Errorf("corrupt line")

// Decoder decodes JSON lines into Posts. Archive replay and the SQS/Kafka
// consumers all feed through a Decoder.
type Decoder interface {
	Decode(line []byte) (Post, error)
}

// JSONDecoder implements Decoder for the pipeline's JSON-line format.
// It is tolerant about field spelling: sources disagree on id/timestamp
// key names, so the decoder probes the common variants.
type JSONDecoder struct{}

// NewJSONDecoder creates a new JSONDecoder instance.
func NewJSONDecoder() *JSONDecoder {
	return &JSONDecoder{}
}

// Decode parses one JSON line into a Post. A line with no usable text is
// corrupt. A missing ID is derived from the content fingerprint and a
// missing timestamp defaults to now, so partial records still flow.
func (d *JSONDecoder) Decode(line []byte) (Post, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Post{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	p := Post{
		Source:       pickStr(raw, "source", "platform"),
		Author:       pickStr(raw, "author", "user", "username"),
		Title:        pickStr(raw, "title"),
		Text:         pickStr(raw, "text", "body", "content", "selftext"),
		URL:          pickStr(raw, "url", "permalink"),
		LocationHint: pickStr(raw, "location_hint", "location"),
		Raw:          raw,
	}

	if p.Text == "" && p.Title == "" {
		return Post{}, fmt.Errorf("%w: no text content", ErrCorrupt)
	}

	p.ID = pickStr(raw, "id", "post_id", "content_id")
	if p.ID == "" {
		p.ID = p.Fingerprint()
	}

	if ts := pickStr(raw, "created_at", "timestamp", "created_utc", "published"); ts != "" {
		t, err := parseTimeFlexible(ts)
		if err == nil {
			p.CreatedAt = t
		}
	} else if n, ok := pickNum(raw, "created_at", "timestamp", "created_utc"); ok {
		p.CreatedAt = time.Unix(int64(n), 0).UTC()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	return p, nil
}

// pickStr returns the first non-empty string value among the given keys.
func pickStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				if s2 := strings.TrimSpace(s); s2 != "" {
					return s2
				}
			}
		}
	}
	return ""
}

// pickNum returns the first numeric value among the given keys.
func pickNum(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// parseTimeFlexible parses timestamps in the formats the sources actually
// emit: RFC3339, epoch seconds, and a couple of common layouts.
func parseTimeFlexible(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC(), nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time: %s", s)
}
