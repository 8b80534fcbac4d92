// Package post defines the records flowing through the pipeline: raw
// Posts from social/news sources, classified Events, and escalated Alerts.
package post

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode"
)

// Severity grades how serious a classified event is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityModerate Severity = "MODERATE"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities for comparisons. Unknown values rank
// below LOW so a corrupted severity never wins a max().
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordering value of the severity, 0 for unknown.
func (s Severity) Rank() int {
	return severityRank[s]
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Post is a text item sourced from a social/news feed, candidate for
// disaster classification.
type Post struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"` // e.g. "reddit", "sqs", "kafka"
	Author       string         `json:"author,omitempty"`
	Title        string         `json:"title,omitempty"`
	Text         string         `json:"text"`
	URL          string         `json:"url,omitempty"`
	LocationHint string         `json:"location_hint,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Raw          map[string]any `json:"raw,omitempty"`
}

// Fingerprint returns a stable content hash used for deduplication.
// The text is lowercased and all non-alphanumeric runs are collapsed so
// reposts that differ only in punctuation or whitespace collide.
func (p Post) Fingerprint() string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalize(p.Title)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(normalize(p.Text)))
	return fmt.Sprintf("%016x", h.Sum64())
}

// normalize lowercases s and collapses every run of non-alphanumeric
// characters into a single space.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Event is a Post classified as disaster-related, with hazard category,
// severity, location and confidence attached.
type Event struct {
	ID         string    `json:"id" dynamodbav:"id"`
	PostID     string    `json:"post_id" dynamodbav:"post_id"`
	Source     string    `json:"source" dynamodbav:"source"`
	Category   string    `json:"category" dynamodbav:"category"`
	Severity   Severity  `json:"severity" dynamodbav:"severity"`
	Location   string    `json:"location" dynamodbav:"location"`
	Confidence float64   `json:"confidence" dynamodbav:"confidence"`
	Summary    string    `json:"summary,omitempty" dynamodbav:"summary,omitempty"`
	Text       string    `json:"text" dynamodbav:"text"`
	Timestamp  time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// Alert is an aggregation of multiple Events in the same location within
// a time window, triggering notification.
type Alert struct {
	ID          string    `json:"id"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Severity    Severity  `json:"severity"`   // max severity over member events
	Confidence  float64   `json:"confidence"` // mean confidence over member events
	EventIDs    []string  `json:"event_ids"`
	EventCount  int       `json:"event_count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	CreatedAt   time.Time `json:"created_at"`
	Verified    bool      `json:"verified"`
	VerifiedBy  string    `json:"verified_by,omitempty"`
}

// Subject returns a short human-readable headline for notifications.
func (a Alert) Subject() string {
	verified := ""
	if a.Verified {
		verified = " [verified]"
	}
	return fmt.Sprintf("%s %s in %s (%d reports)%s",
		a.Severity, a.Category, a.Location, a.EventCount, verified)
}
