// Package classify turns raw posts into disaster classifications. The
// primary classifier delegates to an external model; the keyword
// classifier is the always-available heuristic the pipeline degrades to.
package classify

import (
	"context"

	"github.com/crisiswatch/crisiswatch/post"
)

// Result is the outcome of classifying a single post.
type Result struct {
	Disaster   bool          `json:"disaster"`
	Category   string        `json:"category"`
	Severity   post.Severity `json:"severity"`
	Location   string        `json:"location"`
	Confidence float64       `json:"confidence"`
	Summary    string        `json:"summary,omitempty"`
}

// Classifier decides whether a post describes a disaster and extracts
// category, severity, location and confidence.
type Classifier interface {
	Classify(ctx context.Context, p post.Post) (Result, error)
}

// UnknownLocation is the bucket for classifiable posts without any
// gazetteer match. Events in it are tracked but never escalate to alerts.
const UnknownLocation = "unknown"
