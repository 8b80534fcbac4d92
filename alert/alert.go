// Package alert dispatches escalated alerts to notification targets.
package alert

import (
	"context"

	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/post"
)

// Notifier delivers an alert to a notification target.
type Notifier interface {
	Notify(ctx context.Context, a post.Alert) error
}

// LogNotifier logs alerts instead of delivering them. Used for dry runs.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the alert at warn level.
func (n *LogNotifier) Notify(ctx context.Context, a post.Alert) error {
	n.log.Warn("alert",
		zap.String("id", a.ID),
		zap.String("location", a.Location),
		zap.String("category", a.Category),
		zap.String("severity", string(a.Severity)),
		zap.Int("events", a.EventCount),
		zap.Float64("confidence", a.Confidence),
		zap.Bool("verified", a.Verified),
	)
	return nil
}
