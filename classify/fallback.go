package classify

import (
	"context"

	"github.com/crisiswatch/crisiswatch/post"
)

// FallbackClassifier tries the primary classifier and degrades to the
// fallback when the primary fails. The pipeline never sees the primary's
// transport error: classification always produces a result.
type FallbackClassifier struct {
	primary  Classifier
	fallback Classifier
	degraded func() // invoked once per degradation, typically a metrics hook
}

// NewFallbackClassifier wires primary and fallback classifiers. onDegrade
// may be nil.
func NewFallbackClassifier(primary, fallback Classifier, onDegrade func()) *FallbackClassifier {
	return &FallbackClassifier{primary: primary, fallback: fallback, degraded: onDegrade}
}

// Classify runs the primary classifier, falling back on error.
func (c *FallbackClassifier) Classify(ctx context.Context, p post.Post) (Result, error) {
	r, err := c.primary.Classify(ctx, p)
	if err == nil {
		return r, nil
	}
	if ctx.Err() != nil {
		// Cancellation is not a degradation; surface it.
		return Result{}, ctx.Err()
	}
	if c.degraded != nil {
		c.degraded()
	}
	return c.fallback.Classify(ctx, p)
}
