package classify

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/crisiswatch/crisiswatch/post"
)

// categoryKeywords maps hazard categories to the tokens that indicate
// them. Matching is case-insensitive substring matching over title+text.
var categoryKeywords = map[string][]string{
	"earthquake": {"earthquake", "quake", "seismic", "aftershock", "tremor", "epicenter"},
	"flood":      {"flood", "flooding", "flash flood", "river overflow", "inundat", "submerged"},
	"wildfire":   {"wildfire", "forest fire", "bushfire", "brush fire", "fire spreading", "acres burned"},
	"hurricane":  {"hurricane", "cyclone", "typhoon", "tropical storm", "storm surge", "landfall"},
	"tornado":    {"tornado", "twister", "funnel cloud", "tornado warning"},
	"landslide":  {"landslide", "mudslide", "rockslide", "debris flow"},
	"tsunami":    {"tsunami", "tidal wave", "tsunami warning"},
	"explosion":  {"explosion", "blast", "exploded", "gas leak"},
	"storm":      {"severe storm", "hailstorm", "blizzard", "thunderstorm", "heavy snowfall"},
}

// intensifiers boost severity when present. Each hit counts double
// compared to a plain category keyword.
var intensifiers = []string{
	"dead", "deaths", "killed", "casualties", "injured", "trapped",
	"collapsed", "evacuate", "evacuation", "emergency", "rescue",
	"missing", "destroyed", "catastrophic", "devastating", "state of emergency",
}

// magnitudeRe extracts earthquake magnitude mentions ("magnitude 6.5",
// "M7.1") which override keyword-based severity for earthquakes.
var magnitudeRe = regexp.MustCompile(`(?i)(?:magnitude\s+|m)(\d(?:\.\d+)?)`)

// KeywordClassifier is the heuristic classifier: keyword lists per hazard
// category, intensifier boosts for severity, and gazetteer substring
// matching for location. It never fails.
type KeywordClassifier struct {
	gazetteer []string
}

// NewKeywordClassifier creates a keyword classifier. Extra locations are
// matched in addition to the built-in gazetteer.
func NewKeywordClassifier(extraLocations ...string) *KeywordClassifier {
	g := make([]string, 0, len(gazetteer)+len(extraLocations))
	g = append(g, gazetteer...)
	g = append(g, extraLocations...)
	return &KeywordClassifier{gazetteer: g}
}

// Classify scores the post against the keyword lists. The returned error
// is always nil; the signature exists to satisfy Classifier.
func (c *KeywordClassifier) Classify(ctx context.Context, p post.Post) (Result, error) {
	text := strings.ToLower(p.Title + " " + p.Text)

	// Pick the category with the most keyword hits.
	bestCategory := ""
	bestHits := 0
	for category, words := range categoryKeywords {
		hits := 0
		for _, w := range words {
			hits += strings.Count(text, w)
		}
		if hits > bestHits {
			bestHits = hits
			bestCategory = category
		}
	}

	if bestHits == 0 {
		return Result{Disaster: false}, nil
	}

	boost := 0
	for _, w := range intensifiers {
		if strings.Contains(text, w) {
			boost++
		}
	}

	score := bestHits + 2*boost
	severity := scoreSeverity(score)

	// Explicit magnitude mentions trump keyword scoring for earthquakes.
	if bestCategory == "earthquake" {
		if m, ok := magnitude(text); ok {
			severity = magnitudeSeverity(m)
		}
	}

	confidence := 0.25 + 0.15*float64(bestHits) + 0.1*float64(boost)
	if confidence > 0.9 {
		// Heuristic results are capped below full confidence so model
		// classifications remain distinguishable downstream.
		confidence = 0.9
	}

	return Result{
		Disaster:   true,
		Category:   bestCategory,
		Severity:   severity,
		Location:   c.extractLocation(text, p.LocationHint),
		Confidence: confidence,
	}, nil
}

// extractLocation matches the gazetteer against the text, preferring the
// post's own location hint when it is set.
func (c *KeywordClassifier) extractLocation(text, hint string) string {
	if h := strings.TrimSpace(strings.ToLower(hint)); h != "" {
		return h
	}
	for _, loc := range c.gazetteer {
		if strings.Contains(text, loc) {
			return loc
		}
	}
	return UnknownLocation
}

func scoreSeverity(score int) post.Severity {
	switch {
	case score >= 6:
		return post.SeverityCritical
	case score >= 4:
		return post.SeverityHigh
	case score >= 2:
		return post.SeverityModerate
	default:
		return post.SeverityLow
	}
}

func magnitude(text string) (float64, bool) {
	m := magnitudeRe.FindStringSubmatch(text)
	if len(m) != 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func magnitudeSeverity(m float64) post.Severity {
	switch {
	case m >= 7:
		return post.SeverityCritical
	case m >= 6:
		return post.SeverityHigh
	case m >= 4.5:
		return post.SeverityModerate
	default:
		return post.SeverityLow
	}
}
