package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/config"
	"github.com/crisiswatch/crisiswatch/post"
)

const defaultRedditBase = "https://www.reddit.com"

// errRetryable marks transient listing failures (429, 5xx, transport
// errors) that the backoff loop may retry. Other statuses fail fast.
var errRetryable = errors.New("retryable")

// redditListing mirrors the fields we read from the Reddit listing API.
type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID         string  `json:"id"`
				Title      string  `json:"title"`
				Selftext   string  `json:"selftext"`
				Author     string  `json:"author"`
				Subreddit  string  `json:"subreddit"`
				Permalink  string  `json:"permalink"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// RedditSource polls subreddit JSON listings. Calls are spaced by a fixed
// minimum delay and 429/5xx responses retry with exponential backoff.
type RedditSource struct {
	cfg    config.RedditConfig
	client *http.Client
	log    *zap.Logger
}

// NewRedditSource creates a Reddit listing poller.
func NewRedditSource(cfg config.RedditConfig, log *zap.Logger) *RedditSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRedditBase
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "crisiswatch/1.0"
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &RedditSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// Name implements Source.
func (s *RedditSource) Name() string { return "reddit" }

// Fetch polls each configured subreddit in turn. One failing subreddit is
// logged and skipped; the fetch fails only when every listing call fails.
func (s *RedditSource) Fetch(ctx context.Context) ([]post.Post, error) {
	var posts []post.Post
	failures := 0

	for i, sub := range s.cfg.Subreddits {
		// Fixed delay between listing calls keeps us under the API's
		// unauthenticated rate limit.
		if i > 0 {
			select {
			case <-time.After(s.cfg.MinDelay):
			case <-ctx.Done():
				return posts, ctx.Err()
			}
		}

		listing, err := s.fetchListing(ctx, sub)
		if err != nil {
			failures++
			s.log.Warn("reddit listing failed", zap.String("subreddit", sub), zap.Error(err))
			continue
		}
		posts = append(posts, listing...)
	}

	if failures == len(s.cfg.Subreddits) {
		return nil, fmt.Errorf("all %d subreddit listings failed", failures)
	}
	return posts, nil
}

// fetchListing performs one listing call with retries.
func (s *RedditSource) fetchListing(ctx context.Context, subreddit string) ([]post.Post, error) {
	url := fmt.Sprintf("%s/r/%s/new.json?limit=%d", s.cfg.BaseURL, subreddit, s.cfg.Limit)

	var body []byte
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.cfg.Backoff * time.Duration(1<<uint(attempt-1))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, lastErr = s.get(ctx, url)
		if lastErr == nil {
			break
		}
		if !errors.Is(lastErr, errRetryable) {
			return nil, lastErr
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	posts := make([]post.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		d := child.Data
		posts = append(posts, post.Post{
			ID:        "reddit-" + d.ID,
			Source:    "reddit",
			Author:    d.Author,
			Title:     d.Title,
			Text:      d.Selftext,
			URL:       s.cfg.BaseURL + d.Permalink,
			CreatedAt: time.Unix(int64(d.CreatedUTC), 0).UTC(),
		})
	}
	return posts, nil
}

// get performs one HTTP GET, treating 429 and 5xx as retryable errors.
func (s *RedditSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errRetryable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: listing returned %d", errRetryable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
