// Package verify confirms alerts against a roster of official sources.
// An alert whose location and category fall inside a roster entry's
// coverage is marked verified with that source's name.
package verify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/crisiswatch/crisiswatch/aws"
	"github.com/crisiswatch/crisiswatch/post"
)

// OfficialSource is one entry in the verification roster. Empty Locations
// or Categories means the source covers all of them.
type OfficialSource struct {
	Name       string   `json:"name" yaml:"name"`
	Locations  []string `json:"locations,omitempty" yaml:"locations,omitempty"`
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// covers reports whether the source covers the given location/category.
func (s OfficialSource) covers(location, category string) bool {
	return containsFold(s.Locations, location) && containsFold(s.Categories, category)
}

func containsFold(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// Verifier matches alerts against official sources.
type Verifier interface {
	Verify(a post.Alert) (string, bool)
}

// Roster is a static Verifier over a list of official sources.
type Roster struct {
	sources []OfficialSource
}

// NewRoster creates a Roster from the given sources.
func NewRoster(sources []OfficialSource) *Roster {
	return &Roster{sources: sources}
}

// Verify returns the name of the first official source covering the
// alert, or false if none does.
func (r *Roster) Verify(a post.Alert) (string, bool) {
	for _, s := range r.sources {
		if s.covers(a.Location, a.Category) {
			return s.Name, true
		}
	}
	return "", false
}

// Len returns the number of roster entries.
func (r *Roster) Len() int {
	return len(r.sources)
}

// LoadS3Roster reads a roster from a JSON array stored at an S3 URI.
func LoadS3Roster(ctx context.Context, client aws.S3Client, uri string) (*Roster, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid roster S3 URI: %w", err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("invalid roster S3 URI scheme: %s", u.Scheme)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get roster object: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var sources []OfficialSource
	if err := json.NewDecoder(resp.Body).Decode(&sources); err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}

	return NewRoster(sources), nil
}
