package feed

import (
	"context"
	"time"

	"github.com/lysyi3m/rss-relay/app/gateway"
)

// Post is one parsed feed entry ready for delivery.
type Post struct {
	Title       string
	ImageURL    string
	Description string
	Link        string
	Tag         string // feed title
	PublishDate time.Time
	Author      string
	Labels      []string
	FeedURL     string // configured URL the post was found under
}

// FeedState is the cursor of one configured feed URL.
type FeedState struct {
	URL             string    `json:"url"`
	IsYoutube       bool      `json:"is_youtube"`
	LastPublishDate time.Time `json:"last_publish_date"`
}

// ReferencePost is the persisted form of a FeedState, keyed by URL.
type ReferencePost struct {
	IsYoutube   bool
	LastRunDate time.Time
}

type StateStore interface {
	Load(ctx context.Context) (map[string]ReferencePost, error)
	Save(ctx context.Context, refs map[string]ReferencePost) error
}

type Fetcher interface {
	Get(ctx context.Context, url string) (*gateway.Response, error)
}

// Request statuses recorded when no HTTP status is available.
const (
	StatusRequestFailed = -99
	StatusInvalidURL    = 400
)

type ImageFetchMode string

const (
	ImageFeedThenPage ImageFetchMode = "feed_then_page"
	ImageFeedOnly     ImageFetchMode = "feed_only"
	ImagePageOnly     ImageFetchMode = "page_only"
)
