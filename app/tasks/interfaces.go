package tasks

import (
	"context"

	"github.com/lysyi3m/rss-relay/app/feed"
)

// FeedChecker is the part of feed.Manager a Scheduler drives.
type FeedChecker interface {
	InitializeUrls(ctx context.Context) error
	CheckForNewPosts(ctx context.Context) ([]feed.Post, error)
	FeedStates() []feed.FeedState
	ReferencePosts() map[string]feed.ReferencePost
}

type PostNotifier interface {
	Notify(ctx context.Context, post feed.Post) error
}

// InstanceStatus is what the API reports for one running instance.
type InstanceStatus interface {
	ID() string
	State() State
	FeedCount() int
	FeedStates() []feed.FeedState
	LastBatch() (BatchSummary, bool)
}
