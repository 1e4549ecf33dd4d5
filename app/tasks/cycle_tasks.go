package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/logger"
)

type InitializeTask struct {
	Task
	manager FeedChecker
}

func NewInitializeTask(instance string, manager FeedChecker) *InitializeTask {
	return &InitializeTask{
		Task:    NewTask(TaskTypeInitialize, instance),
		manager: manager,
	}
}

func (t *InitializeTask) Execute(ctx context.Context) error {
	if err := t.manager.InitializeUrls(ctx); err != nil {
		return fmt.Errorf("failed to initialize feeds: %w", err)
	}

	slog.Info("Feeds initialized", "instance", t.Instance, "feeds", len(t.manager.FeedStates()), "duration", t.GetDuration())
	return nil
}

// backlog holds posts whose delivery was interrupted. They are delivered
// first on the next cycle, and persisted cursors stay below them.
type backlog struct {
	mu    sync.Mutex
	posts []feed.Post
}

func (b *backlog) take() []feed.Post {
	b.mu.Lock()
	defer b.mu.Unlock()
	posts := b.posts
	b.posts = nil
	return posts
}

func (b *backlog) keep(posts []feed.Post) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts = append(b.posts, posts...)
}

// holds returns the earliest undelivered publish date per feed URL.
func (b *backlog) holds() map[string]time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	holds := make(map[string]time.Time)
	for _, post := range b.posts {
		if post.FeedURL == "" {
			continue
		}
		if current, ok := holds[post.FeedURL]; !ok || post.PublishDate.Before(current) {
			holds[post.FeedURL] = post.PublishDate
		}
	}
	return holds
}

// CheckTask runs one check cycle: new posts are fetched, delivered in
// ascending publish order and summarized.
type CheckTask struct {
	Task
	manager  FeedChecker
	notifier PostNotifier
	batch    *BatchLogger
	pending  *backlog
}

func NewCheckTask(instance string, manager FeedChecker, notifier PostNotifier, batch *BatchLogger, pending *backlog) *CheckTask {
	return &CheckTask{
		Task:     NewTask(TaskTypeCheck, instance),
		manager:  manager,
		notifier: notifier,
		batch:    batch,
		pending:  pending,
	}
}

func (t *CheckTask) Execute(ctx context.Context) error {
	t.batch.Begin()
	defer t.batch.Flush()

	carried := t.pending.take()

	posts, err := t.manager.CheckForNewPosts(ctx)
	if err != nil {
		t.pending.keep(carried)
		return fmt.Errorf("failed to check feeds: %w", err)
	}
	t.batch.RecordNewPosts(len(posts))

	if len(carried) > 0 {
		slog.Info("Retrying interrupted deliveries", "instance", t.Instance, "count", len(carried))
		posts = append(carried, posts...)
		slices.SortStableFunc(posts, func(a, b feed.Post) int {
			return a.PublishDate.Compare(b.PublishDate)
		})
	}

	for i, post := range posts {
		if err := t.notifier.Notify(ctx, post); err != nil {
			t.pending.keep(posts[i:])
			return fmt.Errorf("failed to deliver %q: %w", post.Title, err)
		}
	}

	return nil
}

// PersistTask writes the current cursors as reference posts. Cursors that
// were never set are skipped so the next run validates those feeds again.
// A cursor is kept below the earliest post still waiting for delivery.
type PersistTask struct {
	Task
	manager FeedChecker
	store   feed.StateStore
	pending *backlog
}

func NewPersistTask(instance string, manager FeedChecker, store feed.StateStore, pending *backlog) *PersistTask {
	return &PersistTask{
		Task:    NewTask(TaskTypePersist, instance),
		manager: manager,
		store:   store,
		pending: pending,
	}
}

func (t *PersistTask) Execute(ctx context.Context) error {
	refs := make(map[string]feed.ReferencePost)
	for url, ref := range t.manager.ReferencePosts() {
		if ref.LastRunDate.Equal(time.Time{}) {
			continue
		}
		refs[url] = ref
	}

	for url, hold := range t.pending.holds() {
		ref, ok := refs[url]
		if !ok || ref.LastRunDate.Before(hold) {
			continue
		}
		ref.LastRunDate = hold.Add(-time.Nanosecond)
		refs[url] = ref
		slog.Info("Holding cursor before undelivered post", "instance", t.Instance, "url", logger.MaskURL(url), "last_run_date", ref.LastRunDate)
	}

	if err := t.store.Save(ctx, refs); err != nil {
		return fmt.Errorf("failed to save reference posts: %w", err)
	}

	slog.Info("Reference posts saved", "instance", t.Instance, "count", len(refs))
	return nil
}
