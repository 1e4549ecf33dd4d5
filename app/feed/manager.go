package feed

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lysyi3m/rss-relay/app/cache"
	"github.com/lysyi3m/rss-relay/app/config"
	"github.com/lysyi3m/rss-relay/app/logger"
)

type FeedParser interface {
	Run(ctx context.Context, data []byte, opts ParseOptions) ([]Post, error)
}

type FeedLocator interface {
	FeedURL(ctx context.Context, channelURL string) (string, error)
}

type PostFilterer interface {
	ShouldIncludePost(post Post, feedURL string) bool
}

// BatchRecorder collects per-cycle diagnostics.
type BatchRecorder interface {
	RecordStatus(url string, status int)
	RecordLatestPost(url string, post Post)
}

type ManagerDeps struct {
	Fetcher Fetcher
	Parser  FeedParser
	YouTube FeedLocator
	Filter  PostFilterer
	Store   StateStore
	Batch   BatchRecorder
}

// Manager owns the cursors of one instance's feeds and runs its check
// cycles. Fetches are bounded by the instance's concurrency setting on top
// of the gateway's process-wide bound.
type Manager struct {
	instance *config.Instance
	deps     ManagerDeps
	sem      *semaphore.Weighted
	states   *cache.Map[FeedState]
}

func NewManager(instance *config.Instance, deps ManagerDeps) *Manager {
	limit := int64(instance.ConcurrentRequests)
	if limit < 1 {
		limit = config.DefaultConcurrentRequests
	}

	return &Manager{
		instance: instance,
		deps:     deps,
		sem:      semaphore.NewWeighted(limit),
		states:   cache.New[FeedState](),
	}
}

// InitializeUrls creates a FeedState for every non-blank URL. Feeds with a
// persisted reference are seeded from it; the others are fetched once and
// seeded from the newest post found.
func (m *Manager) InitializeUrls(ctx context.Context) error {
	refs := map[string]ReferencePost{}
	if m.deps.Store != nil {
		loaded, err := m.deps.Store.Load(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Warn("Failed to load reference posts", "instance", m.instance.ID, "error", err)
		} else {
			refs = loaded
		}
	}

	var g errgroup.Group
	for _, state := range m.configuredFeeds() {
		if ref, ok := refs[state.URL]; ok {
			state.LastPublishDate = ref.LastRunDate
			m.states.Set(state.URL, state)
			slog.Info("Seeded feed from reference post", "instance", m.instance.ID, "url", logger.MaskURL(state.URL), "last_run_date", ref.LastRunDate)
			continue
		}

		g.Go(func() error {
			return m.guard(state.URL, func() error {
				return m.validateFeed(ctx, state)
			}, func() {
				m.states.Update(state.URL, func(current FeedState, ok bool) FeedState {
					if ok {
						return current
					}
					return state
				})
			})
		})
	}

	return g.Wait()
}

func (m *Manager) validateFeed(ctx context.Context, state FeedState) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.sem.Release(1)

	posts, status, err := m.fetchPosts(ctx, state, ParseOptions{
		DescriptionLimit: m.instance.DescriptionLimit,
		SkipImages:       true,
	})
	if err != nil {
		return err
	}
	m.recordStatus(state.URL, status)

	if isSuccessStatus(status) {
		if latest, ok := latestPost(posts); ok {
			state.LastPublishDate = latest.PublishDate
		}
		slog.Info("Tested successfully", "instance", m.instance.ID, "url", logger.MaskURL(state.URL), "posts", len(posts))
	} else {
		slog.Warn("Feed validation failed", "instance", m.instance.ID, "url", logger.MaskURL(state.URL), "status", status)
	}

	m.states.Set(state.URL, state)
	return nil
}

// CheckForNewPosts fetches every feed and returns accepted posts newer than
// each feed's cursor, ordered by publish date. Cursors advance to the newest
// parsed post whether or not it was accepted, once every feed has been
// checked. One feed's failure does not affect the others; only ctx
// cancellation is returned, and then no cursor moves.
func (m *Manager) CheckForNewPosts(ctx context.Context) ([]Post, error) {
	var (
		mu       sync.Mutex
		found    []Post
		advances = make(map[string]time.Time)
		g        errgroup.Group
	)

	for _, state := range m.FeedStates() {
		g.Go(func() error {
			if err := m.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer m.sem.Release(1)

			return m.guard(state.URL, func() error {
				posts, latest, err := m.checkFeed(ctx, state)
				if err != nil {
					return err
				}

				mu.Lock()
				found = append(found, posts...)
				if !latest.IsZero() {
					advances[state.URL] = latest
				}
				mu.Unlock()
				return nil
			}, nil)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for feedURL, latest := range advances {
		m.advance(feedURL, latest)
	}

	slices.SortStableFunc(found, func(a, b Post) int {
		return a.PublishDate.Compare(b.PublishDate)
	})
	return found, nil
}

// checkFeed returns the accepted posts newer than the cursor and the publish
// date the cursor should move to.
func (m *Manager) checkFeed(ctx context.Context, state FeedState) ([]Post, time.Time, error) {
	mode := ImageFetchMode(m.instance.ImageFetchMode)
	if state.IsYoutube {
		mode = ImageFeedOnly
	}

	posts, status, err := m.fetchPosts(ctx, state, ParseOptions{
		DescriptionLimit: m.instance.DescriptionLimit,
		ImageMode:        mode,
		ImagesSince:      state.LastPublishDate,
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	m.recordStatus(state.URL, status)

	latest, ok := latestPost(posts)
	if !ok {
		return nil, time.Time{}, nil
	}

	var fresh []Post
	for _, post := range posts {
		if !post.PublishDate.After(state.LastPublishDate) {
			continue
		}
		if m.deps.Filter == nil || m.deps.Filter.ShouldIncludePost(post, state.URL) {
			post.FeedURL = state.URL
			fresh = append(fresh, post)
		}
	}

	if len(fresh) == 0 && m.deps.Batch != nil {
		m.deps.Batch.RecordLatestPost(state.URL, latest)
	}

	return fresh, latest.PublishDate, nil
}

// guard runs fn for one feed and turns a panic into a failed request for
// that feed. onPanic, when set, runs after the status is recorded.
func (m *Manager) guard(feedURL string, fn func() error, onPanic func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Feed processing panicked", "instance", m.instance.ID, "url", logger.MaskURL(feedURL), "panic", r)
			m.recordStatus(feedURL, StatusRequestFailed)
			if onPanic != nil {
				onPanic()
			}
			err = nil
		}
	}()

	return fn()
}

// advance moves the cursor forward only.
func (m *Manager) advance(feedURL string, to time.Time) {
	m.states.Update(feedURL, func(current FeedState, _ bool) FeedState {
		if to.After(current.LastPublishDate) {
			current.LastPublishDate = to
		}
		return current
	})
}

// fetchPosts returns the parsed posts of one feed and the status to record.
// The error is non-nil only when ctx is done.
func (m *Manager) fetchPosts(ctx context.Context, state FeedState, opts ParseOptions) ([]Post, int, error) {
	target := state.URL

	if state.IsYoutube {
		if m.deps.YouTube == nil {
			return nil, StatusRequestFailed, nil
		}
		feedURL, err := m.deps.YouTube.FeedURL(ctx, state.URL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, 0, ctxErr
			}
			slog.Warn("Failed to locate YouTube feed", "instance", m.instance.ID, "url", logger.MaskURL(state.URL), "error", err)
			return nil, StatusRequestFailed, nil
		}
		target = feedURL
	}

	if u, err := url.ParseRequestURI(target); err != nil || u.Host == "" {
		return nil, StatusInvalidURL, nil
	}

	resp, err := m.deps.Fetcher.Get(ctx, target)
	if err != nil {
		return nil, 0, err
	}
	if resp == nil {
		return nil, StatusRequestFailed, nil
	}
	if !resp.IsSuccess() {
		return nil, resp.StatusCode, nil
	}

	posts, err := m.deps.Parser.Run(ctx, resp.Body, opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		slog.Warn("Failed to parse feed", "instance", m.instance.ID, "url", logger.MaskURL(state.URL), "error", err)
		return nil, resp.StatusCode, nil
	}

	return posts, resp.StatusCode, nil
}

func (m *Manager) recordStatus(feedURL string, status int) {
	if m.deps.Batch != nil {
		m.deps.Batch.RecordStatus(feedURL, status)
	}
}

// configuredFeeds lists trimmed, non-blank, de-duplicated URLs.
func (m *Manager) configuredFeeds() []FeedState {
	seen := make(map[string]bool)
	var feeds []FeedState

	add := func(urls []string, youtube bool) {
		for _, raw := range urls {
			u := strings.TrimSpace(raw)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			feeds = append(feeds, FeedState{URL: u, IsYoutube: youtube})
		}
	}
	add(m.instance.RSSURLs, false)
	add(m.instance.YoutubeURLs, true)

	return feeds
}

// FeedStates returns a copy of every cursor ordered by URL.
func (m *Manager) FeedStates() []FeedState {
	states := make([]FeedState, 0, m.states.Len())
	m.states.Range(func(_ string, s FeedState) bool {
		states = append(states, s)
		return true
	})
	slices.SortFunc(states, func(a, b FeedState) int {
		return strings.Compare(a.URL, b.URL)
	})
	return states
}

// ReferencePosts converts the current cursors to their persisted form.
func (m *Manager) ReferencePosts() map[string]ReferencePost {
	states := m.states.Snapshot()
	refs := make(map[string]ReferencePost, len(states))
	for u, s := range states {
		refs[u] = ReferencePost{IsYoutube: s.IsYoutube, LastRunDate: s.LastPublishDate}
	}
	return refs
}

func latestPost(posts []Post) (Post, bool) {
	if len(posts) == 0 {
		return Post{}, false
	}
	latest := posts[0]
	for _, p := range posts[1:] {
		if p.PublishDate.After(latest.PublishDate) {
			latest = p
		}
	}
	return latest, true
}

func isSuccessStatus(status int) bool {
	return status >= 200 && status < 300
}
