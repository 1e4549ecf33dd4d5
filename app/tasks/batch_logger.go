package tasks

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/logger"
	"github.com/lysyi3m/rss-relay/app/metrics"
)

var _ feed.BatchRecorder = (*BatchLogger)(nil)

// BatchSummary describes one finished check cycle.
type BatchSummary struct {
	ID         string            `json:"id"`
	Instance   string            `json:"instance"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Tested     int               `json:"tested"`
	Failed     int               `json:"failed"`
	NewPosts   int               `json:"new_posts"`
	FailedURLs map[string]string `json:"failed_urls,omitempty"`
}

// BatchLogger aggregates per-URL results of a cycle and logs them as one
// summary when flushed.
type BatchLogger struct {
	instance string
	now      func() time.Time

	mu        sync.Mutex
	startedAt time.Time
	statuses  map[string]int
	latest    map[string]feed.Post
	newPosts  int
	last      *BatchSummary
}

func NewBatchLogger(instance string) *BatchLogger {
	b := &BatchLogger{
		instance: instance,
		now:      time.Now,
	}
	b.reset()
	return b
}

func (b *BatchLogger) RecordStatus(url string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[url] = status
}

func (b *BatchLogger) RecordLatestPost(url string, post feed.Post) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest[url] = post
}

func (b *BatchLogger) RecordNewPosts(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newPosts += n
}

// Begin marks the start of a cycle. Results recorded before it, such as
// initial validation, are kept.
func (b *BatchLogger) Begin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startedAt = b.now()
}

// Flush logs the collected results, exports them as metrics and starts a
// new batch.
func (b *BatchLogger) Flush() BatchSummary {
	b.mu.Lock()
	defer b.mu.Unlock()

	summary := BatchSummary{
		ID:         uuid.NewString(),
		Instance:   b.instance,
		StartedAt:  b.startedAt,
		FinishedAt: b.now(),
		Tested:     len(b.statuses),
		NewPosts:   b.newPosts,
	}

	urls := make([]string, 0, len(b.statuses))
	for url := range b.statuses {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	for _, url := range urls {
		status := b.statuses[url]
		if isSuccess(status) {
			continue
		}
		if summary.FailedURLs == nil {
			summary.FailedURLs = make(map[string]string)
		}
		summary.FailedURLs[url] = StatusText(status)
	}
	summary.Failed = len(summary.FailedURLs)

	slog.Info("Batch run finished",
		"batch_id", summary.ID,
		"instance", summary.Instance,
		"started_at", summary.StartedAt,
		"finished_at", summary.FinishedAt,
		"summary", strconv.Itoa(summary.Tested)+" URLs tested with "+strconv.Itoa(summary.Failed)+" failed responses")

	for _, url := range urls {
		if text, failed := summary.FailedURLs[url]; failed {
			slog.Warn("Bad feed response", "batch_id", summary.ID, "url", logger.MaskURL(url), "status", text)
		}
	}

	if summary.NewPosts == 0 {
		latestURLs := make([]string, 0, len(b.latest))
		for url := range b.latest {
			latestURLs = append(latestURLs, url)
		}
		sort.Strings(latestURLs)

		for _, url := range latestURLs {
			post := b.latest[url]
			slog.Info("No new posts, latest post in feed", "batch_id", summary.ID, "url", logger.MaskURL(url), "title", post.Title, "publish_date", post.PublishDate)
		}
	} else {
		slog.Info("New posts found, posting to webhook", "batch_id", summary.ID, "instance", summary.Instance, "count", summary.NewPosts)
	}

	metrics.RecordBatch(b.instance, summary.FinishedAt.Sub(summary.StartedAt), summary.Failed, summary.NewPosts)

	b.last = &summary
	b.reset()
	return summary
}

// LastSummary returns the most recently flushed batch.
func (b *BatchLogger) LastSummary() (BatchSummary, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return BatchSummary{}, false
	}
	return *b.last, true
}

func (b *BatchLogger) reset() {
	b.startedAt = b.now()
	b.statuses = make(map[string]int)
	b.latest = make(map[string]feed.Post)
	b.newPosts = 0
}

// StatusText describes a recorded feed status.
func StatusText(status int) string {
	switch status {
	case feed.StatusRequestFailed:
		return "Request Timed Out"
	case feed.StatusInvalidURL:
		return "Invalid URL"
	}
	if text := http.StatusText(status); text != "" {
		return strconv.Itoa(status) + " " + text
	}
	return strconv.Itoa(status)
}

func isSuccess(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusNotModified
}
