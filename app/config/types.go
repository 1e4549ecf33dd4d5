package config

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultCheckIntervalMinutes = 30
	DefaultConcurrentRequests   = 5
	DefaultDescriptionLimit     = 250
	DefaultUsername             = "FeedCord"
	DefaultColor                = 8411391
	DefaultImageFetchMode       = "feed_then_page"

	// AllFeedsFilter is the post filter URL that applies to feeds without
	// their own entry.
	AllFeedsFilter = "all"
)

// File is the layout of the instance configuration file.
type File struct {
	Instances []Instance `yaml:"instances"`
}

// Instance configures one independent feed set: its feeds, its webhook and
// how posts are rendered.
type Instance struct {
	ID                      string   `yaml:"id" validate:"required"`
	RSSURLs                 []string `yaml:"rss_urls" validate:"dive,omitempty,http_url"`
	YoutubeURLs             []string `yaml:"youtube_urls" validate:"dive,omitempty,http_url"`
	DiscordWebhookURL       string   `yaml:"discord_webhook_url" validate:"required,http_url"`
	RSSCheckIntervalMinutes int      `yaml:"rss_check_interval_minutes" validate:"min=1"`
	ConcurrentRequests      int      `yaml:"concurrent_requests" validate:"min=1,max=200"`
	DescriptionLimit        int      `yaml:"description_limit" validate:"min=0"`
	Forum                   bool     `yaml:"forum"`
	MarkdownFormat          bool     `yaml:"markdown_format"`
	PersistenceOnShutdown   *bool    `yaml:"persistence_on_shutdown"`
	ImageFetchMode          string   `yaml:"image_fetch_mode" validate:"oneof=feed_then_page feed_only page_only"`

	Username      string `yaml:"username"`
	AvatarURL     string `yaml:"avatar_url" validate:"omitempty,http_url"`
	AuthorName    string `yaml:"author_name"`
	AuthorIcon    string `yaml:"author_icon" validate:"omitempty,http_url"`
	AuthorURL     string `yaml:"author_url" validate:"omitempty,http_url"`
	FallbackImage string `yaml:"fallback_image" validate:"omitempty,http_url"`
	FooterImage   string `yaml:"footer_image" validate:"omitempty,http_url"`
	Color         int    `yaml:"color" validate:"min=0,max=16777215"`

	PostFilters []PostFilter `yaml:"post_filters" validate:"dive"`
}

// PostFilter lists the keywords a post must match to be delivered. URL is a
// feed URL or AllFeedsFilter.
type PostFilter struct {
	URL     string   `yaml:"url" validate:"required"`
	Filters []string `yaml:"filters"`
}

func (i *Instance) CheckInterval() time.Duration {
	return time.Duration(i.RSSCheckIntervalMinutes) * time.Minute
}

func (i *Instance) Persist() bool {
	return i.PersistenceOnShutdown == nil || *i.PersistenceOnShutdown
}

// FeedCount is the number of distinct non-blank feed URLs.
func (i *Instance) FeedCount() int {
	urls := lo.FilterMap(append(slices.Clone(i.RSSURLs), i.YoutubeURLs...), func(u string, _ int) (string, bool) {
		u = strings.TrimSpace(u)
		return u, u != ""
	})
	return len(lo.Uniq(urls))
}
