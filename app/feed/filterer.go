package feed

import (
	"log/slog"
	"strings"

	"github.com/lysyi3m/rss-relay/app/config"
)

// KeywordMatcher reports whether post satisfies a keyword list.
type KeywordMatcher func(post Post, keywords []string) bool

// PostFilter decides per feed URL whether a post is delivered. A feed's own
// entry takes precedence over the "all" entry; with neither, posts pass.
type PostFilter struct {
	byURL  map[string][]string
	all    []string
	hasAll bool
	match  KeywordMatcher
}

func NewPostFilter(filters []config.PostFilter) *PostFilter {
	return NewPostFilterWithMatcher(filters, MatchKeywords)
}

func NewPostFilterWithMatcher(filters []config.PostFilter, match KeywordMatcher) *PostFilter {
	f := &PostFilter{
		byURL: make(map[string][]string),
		match: match,
	}

	for _, filter := range filters {
		if filter.URL == config.AllFeedsFilter {
			if !f.hasAll {
				f.all = filter.Filters
				f.hasAll = true
			}
			continue
		}
		if _, exists := f.byURL[filter.URL]; !exists {
			f.byURL[filter.URL] = filter.Filters
		}
	}

	return f
}

func (f *PostFilter) ShouldIncludePost(post Post, feedURL string) bool {
	keywords, ok := f.byURL[feedURL]
	if !ok {
		if !f.hasAll {
			return true
		}
		keywords = f.all
	}

	if f.match(post, keywords) {
		return true
	}

	slog.Info("A new post was omitted because it does not match the feed filter", "url", feedURL, "title", post.Title)
	return false
}

// MatchKeywords reports whether any keyword occurs, case-insensitively, in
// the post's title, description or labels. An empty list matches everything.
func MatchKeywords(post Post, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}

	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		for _, field := range []string{"title", "description", "labels"} {
			if matchesFilter(fieldValue(post, field), keyword) {
				return true
			}
		}
	}
	return false
}

func matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func fieldValue(post Post, field string) string {
	switch field {
	case "title":
		return post.Title
	case "description":
		return post.Description
	case "labels":
		return strings.Join(post.Labels, " ")
	default:
		return ""
	}
}
