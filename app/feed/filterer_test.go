package feed

import (
	"testing"

	"github.com/lysyi3m/rss-relay/app/config"
)

type matcherCall struct {
	title    string
	keywords []string
}

func recordingMatcher(calls *[]matcherCall, result bool) KeywordMatcher {
	return func(post Post, keywords []string) bool {
		*calls = append(*calls, matcherCall{title: post.Title, keywords: keywords})
		return result
	}
}

func TestPostFilter_NoEntriesIncludesEverything(t *testing.T) {
	var calls []matcherCall
	filter := NewPostFilterWithMatcher(nil, recordingMatcher(&calls, false))

	if !filter.ShouldIncludePost(Post{Title: "anything"}, "https://example.com/feed") {
		t.Errorf("Expected post to be included when no filters are configured")
	}
	if len(calls) != 0 {
		t.Errorf("Expected matcher not to be called, got %d calls", len(calls))
	}
}

func TestPostFilter_URLEntryTakesPrecedence(t *testing.T) {
	var calls []matcherCall
	filter := NewPostFilterWithMatcher([]config.PostFilter{
		{URL: config.AllFeedsFilter, Filters: []string{"global"}},
		{URL: "https://example.com/feed", Filters: []string{"specific"}},
	}, recordingMatcher(&calls, true))

	filter.ShouldIncludePost(Post{Title: "a"}, "https://example.com/feed")

	if len(calls) != 1 {
		t.Fatalf("Expected 1 matcher call, got %d", len(calls))
	}
	if len(calls[0].keywords) != 1 || calls[0].keywords[0] != "specific" {
		t.Errorf("Expected URL-specific keywords, got %v", calls[0].keywords)
	}
}

func TestPostFilter_FallsBackToAllEntry(t *testing.T) {
	var calls []matcherCall
	filter := NewPostFilterWithMatcher([]config.PostFilter{
		{URL: "https://other.example.com/feed", Filters: []string{"other"}},
		{URL: config.AllFeedsFilter, Filters: []string{"global"}},
	}, recordingMatcher(&calls, false))

	if filter.ShouldIncludePost(Post{Title: "a"}, "https://example.com/feed") {
		t.Errorf("Expected post to be excluded when the matcher rejects it")
	}
	if len(calls) != 1 || calls[0].keywords[0] != "global" {
		t.Errorf("Expected the all entry to be used, got %v", calls)
	}
}

func TestPostFilter_UnmatchedURLWithoutAllEntry(t *testing.T) {
	var calls []matcherCall
	filter := NewPostFilterWithMatcher([]config.PostFilter{
		{URL: "https://other.example.com/feed", Filters: []string{"other"}},
	}, recordingMatcher(&calls, false))

	if !filter.ShouldIncludePost(Post{Title: "a"}, "https://example.com/feed") {
		t.Errorf("Expected post to be included when no entry applies")
	}
	if len(calls) != 0 {
		t.Errorf("Expected matcher not to be called, got %d calls", len(calls))
	}
}

func TestPostFilter_FirstEntryWins(t *testing.T) {
	var calls []matcherCall
	filter := NewPostFilterWithMatcher([]config.PostFilter{
		{URL: "https://example.com/feed", Filters: []string{"first"}},
		{URL: "https://example.com/feed", Filters: []string{"second"}},
	}, recordingMatcher(&calls, true))

	filter.ShouldIncludePost(Post{Title: "a"}, "https://example.com/feed")

	if len(calls) != 1 || calls[0].keywords[0] != "first" {
		t.Errorf("Expected first entry keywords, got %v", calls)
	}
}

func TestPostFilter_Deterministic(t *testing.T) {
	filter := NewPostFilter([]config.PostFilter{
		{URL: config.AllFeedsFilter, Filters: []string{"golang"}},
	})
	post := Post{Title: "Release notes", Labels: []string{"golang"}}

	first := filter.ShouldIncludePost(post, "https://example.com/feed")
	for i := 0; i < 5; i++ {
		if got := filter.ShouldIncludePost(post, "https://example.com/feed"); got != first {
			t.Fatalf("Expected repeated calls to return %v, got %v", first, got)
		}
	}
	if !first {
		t.Errorf("Expected label match to include the post")
	}
}

func TestMatchKeywords(t *testing.T) {
	post := Post{
		Title:       "Breaking News: Go 1.25 Released",
		Description: "The Go team announced a new version",
		Labels:      []string{"programming", "release"},
	}

	tests := []struct {
		name     string
		keywords []string
		want     bool
	}{
		{"empty list matches", nil, true},
		{"title case-insensitive", []string{"breaking"}, true},
		{"description", []string{"go team"}, true},
		{"label", []string{"Programming"}, true},
		{"any keyword", []string{"sports", "release"}, true},
		{"no match", []string{"sports", "weather"}, false},
		{"blank keywords ignored", []string{" ", ""}, false},
		{"surrounding spaces trimmed", []string{"  news  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchKeywords(post, tt.keywords); got != tt.want {
				t.Errorf("MatchKeywords(%v) = %v, want %v", tt.keywords, got, tt.want)
			}
		})
	}
}
