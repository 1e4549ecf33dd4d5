package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/rss-relay/app/cache"
)

const youtubeFeedBase = "https://www.youtube.com/feeds/videos.xml"

var errFeedLinkNotFound = errors.New("channel page has no feed link")

// YouTubeLocator maps channel page URLs to their Atom feed URLs.
type YouTubeLocator struct {
	fetcher Fetcher
	feeds   *cache.Map[string]
}

func NewYouTubeLocator(fetcher Fetcher) *YouTubeLocator {
	return &YouTubeLocator{
		fetcher: fetcher,
		feeds:   cache.New[string](),
	}
}

// FeedURL returns the videos feed for channelURL. URLs that already point at
// a feed are returned unchanged. Only a done ctx is reported as ctx's error.
func (y *YouTubeLocator) FeedURL(ctx context.Context, channelURL string) (string, error) {
	if isYouTubeFeed(channelURL) {
		return channelURL, nil
	}
	if feedURL, ok := y.feeds.Get(channelURL); ok {
		return feedURL, nil
	}

	resp, err := y.fetcher.Get(ctx, channelURL)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("request to %s failed", channelURL)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("channel page returned status %d", resp.StatusCode)
	}

	feedURL, err := feedLinkFromChannelPage(resp.Body, channelURL)
	if err != nil {
		return "", err
	}

	y.feeds.Set(channelURL, feedURL)
	return feedURL, nil
}

func isYouTubeFeed(raw string) bool {
	return strings.Contains(raw, "/feeds/videos.xml")
}

func feedLinkFromChannelPage(body []byte, channelURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse channel page: %w", err)
	}

	base, _ := url.Parse(channelURL)

	if href, ok := doc.Find(`link[rel="alternate"][type="application/rss+xml"]`).First().Attr("href"); ok {
		if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
			if base != nil {
				u = base.ResolveReference(u)
			}
			return u.String(), nil
		}
	}

	for _, selector := range []string{`meta[itemprop="channelId"]`, `meta[itemprop="identifier"]`} {
		if id := strings.TrimSpace(doc.Find(selector).First().AttrOr("content", "")); id != "" {
			return youtubeFeedBase + "?channel_id=" + url.QueryEscape(id), nil
		}
	}

	return "", errFeedLinkNotFound
}
