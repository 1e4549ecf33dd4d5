package feed

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-relay/app/gateway"
)

type fakeFetcher struct {
	responses map[string]*gateway.Response
	calls     atomic.Int32
	err       error
	errs      map[string]error
}

func (f *fakeFetcher) Get(_ context.Context, rawURL string) (*gateway.Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if err := f.errs[rawURL]; err != nil {
		return nil, err
	}
	return f.responses[rawURL], nil
}

func okResponse(body string) *gateway.Response {
	return &gateway.Response{StatusCode: 200, Body: []byte(body)}
}

func parseItem(t *testing.T, rss string) *gofeed.Item {
	t.Helper()

	parsed, err := gofeed.NewParser().Parse(strings.NewReader(rss))
	require.NoError(t, err)
	require.NotEmpty(t, parsed.Items)
	return parsed.Items[0]
}

func TestImageFromItem_Sources(t *testing.T) {
	tests := []struct {
		name string
		item string
		want string
	}{
		{
			name: "image enclosure",
			item: `<item><title>a</title><enclosure url="https://cdn.example.com/e.jpg" type="image/jpeg" length="1"/></item>`,
			want: "https://cdn.example.com/e.jpg",
		},
		{
			name: "media content",
			item: `<item><title>a</title><media:content url="https://cdn.example.com/m.png" medium="image"/></item>`,
			want: "https://cdn.example.com/m.png",
		},
		{
			name: "media group thumbnail",
			item: `<item><title>a</title><media:group><media:thumbnail url="https://i.ytimg.com/vi/x/hqdefault.jpg"/></media:group></item>`,
			want: "https://i.ytimg.com/vi/x/hqdefault.jpg",
		},
		{
			name: "itunes image",
			item: `<item><title>a</title><itunes:image href="https://cdn.example.com/pod.jpg"/></item>`,
			want: "https://cdn.example.com/pod.jpg",
		},
		{
			name: "relative img in description",
			item: `<item><title>a</title><link>https://example.com/posts/1</link><description><![CDATA[<p><img src="/img/cover.png"></p>]]></description></item>`,
			want: "https://example.com/img/cover.png",
		},
		{
			name: "unsafe scheme rejected",
			item: `<item><title>a</title><description><![CDATA[<img src="javascript:alert(1)">]]></description></item>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rss := `<?xml version="1.0"?><rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"><channel><title>F</title>` + tt.item + `</channel></rss>`
			item := parseItem(t, rss)
			base, _ := url.Parse(item.Link)
			assert.Equal(t, tt.want, imageFromItem(item, base))
		})
	}
}

func TestImageFromHTML_SelectorOrder(t *testing.T) {
	base, _ := url.Parse("https://example.com/post")

	html := `<html><head>
<meta name="twitter:image" content="https://example.com/twitter.png">
<meta property="og:image" content="/og.png">
</head><body><img src="/first.png"></body></html>`
	assert.Equal(t, "https://example.com/og.png", imageFromHTML([]byte(html), base))

	html = `<html><body><img data-src="https://cdn.example.com/lazy.png"><img src="/first.png"></body></html>`
	assert.Equal(t, "https://cdn.example.com/lazy.png", imageFromHTML([]byte(html), base))

	html = `<html><body><img src="data:image/png;base64,AAAA"><img src="/second.png"></body></html>`
	assert.Equal(t, "https://example.com/second.png", imageFromHTML([]byte(html), base))

	assert.Empty(t, imageFromHTML([]byte(`<html><body><p>text</p></body></html>`), base))
}

func TestPageImageResolver_Modes(t *testing.T) {
	page := "https://example.com/post"
	fetcher := &fakeFetcher{responses: map[string]*gateway.Response{
		page: okResponse(`<html><head><meta property="og:image" content="https://example.com/og.png"></head></html>`),
	}}
	resolver := NewImageResolver(fetcher)

	item := parseItem(t, `<?xml version="1.0"?><rss version="2.0"><channel><title>F</title><item><title>a</title><link>https://example.com/post</link><enclosure url="https://cdn.example.com/e.jpg" type="image/jpeg" length="1"/></item></channel></rss>`)
	ctx := context.Background()

	assert.Equal(t, "https://cdn.example.com/e.jpg", resolver.ResolveImage(ctx, page, item, ImageFeedOnly))
	assert.Equal(t, "https://cdn.example.com/e.jpg", resolver.ResolveImage(ctx, page, item, ImageFeedThenPage))
	assert.Equal(t, int32(0), fetcher.calls.Load())

	assert.Equal(t, "https://example.com/og.png", resolver.ResolveImage(ctx, page, item, ImagePageOnly))
	assert.Equal(t, "https://example.com/og.png", resolver.ResolveImage(ctx, page, item, ImagePageOnly))
	assert.Equal(t, int32(1), fetcher.calls.Load(), "page result should be cached")
}

func TestPageImageResolver_FeedThenPageFallsBackToPage(t *testing.T) {
	page := "https://example.com/post"
	fetcher := &fakeFetcher{responses: map[string]*gateway.Response{
		page: okResponse(`<html><head><meta property="og:image" content="https://example.com/og.png"></head></html>`),
	}}

	item := parseItem(t, `<?xml version="1.0"?><rss version="2.0"><channel><title>F</title><item><title>a</title><link>https://example.com/post</link></item></channel></rss>`)

	got := NewImageResolver(fetcher).ResolveImage(context.Background(), page, item, ImageFeedThenPage)
	assert.Equal(t, "https://example.com/og.png", got)
}

func TestPageImageResolver_FailedFetch(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]*gateway.Response{}}

	got := NewImageResolver(fetcher).ResolveImage(context.Background(), "https://example.com/missing", nil, ImagePageOnly)
	assert.Empty(t, got)
}

func TestAbsoluteImageURL(t *testing.T) {
	base, _ := url.Parse("https://example.com/a/b")

	assert.Equal(t, "https://example.com/a/c.png", absoluteImageURL("c.png", base))
	assert.Equal(t, "https://other.example.com/x.png", absoluteImageURL("https://other.example.com/x.png", base))
	assert.Empty(t, absoluteImageURL("file:///etc/passwd", base))
	assert.Empty(t, absoluteImageURL("data:image/png;base64,AAA", base))
	assert.Empty(t, absoluteImageURL("/relative.png", nil))
	assert.Empty(t, absoluteImageURL("", base))
}
