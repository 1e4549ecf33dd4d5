package feed

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/lysyi3m/rss-relay/app/logger"
)

const (
	pageImageTTL        = 15 * time.Minute
	pageImageCacheLimit = 2000
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".avif": true, ".bmp": true, ".svg": true,
}

var pageImageSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="og:image"]`, "content"},
	{`meta[property="og:image:secure_url"]`, "content"},
	{`meta[name="twitter:image"]`, "content"},
	{`meta[name="twitter:image:src"]`, "content"},
	{`link[rel="image_src"]`, "href"},
	{`img[data-src]`, "data-src"},
	{`#post-image`, "src"},
	{`img[src]`, "src"},
}

// PageImageResolver picks a representative image for an item from the feed
// markup and, depending on the mode, from the linked page.
type PageImageResolver struct {
	fetcher Fetcher
	pages   *expirable.LRU[string, string]
}

var _ ImageResolver = (*PageImageResolver)(nil)

func NewImageResolver(fetcher Fetcher) *PageImageResolver {
	return &PageImageResolver{
		fetcher: fetcher,
		pages:   expirable.NewLRU[string, string](pageImageCacheLimit, nil, pageImageTTL),
	}
}

func (r *PageImageResolver) ResolveImage(ctx context.Context, pageURL string, item *gofeed.Item, mode ImageFetchMode) string {
	base, _ := url.Parse(pageURL)

	switch mode {
	case ImageFeedOnly:
		return imageFromItem(item, base)
	case ImagePageOnly:
		return r.imageFromPage(ctx, pageURL)
	default:
		if img := imageFromItem(item, base); img != "" {
			return img
		}
		return r.imageFromPage(ctx, pageURL)
	}
}

func (r *PageImageResolver) imageFromPage(ctx context.Context, pageURL string) string {
	if r.fetcher == nil || pageURL == "" {
		return ""
	}
	if img, ok := r.pages.Get(pageURL); ok {
		return img
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return ""
	}

	resp, err := r.fetcher.Get(ctx, pageURL)
	if err != nil || !resp.IsSuccess() {
		return ""
	}

	img := imageFromHTML(resp.Body, base)
	if img == "" {
		img = leadImage(resp.Body, base)
	}

	r.pages.Add(pageURL, img)
	slog.Debug("Resolved page image", "page", logger.MaskURL(pageURL), "found", img != "")
	return img
}

func imageFromHTML(body []byte, base *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	for _, candidate := range pageImageSelectors {
		var found string
		doc.Find(candidate.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = absoluteImageURL(s.AttrOr(candidate.attr, ""), base)
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// leadImage runs readability over the page and returns the first image of
// the extracted article.
func leadImage(body []byte, base *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err != nil {
		return ""
	}

	var rendered strings.Builder
	if err := article.RenderHTML(&rendered); err != nil {
		return ""
	}
	return firstImgSrc(rendered.String(), base)
}

func imageFromItem(item *gofeed.Item, base *url.URL) string {
	if item == nil {
		return ""
	}

	for _, enclosure := range item.Enclosures {
		if enclosure == nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enclosure.Type), "image/") || hasImageExtension(enclosure.URL) {
			if img := absoluteImageURL(enclosure.URL, base); img != "" {
				return img
			}
		}
	}

	if img := imageFromMedia(item.Extensions, base); img != "" {
		return img
	}

	if item.ITunesExt != nil {
		if img := absoluteImageURL(item.ITunesExt.Image, base); img != "" {
			return img
		}
	}

	if item.Image != nil {
		if img := absoluteImageURL(item.Image.URL, base); img != "" {
			return img
		}
	}

	if img := firstImgSrc(item.Description, base); img != "" {
		return img
	}
	return firstImgSrc(item.Content, base)
}

// imageFromMedia reads media:content, media:thumbnail and their media:group
// wrappers.
func imageFromMedia(extensions ext.Extensions, base *url.URL) string {
	media, ok := extensions["media"]
	if !ok {
		return ""
	}

	if img := mediaImage(media, base); img != "" {
		return img
	}
	for _, group := range media["group"] {
		if img := mediaImage(group.Children, base); img != "" {
			return img
		}
	}
	return ""
}

func mediaImage(elements map[string][]ext.Extension, base *url.URL) string {
	for _, content := range elements["content"] {
		medium := strings.ToLower(content.Attrs["medium"])
		mimeType := strings.ToLower(content.Attrs["type"])
		if medium == "image" || strings.HasPrefix(mimeType, "image/") || (medium == "" && mimeType == "" && hasImageExtension(content.Attrs["url"])) {
			if img := absoluteImageURL(content.Attrs["url"], base); img != "" {
				return img
			}
		}
	}
	for _, thumb := range elements["thumbnail"] {
		if img := absoluteImageURL(thumb.Attrs["url"], base); img != "" {
			return img
		}
	}
	return ""
}

func firstImgSrc(fragment string, base *url.URL) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}

	var found string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = absoluteImageURL(s.AttrOr("src", s.AttrOr("data-src", "")), base)
		return found == ""
	})
	return found
}

// absoluteImageURL resolves raw against base and accepts only http(s) results.
func absoluteImageURL(raw string, base *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		if base == nil || base.Host == "" {
			return ""
		}
		u = base.ResolveReference(u)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String()
	default:
		return ""
	}
}

func hasImageExtension(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return imageExtensions[strings.ToLower(path.Ext(u.Path))]
}
