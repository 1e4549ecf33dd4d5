package feed

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

type ImageResolver interface {
	ResolveImage(ctx context.Context, pageURL string, item *gofeed.Item, mode ImageFetchMode) string
}

type ParseOptions struct {
	DescriptionLimit int
	ImageMode        ImageFetchMode
	// ImagesSince limits image resolution to items published after it.
	ImagesSince time.Time
	SkipImages  bool
}

type Parser struct {
	images    ImageResolver
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

func NewParser(images ImageResolver) *Parser {
	return &Parser{
		images:    images,
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

// Run parses RSS, Atom or JSON feed data into posts in document order.
func (p *Parser) Run(ctx context.Context, data []byte, opts ParseOptions) ([]Post, error) {
	// gofeed parsers keep per-parse state, so each call gets its own.
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	posts := make([]Post, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}

		post := p.buildPost(item, parsed, opts.DescriptionLimit)
		if p.images != nil && !opts.SkipImages && post.PublishDate.After(opts.ImagesSince) {
			post.ImageURL = p.images.ResolveImage(ctx, item.Link, item, opts.ImageMode)
		}
		if post.ImageURL == "" && parsed.Image != nil {
			post.ImageURL = parsed.Image.URL
		}

		posts = append(posts, post)
	}

	return posts, nil
}

func (p *Parser) buildPost(item *gofeed.Item, parsed *gofeed.Feed, limit int) Post {
	post := Post{
		Title:       strings.TrimSpace(html.UnescapeString(item.Title)),
		Description: trimDescription(p.plainText(cmp.Or(item.Description, item.Content)), limit),
		Link:        strings.TrimSpace(item.Link),
		Tag:         strings.TrimSpace(parsed.Title),
		Author:      authorName(item, parsed),
		Labels:      item.Categories,
	}

	switch {
	case item.PublishedParsed != nil:
		post.PublishDate = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		post.PublishDate = *item.UpdatedParsed
	default:
		post.PublishDate = p.now()
	}

	return post
}

func (p *Parser) plainText(s string) string {
	text := html.UnescapeString(p.sanitizer.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

// trimDescription cuts s to limit runes and appends "...". A limit of zero
// disables trimming.
func trimDescription(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

func authorName(item *gofeed.Item, parsed *gofeed.Feed) string {
	for _, author := range item.Authors {
		if author != nil && strings.TrimSpace(author.Name) != "" {
			return strings.TrimSpace(author.Name)
		}
	}
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		return strings.TrimSpace(item.Author.Name)
	}
	if parsed.Author != nil {
		return strings.TrimSpace(parsed.Author.Name)
	}
	return ""
}
