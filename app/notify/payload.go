package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lysyi3m/rss-relay/app/config"
	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/gateway"
)

const (
	footerDateLayout   = "01/02/2006 3:04 PM"
	markdownDateLayout = "January 02, 2006"
	threadNameLimit    = 100
)

type embedAuthor struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedImage struct {
	URL string `json:"url,omitempty"`
}

type embedFooter struct {
	Text    string `json:"text,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Author      *embedAuthor `json:"author,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Color       int          `json:"color"`
}

type textPayload struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds"`
}

type forumPayload struct {
	Content    string  `json:"content,omitempty"`
	Embeds     []embed `json:"embeds"`
	ThreadName string  `json:"thread_name,omitempty"`
}

type markdownPayload struct {
	Content    string `json:"content"`
	ThreadName string `json:"thread_name,omitempty"`
}

// PayloadBuilder renders posts as Discord webhook bodies for one instance.
type PayloadBuilder struct {
	instance *config.Instance
}

func NewPayloadBuilder(instance *config.Instance) *PayloadBuilder {
	return &PayloadBuilder{instance: instance}
}

// Build returns the forum and text channel bodies for post.
func (b *PayloadBuilder) Build(post feed.Post) (forum, text gateway.Content, err error) {
	var forumBody, textBody any
	if b.instance.MarkdownFormat {
		md := markdown(post)
		forumBody = markdownPayload{Content: md, ThreadName: threadName(post.Title)}
		textBody = markdownPayload{Content: md}
	} else {
		e := b.embed(post)
		forumBody = forumPayload{Content: post.Tag, Embeds: []embed{e}, ThreadName: threadName(post.Title)}
		textBody = textPayload{Username: b.username(), AvatarURL: b.instance.AvatarURL, Embeds: []embed{e}}
	}

	forumJSON, err := json.Marshal(forumBody)
	if err != nil {
		return gateway.Content{}, gateway.Content{}, fmt.Errorf("failed to encode forum payload: %w", err)
	}
	textJSON, err := json.Marshal(textBody)
	if err != nil {
		return gateway.Content{}, gateway.Content{}, fmt.Errorf("failed to encode text payload: %w", err)
	}

	return gateway.JSONContent(forumJSON), gateway.JSONContent(textJSON), nil
}

func (b *PayloadBuilder) embed(post feed.Post) embed {
	authorName := b.instance.AuthorName
	if authorName == "" {
		authorName = post.Author
	}

	image := post.ImageURL
	if image == "" {
		image = b.instance.FallbackImage
	}

	color := b.instance.Color
	if color == 0 {
		color = config.DefaultColor
	}

	e := embed{
		Title:       post.Title,
		URL:         post.Link,
		Description: post.Description,
		Footer: &embedFooter{
			Text:    post.Tag + " - " + post.PublishDate.Local().Format(footerDateLayout),
			IconURL: b.instance.FooterImage,
		},
		Color: color,
	}
	if authorName != "" || b.instance.AuthorURL != "" || b.instance.AuthorIcon != "" {
		e.Author = &embedAuthor{Name: authorName, URL: b.instance.AuthorURL, IconURL: b.instance.AuthorIcon}
	}
	if image != "" {
		e.Image = &embedImage{URL: image}
	}
	return e
}

func (b *PayloadBuilder) username() string {
	if b.instance.Username != "" {
		return b.instance.Username
	}
	return config.DefaultUsername
}

func markdown(post feed.Post) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", post.Title)
	fmt.Fprintf(&sb, "> **Published**: %s\n", post.PublishDate.Local().Format(markdownDateLayout))
	fmt.Fprintf(&sb, "> **Author**: %s\n", post.Author)
	fmt.Fprintf(&sb, "> **Feed**: %s\n\n", post.Tag)
	fmt.Fprintf(&sb, "%s\n\n", post.Description)
	fmt.Fprintf(&sb, "[Source](%s)\n", post.Link)
	return sb.String()
}

// threadName cuts titles longer than the forum limit to one rune short of it.
func threadName(title string) string {
	runes := []rune(title)
	if len(runes) > threadNameLimit {
		return string(runes[:threadNameLimit-1])
	}
	return title
}
