package gateway

import (
	"bytes"
	"mime"
	"net/http"

	"golang.org/x/text/encoding/htmlindex"
)

const (
	defaultMediaType = "application/json"
	defaultCharset   = "utf-8"
)

// Content is a request body together with its headers. Bodies are kept as
// bytes so a Content can be sent more than once.
type Content struct {
	Body        []byte
	ContentType string
	Header      http.Header
}

func JSONContent(body []byte) Content {
	return Content{
		Body:        body,
		ContentType: mime.FormatMediaType(defaultMediaType, map[string]string{"charset": defaultCharset}),
	}
}

// Clone returns an independent copy. A missing or unparseable media type
// falls back to application/json; an unknown charset becomes utf-8.
func (c Content) Clone() Content {
	mediaType, params, err := mime.ParseMediaType(c.ContentType)
	if err != nil || mediaType == "" {
		mediaType = defaultMediaType
		params = map[string]string{}
	}
	params["charset"] = normalizeCharset(params["charset"])

	return Content{
		Body:        bytes.Clone(c.Body),
		ContentType: mime.FormatMediaType(mediaType, params),
		Header:      c.Header.Clone(),
	}
}

func normalizeCharset(charset string) string {
	if charset == "" {
		return defaultCharset
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return defaultCharset
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return defaultCharset
	}
	return name
}

func (c Content) applyHeaders(req *http.Request) {
	for k, values := range c.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	contentType := c.ContentType
	if contentType == "" {
		contentType = defaultMediaType
	}
	req.Header.Set("Content-Type", contentType)
}
