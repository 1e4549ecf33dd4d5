package gateway

import "net/http"

type conditionalState struct {
	ETag         string
	LastModified string
}

// merge keeps cached values that the new response does not carry.
func (s conditionalState) merge(h http.Header) conditionalState {
	if etag := h.Get("ETag"); etag != "" {
		s.ETag = etag
	}
	if lastModified := h.Get("Last-Modified"); lastModified != "" {
		s.LastModified = lastModified
	}
	return s
}

func (s conditionalState) apply(req *http.Request) {
	if s.ETag != "" {
		req.Header.Set("If-None-Match", s.ETag)
	}
	if s.LastModified != "" {
		req.Header.Set("If-Modified-Since", s.LastModified)
	}
}

func (c *Client) rememberConditional(key string, h http.Header) {
	if h.Get("ETag") == "" && h.Get("Last-Modified") == "" {
		return
	}
	c.conditional.Update(key, func(current conditionalState, _ bool) conditionalState {
		return current.merge(h)
	})
}
