package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/lysyi3m/rss-relay/app/logger"
	"github.com/lysyi3m/rss-relay/app/metrics"
)

// Get fetches rawURL. Transient failures are logged and yield a nil response
// with a nil error; an error is returned only when ctx itself is done.
// Rejections that look like bot blocking are retried through the fallback
// strategies, and if none succeeds the first response is returned.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		slog.Warn("Skipping request to invalid URL", "url", logger.MaskURL(rawURL), "error", err)
		return nil, nil
	}

	key := authority(target)
	agent, cached := c.userAgents.Get(key)
	if !cached {
		agent = c.userAgent
	}

	resp, err := c.fetch(ctx, target, fetchOptions{userAgent: agent, conditional: true})
	if err != nil {
		return nil, c.transient(ctx, "GET request failed", rawURL, err)
	}

	if !triggersFallback(resp.StatusCode) {
		return resp, nil
	}

	slog.Debug("Request rejected, trying fallback user agents", "url", logger.MaskURL(rawURL), "status", resp.StatusCode)

	return c.runFallback(ctx, target, resp)
}

// transient converts err into the caller's context error when the caller
// cancelled, and otherwise logs it and reports no error.
func (c *Client) transient(ctx context.Context, msg, rawURL string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	slog.Warn(msg, "url", logger.MaskURL(rawURL), "error", err)
	return nil
}

type fetchOptions struct {
	userAgent   string
	accept      string
	conditional bool
}

func (c *Client) fetch(ctx context.Context, target *url.URL, opts fetchOptions) (*Response, error) {
	if err := c.throttle.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.throttle.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	key := authority(target)
	if opts.userAgent != "" {
		req.Header.Set("User-Agent", opts.userAgent)
	}
	if opts.accept != "" {
		req.Header.Set("Accept", opts.accept)
	}
	if opts.conditional {
		if state, ok := c.conditional.Get(key); ok {
			state.apply(req)
		}
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordFetch(0)
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordFetch(0)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	metrics.RecordFetch(httpResp.StatusCode)
	if opts.conditional {
		c.rememberConditional(key, httpResp.Header)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}
