package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/lysyi3m/rss-relay/app/logger"
	"github.com/lysyi3m/rss-relay/app/metrics"
)

// ChannelShape is the delivery mode of a destination.
type ChannelShape int

const (
	TextChannel ChannelShape = iota
	ForumChannel
)

func (s ChannelShape) String() string {
	if s == ForumChannel {
		return "forum"
	}
	return "text"
}

func (s ChannelShape) Other() ChannelShape {
	if s == ForumChannel {
		return TextChannel
	}
	return ForumChannel
}

// Delivery carries a body for each channel shape and names the one to try
// first.
type Delivery struct {
	Primary ChannelShape
	Text    Content
	Forum   Content
}

func (d Delivery) For(shape ChannelShape) Content {
	if shape == ForumChannel {
		return d.Forum
	}
	return d.Text
}

const maxLoggedBody = 1024

// ErrDeliveryInterrupted marks a delivery abandoned while waiting for the
// delivery limiter. The post was not sent.
var ErrDeliveryInterrupted = errors.New("delivery interrupted")

// Post delivers d to rawURL. Each delivery takes one token from the
// process-wide bucket; the primary send and its retry share it. A response
// other than 204 is retried once with the other shape. Network failures are
// logged; an error is returned only when the post could not be attempted
// because ctx ended.
func (c *Client) Post(ctx context.Context, rawURL string, d Delivery) error {
	if err := c.deliveries.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrDeliveryInterrupted, err)
	}

	status, body, err := c.send(ctx, rawURL, d.For(d.Primary))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		metrics.RecordDelivery("error")
		slog.Error("Webhook POST failed", "url", logger.MaskURL(rawURL), "shape", d.Primary.String(), "error", err)
		return nil
	}
	if status == http.StatusNoContent {
		metrics.RecordDelivery("success")
		return nil
	}

	slog.Warn("Webhook POST rejected", "url", logger.MaskURL(rawURL), "shape", d.Primary.String(), "status", status, "body", truncate(body, maxLoggedBody))

	alternate := d.Primary.Other()
	status, body, err = c.send(ctx, rawURL, d.For(alternate).Clone())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		metrics.RecordDelivery("failed")
		slog.Error("Webhook POST failed after channel shape fallback", "url", logger.MaskURL(rawURL), "shape", alternate.String(), "error", err)
		return nil
	}

	if status == http.StatusNoContent {
		metrics.RecordDelivery("swapped")
		slog.Warn("Delivered after switching channel shape, update the forum setting in config",
			"url", logger.MaskURL(rawURL), "configured", d.Primary.String(), "accepted", alternate.String())
		return nil
	}

	metrics.RecordDelivery("failed")
	slog.Error("Webhook POST failed after channel shape fallback", "url", logger.MaskURL(rawURL), "shape", alternate.String(), "status", status, "body", truncate(body, maxLoggedBody))
	return nil
}

func (c *Client) send(ctx context.Context, rawURL string, content Content) (int, []byte, error) {
	if err := c.throttle.Acquire(ctx, 1); err != nil {
		return 0, nil, err
	}
	defer c.throttle.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(content.Body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	content.applyHeaders(req)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, nil
	}

	return resp.StatusCode, body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
