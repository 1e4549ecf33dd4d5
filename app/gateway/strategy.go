package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/lysyi3m/rss-relay/app/logger"
	"github.com/lysyi3m/rss-relay/app/metrics"
)

// fallbackStatuses are the rejections retried with other user agents.
var fallbackStatuses = map[int]bool{
	http.StatusUnauthorized:    true,
	http.StatusForbidden:       true,
	http.StatusNotAcceptable:   true,
	http.StatusTooManyRequests: true,
}

func triggersFallback(status int) bool {
	return fallbackStatuses[status]
}

// fallbackStrategy yields candidate user agents for one authority. Agents are
// resolved only when the strategy is reached.
type fallbackStrategy struct {
	name   string
	accept string
	agents func(ctx context.Context, target *url.URL) []string
}

func (c *Client) defaultStrategies() []fallbackStrategy {
	return []fallbackStrategy{
		{
			name: "configured",
			agents: func(context.Context, *url.URL) []string {
				return c.fallbackUserAgents
			},
		},
		{
			name:   "robots",
			accept: "*/*",
			agents: c.robotsUserAgents,
		},
	}
}

// runFallback walks the strategies in order. The first successful agent is
// cached for the authority. A failing attempt or an exhausted chain returns
// the original response.
func (c *Client) runFallback(ctx context.Context, target *url.URL, original *Response) (*Response, error) {
	key := authority(target)

	for _, strategy := range c.strategies {
		for _, agent := range strategy.agents(ctx, target) {
			resp, err := c.fetch(ctx, target, fetchOptions{userAgent: agent, accept: strategy.accept, conditional: true})
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				slog.Warn("Fallback request failed", "url", logger.MaskURL(target.String()), "strategy", strategy.name, "error", err)
				return original, nil
			}

			metrics.RecordUserAgentFallback(strategy.name, resp.IsSuccess())

			if resp.IsSuccess() {
				c.userAgents.Set(key, agent)
				slog.Info("Fallback user agent accepted", "authority", key, "strategy", strategy.name, "user_agent", agent)
				return resp, nil
			}
		}
	}

	slog.Warn("All fallback user agents rejected", "url", logger.MaskURL(target.String()), "status", original.StatusCode)
	return original, nil
}
