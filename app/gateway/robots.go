package gateway

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"
)

var robotsUserAgentPattern = regexp.MustCompile(`(?mi)^User-agent:[ \t]*([^\r\n]*?)[ \t]*\r?$`)

// robotsUserAgents fetches /robots.txt for the target's authority and returns
// the declared user agents, sorted descending. Any failure yields none.
func (c *Client) robotsUserAgents(ctx context.Context, target *url.URL) []string {
	robotsURL := &url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/robots.txt"}

	resp, err := c.fetch(ctx, robotsURL, fetchOptions{userAgent: c.userAgent})
	if err != nil {
		slog.Debug("Failed to fetch robots.txt", "url", robotsURL.String(), "error", err)
		return nil
	}
	if !resp.IsSuccess() {
		slog.Debug("robots.txt unavailable", "url", robotsURL.String(), "status", resp.StatusCode)
		return nil
	}

	return parseRobotsUserAgents(string(resp.Body))
}

func parseRobotsUserAgents(body string) []string {
	matches := robotsUserAgentPattern.FindAllStringSubmatch(body, -1)

	agents := lo.Uniq(lo.FilterMap(matches, func(m []string, _ int) (string, bool) {
		agent := strings.TrimSpace(m[1])
		return agent, agent != ""
	}))

	slices.Sort(agents)
	slices.Reverse(agents)
	return agents
}
