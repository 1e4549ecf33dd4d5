package gateway

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/lysyi3m/rss-relay/app/cache"
)

const (
	DefaultConcurrentRequests = 20
	DefaultPostMinInterval    = 2 * time.Second
	DefaultTimeout            = 30 * time.Second

	maxBodyBytes = 10 << 20
)

// DefaultFallbackUserAgents are tried when no fallback list is configured.
var DefaultFallbackUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/104.0.5112.79 Safari/537.36",
	"FeedFetcher-Google",
}

type Options struct {
	HTTPClient *http.Client
	// Throttle is the process-wide bound shared by every outbound request.
	Throttle           *semaphore.Weighted
	UserAgent          string
	FallbackUserAgents []string
	PostMinInterval    time.Duration
}

// Client is the outbound HTTP gateway. One Client is shared by every
// scheduler in the process.
type Client struct {
	httpClient         *http.Client
	throttle           *semaphore.Weighted
	userAgent          string
	fallbackUserAgents []string
	strategies         []fallbackStrategy

	userAgents  *cache.Map[string]
	conditional *cache.Map[conditionalState]
	// deliveries spaces webhook posts process-wide.
	deliveries *rate.Limiter
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	throttle := opts.Throttle
	if throttle == nil {
		throttle = semaphore.NewWeighted(DefaultConcurrentRequests)
	}

	interval := opts.PostMinInterval
	if interval <= 0 {
		interval = DefaultPostMinInterval
	}

	fallbacks := NormalizeUserAgents(opts.FallbackUserAgents)
	if len(fallbacks) == 0 {
		fallbacks = DefaultFallbackUserAgents
	}

	c := &Client{
		httpClient:         httpClient,
		throttle:           throttle,
		userAgent:          strings.TrimSpace(opts.UserAgent),
		fallbackUserAgents: fallbacks,
		userAgents:         cache.New[string](),
		conditional:        cache.New[conditionalState](),
		deliveries:         rate.NewLimiter(rate.Every(interval), 1),
	}
	c.strategies = c.defaultStrategies()

	return c
}

// NormalizeUserAgents trims entries, drops blanks and removes duplicates
// while keeping the first occurrence order.
func NormalizeUserAgents(agents []string) []string {
	trimmed := lo.FilterMap(agents, func(a string, _ int) (string, bool) {
		a = strings.TrimSpace(a)
		return a, a != ""
	})
	return lo.Uniq(trimmed)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) IsSuccess() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// authority returns scheme://host[:port], the key for per-host caches.
func authority(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
