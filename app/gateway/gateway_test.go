package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newTestClient(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = "rss-relay-test"
	}
	if opts.PostMinInterval == 0 {
		opts.PostMinInterval = time.Millisecond
	}
	return New(opts)
}

func TestGet_Success(t *testing.T) {
	var gotAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent.Store(r.UserAgent())
		fmt.Fprint(w, "<rss></rss>")
	}))
	defer server.Close()

	client := newTestClient(Options{})
	resp, err := client.Get(context.Background(), server.URL+"/feed")

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<rss></rss>", string(resp.Body))
	assert.Equal(t, "rss-relay-test", gotAgent.Load())
}

func TestGet_ServerErrorMakesSingleRequest(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(Options{FallbackUserAgents: []string{"X"}})
	resp, err := client.Get(context.Background(), server.URL+"/feed")

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), requests.Load())
}

func TestGet_FallbackUserAgentIsCachedPerAuthority(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.UserAgent())
		mu.Unlock()
		if r.UserAgent() != "X" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	takeAgents := func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := agents
		agents = nil
		return out
	}

	client := newTestClient(Options{FallbackUserAgents: []string{"X", "Y"}})

	resp, err := client.Get(context.Background(), server.URL+"/a")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"rss-relay-test", "X"}, takeAgents())

	resp, err = client.Get(context.Background(), server.URL+"/b")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"X"}, takeAgents(), "cached agent should be used first on the same authority")
}

func TestGet_RobotsUserAgentsTriedInDescendingOrder(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: Alpha\nDisallow: /private\n\nUser-agent: Zeta\nUser-agent: Alpha\n")
			return
		}
		mu.Lock()
		agents = append(agents, r.UserAgent())
		mu.Unlock()
		if r.UserAgent() == "Alpha" {
			assert.Equal(t, "*/*", r.Header.Get("Accept"))
			fmt.Fprint(w, "ok")
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(Options{FallbackUserAgents: []string{"A"}})
	resp, err := client.Get(context.Background(), server.URL+"/feed")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"rss-relay-test", "A", "Zeta", "Alpha"}, agents)
}

func TestGet_ExhaustedChainReturnsOriginalResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "original")
			return
		}
		w.WriteHeader(http.StatusNotAcceptable)
		fmt.Fprint(w, "later")
	}))
	defer server.Close()

	client := newTestClient(Options{FallbackUserAgents: []string{"A", "B"}})
	resp, err := client.Get(context.Background(), server.URL+"/feed")

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "original", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_FallbackFailureReturnsOriginalResponse(t *testing.T) {
	var calls atomic.Int32
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return &http.Response{
				StatusCode: http.StatusUnauthorized,
				Header:     http.Header{},
				Body:       io.NopCloser(stringsReader("denied")),
			}, nil
		}
		return nil, errors.New("connection reset")
	})

	client := newTestClient(Options{HTTPClient: &http.Client{Transport: transport}, FallbackUserAgents: []string{"A", "B"}})
	resp, err := client.Get(context.Background(), "https://example.com/feed")

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_ConditionalHeadersMergePerAuthority(t *testing.T) {
	var mu sync.Mutex
	var seen []http.Header
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Clone())
		mu.Unlock()
		switch calls.Add(1) {
		case 1:
			w.Header().Set("ETag", `"v1"`)
			w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 10:00:00 GMT")
		case 2:
			w.Header().Set("ETag", `"v2"`)
		}
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	client := newTestClient(Options{})
	for _, path := range []string{"/a", "/b", "/c"} {
		_, err := client.Get(context.Background(), server.URL+path)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Empty(t, seen[0].Get("If-None-Match"))
	assert.Equal(t, `"v1"`, seen[1].Get("If-None-Match"))
	assert.Equal(t, `"v2"`, seen[2].Get("If-None-Match"))
	assert.Equal(t, "Mon, 01 Jan 2024 10:00:00 GMT", seen[2].Get("If-Modified-Since"))
}

func TestGet_TransportErrorReturnsNil(t *testing.T) {
	transport := roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	client := newTestClient(Options{HTTPClient: &http.Client{Transport: transport}})
	resp, err := client.Get(context.Background(), "https://example.com/feed")

	assert.NoError(t, err)
	assert.Nil(t, resp)
}

func TestGet_InvalidURLReturnsNil(t *testing.T) {
	client := newTestClient(Options{})
	resp, err := client.Get(context.Background(), "not a url")

	assert.NoError(t, err)
	assert.Nil(t, resp)
}

func TestGet_CallerCancellationPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := newTestClient(Options{})
	resp, err := client.Get(ctx, server.URL)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, resp)
}

func TestGet_ClientTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(Options{HTTPClient: &http.Client{Timeout: 50 * time.Millisecond}})
	resp, err := client.Get(context.Background(), server.URL)

	assert.NoError(t, err)
	assert.Nil(t, resp)
}

func TestGet_GlobalBoundNeverExceeded(t *testing.T) {
	const bound = 3
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := inFlight.Add(1)
		for {
			p := peak.Load()
			if current <= p || peak.CompareAndSwap(p, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	client := newTestClient(Options{Throttle: semaphore.NewWeighted(bound)})

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(context.Background(), fmt.Sprintf("%s/feed/%d", server.URL, i))
			assert.NoError(t, err)
			assert.True(t, resp.IsSuccess())
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(bound))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestNormalizeUserAgents(t *testing.T) {
	got := NormalizeUserAgents([]string{" A ", "", "B", "A", "  "})
	assert.Equal(t, []string{"A", "B"}, got)
}

func TestParseRobotsUserAgents(t *testing.T) {
	body := "# comment\r\nUser-agent: Googlebot\r\nDisallow: /\r\nuser-agent:   Bingbot  \r\nUser-agent: Googlebot\r\nUser-agent: AhrefsBot\n"
	assert.Equal(t, []string{"Googlebot", "Bingbot", "AhrefsBot"}, parseRobotsUserAgents(body))
	assert.Empty(t, parseRobotsUserAgents("Disallow: /"))
}
