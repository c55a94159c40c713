package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// maxFeedBytes caps how much of an upstream response is read.
const maxFeedBytes = 10 << 20

// Fetcher retrieves the raw text of an iCal feed.
type Fetcher interface {
	// Fetch downloads the feed. With useCache a recent copy may be returned
	// instead of hitting the network.
	Fetch(ctx context.Context, feedURL string, useCache bool) (string, error)
}

// FetcherOptions configures an HTTPFetcher.
type FetcherOptions struct {
	Timeout   time.Duration
	CacheTTL  time.Duration
	ProxyURL  string
	UserAgent string
}

type cachedFeed struct {
	body      string
	fetchedAt time.Time
}

// HTTPFetcher downloads feeds over HTTP(S) behind a circuit breaker and keeps
// a per-instance cache of recent responses.
type HTTPFetcher struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
	proxyURL  string
	userAgent string
	cacheTTL  time.Duration
	maxBytes  int64
	logger    *zap.SugaredLogger

	mu    sync.Mutex
	cache map[string]cachedFeed
	now   func() time.Time
}

// NewHTTPFetcher creates a feed fetcher.
func NewHTTPFetcher(opts FetcherOptions, logger *zap.SugaredLogger) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "homestay-calendar-sync/1.0"
	}

	f := &HTTPFetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		proxyURL:  opts.ProxyURL,
		userAgent: opts.UserAgent,
		cacheTTL:  opts.CacheTTL,
		maxBytes:  maxFeedBytes,
		logger:    logger,
		cache:     make(map[string]cachedFeed),
		now:       time.Now,
	}

	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ical-feed",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return f
}

// Fetch downloads and returns the feed body. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, feedURL string, useCache bool) (string, error) {
	if useCache {
		if body, ok := f.cached(feedURL); ok {
			return body, nil
		}
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.get(ctx, feedURL)
	})
	if err != nil {
		return "", fmt.Errorf("fetching calendar: %w", err)
	}

	body := result.(string)
	f.store(feedURL, body)
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, feedURL string) (string, error) {
	target := feedURL
	if f.proxyURL != "" {
		target = f.proxyURL + url.QueryEscape(feedURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.1")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("calendar returned status %d", resp.StatusCode)
	}

	// A truncated feed would make its tail events look vanished.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading calendar: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return "", fmt.Errorf("calendar exceeds %d bytes", f.maxBytes)
	}

	return string(data), nil
}

func (f *HTTPFetcher) cached(feedURL string) (string, bool) {
	if f.cacheTTL <= 0 {
		return "", false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.cache[feedURL]
	if !ok {
		return "", false
	}
	if f.now().Sub(entry.fetchedAt) > f.cacheTTL {
		delete(f.cache, feedURL)
		return "", false
	}
	return entry.body, true
}

func (f *HTTPFetcher) store(feedURL, body string) {
	if f.cacheTTL <= 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Drop expired entries while holding the lock anyway.
	now := f.now()
	for key, entry := range f.cache {
		if now.Sub(entry.fetchedAt) > f.cacheTTL {
			delete(f.cache, key)
		}
	}
	f.cache[feedURL] = cachedFeed{body: body, fetchedAt: now}
}
