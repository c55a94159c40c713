package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestFetcher(opts FetcherOptions) *HTTPFetcher {
	return NewHTTPFetcher(opts, zap.NewNop().Sugar())
}

func TestHTTPFetcherFetch(t *testing.T) {
	feed := buildFeed(namedEvent)
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := newTestFetcher(FetcherOptions{UserAgent: "test-agent"})
	body, err := f.Fetch(context.Background(), srv.URL+"/room.ics", false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if body != feed {
		t.Errorf("body = %q", body)
	}
	if gotUA != "test-agent" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestHTTPFetcherNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(FetcherOptions{})
	_, err := f.Fetch(context.Background(), srv.URL, false)
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Errorf("err = %v, want status 404 error", err)
	}
}

func TestHTTPFetcherRejectsOversizedFeed(t *testing.T) {
	feed := buildFeed(namedEvent, blockedMarch)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := newTestFetcher(FetcherOptions{})

	f.maxBytes = int64(len(feed))
	if body, err := f.Fetch(context.Background(), srv.URL, false); err != nil || body != feed {
		t.Fatalf("feed at the limit: body len %d, err %v", len(body), err)
	}

	f.maxBytes = int64(len(feed)) - 1
	_, err := f.Fetch(context.Background(), srv.URL, false)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("err = %v, want size limit error", err)
	}
}

func TestHTTPFetcherCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := newTestFetcher(FetcherOptions{CacheTTL: time.Minute})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }
	ctx := context.Background()

	steps := []struct {
		name     string
		advance  time.Duration
		useCache bool
		wantHits int32
	}{
		{name: "cold", useCache: true, wantHits: 1},
		{name: "warm", useCache: true, wantHits: 1},
		{name: "bypass", useCache: false, wantHits: 2},
		{name: "expired", advance: 2 * time.Minute, useCache: true, wantHits: 3},
	}

	for _, step := range steps {
		now = now.Add(step.advance)
		if _, err := f.Fetch(ctx, srv.URL, step.useCache); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got := hits.Load(); got != step.wantHits {
			t.Errorf("%s: upstream hits = %d, want %d", step.name, got, step.wantHits)
		}
	}
}

func TestHTTPFetcherProxy(t *testing.T) {
	var gotQuery string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("url")
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer proxy.Close()

	f := newTestFetcher(FetcherOptions{ProxyURL: proxy.URL + "/proxy?url="})
	feedURL := "https://www.airbnb.com/calendar/ical/123.ics?s=abc"
	if _, err := f.Fetch(context.Background(), feedURL, false); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotQuery != feedURL {
		t.Errorf("proxied url = %q, want %q", gotQuery, feedURL)
	}
}
