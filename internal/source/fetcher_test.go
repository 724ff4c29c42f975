package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOpts(retries int) FetchOptions {
	return FetchOptions{
		Timeout: 2 * time.Second,
		Retries: retries,
		Backoff: resilience.Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond},
	}
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		_, _ = w.Write([]byte(`{"incidents":[]}`))
	}))
	defer srv.Close()

	opts := fastOpts(3)
	opts.Headers = map[string]string{"X-Token": "secret"}
	p, err := NewHTTPFetcher(srv.Client()).Fetch(context.Background(), srv.URL, opts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"incidents":[]}`, string(p.JSON))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(srv.Client()).Fetch(context.Background(), srv.URL, fastOpts(3))
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindHTTP, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.False(t, fe.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_TooManyRequestsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(srv.Client()).Fetch(context.Background(), srv.URL, fastOpts(2))
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusTooManyRequests, fe.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_InvalidJSONIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(srv.Client()).Fetch(context.Background(), srv.URL, fastOpts(2))
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindParse, fe.Kind)
}

func TestHTTPFetcher_DeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	opts := fastOpts(1)
	opts.Timeout = 50 * time.Millisecond
	start := time.Now()
	_, err := NewHTTPFetcher(srv.Client()).Fetch(context.Background(), srv.URL, opts)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindTimeout, fe.Kind)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRSSFetcher_ParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	p, err := NewRSSFetcher(srv.Client()).Fetch(context.Background(), srv.URL, fastOpts(0))
	require.NoError(t, err)
	require.NotNil(t, p.Feed)
	assert.Len(t, p.Feed.Items, 2)
}

func TestRSSFetcher_GarbageIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"xml"}`))
	}))
	defer srv.Close()

	_, err := NewRSSFetcher(srv.Client()).Fetch(context.Background(), srv.URL, fastOpts(2))
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindParse, fe.Kind)
}

func TestStaticFetcher(t *testing.T) {
	f, err := NewStaticFetcher(map[string]any{"incidents": []any{}})
	require.NoError(t, err)
	p, err := f.Fetch(context.Background(), "", FetchOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"incidents":[]}`, string(p.JSON))
}

func TestNewFetcher_Kinds(t *testing.T) {
	f, err := NewFetcher(Config{Adapter: AdapterRSS}, nil)
	require.NoError(t, err)
	assert.IsType(t, &RSSFetcher{}, f)

	f, err = NewFetcher(Config{Adapter: AdapterGitHubStatus}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPFetcher{}, f)

	_, err = NewFetcher(Config{Fetcher: "ftp"}, nil)
	assert.Error(t, err)
}
