package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(Config{
		Timeout:        5 * time.Second,
		UserAgent:      "FeedSync/test",
		MaxBodyBytes:   1 << 20,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, logger)
}

func TestFetch_ReturnsBodyAndTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "FeedSync/test", r.Header.Get("User-Agent"))
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		fmt.Fprint(w, "<rss/>")
	}))
	defer srv.Close()

	res, err := testFetcher(t).Fetch(context.Background(), srv.URL, "", "")
	require.NoError(t, err)
	require.Equal(t, []byte("<rss/>"), res.Body)
	require.Equal(t, `"abc123"`, res.ETag)
	require.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", res.LastModified)
	require.False(t, res.NotModified)
}

func TestFetch_ConditionalGetNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, `"abc123"`, r.Header.Get("If-None-Match"))
		require.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", r.Header.Get("If-Modified-Since"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	res, err := testFetcher(t).Fetch(context.Background(), srv.URL, `"abc123"`, "Mon, 02 Jan 2006 15:04:05 GMT")
	require.NoError(t, err)
	require.True(t, res.NotModified)
	require.Empty(t, res.Body)
	// Prior tokens survive a 304 without fresh headers.
	require.Equal(t, `"abc123"`, res.ETag)
}

func TestFetch_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "<rss/>")
	}))
	defer srv.Close()

	res, err := testFetcher(t).Fetch(context.Background(), srv.URL, "", "")
	require.NoError(t, err)
	require.Equal(t, []byte("<rss/>"), res.Body)
	require.Equal(t, int32(3), calls.Load())
}

func TestFetch_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher(t).Fetch(context.Background(), srv.URL, "", "")
	require.Error(t, err)
	require.False(t, IsTransient(err))
	require.Equal(t, int32(1), calls.Load())
}

func TestFetch_TransientErrorExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testFetcher(t).Fetch(context.Background(), srv.URL, "", "")
	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Equal(t, int32(3), calls.Load())
}

func TestFetch_OversizedPayloadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2<<20))
	}))
	defer srv.Close()

	_, err := testFetcher(t).Fetch(context.Background(), srv.URL, "", "")
	require.Error(t, err)
	require.False(t, IsTransient(err))
	require.Contains(t, err.Error(), "exceeds")
}

func TestFetch_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testFetcher(t).Fetch(context.Background(), srv.URL, "", "")
	require.Error(t, err)
	require.True(t, IsTransient(err))
}
