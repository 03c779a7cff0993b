package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	})
}

func TestHTTPFetcher_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "museumspark/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("workbook bytes"))
	}))
	defer srv.Close()

	body, err := testFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "workbook bytes", string(raw))
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := testFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()
	assert.EqualValues(t, 3, calls.Load())
}

func TestHTTPFetcher_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.EqualValues(t, 1, calls.Load())
}

func TestHTTPFetcher_DownloadIfChanged(t *testing.T) {
	const etag = `"v1"`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	f := testFetcher()
	ctx := context.Background()

	body, newETag, changed, err := f.DownloadIfChanged(ctx, srv.URL, "")
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, etag, newETag)
	raw, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, "fresh", string(raw))

	body, newETag, changed, err = f.DownloadIfChanged(ctx, srv.URL, etag)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, body)
	assert.Equal(t, etag, newETag)
}

func TestHTTPFetcher_HeadETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("ETag", `"reg-2026-08"`)
	}))
	defer srv.Close()

	etag, err := testFetcher().HeadETag(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `"reg-2026-08"`, etag)
}

func TestAdaptiveLimiter_Tunes(t *testing.T) {
	l := NewAdaptiveLimiter(10, 10)

	l.OnSuccess()
	assert.InDelta(t, 12, float64(l.Limit()), 1e-9)

	for i := 0; i < 10; i++ {
		l.OnSuccess()
	}
	assert.InDelta(t, 20, float64(l.Limit()), 1e-9, "capped at 2x initial")

	for i := 0; i < 10; i++ {
		l.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(l.Limit()), 1e-9, "floored at initial/4")
}
