package signals

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			require.Equal(t, userAgent, r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte("hello"))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPFetcher(time.Second, 100, 32)
	ctx := context.Background()

	body, err := f.Fetch(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))

	_, err = f.Fetch(ctx, srv.URL+"/big")
	require.ErrorIs(t, err, ErrResponseTooLarge)

	_, err = f.Fetch(ctx, srv.URL+"/down")
	require.ErrorContains(t, err, "status 502")

	_, err = f.Fetch(ctx, "not a url")
	require.Error(t, err)
}

func TestHTTPFetcher_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	// One request per 10s with a burst of one.
	f := NewHTTPFetcher(time.Second, 0.1, 1024)

	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, srv.URL)
	require.ErrorContains(t, err, "rate limit")
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f := NewHTTPFetcher(30*time.Millisecond, 10, 1024)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}
