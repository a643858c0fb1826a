package signals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrResponseTooLarge is returned when a response exceeds the size cap.
var ErrResponseTooLarge = errors.New("response exceeds size limit")

const userAgent = "sentinelsky/1.0 (+flight risk checks)"

// Fetcher retrieves raw content from third-party sources.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTPFetcher is a Fetcher with a request timeout, a per-host rate limit and
// a response size cap.
type HTTPFetcher struct {
	client   *http.Client
	rps      float64
	burst    int
	maxBytes int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a fetcher. rps is the sustained request rate allowed
// per upstream host.
func NewHTTPFetcher(timeout time.Duration, rps float64, maxBytes int64) *HTTPFetcher {
	if rps <= 0 {
		rps = 2
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		rps:      rps,
		burst:    int(rps) + 1,
		maxBytes: maxBytes,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.rps), f.burst)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch performs a GET and returns the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid fetch url %q", rawURL)
	}

	if err := f.limiter(u.Host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", u.Host, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", u.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", u.Host, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}
