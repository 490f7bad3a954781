// Package httpx wraps the two HTTP verbs the crawler needs (GET and HEAD)
// with a fixed-count, no-backoff retry and Last-Modified extraction.
package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrMissingMTime is returned when a response has no Last-Modified header.
var ErrMissingMTime = errors.New("httpx: Last-Modified header not present")

// Client issues retried GET/HEAD requests against a shared *http.Client.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Retries   int
}

// New builds a Client around an already-constructed *http.Client (HTTP
// client construction itself is the caller's concern, per the core/collaborator
// split: cmd/mirrorctl builds the transport, httpx only knows how to retry).
func New(client *http.Client, userAgent string, retries int) *Client {
	return &Client{HTTP: client, UserAgent: userAgent, Retries: retries}
}

func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			// Redirects are meaningful to some parser dialects (Docker); the
			// caller decides whether to treat this as success.
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = errors.Newf("httpx: unexpected status %d for %s", resp.StatusCode, url)
	}
	return nil, errors.Wrapf(lastErr, "after %d attempts", c.Retries+1)
}

// Get issues a retried GET and returns the full response with body intact;
// the caller is responsible for closing it.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url)
}

// GetStream is identical to Get; the distinction is purely documentary
// (§4.A: "the download path uses streaming GET") since Go's http.Response.Body
// is already a lazily-read stream in both cases.
func (c *Client) GetStream(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url)
}

// Head issues a retried HEAD.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodHead, url)
}

// MTime extracts and parses the Last-Modified header as UTC.
func MTime(resp *http.Response) (time.Time, error) {
	raw := resp.Header.Get("Last-Modified")
	if raw == "" {
		return time.Time{}, ErrMissingMTime
	}
	t, err := time.Parse(time.RFC1123, raw)
	if err != nil {
		t, err = time.Parse(time.RFC1123Z, raw)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "parse Last-Modified %q", raw)
		}
	}
	return t.UTC(), nil
}
