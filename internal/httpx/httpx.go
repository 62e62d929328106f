package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client is a small wrapper around http.Client with sane defaults.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

func New(timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: "quoteengine/1.0"}
}

func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}

// maxBody caps how much of an upstream response is read; the feeds this
// engine talks to return at most a few hundred KB of CSV/JSON.
const maxBody = 4 << 20

// Get fetches url and returns the status code plus the (bounded) body.
func (c *Client) Get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s: %w", url, err)
	}
	return resp.StatusCode, body, nil
}

// ErrNoEndpoints is returned by FirstValid when called without URLs.
var ErrNoEndpoints = errors.New("httpx: no endpoints")

// FirstValid fetches all urls concurrently and returns the body of the first
// response that valid accepts. The remaining in-flight requests are cancelled
// once a winner is chosen. When every endpoint fails, the last validation
// error is returned so callers can inspect it (e.g. a rate-limit sentinel).
func (c *Client) FirstValid(ctx context.Context, urls []string, valid func(status int, body []byte) error) ([]byte, string, error) {
	if len(urls) == 0 {
		return nil, "", ErrNoEndpoints
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		body []byte
		url  string
		err  error
	}
	ch := make(chan result, len(urls))
	for _, u := range urls {
		go func(u string) {
			status, body, err := c.Get(ctx, u)
			if err == nil && valid != nil {
				err = valid(status, body)
			}
			ch <- result{body: body, url: u, err: err}
		}(u)
	}

	var lastErr error
	for range urls {
		select {
		case r := <-ch:
			if r.err == nil {
				return r.body, r.url, nil
			}
			// Keep the most informative failure: sentinel errors from
			// validation beat transport errors caused by cancellation
			// or the shared deadline.
			if lastErr == nil || (!errors.Is(r.err, context.Canceled) && !errors.Is(r.err, context.DeadlineExceeded)) {
				lastErr = r.err
			}
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return nil, "", lastErr
		}
	}
	return nil, "", lastErr
}
