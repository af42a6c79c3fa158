package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Client is a long-lived HTTP client for one upstream provider. A semaphore
// bounds concurrency and an optional rate limiter spaces out calls, so the
// provider's rate limits are respected no matter how wide the pipeline fans
// out.
type Client struct {
	http      *http.Client
	userAgent string
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	logger    *slog.Logger
}

type Options struct {
	Timeout     time.Duration
	MaxConns    int
	UserAgent   string
	Concurrency int64
	// MinInterval spaces successive requests (e.g. ~350ms for Nominatim).
	MinInterval time.Duration
	Logger      *slog.Logger
}

func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.MaxConns == 0 {
		opts.MaxConns = 8
	}
	transport := &http.Transport{
		MaxConnsPerHost:     opts.MaxConns,
		MaxIdleConnsPerHost: opts.MaxConns / 2,
		IdleConnTimeout:     90 * time.Second,
	}
	c := &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.Concurrency > 0 {
		c.sem = semaphore.NewWeighted(opts.Concurrency)
	}
	if opts.MinInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	return c
}

// GetJSON performs a GET and decodes the JSON body into dst. Transient
// failures (timeouts, connection errors, 429, 5xx) are retried once with a
// short backoff; anything else is returned as-is.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, dst any) error {
	body, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response from %s: %w", rawURL, err)
	}
	return nil
}

// Get performs a GET and returns the raw body.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.sem.Release(1)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	const maxRetries = 1
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		body, retryable, err := c.doGet(ctx, rawURL, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || attempt == maxRetries {
			break
		}
		wait := 1500 * time.Millisecond
		if errors.Is(err, errTooManyRequests) {
			wait = 2 * time.Second
		}
		c.logger.InfoContext(ctx, "retrying request", slog.String("url", rawURL), slog.Any("error", err))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

var errTooManyRequests = errors.New("too many requests")

func (c *Client) doGet(ctx context.Context, rawURL string, params url.Values) ([]byte, bool, error) {
	u := rawURL
	if len(params) > 0 {
		u = rawURL + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, isTransient(err), err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("%s: %w", rawURL, errTooManyRequests)
	}
	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("%s: upstream status %d", rawURL, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("%s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, isTransient(err), err
	}
	return body, false, nil
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
