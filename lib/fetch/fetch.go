// Package fetch implements the retrying http client every upstream
// source goes through. Timeouts retry immediately, throttling (429,
// 503) backs off first, redirects are followed manually so they count
// against the attempt budget, everything else fails fast with a typed
// error.
package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"bazaar-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type Options struct {
	// MaxAttempts bounds requests per Fetch call, redirects included.
	MaxAttempts int
	// Backoff is slept between retryable failures.
	Backoff time.Duration
	Timeout time.Duration
	// UserAgent overrides DefaultUserAgent when set.
	UserAgent string
	// Transport optionally replaces the underlying round tripper.
	Transport http.RoundTripper
}

type Client struct {
	resty       *resty.Client
	maxAttempts int
	backoff     time.Duration
}

// Result carries the response body along with the url it finally came
// from, which can differ from the requested url after redirects.
type Result struct {
	Body     []byte
	FinalURL string
}

func NewClient(tracerName string, opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second * 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 5
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetRedirectPolicy(resty.RedirectPolicyFunc(
			func(req *http.Request, via []*http.Request) error {
				// redirects are handled in Fetch so they count as attempts
				return http.ErrUseLastResponse
			},
		))
	if opts.Transport != nil {
		client.SetTransport(opts.Transport)
	}
	telemetry.InstrumentResty(client, tracerName)

	return &Client{
		resty:       client,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
	}
}

// Fetch runs the attempt loop for a single logical request and returns
// the response body.
func (c *Client) Fetch(ctx context.Context, rawurl string) ([]byte, error) {
	res, err := c.FetchResult(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// FetchResult is Fetch but it also reports the final url, for sources
// that encode information in where they redirect to.
func (c *Client) FetchResult(ctx context.Context, rawurl string) (Result, error) {
	current := rawurl
	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		res, err := c.resty.R().SetContext(ctx).Get(current)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			// network level failure, retries immediately without backoff
			slog.DebugContext(ctx, "request failed, retrying",
				"url", current, "attempt", attempt, "err", err)
			lastErr = err
			lastStatus = 0
			continue
		}

		status := res.StatusCode()
		lastStatus = status
		lastErr = nil

		switch {
		case status >= 200 && status < 300:
			return Result{Body: res.Body(), FinalURL: current}, nil

		case status >= 300 && status < 400:
			location := res.Header().Get("Location")
			if location == "" {
				return Result{}, FatalError{URL: current, StatusCode: status}
			}
			next, err := resolveRedirect(current, location)
			if err != nil {
				return Result{}, FatalError{URL: current, StatusCode: status}
			}
			slog.DebugContext(ctx, "following redirect",
				"from", current, "to", next, "attempt", attempt)
			current = next

		case status == http.StatusServiceUnavailable ||
			status == http.StatusTooManyRequests:
			slog.DebugContext(ctx, "throttled by upstream, retrying",
				"url", current, "status", status, "attempt", attempt)
			if err := c.sleep(ctx); err != nil {
				return Result{}, err
			}

		case status == http.StatusNotFound:
			return Result{}, NotFoundError{URL: current}

		default:
			return Result{}, FatalError{URL: current, StatusCode: status}
		}
	}

	return Result{}, RetriesExhaustedError{
		URL:        rawurl,
		Attempts:   c.maxAttempts,
		LastStatus: lastStatus,
		LastErr:    lastErr,
	}
}

func (c *Client) sleep(ctx context.Context) error {
	select {
	case <-time.After(c.backoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resolveRedirect(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
