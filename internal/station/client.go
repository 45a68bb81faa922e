// Package station talks to the weather station's embedded HTTP server.
package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/chadmayfield/stationd/internal/weather"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetryDelay = 2 * time.Second
	DefaultAttempts   = 3

	maxResponseSize = 1 << 20
	userAgent       = "stationd/1.0"
)

// ErrUnavailable is returned when no usable payload could be fetched.
var ErrUnavailable = errors.New("station data unavailable")

// Options configures a Client. Zero values select the defaults.
type Options struct {
	Timeout    time.Duration
	RetryDelay time.Duration
	Attempts   int
}

// Client fetches JSON documents from the station, retrying transient
// failures with a linear backoff. The underlying HTTP session is shared
// between calls until Close.
type Client struct {
	http       *http.Client
	transport  *http.Transport
	timeout    time.Duration
	retryDelay time.Duration
	attempts   int
	logger     *slog.Logger
}

// NewClient creates a Client with a keep-alive transport.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		http:       &http.Client{Transport: tr},
		transport:  tr,
		timeout:    opts.Timeout,
		retryDelay: opts.RetryDelay,
		attempts:   opts.Attempts,
		logger:     logger,
	}
}

// WindURL returns the wind endpoint for a station address.
func WindURL(stationIP string) string { return "http://" + stationIP + "/wind.json" }

// SensorsURL returns the sensors endpoint for a station address.
func SensorsURL(stationIP string) string { return "http://" + stationIP + "/sensors.json" }

// Fetch GETs url and decodes the body as a JSON object. Network errors and
// non-2xx responses are retried; a body that is not a JSON object is not.
// Every failure is reported as ErrUnavailable after being logged.
func (c *Client) Fetch(ctx context.Context, url string) (weather.Payload, error) {
	attempt := 0
	op := func() (weather.Payload, error) {
		attempt++
		return c.get(ctx, url)
	}

	payload, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&linearBackOff{step: c.retryDelay}),
		backoff.WithMaxTries(uint(c.attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("station request failed, retrying",
				"url", url,
				"attempt", attempt,
				"max_attempts", c.attempts,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		var decErr *decodeError
		if errors.As(err, &decErr) {
			c.logger.Error("invalid JSON from station", "url", url, "error", err)
		} else {
			c.logger.Error("station request failed after all attempts",
				"url", url,
				"attempts", attempt,
				"error", err,
			)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, url, err)
	}
	return payload, nil
}

func (c *Client) get(ctx context.Context, url string) (weather.Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var payload weather.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, backoff.Permanent(&decodeError{err: err})
	}
	if payload == nil {
		return nil, backoff.Permanent(&decodeError{err: errors.New("response is not a JSON object")})
	}
	return payload, nil
}

// CloseIdleConnections drops pooled keep-alive connections without
// invalidating the client.
func (c *Client) CloseIdleConnections() {
	c.transport.CloseIdleConnections()
}

// Close releases the HTTP session.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decoding JSON: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.step * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }
