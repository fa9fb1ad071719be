package client

import (
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// RetryPolicy covers transport errors, 429 and 5xx responses. Attempts counts
// the retries after the first try. Waits double from MinWait up to MaxWait
// and get up to 25% jitter.
type RetryPolicy struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

// DefaultRetryPolicy applies unless WithRetry or WithoutRetry is given.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second}

// WithRetry overrides the positive fields of p. MaxWait below MinWait is
// raised to MinWait.
func WithRetry(p RetryPolicy) Option {
	return func(c *Client) {
		if p.Attempts > 0 {
			c.retry.Attempts = p.Attempts
		}
		if p.MinWait > 0 {
			c.retry.MinWait = p.MinWait
		}
		if p.MaxWait > 0 {
			c.retry.MaxWait = p.MaxWait
		}
		if c.retry.MaxWait < c.retry.MinWait {
			c.retry.MaxWait = c.retry.MinWait
		}
	}
}

// WithoutRetry sends every request once.
func WithoutRetry() Option {
	return func(c *Client) { c.retry.Attempts = 0 }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIKey sends key as a bearer token, for servers behind an
// authenticating proxy.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent puts product, e.g. "dashboard/1.2", in front of the client's
// own User-Agent.
func WithUserAgent(product string) Option {
	return func(c *Client) {
		if product != "" {
			c.userAgent = product + " " + defaultUserAgent
		}
	}
}
