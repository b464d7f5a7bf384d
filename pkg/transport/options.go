package transport

import (
	"log/slog"
	"net/http"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The settings timeout is not
// applied to a client passed this way.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger for round trips and failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBreaker stops calling the service after repeated transport failures.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithMaxBodySize caps response bodies, 10 MiB by default. Larger responses
// fail with ErrResponseTooLarge instead of being truncated.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRequestIDGenerator overrides how X-Request-Id values are produced when
// the context does not carry one.
func WithRequestIDGenerator(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newRequestID = fn
		}
	}
}
