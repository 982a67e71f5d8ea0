// Package httpclient builds the HTTP clients the service points at its TTS
// upstreams and at running instances of itself (health probes, CLI stats).
package httpclient

import (
	"net/http"
	"time"
)

// DefaultTimeout covers a synthesis call, which can run tens of seconds while
// a cold model server loads. Probes and stats fetches pass a shorter
// WithTimeout.
const DefaultTimeout = 30 * time.Second

type Config struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

type Option func(*Config)

func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithTransport swaps the transport, e.g. to wrap it with tracing.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Config) {
		c.Transport = rt
	}
}

func New(opts ...Option) *http.Client {
	cfg := &Config{
		Timeout:   DefaultTimeout,
		Transport: http.DefaultTransport,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: cfg.Transport,
	}
}
