package client

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// defaultHTTPTimeout is the time limit for requests made by the HTTP
	// client.
	defaultHTTPTimeout = 10 * time.Second
)

// config contains all options for configuring Client.
type config struct {
	apiKey         string
	extraEndpoints []string
	httpClient     *http.Client
	httpTimeout    time.Duration
	retryMax       int
	retryWaitMin   time.Duration
	retryWaitMax   time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		httpTimeout: defaultHTTPTimeout,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithClient allows creation of the http client using an underlying network
// round tripper / client.
func WithClient(c *http.Client) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.httpClient = c
		}
		return nil
	}
}

// WithAPIKey sets the API key sent with every query.
func WithAPIKey(key string) Option {
	return func(cfg *config) error {
		cfg.apiKey = key
		return nil
	}
}

// WithExtraEndpoints adds endpoint URLs that are tried, in order, when the
// primary endpoint fails.
func WithExtraEndpoints(urls ...string) Option {
	return func(cfg *config) error {
		cfg.extraEndpoints = append(cfg.extraEndpoints, urls...)
		return nil
	}
}

// WithHTTPTimeout specifies a time limit for HTTP requests made by the
// client. A value of zero means no timeout.
//
// Default is 10 seconds. Ignored when WithClient supplies the http client.
func WithHTTPTimeout(to time.Duration) Option {
	return func(cfg *config) error {
		cfg.httpTimeout = to
		return nil
	}
}

// WithRetry configures the client to retry failed requests, waiting between
// waitMin and waitMax between attempts. Setting retryMax to zero disables
// retries.
func WithRetry(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(cfg *config) error {
		if retryMax < 0 {
			return fmt.Errorf("retry max cannot be negative: %d", retryMax)
		}
		cfg.retryMax = retryMax
		cfg.retryWaitMin = waitMin
		cfg.retryWaitMax = waitMax
		return nil
	}
}
