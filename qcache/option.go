package qcache

import (
	"fmt"
	"time"
)

const (
	defaultTTL       = 2 * time.Minute
	defaultErrTTL    = 5 * time.Second
	defaultRefreshIn = 5 * time.Minute
)

// config contains all options for configuring Cache.
type config struct {
	ttl        time.Duration
	errTTL     time.Duration
	refreshIn  time.Duration
	maxEntries int
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		ttl:       defaultTTL,
		errTTL:    defaultErrTTL,
		refreshIn: defaultRefreshIn,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithTTL sets the cache entry time-to-live duration. After this time a
// cached result is refetched on the next lookup.
//
// Default is 2 minutes.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		if ttl <= 0 {
			return fmt.Errorf("ttl must be positive: %s", ttl)
		}
		cfg.ttl = ttl
		return nil
	}
}

// WithErrorTTL sets the time-to-live for negative entries, which record
// that a query's fetch failed.
//
// Default is 5 seconds.
func WithErrorTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		if ttl <= 0 {
			return fmt.Errorf("error ttl must be positive: %s", ttl)
		}
		cfg.errTTL = ttl
		return nil
	}
}

// WithRefreshInterval sets the interval to wait between pruning expired
// cache entries. If set to 0, then automatic refresh is disabled.
//
// Default is 5 minutes.
func WithRefreshInterval(interval time.Duration) Option {
	return func(cfg *config) error {
		cfg.refreshIn = interval
		return nil
	}
}

// WithMaxEntries bounds the number of cached queries. When an insert
// exceeds the bound, expired entries are removed first, then the entries
// closest to expiry. If set to 0 the cache is unbounded.
//
// Default is 0.
func WithMaxEntries(n int) Option {
	return func(cfg *config) error {
		if n < 0 {
			return fmt.Errorf("max entries cannot be negative: %d", n)
		}
		cfg.maxEntries = n
		return nil
	}
}
