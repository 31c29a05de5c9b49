package trigger

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

const (
	// defaultDelay is the time that input must remain unchanged before a
	// fetch is issued.
	defaultDelay = 300 * time.Millisecond
	// defaultMinLength makes only empty input skip fetching.
	defaultMinLength = 1
)

// config contains all options for configuring Trigger.
type config struct {
	clock     clock.Clock
	delay     time.Duration
	limiter   *rate.Limiter
	minLength int
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		clock:     clock.New(),
		delay:     defaultDelay,
		minLength: defaultMinLength,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithDelay sets the quiescence window: the time that input must remain
// unchanged before a fetch is issued.
//
// Default is 300ms.
func WithDelay(delay time.Duration) Option {
	return func(cfg *config) error {
		if delay <= 0 {
			return fmt.Errorf("delay must be positive: %s", delay)
		}
		cfg.delay = delay
		return nil
	}
}

// WithClock replaces the clock used to schedule fetches. This is useful for
// testing with a mock clock.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.clock = c
		}
		return nil
	}
}

// WithRateLimit limits the rate at which fetches are issued, independent of
// the quiescence window. This is useful with endpoints that enforce request
// quotas. If not set, then fetches are not rate limited.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(cfg *config) error {
		cfg.limiter = rate.NewLimiter(r, burst)
		return nil
	}
}

// WithMinLength sets the minimum input length for which a fetch is
// scheduled. Shorter input clears pending work and produces an empty result
// without fetching.
//
// Default is 1, so only empty input behaves this way.
func WithMinLength(n int) Option {
	return func(cfg *config) error {
		if n < 1 {
			return fmt.Errorf("minimum length must be at least 1: %d", n)
		}
		cfg.minLength = n
		return nil
	}
}
