package transport

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig configures reconnection delays.
type BackoffConfig struct {
	Base time.Duration // first ceiling, default 1s
	Cap  time.Duration // ceiling never exceeds this, default 30s
	// Jitter draws each delay uniformly from [0, ceiling] ("full jitter").
	// With Jitter off the delay equals the ceiling.
	Jitter bool
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Base <= 0 {
		c.Base = time.Second
	}
	if c.Cap <= 0 {
		c.Cap = 30 * time.Second
	}
	if c.Cap < c.Base {
		c.Cap = c.Base
	}
	return c
}

// Backoff yields exponentially growing, capped reconnection delays.
// Not safe for concurrent use; each PushStream owns one.
type Backoff struct {
	cfg     BackoffConfig
	exp     *backoff.ExponentialBackOff
	attempt int
	// jitter maps a ceiling to the actual delay. Replaced in tests.
	jitter func(ceiling time.Duration) time.Duration
}

// NewBackoff builds a Backoff. Ceilings double from Base up to Cap; the
// exponential schedule never gives up on its own.
func NewBackoff(cfg BackoffConfig) *Backoff {
	cfg = cfg.withDefaults()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.Base
	exp.MaxInterval = cfg.Cap
	exp.Multiplier = 2
	exp.RandomizationFactor = 0 // jitter is applied on top of the ceiling
	exp.MaxElapsedTime = 0
	exp.Reset()

	b := &Backoff{cfg: cfg, exp: exp}
	b.jitter = func(ceiling time.Duration) time.Duration {
		if ceiling <= 0 {
			return 0
		}
		return time.Duration(rand.Int64N(int64(ceiling) + 1))
	}
	return b
}

// Next advances to the next attempt and returns the delay to wait and the
// ceiling it was drawn from. Ceilings are non-decreasing and bounded by Cap.
func (b *Backoff) Next() (delay, ceiling time.Duration) {
	b.attempt++
	ceiling = b.exp.NextBackOff()
	if ceiling == backoff.Stop || ceiling > b.cfg.Cap {
		ceiling = b.cfg.Cap
	}
	if !b.cfg.Jitter {
		return ceiling, ceiling
	}
	delay = b.jitter(ceiling)
	if delay > ceiling {
		delay = ceiling
	}
	return delay, ceiling
}

// Attempt returns the number of Next calls since the last Reset.
func (b *Backoff) Attempt() int { return b.attempt }

// Reset returns to the first ceiling after a connection proved stable.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.exp.Reset()
}
