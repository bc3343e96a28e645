package engine

import (
	"time"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// Config controls scheduler cadence and tick behavior.
type Config struct {
	StrategicInterval   time.Duration
	AcceleratedInterval time.Duration
	IdleInterval        time.Duration

	// TickTimeout bounds state loading and both producers. A producer that
	// ignores its context is abandoned at the deadline.
	TickTimeout time.Duration

	// RetryBaseDelay is the first retry delay after a failed tick. Zero
	// disables retry: the next attempt waits a full interval.
	RetryBaseDelay time.Duration

	Adaptive         bool // derive tick mode from player activity
	RequeueOnFailure bool // put a failed tick's actions back on the queue
	Dedup            hybrid.DedupPolicy
	DisableNarrative bool // use the neutral narrative instead of the analyzer
	SubscriberBuffer int
}

// DefaultConfig returns the stock cadence.
func DefaultConfig() Config {
	return Config{
		StrategicInterval:   campaign.StrategicInterval,
		AcceleratedInterval: campaign.AcceleratedInterval,
		IdleInterval:        campaign.IdleInterval,
		TickTimeout:         90 * time.Second,
		RetryBaseDelay:      5 * time.Second,
		Dedup:               hybrid.DedupNone,
		SubscriberBuffer:    64,
	}
}

// Interval returns the tick interval for mode, falling back to the stock
// interval when the configured one is unset.
func (c Config) Interval(mode campaign.TickMode) time.Duration {
	var d, def time.Duration
	switch mode {
	case campaign.ModeAccelerated:
		d, def = c.AcceleratedInterval, campaign.AcceleratedInterval
	case campaign.ModeIdle:
		d, def = c.IdleInterval, campaign.IdleInterval
	default:
		d, def = c.StrategicInterval, campaign.StrategicInterval
	}
	if d <= 0 {
		return def
	}
	return d
}

func (c Config) tickTimeout() time.Duration {
	if c.TickTimeout <= 0 {
		return 90 * time.Second
	}
	return c.TickTimeout
}
