package retry

import (
	"context"
	"math"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration for short, in-call retries. The outbox
// and consumer loops use their own jittered backoff; this helper is for
// bounded transient calls like a replay republish.
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Do executes a function with exponential backoff retry. The delay after
// the n-th failure is InitialDelay * Multiplier^n, capped at MaxDelay.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(float64(cfg.InitialDelay) * math.Pow(multiplier, float64(n)))
		}),
		retry.LastErrorOnly(true),
	)
}
