package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	// DefaultMaxDelay caps the exponential growth of the computed delay.
	DefaultMaxDelay = 300 * time.Second

	// DefaultJitterFactor spreads retries inside a +/-20% band so that
	// competing workers do not retry in lockstep.
	DefaultJitterFactor = 0.2
)

// Config holds the knobs for jittered exponential backoff.
type Config struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	JitterFactor float64
}

// DefaultConfig returns the backoff configuration used by the pipeline
// when nothing is configured explicitly.
func DefaultConfig() Config {
	return Config{
		InitialDelay: 5 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
	}
}

// Delay computes the jittered exponential delay for a 1-based attempt.
// Inputs are clamped: attempt >= 1, initial delay >= 0, multiplier >= 1.
// The un-jittered base is initialDelay * multiplier^(attempt-1), capped at
// MaxDelay; the final delay is base * (1 + uniform(-jitter, +jitter)) and
// never negative.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := c.InitialDelay
	if initial < 0 {
		initial = 0
	}
	multiplier := c.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	maxDelay := c.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	jitter := c.JitterFactor
	if jitter < 0 {
		jitter = 0
	}

	base := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if base > float64(maxDelay) {
		base = float64(maxDelay)
	}

	delay := base * (1 + (rand.Float64()*2-1)*jitter)
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Compute is a convenience wrapper using the default cap and jitter.
func Compute(initialDelay time.Duration, multiplier float64, attempt int) time.Duration {
	return Config{
		InitialDelay: initialDelay,
		Multiplier:   multiplier,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
	}.Delay(attempt)
}
