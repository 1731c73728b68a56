package retry

import (
	"math"
	"math/rand"
	"time"
)

// Strategy calculates the delay before a retry attempt.
// Implementations should be safe for concurrent use.
type Strategy interface {
	// Next returns the backoff duration for an attempt number.
	// Attempt starts at 1 for the first retry.
	Next(attempt int) time.Duration
}

// Exponential implements exponential backoff with jitter. Jitter spreads
// retry times when multiple instances recover simultaneously.
type Exponential struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// Next returns min(InitialInterval * Multiplier^(attempt-1) * (1 ± jitter), MaxInterval).
func (e Exponential) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = time.Second
	}
	maxInterval := e.MaxInterval
	if maxInterval == 0 {
		maxInterval = 30 * time.Second
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))

	// Zero jitter stays deterministic for tests.
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}

	if interval > float64(maxInterval) {
		interval = float64(maxInterval)
	}
	return time.Duration(interval)
}

// Fixed implements a constant delay between retries.
type Fixed struct {
	Interval time.Duration
}

func (f Fixed) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// Linear implements linearly increasing delays.
type Linear struct {
	Interval    time.Duration
	MaxInterval time.Duration
}

// Next returns min(Interval * attempt, MaxInterval).
func (l Linear) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	interval := l.Interval
	if interval == 0 {
		interval = time.Second
	}
	maxInterval := l.MaxInterval
	if maxInterval == 0 {
		maxInterval = 30 * time.Second
	}
	delay := interval * time.Duration(attempt)
	if delay > maxInterval {
		delay = maxInterval
	}
	return delay
}

// DefaultStrategy returns exponential backoff tuned for transient store and
// network failures: quick first retry, 30s cap, 10% jitter.
func DefaultStrategy() Strategy {
	return Exponential{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}
