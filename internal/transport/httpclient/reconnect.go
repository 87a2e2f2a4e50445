package httpclient

import (
	"math/rand"
	"time"
)

// ReconnectOptions controls the exponential-backoff-with-jitter schedule
// used when a Streamable HTTP or legacy SSE stream drops and
// AutoReconnect is enabled. Grounded on
// crates/mcp-client/src/http/reconnect.rs's ReconnectOptions.
type ReconnectOptions struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// MaxAttempts caps the number of reconnect attempts; zero means
	// unlimited (the Rust None case).
	MaxAttempts int
	// Jitter is a fraction (0.0-1.0) of the delay to randomize by.
	Jitter float64
}

// DefaultReconnectOptions matches the original's Default impl: 500ms
// initial delay, 30s cap, doubling, 10 attempts, 10% jitter.
func DefaultReconnectOptions() ReconnectOptions {
	return ReconnectOptions{
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		MaxAttempts:       10,
		Jitter:            0.1,
	}
}

// AggressiveReconnectOptions reconnects fast and gives up quickly.
func AggressiveReconnectOptions() ReconnectOptions {
	return ReconnectOptions{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 1.5,
		MaxAttempts:       20,
		Jitter:            0.1,
	}
}

// RelaxedReconnectOptions backs off slower and gives up sooner.
func RelaxedReconnectOptions() ReconnectOptions {
	return ReconnectOptions{
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
		MaxAttempts:       5,
		Jitter:            0.2,
	}
}

// PersistentReconnectOptions never gives up.
func PersistentReconnectOptions() ReconnectOptions {
	return ReconnectOptions{
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
		MaxAttempts:       0,
		Jitter:            0.2,
	}
}

// ReconnectState tracks the in-progress backoff schedule across
// reconnect attempts for one connection lifecycle.
type ReconnectState struct {
	options      ReconnectOptions
	attempt      int
	currentDelay time.Duration
}

// NewReconnectState builds a ReconnectState from options.
func NewReconnectState(options ReconnectOptions) *ReconnectState {
	return &ReconnectState{options: options, currentDelay: options.InitialDelay}
}

// ShouldRetry reports whether another attempt is allowed under
// MaxAttempts.
func (s *ReconnectState) ShouldRetry() bool {
	if s.options.MaxAttempts == 0 {
		return true
	}
	return s.attempt < s.options.MaxAttempts
}

// NextDelay returns the delay before the next reconnect attempt,
// advancing the schedule, or (0, false) once MaxAttempts is exhausted.
func (s *ReconnectState) NextDelay() (time.Duration, bool) {
	if !s.ShouldRetry() {
		return 0, false
	}

	delay := s.currentDelay
	s.attempt++

	next := time.Duration(float64(s.currentDelay) * s.options.BackoffMultiplier)
	if next > s.options.MaxDelay {
		next = s.options.MaxDelay
	}
	s.currentDelay = next

	if s.options.Jitter <= 0 {
		return delay, true
	}

	jitterRange := float64(delay) * s.options.Jitter
	jittered := float64(delay) + (rand.Float64()*2-1)*jitterRange
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered), true
}

// Reset restarts the schedule for a fresh connection cycle.
func (s *ReconnectState) Reset() {
	s.attempt = 0
	s.currentDelay = s.options.InitialDelay
}

// Attempt reports the current attempt count.
func (s *ReconnectState) Attempt() int {
	return s.attempt
}
