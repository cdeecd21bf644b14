// ABOUTME: Per-key point-budget rate limiting with windowed reset and block duration.
// ABOUTME: Supports penalty/reward adjustments outside normal consumption.

package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrRateLimited indicates the key has exhausted its point budget.
var ErrRateLimited = errors.New("rate limited")

// Options configures a Limiter. Zero values fall back to defaults.
type Options struct {
	// Points is the budget available per key per window.
	Points int
	// Duration is the window after which a key's consumption resets.
	Duration time.Duration
	// BlockDuration, when positive, locks a key out after it exceeds its
	// budget, regardless of window reset.
	BlockDuration time.Duration
}

// DefaultOptions returns the limiter defaults.
func DefaultOptions() Options {
	return Options{
		Points:   60,
		Duration: time.Minute,
	}
}

// Result describes a key's budget after an operation.
type Result struct {
	// RemainingPoints is the budget left in the current window, never negative.
	RemainingPoints int
	// MsBeforeNext is the number of milliseconds until consumption can
	// succeed again (window reset, or block expiry when blocked).
	MsBeforeNext int64
	// ConsumedPoints is the total consumed in the current window.
	ConsumedPoints int
}

// LimitError is returned when consumption is rejected. It wraps
// ErrRateLimited and carries the key's current Result.
type LimitError struct {
	Result Result
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited: retry in %dms", e.Result.MsBeforeNext)
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }

// record tracks one key's consumption. Each record has its own lock so keys
// never contend with each other.
type record struct {
	mu           sync.Mutex
	consumed     int
	windowStart  time.Time
	blockedUntil time.Time
}

// Limiter tracks per-key point consumption.
type Limiter struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex // guards records map only, never held during record mutation
	records map[string]*record

	now func() time.Time
}

// New creates a Limiter with the given options.
func New(opts Options) *Limiter {
	if opts.Points <= 0 {
		opts.Points = DefaultOptions().Points
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultOptions().Duration
	}
	return &Limiter{
		opts:    opts,
		logger:  slog.Default().With("component", "ratelimit"),
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// get returns the record for key, creating it if needed.
func (l *Limiter) get(key string) *record {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[key]
	if !ok {
		r = &record{windowStart: l.now()}
		l.records[key] = r
	}
	return r
}

// rollWindow resets the record if its window has elapsed. Caller holds r.mu.
func (l *Limiter) rollWindow(r *record, now time.Time) {
	if now.Sub(r.windowStart) >= l.opts.Duration {
		r.consumed = 0
		r.windowStart = now
	}
}

// result builds a Result snapshot. Caller holds r.mu.
func (l *Limiter) result(r *record, now time.Time) Result {
	remaining := l.opts.Points - r.consumed
	if remaining < 0 {
		remaining = 0
	}
	var msNext int64
	if r.blockedUntil.After(now) {
		msNext = r.blockedUntil.Sub(now).Milliseconds()
	} else {
		reset := r.windowStart.Add(l.opts.Duration)
		if reset.After(now) {
			msNext = reset.Sub(now).Milliseconds()
		}
	}
	return Result{
		RemainingPoints: remaining,
		MsBeforeNext:    msNext,
		ConsumedPoints:  r.consumed,
	}
}

// Consume deducts points from the key's budget. It returns the key's state
// after the deduction, or a *LimitError wrapping ErrRateLimited when the key
// is blocked or the deduction would exceed the budget.
func (l *Limiter) Consume(key string, points int) (Result, error) {
	if points <= 0 {
		points = 1
	}

	r := l.get(key)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := l.now()
	l.rollWindow(r, now)

	if r.blockedUntil.After(now) {
		return Result{}, &LimitError{Result: l.result(r, now)}
	}

	if r.consumed+points > l.opts.Points {
		if l.opts.BlockDuration > 0 {
			r.blockedUntil = now.Add(l.opts.BlockDuration)
			l.logger.Debug("key blocked", "key", key, "until", r.blockedUntil)
		}
		return Result{}, &LimitError{Result: l.result(r, now)}
	}

	r.consumed += points
	return l.result(r, now), nil
}

// Penalty deducts extra points from the key outside normal consumption,
// e.g. to slow down repeated invalid-auth attempts. The consumed total may
// exceed the budget, making further Consume calls fail until reset.
func (l *Limiter) Penalty(key string, points int) Result {
	if points <= 0 {
		points = 1
	}

	r := l.get(key)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := l.now()
	l.rollWindow(r, now)
	r.consumed += points
	return l.result(r, now)
}

// Reward restores points to the key without exceeding the original budget.
func (l *Limiter) Reward(key string, points int) Result {
	if points <= 0 {
		points = 1
	}

	r := l.get(key)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := l.now()
	l.rollWindow(r, now)
	r.consumed -= points
	if r.consumed < 0 {
		r.consumed = 0
	}
	return l.result(r, now)
}

// Delete resets a key's record entirely, including any block.
func (l *Limiter) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
}
