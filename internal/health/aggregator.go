// ABOUTME: Polls registered health checkers in parallel with a bounded per-check timeout.
// ABOUTME: A failing or hanging dependency is reported as Error, never propagated.

package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds each component poll.
const DefaultCheckTimeout = 2 * time.Second

// Checker reports one component's health. Implementations must be read-only
// with respect to the component they poll.
type Checker interface {
	Check(ctx context.Context) ComponentReport
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) ComponentReport

func (f CheckerFunc) Check(ctx context.Context) ComponentReport { return f(ctx) }

// Aggregator owns the registered checkers and builds reports on demand.
type Aggregator struct {
	timeout time.Duration
	started time.Time
	logger  *slog.Logger

	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewAggregator creates an aggregator. timeout <= 0 falls back to
// DefaultCheckTimeout. Uptime is measured from this call.
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Aggregator{
		timeout:  timeout,
		started:  time.Now(),
		logger:   slog.Default().With("component", "health"),
		checkers: make(map[string]Checker),
	}
}

// Register adds a checker under the given component key. Registering the
// same key twice replaces the checker.
func (a *Aggregator) Register(key string, c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.checkers[key]; !exists {
		a.order = append(a.order, key)
	}
	a.checkers[key] = c
}

// Report polls every registered component in parallel and folds the results.
// Each poll is bounded by the configured timeout; a timed-out or panicking
// checker is recorded as Error with an explicit issue code so the other
// components still report.
func (a *Aggregator) Report(ctx context.Context) *Report {
	a.mu.RLock()
	keys := append([]string(nil), a.order...)
	checkers := make(map[string]Checker, len(a.checkers))
	for k, c := range a.checkers {
		checkers[k] = c
	}
	a.mu.RUnlock()

	components := make(map[string]ComponentReport, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, key := range keys {
		wg.Add(1)
		go func(key string, c Checker) {
			defer wg.Done()
			rep := a.poll(ctx, key, c)
			mu.Lock()
			components[key] = rep
			mu.Unlock()
		}(key, checkers[key])
	}
	wg.Wait()

	return &Report{
		Status:     fold(components, keys),
		Timestamp:  nowISO(time.Now()),
		UptimeMs:   time.Since(a.started).Milliseconds(),
		Components: components,
	}
}

// poll runs one checker under the per-check timeout.
func (a *Aggregator) poll(ctx context.Context, key string, c Checker) ComponentReport {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan ComponentReport, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("health checker panicked", "checker", key, "panic", r)
				done <- ComponentReport{
					Status: StatusError,
					Issues: []string{key + "_check_failed"},
				}
			}
		}()
		done <- c.Check(ctx)
	}()

	select {
	case rep := <-done:
		return rep
	case <-ctx.Done():
		a.logger.Warn("health check timed out", "checker", key)
		// The in-flight check is abandoned, not awaited.
		return ComponentReport{
			Status: StatusError,
			Issues: []string{IssueCheckTimeout},
		}
	}
}
