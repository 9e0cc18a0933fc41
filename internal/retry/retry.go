// Package retry invokes operations again when they fail with a recoverable,
// classified error.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/classify"
	"github.com/fyrsmithlabs/browserlog/internal/metrics"
	"go.uber.org/zap"
)

// Policy configures retry behavior for one extraction.
type Policy struct {
	// MaxRetries is the total number of attempts, including the first.
	// Default: 3
	MaxRetries int

	// InitialDelay is the wait after the first failed attempt.
	// Default: 1 second
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts.
	// Default: 10 seconds
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after each wait.
	// Default: 2
	BackoffFactor float64
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (p *Policy) ApplyDefaults() {
	defaults := DefaultPolicy()

	if p.MaxRetries <= 0 {
		p.MaxRetries = defaults.MaxRetries
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaults.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = defaults.BackoffFactor
	}
}

// ExhaustedError is returned when every attempt failed with a recoverable error.
type ExhaustedError struct {
	Label    string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %s", e.Label, e.Attempts, e.Last.Error())
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor runs operations under a Policy.
type Executor struct {
	logger   *zap.Logger
	sleep    SleepFunc
	classify func(error) (classify.Classification, bool)
	metrics  *metrics.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleep replaces the wall-clock sleeper, typically with a simulated one.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// WithMetrics records retried attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates an Executor. A nil logger disables logging.
func NewExecutor(logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		logger:   logger.Named("retry"),
		sleep:    sleepContext,
		classify: classify.ClassifyError,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do invokes op until it succeeds, fails with an error that is unclassified
// or not recoverable, or the policy's attempts are used up.
//
// Unclassified and non-recoverable errors are returned unchanged after a
// single attempt. Exhaustion returns an *ExhaustedError wrapping the last
// failure.
func Do[T any](ctx context.Context, e *Executor, label string, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if e == nil {
		e = NewExecutor(nil)
	}
	policy.ApplyDefaults()

	delay := policy.InitialDelay
	startTime := time.Now()
	var lastErr error

	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("operation recovered after retries",
					zap.String("label", label),
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(startTime)),
				)
			}
			return result, nil
		}
		lastErr = err

		class, known := e.classify(err)
		if !known || !class.Recoverable {
			e.logger.Debug("error is not retryable",
				zap.String("label", label),
				zap.Bool("classified", known),
				zap.String("code", class.Code),
				zap.Error(err),
			)
			return zero, err
		}

		if attempt == policy.MaxRetries {
			break
		}

		e.metrics.RecordRetry(label)
		e.logger.Info("retrying after recoverable error",
			zap.String("label", label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxRetries),
			zap.String("code", class.Code),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := e.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s canceled: %w", label, err)
		}

		next := time.Duration(float64(delay) * policy.BackoffFactor)
		if next > policy.MaxDelay {
			next = policy.MaxDelay
		}
		delay = next
	}

	e.logger.Warn("operation failed after all attempts",
		zap.String("label", label),
		zap.Int("total_attempts", policy.MaxRetries),
		zap.Duration("total_time", time.Since(startTime)),
		zap.Error(lastErr),
	)

	return zero, &ExhaustedError{Label: label, Attempts: policy.MaxRetries, Last: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
