// Package retry re-runs operations that failed with a circulation Conflict.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"library_circulation/circulation"
)

const (
	defaultMaxAttempts  = 2 // 冲突默认自动重试一次
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	ErrInvalidMaxAttempts  = errors.New("max attempts must be positive")
	ErrNegativeBaseDelay   = errors.New("base delay must not be negative")
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

type Func func(ctx context.Context) error

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	op           string
	log          *slog.Logger
}

type Option func(*config) error

func WithMaxAttempts(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = n
		return nil
	}
}

// WithBaseDelay sets the first backoff; later attempts double it.
func WithBaseDelay(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = d
		return nil
	}
}

func WithJitterFactor(f float64) Option {
	return func(c *config) error {
		if f < 0.0 || f > 1.0 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = f
		return nil
	}
}

// WithLogger logs each retried conflict under op.
func WithLogger(l *slog.Logger, op string) Option {
	return func(c *config) error {
		c.log = l
		c.op = op
		return nil
	}
}

// OnConflict runs fn and retries it while it fails with KindConflict.
// Every other outcome, including Transient, is returned as is.
func OnConflict(ctx context.Context, fn Func, opts ...Option) error {
	cfg := &config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, circulation.ErrConflict) {
			return lastErr
		}
		if cfg.log != nil {
			cfg.log.InfoContext(ctx, "retrying after conflict",
				slog.String("op", cfg.op), slog.Int("attempt", attempt+1), slog.Any("error", lastErr))
		}
	}
	return lastErr
}
