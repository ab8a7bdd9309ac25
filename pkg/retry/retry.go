package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	JitterFraction  float64
	RetryableErrors []error
	Logger          *zap.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// Do runs operation until it succeeds, fails with a non-retryable error, the
// attempt budget runs out, or ctx is cancelled.
func Do(ctx context.Context, cfg Config, operation func() error) error {
	cfg = cfg.withDefaults()

	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				cfg.Logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		if !retryable(lastErr, cfg.RetryableErrors) {
			cfg.Logger.Debug("Error not retryable",
				zap.Error(lastErr),
				zap.Int("attempt", attempt),
			)
			return lastErr
		}

		if attempt >= cfg.MaxAttempts {
			return lastErr
		}

		delay := backoff(cfg, attempt)
		cfg.Logger.Warn("Operation failed, retrying",
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func DoWithResult[T any](ctx context.Context, cfg Config, operation func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = operation()
		return err
	})
	return result, err
}

func retryable(err error, retryableErrors []error) bool {
	if len(retryableErrors) == 0 {
		return true
	}
	for _, candidate := range retryableErrors {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

// backoff grows the delay exponentially with the attempt number, caps it at
// MaxDelay and spreads concurrent retriers with random jitter.
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= cfg.Multiplier
		if delay >= float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
			break
		}
	}

	if cfg.JitterFraction > 0 {
		jitter := (rand.Float64()*2 - 1) * cfg.JitterFraction * delay
		delay += jitter
	}

	return time.Duration(delay)
}
