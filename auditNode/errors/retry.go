package errors

import (
	"context"
	"math"
	"time"
)

// RetryConfig configures RetryWithConfig. RetryableErrors extends the codes that
// NodeError.IsRetryable already accepts.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RetryableErrors []ErrorCode
}

// DefaultRetryConfig is used for startup reads against the ledger.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RetryableErrors: []ErrorCode{ErrCodeNetwork, ErrCodeRPC, ErrCodeTimeout},
	}
}

// RetryFunc is one attempt.
type RetryFunc func() error

// RetryWithConfig calls fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is used up. Only the last case wraps the error as INTERNAL.
func RetryWithConfig(ctx context.Context, fn RetryFunc, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if !config.retryable(lastErr) {
			return lastErr
		}
		if attempt >= config.MaxAttempts {
			break
		}
		if err := wait(ctx, config.delay(attempt)); err != nil {
			return err
		}
	}

	return WrapNodeError(lastErr, ErrCodeInternal, "", "maximum retry attempts exceeded").
		WithContext("attempts", config.MaxAttempts)
}

// Retry is RetryWithConfig with DefaultRetryConfig.
func Retry(ctx context.Context, fn RetryFunc) error {
	return RetryWithConfig(ctx, fn, DefaultRetryConfig())
}

func (c *RetryConfig) retryable(err error) bool {
	if IsRetryable(err) {
		return true
	}
	var nodeErr *NodeError
	if !As(err, &nodeErr) {
		return false
	}
	for _, code := range c.RetryableErrors {
		if nodeErr.Code == code {
			return true
		}
	}
	return false
}

// delay is the pause after the given 1-based attempt.
func (c *RetryConfig) delay(attempt int) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if d > float64(c.MaxDelay) || math.IsInf(d, 0) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExponentialBackoff doubles baseDelay per attempt, starting at attempt 1, up to maxDelay.
func ExponentialBackoff(attempt int, baseDelay time.Duration, maxDelay time.Duration) time.Duration {
	if attempt <= 0 {
		return baseDelay
	}
	delay := baseDelay << uint(attempt-1)
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}
