// Package retry 带退避的重试
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Strategy 退避策略
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"       // 固定间隔
	StrategyLinear      Strategy = "linear"      // 线性递增
	StrategyExponential Strategy = "exponential" // 指数退避
)

// Config 重试配置
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Strategy        Strategy
	Logger          *logrus.Logger
}

// DefaultConfig 3 次，指数退避 200ms 起
func DefaultConfig(logger *logrus.Logger) *Config {
	return &Config{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Strategy:        StrategyExponential,
		Logger:          logger,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记不可重试的错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable 取消、超时和 Permanent 错误不重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	switch {
	case errors.As(err, &p):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Do 执行 fn 直到成功、遇到不可重试错误或次数用尽
func Do(ctx context.Context, cfg *Config, op string, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = DefaultConfig(logrus.StandardLogger())
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled: %w", op, err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.WithFields(logrus.Fields{"op": op, "attempt": attempt}).Info("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := Backoff(cfg.Strategy, cfg.InitialInterval, cfg.MaxInterval, attempt)
		log.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"max":     attempts,
			"wait":    wait,
		}).Warn("Operation failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during wait: %w", op, ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("%s: max attempts (%d) reached: %w", op, attempts, lastErr)
}

// Backoff 第 attempt 次失败后的等待时间
func Backoff(strategy Strategy, initial, max time.Duration, attempt int) time.Duration {
	var next time.Duration
	switch strategy {
	case StrategyLinear:
		next = initial * time.Duration(attempt)
	case StrategyExponential:
		next = initial * time.Duration(1<<(attempt-1))
	default:
		next = initial
	}
	if max > 0 && next > max {
		next = max
	}
	return next
}
