package http

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first one
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	JitterFraction float64

	// RateLimitBase and RateLimitJitter shape the wait after a 429:
	// RateLimitBase * 2^attempt + rand[0, RateLimitJitter)
	RateLimitBase   time.Duration
	RateLimitJitter time.Duration

	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      30 * time.Second,
		BackoffFactor:   2.0,
		JitterFraction:  0.25,
		RateLimitBase:   time.Second,
		RateLimitJitter: 500 * time.Millisecond,
	}
}

// RateLimitedError is returned when a provider answers 429
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited (429)", e.Provider)
}

// TransientError wraps an error that is safe to retry (network failures, 5xx)
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("transient status %d", e.StatusCode)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a failure that retrying cannot fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so Retry stops immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsRateLimited reports whether err carries a 429
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// IsTransient reports whether err looks like a retryable network or server failure
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"connection reset", "connection refused", "broken pipe", "no such host", "i/o timeout", "eof"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// StatusError is an unexpected HTTP status
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
}

// StatusCodeOf returns the HTTP status carried by err, or 0
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var te *TransientError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	if IsRateLimited(err) {
		return http.StatusTooManyRequests
	}
	return 0
}

// ClassifyStatus converts a non-2xx status into the matching error type.
// 429 is rate limited, 408 and 5xx are transient, everything else is permanent.
func ClassifyStatus(provider string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{Provider: provider, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return &TransientError{StatusCode: resp.StatusCode, Err: &StatusError{Provider: provider, StatusCode: resp.StatusCode}}
	default:
		return Permanent(&StatusError{Provider: provider, StatusCode: resp.StatusCode})
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// Retry runs fn up to cfg.MaxAttempts times. 429s wait on the rate-limit
// curve, other failures on the exponential curve. Permanent errors and
// context cancellation stop immediately.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return zero, lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(backoffFor(attempt, err, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	if cfg.RateLimitBase <= 0 {
		cfg.RateLimitBase = def.RateLimitBase
	}
	if cfg.RateLimitJitter < 0 {
		cfg.RateLimitJitter = 0
	}
	return cfg
}

// backoffFor returns the wait after the given 1-based attempt failed with err
func backoffFor(attempt int, err error, cfg RetryConfig) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		delay := time.Duration(float64(cfg.RateLimitBase) * math.Pow(2, float64(attempt)))
		if cfg.RateLimitJitter > 0 {
			delay += time.Duration(rand.Int64N(int64(cfg.RateLimitJitter)))
		}
		if rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}
		return min(delay, cfg.MaxBackoff)
	}

	delay := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}
	if cfg.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * cfg.JitterFraction
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry attempt
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Bool("rate_limited", IsRateLimited(err)),
			zap.Error(err),
		)
	}
}
