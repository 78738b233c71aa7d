package search

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64 // 0.0 to 1.0, fraction of delay to randomize
}

// DefaultIndexRetryConfig covers short Algolia hiccups while the upload
// request is still open.
var DefaultIndexRetryConfig = RetryConfig{
	MaxRetries:     2,
	InitialDelay:   200 * time.Millisecond,
	MaxDelay:       2 * time.Second,
	BackoffFactor:  2.0,
	JitterFraction: 0.2,
}

// apiStatusRe finds the HTTP status in an Algolia API error, e.g.
// "API error [403] Invalid Application-ID or API key".
var apiStatusRe = regexp.MustCompile(`(?i)(?:\[|status(?:\s*code)?[:=]?\s*)([1-5]\d\d)\b`)

// retryable reports whether err may succeed on another attempt. Context errors
// and 4xx answers other than 408 and 429 are permanent.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	m := apiStatusRe.FindStringSubmatch(err.Error())
	if m == nil {
		return true
	}
	status, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return true
	}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 400 && status < 500:
		return false
	default:
		return true
	}
}

// withRetry runs fn until it succeeds, the context ends or the attempts are
// exhausted. Non-retryable errors are returned at once.
func withRetry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var lastErr error
	var zero T

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff(cfg, attempt)):
		}
	}

	return zero, lastErr
}

func backoff(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.JitterFraction > 0 {
		delay += delay * cfg.JitterFraction * (rand.Float64()*2 - 1)
		if delay < 0 {
			delay = float64(cfg.InitialDelay)
		}
	}
	return time.Duration(delay)
}
