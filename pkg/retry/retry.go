// Package retry wraps whole operation attempts in bounded retries with
// linear backoff. It is intended for coarse units of work such as a full
// deployment attempt, not for individual network calls.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	dErrors "bastion/pkg/domain-errors"
)

// Config controls retry behavior.
type Config struct {
	MaxAttempts int           // total attempts including the first (default: 3)
	Backoff     time.Duration // base delay; attempt n waits Backoff * n (default: 1s)
	MaxDelay    time.Duration // cap on the per-attempt delay (default: 30s)

	// Classify reports whether an error is worth retrying. Defaults to
	// IsTransient when nil.
	Classify func(error) bool
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Classify == nil {
		c.Classify = IsTransient
	}
}

// transientMarkers are substrings that identify transient network failures
// and rate-limit or quota responses worth retrying.
var transientMarkers = []string{
	"econnreset",
	"etimedout",
	"econnrefused",
	"epipe",
	"eai_again",
	"connection reset",
	"connection refused",
	"i/o timeout",
	"rate limit",
	"quota",
	"too many requests",
	"429",
	"503",
	"unavailable",
}

// IsTransient reports whether err matches the fixed set of transient
// network and rate-limit markers. Domain timeout and backend errors are
// also considered transient; validation, authorization, and policy errors
// never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeUnauthorized, dErrors.CodePolicyViolation:
		return false
	case dErrors.CodeTimeout:
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ExhaustedError is returned after all attempts fail with retryable errors.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed, last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do runs fn up to cfg.MaxAttempts times. Non-retryable errors propagate
// immediately without waiting. Between attempts it waits Backoff multiplied
// by the attempt number, capped at MaxDelay. Context cancellation aborts the
// wait and returns ctx.Err().
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg.applyDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * cfg.Backoff
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !cfg.Classify(err) {
			return err
		}
		lastErr = err
	}

	return &ExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}
