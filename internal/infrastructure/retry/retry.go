// Package retry runs outbound calls under a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxErrorBody = 4 << 10

// Policy bounds the number and spacing of attempts.
type Policy struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultPolicy is three attempts starting at one second, doubling, capped at ten.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := max(p.Attempts, 1)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// HTTPError is a non-2xx response from an upstream API.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, body)
}

// Temporary reports whether the status is worth retrying.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// CheckResponse returns an *HTTPError for non-2xx responses. The body is
// read (bounded) but not closed.
func CheckResponse(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
}

// IsStatus reports whether err wraps an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == code
}

// Permanent marks err as final so Do returns it without another attempt.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retryable classifies errors: context errors, permanent errors and
// non-temporary HTTP statuses are final, anything else (transport
// failures) is retried.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	return true
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. The last error is returned.
func Do(ctx context.Context, policy Policy, logger *slog.Logger, op string, fn func(context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) || Retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		if logger != nil {
			logger.Warn("retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
		}
	}

	err := backoff.RetryNotify(operation, policy.backOff(ctx), notify)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%s: %w (%v)", op, ctx.Err(), err)
	}
	return err
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, policy Policy, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, policy, logger, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
