package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{Attempts: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}

func TestDo_RetriesTemporaryFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fast, nil, "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPError{Op: "op", StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAfterAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fast, nil, "op", func(context.Context) error {
		calls++
		return &HTTPError{Op: "op", StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
}

func TestDo_ClientErrorsArePermanent(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fast, nil, "op", func(context.Context) error {
		calls++
		return &HTTPError{Op: "op", StatusCode: http.StatusNotFound, Status: "404 Not Found"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestDo_ContextCancelStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 10, Initial: time.Hour, Max: time.Hour, Multiplier: 2}, nil, "op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("connection reset")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Value(context.Background(), fast, nil, "op", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("eof")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestCheckResponse(t *testing.T) {
	t.Parallel()

	ok := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}
	assert.NoError(t, CheckResponse("get", ok))

	bad := &http.Response{StatusCode: http.StatusUnprocessableEntity, Status: "422 Unprocessable Entity", Body: io.NopCloser(strings.NewReader(`{"message":"Validation Failed"}`))}
	err := CheckResponse("patch gist", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patch gist: 422 Unprocessable Entity")
	assert.Contains(t, err.Error(), "Validation Failed")
	assert.False(t, Retryable(err))
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	cause := errors.New("decode body")
	err := Do(context.Background(), fast, nil, "op", func(context.Context) error {
		calls++
		return Permanent(cause)
	})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}
