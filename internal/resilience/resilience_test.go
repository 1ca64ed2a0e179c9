package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient_ExplicitWrappers(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsTransient(NewTransient(base, 503)))
	assert.False(t, IsTransient(NewPermanent(base, 400)))
	assert.False(t, IsTransient(NewMisconfig(base, 403)))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(base))
}

func TestIsTransient_NetworkPatterns(t *testing.T) {
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.False(t, IsTransient(errors.New("invalid request body")))
}

func TestIsMisconfig(t *testing.T) {
	base := errors.New("request denied")
	assert.True(t, IsMisconfig(NewMisconfig(base, 403)))
	assert.False(t, IsMisconfig(NewPermanent(base, 404)))
	assert.False(t, IsMisconfig(base))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "code %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "code %d", code)
	}
}

func TestDoVal_SucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	calls := 0
	val, err := DoVal(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransient(errors.New("quota"), 429)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestDoVal_StopsOnPermanentError(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond}

	calls := 0
	_, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewPermanent(errors.New("bad key"), 403)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	calls := 0
	retries := 0
	cfg.OnRetry = func(attempt int, err error) { retries++ }

	_, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewTransient(errors.New("overloaded"), 503)
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDoVal_StopsOnContextCancellation(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransient(errors.New("flaky"), 500)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_WrapsDoVal(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return NewTransient(errors.New("once"), 500)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
