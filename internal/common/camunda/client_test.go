package camunda

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "suburbmates-workers/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastRetry(max int) *RetryConfig {
	return &RetryConfig{MaxRetries: max, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err      string
		expected bool
	}{
		{"rpc error: code = Unavailable desc = connection refused", true},
		{"context deadline exceeded", true},
		{"dial tcp: lookup zeebe: no such host", true},
		{"permission denied", false},
		{"invalid gateway address", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsRetryable(errors.New(tt.err)), tt.err)
	}
}

func TestIsRetryable_StandardErrorDecides(t *testing.T) {
	dbDown := apperrors.NewDatabaseConnectionFailedError(errors.New("pq: password authentication failed"))
	assert.True(t, IsRetryable(dbDown))
	assert.True(t, IsRetryable(fmt.Errorf("postgres: %w", dbDown)))

	esDown := apperrors.NewElasticsearchConnectionFailedError(errors.New("401 Unauthorized"))
	assert.True(t, IsRetryable(esDown))

	assert.False(t, IsRetryable(apperrors.NewInternalError(errors.New("connection refused"))))
}

func TestRetry_RetriesConnectionFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5), zaptest.NewLogger(t), "postgres", func() error {
		calls++
		if calls < 2 {
			return apperrors.NewDatabaseConnectionFailedError(errors.New("the database system is starting up"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBackoff(t *testing.T) {
	rc := &RetryConfig{BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	assert.Equal(t, time.Second, Backoff(rc, 0))
	assert.Equal(t, 4*time.Second, Backoff(rc, 2))
	assert.Equal(t, 10*time.Second, Backoff(rc, 5))
	assert.Equal(t, 10*time.Second, Backoff(rc, 80))
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5), zaptest.NewLogger(t), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5), zaptest.NewLogger(t), "op", func() error {
		calls++
		return errors.New("permission denied")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), zaptest.NewLogger(t), "op", func() error {
		calls++
		return errors.New("unavailable")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc := &RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	err := Retry(ctx, rc, zaptest.NewLogger(t), "op", func() error {
		return errors.New("timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnect_DialError(t *testing.T) {
	orig := dialFunc
	t.Cleanup(func() { dialFunc = orig })

	dials := 0
	dialFunc = func(*ClientConfig) (zbc.Client, error) {
		dials++
		return nil, errors.New("invalid gateway address")
	}

	_, err := Connect(context.Background(), &ClientConfig{GatewayAddress: "bad", RetryConfig: fastRetry(3)}, zaptest.NewLogger(t))

	require.Error(t, err)
	assert.Equal(t, 1, dials)
}
