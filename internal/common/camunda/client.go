// internal/common/camunda/client.go
package camunda

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "suburbmates-workers/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

// ClientConfig holds configuration for the Zeebe client.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig defines retry behavior while the broker is coming up.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 10,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

// dialFunc is replaced in tests.
var dialFunc = func(cfg *ClientConfig) (zbc.Client, error) {
	return zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
}

// Connect dials the gateway and waits for a topology response, retrying
// transient failures with exponential backoff.
func Connect(ctx context.Context, cfg *ClientConfig, log *zap.Logger) (zbc.Client, error) {
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}
	if cfg.ConnectionTimeout == 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}

	var client zbc.Client
	err := Retry(ctx, cfg.RetryConfig, log, "Zeebe connection", func() error {
		c, err := dialFunc(cfg)
		if err != nil {
			return err
		}
		if err := HealthCheck(ctx, c, cfg.ConnectionTimeout); err != nil {
			c.Close()
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Retry runs operation until it succeeds, a non-transient error occurs, or
// MaxRetries attempts are used up.
func Retry(ctx context.Context, rc *RetryConfig, log *zap.Logger, operationName string, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt < rc.MaxRetries; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == rc.MaxRetries-1 {
			break
		}

		delay := Backoff(rc, attempt)
		log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
			zap.Error(lastErr),
			zap.Int("attempt", attempt+1),
			zap.Int("maxRetries", rc.MaxRetries),
			zap.Duration("nextRetryIn", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled after %d attempts: %w", operationName, attempt+1, ctx.Err())
		}
	}
	return fmt.Errorf("%s failed: %w", operationName, lastErr)
}

// Backoff doubles BaseDelay per attempt, capped at MaxDelay.
func Backoff(rc *RetryConfig, attempt int) time.Duration {
	delay := rc.BaseDelay * time.Duration(1<<attempt)
	if delay > rc.MaxDelay || delay <= 0 {
		delay = rc.MaxDelay
	}
	return delay
}

// IsRetryable reports whether err looks like a transient connection problem.
func IsRetryable(err error) bool {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}

	msg := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
		"no such host",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// HealthCheck asks the broker for its topology.
func HealthCheck(ctx context.Context, client zbc.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}
