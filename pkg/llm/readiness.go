package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/xhad/vecingest/internal/types"
)

const (
	DefaultInitialBackoff = 7 * time.Second
	DefaultBackoffStep    = 500 * time.Millisecond
)

// ProbeFunc reports the current readiness of the inference service.
// A non-nil error means the service could not be contacted.
type ProbeFunc func(ctx context.Context) (types.ReadinessStatus, error)

// BackoffConfig bounds the readiness loop. Zero MaxAttempts and MaxWait
// poll until the service is ready or the context ends.
type BackoffConfig struct {
	InitialBackoff time.Duration
	Increment      time.Duration
	MaxAttempts    int           // number of probes
	MaxWait        time.Duration // total time spent waiting
	Logger         *slog.Logger

	// backoff replaces the computed schedule; tests use it to observe sleeps.
	backoff func(retry.Backoff) retry.Backoff
}

// NewLinearBackoff waits initial, then initial+step, initial+2*step and so on.
func NewLinearBackoff(initial, step time.Duration) retry.Backoff {
	next := initial
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d := next
		next += step
		return d, false
	})
}

// AwaitReady blocks until probe reports ready. Transport failures are fatal
// and returned right away; any other status is retried with a growing
// backoff until the configured bounds are exhausted.
func AwaitReady(ctx context.Context, probe ProbeFunc, config BackoffConfig) error {
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultInitialBackoff
	}
	if config.Increment < 0 {
		config.Increment = 0
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "readiness")

	b := NewLinearBackoff(config.InitialBackoff, config.Increment)
	if config.MaxAttempts > 0 {
		b = retry.WithMaxRetries(uint64(config.MaxAttempts-1), b)
	}
	if config.MaxWait > 0 {
		b = retry.WithMaxDuration(config.MaxWait, b)
	}
	if config.backoff != nil {
		b = config.backoff(b)
	}

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		logger.Info("performing health check", "attempt", attempt)

		status, err := probe(ctx)
		if err != nil {
			if !errors.Is(err, ErrProbeTransport) {
				err = fmt.Errorf("%w: %v", ErrProbeTransport, err)
			}
			return err
		}
		if status == types.StatusReady {
			logger.Info("inference service is ready", "attempts", attempt)
			return nil
		}

		logger.Info("inference service not ready", "status", status.String())
		return retry.RetryableError(fmt.Errorf("%w: last status %s after %d attempts", ErrNotReady, status, attempt))
	})
	if err != nil {
		logger.Error("readiness wait failed", "err", err)
	}
	return err
}
