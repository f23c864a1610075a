package reliability

import (
	"context"

	"rillnet/internal/core/ports"
	"rillnet/pkg/circuitbreaker"
	"rillnet/pkg/retry"

	"go.uber.org/zap"
)

// ForwarderDirectoryWrapper wraps a ports.ForwarderDirectory with retry
// logic and a circuit breaker, so a flaky Redis instance degrades the
// multi-instance lookup path gracefully instead of blocking every
// publish/subscribe admission on it.
type ForwarderDirectoryWrapper struct {
	directory ports.ForwarderDirectory
	logger    *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewForwarderDirectoryWrapper(
	directory ports.ForwarderDirectory,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *ForwarderDirectoryWrapper {
	wrapper := &ForwarderDirectoryWrapper{
		directory:      directory,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	wrapper.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("forwarder directory circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

func (w *ForwarderDirectoryWrapper) Set(ctx context.Context, streamID, instanceAddr string) error {
	if !w.retryConfig.Enabled {
		return w.directory.Set(ctx, streamID, instanceAddr)
	}
	return retry.Retry(ctx, w.retryConfig, func() error {
		return w.circuitBreaker.Execute(ctx, func() error {
			return w.directory.Set(ctx, streamID, instanceAddr)
		})
	})
}

func (w *ForwarderDirectoryWrapper) Get(ctx context.Context, streamID string) (string, bool, error) {
	if !w.retryConfig.Enabled {
		return w.directory.Get(ctx, streamID)
	}

	type result struct {
		addr string
		ok   bool
	}
	res, err := retry.RetryWithResult(ctx, w.retryConfig, func() (result, error) {
		r, err := w.circuitBreaker.ExecuteWithResult(ctx, func() (interface{}, error) {
			addr, ok, err := w.directory.Get(ctx, streamID)
			return result{addr: addr, ok: ok}, err
		})
		if err != nil {
			return result{}, err
		}
		return r.(result), nil
	})
	if err != nil {
		return "", false, err
	}
	return res.addr, res.ok, nil
}

func (w *ForwarderDirectoryWrapper) Delete(ctx context.Context, streamID string) error {
	if !w.retryConfig.Enabled {
		return w.directory.Delete(ctx, streamID)
	}
	return retry.Retry(ctx, w.retryConfig, func() error {
		return w.circuitBreaker.Execute(ctx, func() error {
			return w.directory.Delete(ctx, streamID)
		})
	})
}

// ListStreams reads straight through: a scrape/admin listing doesn't
// need retry, and shouldn't trip the write-path circuit breaker.
func (w *ForwarderDirectoryWrapper) ListStreams(ctx context.Context) ([]string, error) {
	return w.directory.ListStreams(ctx)
}

// GetCircuitBreakerStats returns circuit breaker statistics.
func (w *ForwarderDirectoryWrapper) GetCircuitBreakerStats() circuitbreaker.Stats {
	return w.circuitBreaker.GetStats()
}
