package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/rate-the-washroom/internal/logging"
	"github.com/Clark-Hu/rate-the-washroom/internal/metrics"
)

type flakyInvalidator struct {
	failures int64
	calls    atomic.Int64
}

func (f *flakyInvalidator) Invalidate(context.Context) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("redis down")
	}
	return nil
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestInvalidateWithRetry(t *testing.T) {
	before := counterValue(t, metrics.CacheInvalidationFailures)

	transient := &flakyInvalidator{failures: 1}
	InvalidateWithRetry(context.Background(), transient, logging.Nop())
	assert.Equal(t, int64(2), transient.calls.Load())
	assert.Equal(t, before, counterValue(t, metrics.CacheInvalidationFailures))

	down := &flakyInvalidator{failures: 5}
	InvalidateWithRetry(context.Background(), down, logging.Nop())
	assert.Equal(t, int64(2), down.calls.Load())
	assert.Equal(t, before+1, counterValue(t, metrics.CacheInvalidationFailures))

	healthy := &flakyInvalidator{}
	InvalidateWithRetry(context.Background(), healthy, logging.Nop())
	assert.Equal(t, int64(1), healthy.calls.Load())

	InvalidateWithRetry(context.Background(), nil, logging.Nop())
}

func TestInvalidateWithRetrySurvivesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	inv := invalidatorFunc(func(ctx context.Context) error {
		seen = ctx.Err()
		return nil
	})
	InvalidateWithRetry(ctx, inv, logging.Nop())
	assert.NoError(t, seen)
}

type invalidatorFunc func(context.Context) error

func (f invalidatorFunc) Invalidate(ctx context.Context) error { return f(ctx) }
