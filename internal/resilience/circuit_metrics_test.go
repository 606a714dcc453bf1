package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/envioex/backend-envioex/internal/resilience"
)

func webhookBreakerState(t *testing.T) float64 {
	t.Helper()
	return testutil.ToFloat64(resilience.BreakerState.WithLabelValues("webhook"))
}

func TestBreakerMetricsFollowLifecycle(t *testing.T) {
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()

	breaker := resilience.NewBreaker(1, 0.5, 20*time.Millisecond).WithTarget("webhook")
	ctx := context.Background()

	// Single failure trips a minRequests=1 breaker straight to open.
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, webhookBreakerState(t))

	// Cool-off admits a trial request, moving the gauge to half-open.
	require.Eventually(t, func() bool { return breaker.Allow(ctx) }, 100*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, 2.0, webhookBreakerState(t))

	// The successful trial closes it again.
	breaker.Report(ctx, true)
	require.Equal(t, 0.0, webhookBreakerState(t))

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues("webhook")))
	for _, hop := range [][2]string{{"closed", "open"}, {"open", "half_open"}, {"half_open", "closed"}} {
		count := testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("webhook", hop[0], hop[1]))
		require.Equal(t, 1.0, count, "transition %s -> %s", hop[0], hop[1])
	}
}
