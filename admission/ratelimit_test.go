package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	r := NewRateLimiter(nil, 60000, 60000)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Allow(ctx, "acme:gpt-4o", 100))
}

func TestRateLimiterObserveBacksOffCurrentBudget(t *testing.T) {
	r := NewRateLimiter(nil, 1000, 1000)
	require.NoError(t, r.Allow(context.Background(), "acme:gpt-4o", 1))

	r.Observe("acme:gpt-4o", true)

	r.mu.Lock()
	l := r.limiters["acme:gpt-4o"]
	r.mu.Unlock()
	l.mu.Lock()
	tpm := l.currentTPM
	l.mu.Unlock()
	require.Less(t, tpm, 1000.0)
}

func TestRateLimiterObserveOnUnknownKeyIsNoop(t *testing.T) {
	r := NewRateLimiter(nil, 1000, 1000)
	require.NotPanics(t, func() { r.Observe("never-seen", true) })
}

func TestAdaptiveLimiterFloorsAtMinTPM(t *testing.T) {
	l := newAdaptiveLimiter(100, 100)
	for i := 0; i < 20; i++ {
		l.observe(true)
	}
	require.GreaterOrEqual(t, l.currentTPM, l.minTPM)
}
