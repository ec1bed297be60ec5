package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryCostBucketDefaultLimitAppliesToUnknownProjects(t *testing.T) {
	b := NewInMemoryCostBucket(1.0)
	spent, limit, err := b.Spent(context.Background(), "acme")
	require.NoError(t, err)
	require.Zero(t, spent)
	require.Equal(t, 1.0, limit)
}

func TestInMemoryCostBucketAddAccumulates(t *testing.T) {
	b := NewInMemoryCostBucket(0)
	require.NoError(t, b.Add(context.Background(), "acme", 0.02))
	require.NoError(t, b.Add(context.Background(), "acme", 0.03))
	spent, _, err := b.Spent(context.Background(), "acme")
	require.NoError(t, err)
	require.InDelta(t, 0.05, spent, 1e-9)
}

func TestInMemoryCostBucketPerProjectLimitOverridesDefault(t *testing.T) {
	b := NewInMemoryCostBucket(5.0)
	b.SetLimit("acme", 1.0)
	_, limit, err := b.Spent(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, 1.0, limit)

	_, otherLimit, err := b.Spent(context.Background(), "other")
	require.NoError(t, err)
	require.Equal(t, 5.0, otherLimit)
}

func TestInMemoryCostBucketAddIgnoresNonPositiveAmounts(t *testing.T) {
	b := NewInMemoryCostBucket(0)
	require.NoError(t, b.Add(context.Background(), "acme", 0))
	require.NoError(t, b.Add(context.Background(), "acme", -1))
	spent, _, err := b.Spent(context.Background(), "acme")
	require.NoError(t, err)
	require.Zero(t, spent)
}
