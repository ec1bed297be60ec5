package admission

import (
	"context"
	"sync"
)

// InMemoryCostBucket is a process-local CostBucket keyed by project ID, with
// a single mutex guarding every project's entry. A real multi-process deployment backs CostBucket with a durable
// table instead (see storage/sqlite); this implementation is the one the
// gateway falls back to when none is configured.
type InMemoryCostBucket struct {
	mu           sync.Mutex
	spent        map[string]float64
	limits       map[string]float64
	defaultLimit float64
}

// NewInMemoryCostBucket constructs a bucket with defaultLimitUSD applied to
// any project without an explicit per-project limit set via SetLimit. A
// defaultLimitUSD of 0 means unlimited.
func NewInMemoryCostBucket(defaultLimitUSD float64) *InMemoryCostBucket {
	return &InMemoryCostBucket{
		spent:        map[string]float64{},
		limits:       map[string]float64{},
		defaultLimit: defaultLimitUSD,
	}
}

// SetLimit overrides the budget for one project.
func (b *InMemoryCostBucket) SetLimit(projectID string, limitUSD float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[projectID] = limitUSD
}

// Spent implements CostBucket.
func (b *InMemoryCostBucket) Spent(_ context.Context, projectID string) (float64, float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit, ok := b.limits[projectID]
	if !ok {
		limit = b.defaultLimit
	}
	return b.spent[projectID], limit, nil
}

// Add implements CostBucket.
func (b *InMemoryCostBucket) Add(_ context.Context, projectID string, amountUSD float64) error {
	if amountUSD <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent[projectID] += amountUSD
	return nil
}
