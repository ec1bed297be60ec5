package admission

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"goa.design/pulse/rmap"
)

// adaptiveLimiter applies an AIMD-style adaptive token bucket: it blocks
// until estimated-token capacity is available and halves its effective
// tokens-per-minute budget on a rate-limited observation, recovering
// gradually on success. One instance guards one (project, model) bucket.
type adaptiveLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64

	onBackoff func(newTPM float64)
	onProbe   func(newTPM float64)
}

func newAdaptiveLimiter(initialTPM, maxTPM float64) *adaptiveLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &adaptiveLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// wait blocks until tokens of capacity are available or ctx is done.
func (l *adaptiveLimiter) wait(ctx context.Context, tokens int) error {
	return l.limiter.WaitN(ctx, tokens)
}

func (l *adaptiveLimiter) observe(rateLimited bool) {
	if rateLimited {
		l.backoff()
		return
	}
	l.probe()
}

func (l *adaptiveLimiter) backoff() {
	l.mu.Lock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	cb := l.onBackoff
	l.mu.Unlock()
	if cb != nil {
		cb(newTPM)
	}
}

func (l *adaptiveLimiter) probe() {
	l.mu.Lock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	cb := l.onProbe
	l.mu.Unlock()
	if cb != nil {
		cb(newTPM)
	}
}

func (l *adaptiveLimiter) replaceTPM(tpm float64) {
	l.mu.Lock()
	if tpm < l.minTPM {
		tpm = l.minTPM
	}
	if tpm > l.maxTPM {
		tpm = l.maxTPM
	}
	if tpm == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
	l.mu.Unlock()
}

func (l *adaptiveLimiter) setClusterCallbacks(onBackoff, onProbe func(newTPM float64)) {
	l.mu.Lock()
	l.onBackoff = onBackoff
	l.onProbe = onProbe
	l.mu.Unlock()
}

// RateLimiter buckets adaptive limiters by key (typically "<project>:<model>")
// and optionally coordinates their shared budget across processes through a
// Pulse replicated map, the same mechanism the teacher's provider-level
// limiter uses.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*adaptiveLimiter

	cluster    *rmap.Map
	initialTPM float64
	maxTPM     float64
}

// NewRateLimiter constructs a RateLimiter with a per-bucket tokens-per-minute
// budget. cluster may be nil for a process-local limiter.
func NewRateLimiter(cluster *rmap.Map, initialTPM, maxTPM float64) *RateLimiter {
	return &RateLimiter{
		limiters:   map[string]*adaptiveLimiter{},
		cluster:    cluster,
		initialTPM: initialTPM,
		maxTPM:     maxTPM,
	}
}

// Allow blocks the caller until tokens of capacity are available under key.
// It returns an error instead when tokens exceed the bucket's burst, or when
// ctx ends or its deadline would pass before the tokens are available.
func (r *RateLimiter) Allow(ctx context.Context, key string, tokens int) error {
	return r.limiterFor(ctx, key).wait(ctx, tokens)
}

// Observe records whether the request at key was rejected by the provider
// for rate limiting, adjusting the bucket's effective budget accordingly.
func (r *RateLimiter) Observe(key string, rateLimited bool) {
	r.mu.Lock()
	l, ok := r.limiters[key]
	r.mu.Unlock()
	if ok {
		l.observe(rateLimited)
	}
}

func (r *RateLimiter) limiterFor(ctx context.Context, key string) *adaptiveLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l := r.newLimiter(ctx, key)
	r.limiters[key] = l
	return l
}

func (r *RateLimiter) newLimiter(ctx context.Context, key string) *adaptiveLimiter {
	if r.cluster == nil {
		return newAdaptiveLimiter(r.initialTPM, r.maxTPM)
	}

	if _, ok := r.cluster.Get(key); !ok {
		if _, err := r.cluster.SetIfNotExists(ctx, key, strconv.Itoa(int(r.initialTPM))); err != nil {
			return newAdaptiveLimiter(r.initialTPM, r.maxTPM)
		}
	}
	sharedTPM := r.initialTPM
	if cur, ok := r.cluster.Get(key); ok {
		if v, err := strconv.ParseFloat(cur, 64); err == nil && v > 0 {
			sharedTPM = v
		}
	}
	l := newAdaptiveLimiter(sharedTPM, r.maxTPM)
	min, max, step := l.minTPM, l.maxTPM, l.recoveryRate
	l.setClusterCallbacks(
		func(_ float64) { go r.globalBackoff(key, min) },
		func(_ float64) { go r.globalProbe(key, step, max) },
	)

	ch := r.cluster.Subscribe()
	go func() {
		for range ch {
			cur, ok := r.cluster.Get(key)
			if !ok {
				continue
			}
			if v, err := strconv.ParseFloat(cur, 64); err == nil && v > 0 {
				l.replaceTPM(v)
			}
		}
	}()
	return l
}

func (r *RateLimiter) globalBackoff(key string, floor float64) {
	const maxAttempts = 3
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < maxAttempts; i++ {
		curStr, ok := r.cluster.Get(key)
		if !ok {
			return
		}
		cur, err := strconv.ParseFloat(curStr, 64)
		if err != nil || cur <= 0 {
			return
		}
		next := cur * 0.5
		if next < floor {
			next = floor
		}
		prev, err := r.cluster.TestAndSet(ctx, key, curStr, strconv.Itoa(int(next)))
		if err != nil || prev == curStr {
			return
		}
	}
}

func (r *RateLimiter) globalProbe(key string, step, ceiling float64) {
	const maxAttempts = 3
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < maxAttempts; i++ {
		curStr, ok := r.cluster.Get(key)
		if !ok {
			return
		}
		cur, err := strconv.ParseFloat(curStr, 64)
		if err != nil || cur <= 0 || cur >= ceiling {
			return
		}
		next := cur + step
		if next > ceiling {
			next = ceiling
		}
		prev, err := r.cluster.TestAndSet(ctx, key, curStr, strconv.Itoa(int(next)))
		if err != nil || prev == curStr {
			return
		}
	}
}
