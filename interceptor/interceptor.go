// Package interceptor implements the gateway's pre/post request hook chain.
// Interceptors run sequentially in registration order on the way in and in
// reverse order on the way out, sharing one InterceptorState across both
// passes, mirroring the onion composition the teacher's provider gateway
// server applies to unary/stream middleware.
package interceptor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
)

// Interceptor is one named hook in the chain. ShouldExecute lets an
// interceptor opt out of a particular request (e.g. Caching skipping
// streaming requests) without the chain needing to know why.
type Interceptor interface {
	Name() string
	ShouldExecute(ctx context.Context, ictx *InterceptorContext) bool
	PreRequest(ctx context.Context, ictx *InterceptorContext) (json.RawMessage, error)
	PostRequest(ctx context.Context, ictx *InterceptorContext, resp *gwmodel.ChatCompletionResponse) (json.RawMessage, error)
	ValidateConfig() error
}

// InterceptorContext carries the in-flight request, transport headers, and
// the shared InterceptorState through both passes of the chain.
type InterceptorContext struct {
	Request  *gwmodel.ChatCompletionRequest
	Headers  map[string]string
	Metadata map[string]any
	State    *InterceptorState
}

// NamedResult pairs an interceptor's name with the JSON value it returned
// from PreRequest or PostRequest.
type NamedResult struct {
	Name   string          `json:"name"`
	Result json.RawMessage `json:"result,omitempty"`
}

// InterceptorState accumulates pre/post results for a single request.
// Mutation must go through Lock/Unlock since only one interceptor may write
// to it at a time (spec §4.E); reads of the accumulated slices elsewhere
// should also take the lock.
type InterceptorState struct {
	RequestID string
	Metadata  map[string]any

	mu          sync.Mutex
	PreResults  []NamedResult
	PostResults []NamedResult
}

// NewState constructs an InterceptorState for requestID.
func NewState(requestID string) *InterceptorState {
	return &InterceptorState{RequestID: requestID, Metadata: map[string]any{}}
}

// Lock acquires exclusive access to the state for the duration of one
// interceptor's hook invocation.
func (s *InterceptorState) Lock() { s.mu.Lock() }

// Unlock releases exclusive access acquired by Lock.
func (s *InterceptorState) Unlock() { s.mu.Unlock() }

// AppendPre records a pre-hook result under the state's lock.
func (s *InterceptorState) AppendPre(name string, result json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PreResults = append(s.PreResults, NamedResult{Name: name, Result: result})
}

// AppendPost records a post-hook result under the state's lock.
func (s *InterceptorState) AppendPost(name string, result json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PostResults = append(s.PostResults, NamedResult{Name: name, Result: result})
}

// Chain is an ordered sequence of interceptors applied to every request.
type Chain struct {
	interceptors []Interceptor
}

// NewChain constructs a Chain from interceptors in registration order.
func NewChain(interceptors ...Interceptor) (*Chain, error) {
	for _, ic := range interceptors {
		if err := ic.ValidateConfig(); err != nil {
			return nil, gwerrors.Wrap(gwerrors.KindInterceptorError, "invalid config for interceptor "+ic.Name(), err)
		}
	}
	return &Chain{interceptors: interceptors}, nil
}

// RunPre executes every applicable interceptor's PreRequest in registration
// order, stopping at the first error. If an interceptor short-circuits the
// chain (the Caching built-in on a cache hit, for example) by returning a
// non-nil response alongside a nil error via ShortCircuiter, RunPre returns
// that response immediately and skips the remaining pre hooks; ran records
// which interceptors executed so RunPost can unwind only those, in reverse.
func (c *Chain) RunPre(ctx context.Context, ictx *InterceptorContext) (ran []Interceptor, shortCircuit *gwmodel.ChatCompletionResponse, err error) {
	for _, ic := range c.interceptors {
		if !ic.ShouldExecute(ctx, ictx) {
			continue
		}
		result, err := ic.PreRequest(ctx, ictx)
		if err != nil {
			if _, ok := gwerrors.As(err); ok {
				return ran, nil, err
			}
			return ran, nil, gwerrors.Wrap(gwerrors.KindInterceptorError, "pre_request failed for "+ic.Name(), err)
		}
		ictx.State.AppendPre(ic.Name(), result)
		ran = append(ran, ic)
		if sc, ok := ic.(ShortCircuiter); ok {
			if resp, hit := sc.ShortCircuit(ictx); hit {
				return ran, resp, nil
			}
		}
	}
	return ran, nil, nil
}

// RunPost executes PostRequest for every interceptor in ran, in reverse
// registration order. Unlike RunPre, a PostRequest error is recorded on the
// state but does not abort the remaining post hooks, since the response has
// already been decided.
func (c *Chain) RunPost(ctx context.Context, ictx *InterceptorContext, ran []Interceptor, resp *gwmodel.ChatCompletionResponse) {
	for i := len(ran) - 1; i >= 0; i-- {
		ic := ran[i]
		result, err := ic.PostRequest(ctx, ictx, resp)
		if err != nil {
			ictx.State.AppendPost(ic.Name(), json.RawMessage(`{"error":true}`))
			continue
		}
		ictx.State.AppendPost(ic.Name(), result)
	}
}

// ShortCircuiter is implemented by interceptors that can terminate the chain
// early from PreRequest (the Caching built-in, on a hit). ShortCircuit is
// consulted only immediately after a successful PreRequest call.
type ShortCircuiter interface {
	ShortCircuit(ictx *InterceptorContext) (*gwmodel.ChatCompletionResponse, bool)
}
