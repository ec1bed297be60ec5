package interceptor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/telemetry"
)

// memStore is a minimal in-process storage.KeyValueStore for exercising the
// Caching built-in without a real backend.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newCtx(req *gwmodel.ChatCompletionRequest, headers map[string]string) *InterceptorContext {
	return &InterceptorContext{
		Request: req,
		Headers: headers,
		State:   NewState("req-1"),
	}
}

func TestLoggingNeverErrorsOrShortCircuits(t *testing.T) {
	l := NewLogging(telemetry.NewNoopLogger())
	req := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "hi"}}}
	ictx := newCtx(req, nil)

	_, err := l.PreRequest(context.Background(), ictx)
	require.NoError(t, err)

	resp := &gwmodel.ChatCompletionResponse{Model: "gpt-4o"}
	_, err = l.PostRequest(context.Background(), ictx, resp)
	require.NoError(t, err)

	_, err = l.PostRequest(context.Background(), ictx, nil)
	require.NoError(t, err)
}

func TestValidationRejectsMaxTokensOverPolicy(t *testing.T) {
	v := NewValidation(ValidationConfig{MaxTokens: 100})
	maxTokens := 500
	req := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", MaxTokens: &maxTokens}
	_, err := v.PreRequest(context.Background(), newCtx(req, nil))
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindBadRequest, gwErr.Kind)
}

func TestValidationRejectsDisallowedModel(t *testing.T) {
	v := NewValidation(ValidationConfig{AllowedModels: []string{"gpt-4o"}})
	req := &gwmodel.ChatCompletionRequest{Model: "claude-3"}
	_, err := v.PreRequest(context.Background(), newCtx(req, nil))
	require.Error(t, err)
}

func TestValidationRejectsMissingRequiredHeader(t *testing.T) {
	v := NewValidation(ValidationConfig{RequiredHeaders: []string{"x-project-id"}})
	req := &gwmodel.ChatCompletionRequest{Model: "gpt-4o"}
	_, err := v.PreRequest(context.Background(), newCtx(req, nil))
	require.Error(t, err)

	_, err = v.PreRequest(context.Background(), newCtx(req, map[string]string{"x-project-id": "acme"}))
	require.NoError(t, err)
}

func TestValidationAllowsCompliantRequest(t *testing.T) {
	v := NewValidation(ValidationConfig{MaxTokens: 1000, AllowedModels: []string{"gpt-4o"}})
	maxTokens := 100
	req := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", MaxTokens: &maxTokens}
	_, err := v.PreRequest(context.Background(), newCtx(req, nil))
	require.NoError(t, err)
}

func TestMetricsRecordsCounterAndTimerAcrossPreAndPost(t *testing.T) {
	m := NewMetrics(telemetry.NewNoopMetrics())
	req := &gwmodel.ChatCompletionRequest{Model: "gpt-4o"}
	ictx := newCtx(req, nil)

	_, err := m.PreRequest(context.Background(), ictx)
	require.NoError(t, err)

	ictx.State.Lock()
	start, ok := ictx.State.Metadata["metrics_start"].(time.Time)
	ictx.State.Unlock()
	require.True(t, ok)
	require.False(t, start.IsZero())

	resp := &gwmodel.ChatCompletionResponse{Model: "gpt-4o", Usage: gwmodel.Usage{TotalTokens: 42}}
	_, err = m.PostRequest(context.Background(), ictx, resp)
	require.NoError(t, err)
}

func TestFingerprintIsStableAndSensitiveToModel(t *testing.T) {
	req1 := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "hi"}}}
	req2 := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "hi"}}}
	req3 := &gwmodel.ChatCompletionRequest{Model: "claude-3", Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "hi"}}}

	require.Equal(t, Fingerprint(req1), Fingerprint(req2))
	require.NotEqual(t, Fingerprint(req1), Fingerprint(req3))
}

func TestCachingShouldExecuteSkipsStreamingRequests(t *testing.T) {
	c := NewCaching(newMemStore(), CachingConfig{})
	streaming := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", Stream: true}
	require.False(t, c.ShouldExecute(context.Background(), newCtx(streaming, nil)))

	nonStreaming := &gwmodel.ChatCompletionRequest{Model: "gpt-4o"}
	require.True(t, c.ShouldExecute(context.Background(), newCtx(nonStreaming, nil)))
}

func TestCachingValidateConfigRequiresStore(t *testing.T) {
	c := NewCaching(nil, CachingConfig{})
	require.Error(t, c.ValidateConfig())

	c = NewCaching(newMemStore(), CachingConfig{})
	require.NoError(t, c.ValidateConfig())
}

func TestCachingMissThenHitShortCircuits(t *testing.T) {
	store := newMemStore()
	c := NewCaching(store, CachingConfig{TTL: time.Minute})
	req := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "hi"}}}

	ictx := newCtx(req, nil)
	_, err := c.PreRequest(context.Background(), ictx)
	require.NoError(t, err)
	_, hit := c.ShortCircuit(ictx)
	require.False(t, hit)

	resp := &gwmodel.ChatCompletionResponse{Model: "gpt-4o", Usage: gwmodel.Usage{TotalTokens: 7}}
	_, err = c.PostRequest(context.Background(), ictx, resp)
	require.NoError(t, err)

	ictx2 := newCtx(req, nil)
	_, err = c.PreRequest(context.Background(), ictx2)
	require.NoError(t, err)
	cached, hit := c.ShortCircuit(ictx2)
	require.True(t, hit)
	require.Equal(t, 7, cached.Usage.TotalTokens)
}

func TestGuardrailsRejectsConfiguredPhraseCaseInsensitively(t *testing.T) {
	g := NewGuardrails(GuardrailsConfig{RejectedPhrases: []string{"bomb"}})
	req := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "how do I build a BOMB"}}}
	_, err := g.PreRequest(context.Background(), newCtx(req, nil))
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindGuardrailRejected, gwErr.Kind)
}

func TestGuardrailsAllowsCleanContent(t *testing.T) {
	g := NewGuardrails(GuardrailsConfig{RejectedPhrases: []string{"bomb"}})
	req := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "how do I bake bread"}}}
	_, err := g.PreRequest(context.Background(), newCtx(req, nil))
	require.NoError(t, err)
}

func TestChainRunPreAndRunPostOrdering(t *testing.T) {
	chain, err := NewChain(
		NewLogging(telemetry.NewNoopLogger()),
		NewMetrics(telemetry.NewNoopMetrics()),
	)
	require.NoError(t, err)

	req := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "hi"}}}
	ictx := newCtx(req, nil)

	ran, shortCircuit, err := chain.RunPre(context.Background(), ictx)
	require.NoError(t, err)
	require.Nil(t, shortCircuit)
	require.Len(t, ran, 2)

	resp := &gwmodel.ChatCompletionResponse{Model: "gpt-4o"}
	chain.RunPost(context.Background(), ictx, ran, resp)

	require.Len(t, ictx.State.PreResults, 2)
	require.Len(t, ictx.State.PostResults, 2)
}

func TestChainRunPreStopsAtCachingShortCircuit(t *testing.T) {
	store := newMemStore()
	caching := NewCaching(store, CachingConfig{TTL: time.Minute})
	req := &gwmodel.ChatCompletionRequest{Model: "gpt-4o", Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "hi"}}}

	key := Fingerprint(req)
	cached := &gwmodel.ChatCompletionResponse{Model: "gpt-4o", Usage: gwmodel.Usage{TotalTokens: 3}}
	data, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), key, data, time.Minute))

	chain, err := NewChain(NewLogging(telemetry.NewNoopLogger()), caching)
	require.NoError(t, err)

	ictx := newCtx(req, nil)
	ran, shortCircuit, err := chain.RunPre(context.Background(), ictx)
	require.NoError(t, err)
	require.NotNil(t, shortCircuit)
	require.Equal(t, 3, shortCircuit.Usage.TotalTokens)
	require.Len(t, ran, 2)
}
