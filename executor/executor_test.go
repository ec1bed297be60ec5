package executor

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/providers"
	"github.com/vllora/gateway/registry"
)

const testProviderFamily gwmodel.ProviderFamily = "executor-test-provider"

// fakeAdapter is a providers.Adapter whose Complete behavior is supplied per
// test via a closure, avoiding a live network call to any real provider.
type fakeAdapter struct {
	complete func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error)
}

func (f *fakeAdapter) Complete(ctx context.Context, req *gwmodel.ChatCompletionRequest, _ gwmodel.Credentials, _ gwmodel.ModelMetadata) (*gwmodel.ChatCompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f *fakeAdapter) Stream(context.Context, *gwmodel.ChatCompletionRequest, gwmodel.Credentials, gwmodel.ModelMetadata) (providers.Streamer, error) {
	return nil, gwerrors.New(gwerrors.KindBadRequest, "streaming not supported in test adapter")
}

func registerFakeModel(t *testing.T, id string, complete func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error)) *registry.Registry {
	t.Helper()
	providers.Register(testProviderFamily, func(gwmodel.ModelMetadata) (providers.Adapter, error) {
		return &fakeAdapter{complete: complete}, nil
	})
	reg := registry.New(nil)
	reg.RegisterModel(gwmodel.ModelMetadata{
		ID:             id,
		ProviderFamily: testProviderFamily,
		Prices:         gwmodel.PriceTable{Input: decimal.NewFromFloat(0.01), Output: decimal.NewFromFloat(0.02)},
	})
	return reg
}

func successResponse() *gwmodel.ChatCompletionResponse {
	return &gwmodel.ChatCompletionResponse{
		Model:   "fake-model",
		Choices: []gwmodel.Choice{{Message: gwmodel.Message{Role: gwmodel.RoleAssistant, Content: "hi there"}}},
		Usage:   gwmodel.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func chatRequest() *gwmodel.ChatCompletionRequest {
	return &gwmodel.ChatCompletionRequest{
		Model:    "fake-model",
		Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "hi"}},
	}
}

func TestExecuteSucceedsAndComputesCost(t *testing.T) {
	reg := registerFakeModel(t, "fake-model", func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error) {
		return successResponse(), nil
	})
	exec := &Executor{Registry: reg}

	resp, err := exec.Execute(context.Background(), chatRequest(), nil)
	require.NoError(t, err)
	require.Equal(t, "hi there", resp.Choices[0].Message.Content)
	require.NotNil(t, resp.Cost)
	require.True(t, resp.Cost.Total.GreaterThan(decimal.Zero))
}

func TestExecuteNonRetryableFailureShortCircuits(t *testing.T) {
	var calls int32
	reg := registerFakeModel(t, "fake-model", func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error) {
		atomic.AddInt32(&calls, 1)
		return nil, gwerrors.New(gwerrors.KindBadRequest, "bad model params")
	})
	exec := &Executor{Registry: reg}

	_, err := exec.Execute(context.Background(), chatRequest(), nil)
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindBadRequest, gwErr.Kind)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecuteRetryableFailureWithNoRouterExhausts(t *testing.T) {
	reg := registerFakeModel(t, "fake-model", func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error) {
		return nil, gwerrors.New(gwerrors.KindProviderServer, "upstream 500")
	})
	exec := &Executor{Registry: reg}

	_, err := exec.Execute(context.Background(), chatRequest(), nil)
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindExhaustedRoutes, gwErr.Kind)
}

func TestExecuteRejectsWhenAdmitterErrors(t *testing.T) {
	reg := registerFakeModel(t, "fake-model", func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error) {
		t.Fatal("adapter should not be invoked when admission rejects the request")
		return nil, nil
	})
	denyAll := admitterFunc(func(context.Context, *gwmodel.ChatCompletionRequest, map[string]string) (string, error) {
		return "", gwerrors.New(gwerrors.KindUnauthenticated, "missing token")
	})
	exec := &Executor{Registry: reg, Admitter: denyAll}

	_, err := exec.Execute(context.Background(), chatRequest(), nil)
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindUnauthenticated, gwErr.Kind)
}

type admitterFunc func(ctx context.Context, req *gwmodel.ChatCompletionRequest, headers map[string]string) (string, error)

func (f admitterFunc) Admit(ctx context.Context, req *gwmodel.ChatCompletionRequest, headers map[string]string) (string, error) {
	return f(ctx, req, headers)
}

type recordingCostRecorder struct {
	projectID string
	amount    float64
}

func (r *recordingCostRecorder) Add(_ context.Context, projectID string, amountUSD float64) error {
	r.projectID = projectID
	r.amount = amountUSD
	return nil
}

func TestExecuteRecordsCostOnSuccess(t *testing.T) {
	reg := registerFakeModel(t, "fake-model", func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error) {
		return successResponse(), nil
	})
	recorder := &recordingCostRecorder{}
	exec := &Executor{Registry: reg, Costs: recorder, Admitter: admitterFunc(func(context.Context, *gwmodel.ChatCompletionRequest, map[string]string) (string, error) {
		return "acme", nil
	})}

	_, err := exec.Execute(context.Background(), chatRequest(), nil)
	require.NoError(t, err)
	require.Equal(t, "acme", recorder.projectID)
	require.Greater(t, recorder.amount, 0.0)
}

func TestExecuteRunsInterceptorChainAroundAttempt(t *testing.T) {
	reg := registerFakeModel(t, "fake-model", func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error) {
		return successResponse(), nil
	})
	validation := interceptor.NewValidation(interceptor.ValidationConfig{AllowedModels: []string{"fake-model"}})
	chain, err := interceptor.NewChain(validation)
	require.NoError(t, err)

	exec := &Executor{Registry: reg, Interceptors: chain}

	resp, err := exec.Execute(context.Background(), chatRequest(), nil)
	require.NoError(t, err)
	require.Equal(t, "hi there", resp.Choices[0].Message.Content)
}

func TestExecuteInterceptorRejectionPreventsAttempt(t *testing.T) {
	reg := registerFakeModel(t, "fake-model", func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error) {
		t.Fatal("adapter should not be invoked when an interceptor rejects the request")
		return nil, nil
	})
	validation := interceptor.NewValidation(interceptor.ValidationConfig{AllowedModels: []string{"other-model"}})
	chain, err := interceptor.NewChain(validation)
	require.NoError(t, err)

	exec := &Executor{Registry: reg, Interceptors: chain}

	_, err = exec.Execute(context.Background(), chatRequest(), nil)
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindBadRequest, gwErr.Kind)
}
