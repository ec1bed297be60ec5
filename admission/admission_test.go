package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
)

func chatRequest(model string) *gwmodel.ChatCompletionRequest {
	return &gwmodel.ChatCompletionRequest{
		Model:    model,
		Messages: []gwmodel.Message{{Role: gwmodel.RoleUser, Content: "hi"}},
	}
}

func TestAdmitAnonymousWhenAuthNotRequired(t *testing.T) {
	g := &Gate{}
	projectID, err := g.Admit(context.Background(), chatRequest("gpt-4o"), nil)
	require.NoError(t, err)
	require.Equal(t, "anonymous", projectID)
}

func TestAdmitRejectsMissingTokenWhenAuthRequired(t *testing.T) {
	g := &Gate{RequireAuth: true}
	_, err := g.Admit(context.Background(), chatRequest("gpt-4o"), nil)
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindUnauthenticated, gwErr.Kind)
}

func TestAdmitUsesProjectHeaderWhenPresent(t *testing.T) {
	g := &Gate{}
	headers := map[string]string{"x-project-id": "acme", "authorization": "Bearer secret"}
	projectID, err := g.Admit(context.Background(), chatRequest("gpt-4o"), headers)
	require.NoError(t, err)
	require.Equal(t, "acme", projectID)
}

func TestAdmitFallsBackToTokenAsProjectID(t *testing.T) {
	g := &Gate{}
	headers := map[string]string{"Authorization": "Bearer my-token"}
	projectID, err := g.Admit(context.Background(), chatRequest("gpt-4o"), headers)
	require.NoError(t, err)
	require.Equal(t, "my-token", projectID)
}

func TestAdmitRejectsOverSpentCostBudget(t *testing.T) {
	costs := NewInMemoryCostBucket(1.0)
	require.NoError(t, costs.Add(context.Background(), "acme", 1.0))
	g := &Gate{CostBucket: costs}
	headers := map[string]string{"x-project-id": "acme"}
	_, err := g.Admit(context.Background(), chatRequest("gpt-4o"), headers)
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindCostLimitExceeded, gwErr.Kind)
}

func TestAdmitAllowsUnderBudgetSpend(t *testing.T) {
	costs := NewInMemoryCostBucket(1.0)
	require.NoError(t, costs.Add(context.Background(), "acme", 0.5))
	g := &Gate{CostBucket: costs}
	headers := map[string]string{"x-project-id": "acme"}
	_, err := g.Admit(context.Background(), chatRequest("gpt-4o"), headers)
	require.NoError(t, err)
}

func TestAdmitRateLimitsLargeRequests(t *testing.T) {
	limiter := NewRateLimiter(nil, 1, 1) // 1 token-per-minute budget
	g := &Gate{RateLimiter: limiter}
	headers := map[string]string{"x-project-id": "acme"}

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err := g.Admit(ctx, chatRequest("gpt-4o"), headers)
	require.Error(t, err)
	gwErr, ok := gwerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gwerrors.KindRateLimitExceeded, gwErr.Kind)
}
