// Package admission gates a request before it reaches the router: it
// authenticates the caller, enforces a per-(project,model) adaptive rate
// limit, and checks the caller's project hasn't exhausted its cost budget
// (spec §4.H).
package admission

import (
	"context"
	"strings"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
)

// CostBucket reports a project's current spend against its configured
// budget. Implementations typically read and update an accumulator backed
// by storage.KeyValueStore or a SQL table.
type CostBucket interface {
	// Spent returns the project's cumulative spend and configured limit in
	// USD for the current budget window. A zero limit means no limit is
	// configured.
	Spent(ctx context.Context, projectID string) (spentUSD, limitUSD float64, err error)

	// Add records actual spend against projectID, never the estimate. The
	// executor calls it only after a successful attempt; a failed or
	// canceled attempt records no cost.
	Add(ctx context.Context, projectID string, amountUSD float64) error
}

// Gate implements executor.Admitter: authentication, rate limiting, and
// cost-limit enforcement, in that order, so a request never consumes rate
// budget for a caller that was never authenticated.
type Gate struct {
	RateLimiter *RateLimiter
	CostBucket  CostBucket

	// RequireAuth, when true, rejects requests with no bearer token instead
	// of treating them as an anonymous project. Local/dev deployments
	// typically leave this false.
	RequireAuth bool
}

// Admit authenticates headers, applies the rate limit bucketed by
// (project, model), and checks the project's cost budget, returning the
// resolved project ID on success.
func (g *Gate) Admit(ctx context.Context, req *gwmodel.ChatCompletionRequest, headers map[string]string) (string, error) {
	projectID, err := g.authenticate(headers)
	if err != nil {
		return "", err
	}

	if g.RateLimiter != nil {
		key := projectID + ":" + req.Model
		tokens := estimateTokens(req)
		if err := g.RateLimiter.Allow(ctx, key, tokens); err != nil {
			return "", gwerrors.Wrap(gwerrors.KindRateLimitExceeded, "rate limit exceeded for "+key, err)
		}
	}

	if g.CostBucket != nil {
		spent, limit, err := g.CostBucket.Spent(ctx, projectID)
		if err != nil {
			return "", gwerrors.Wrap(gwerrors.KindCostLimitExceeded, "cost bucket lookup failed", err)
		}
		if limit > 0 && spent >= limit {
			return "", gwerrors.New(gwerrors.KindCostLimitExceeded, "project "+projectID+" has exhausted its cost budget")
		}
	}

	return projectID, nil
}

// authenticate extracts the bearer token and project scope from headers.
// The token itself is opaque here; registry.CredentialSource resolves the
// provider credentials a project is entitled to separately.
func (g *Gate) authenticate(headers map[string]string) (string, error) {
	projectID := headerValue(headers, "x-project-id")
	auth := headerValue(headers, "authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		if g.RequireAuth {
			return "", gwerrors.New(gwerrors.KindUnauthenticated, "missing bearer token")
		}
		if projectID == "" {
			projectID = "anonymous"
		}
		return projectID, nil
	}
	if projectID == "" {
		projectID = token
	}
	return projectID, nil
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// estimateTokens computes a cheap heuristic for the token count of req's
// transcript: character count divided by a fixed ratio, plus a buffer for
// system/provider framing overhead, mirroring the teacher's estimator.
func estimateTokens(req *gwmodel.ChatCompletionRequest) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	if chars <= 0 {
		return 500
	}
	tokens := chars / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
