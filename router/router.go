// Package router selects a model Target from a RouterConfig according to
// its strategy: Fallback walks candidates in order, Percentage splits
// traffic by weight, Optimized extremizes a live metric, Conditional
// evaluates ordered boolean rules, and Script evaluates a user-supplied
// govaluate expression against the request.
package router

import (
	"context"
	"math/rand"

	"github.com/Knetic/govaluate"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
)

// MetricsSource supplies the live per-target metric the Optimized strategy
// extremizes. Implementations typically read from the telemetry package's
// MetricsRepository.
type MetricsSource interface {
	Value(ctx context.Context, model string, metric gwmodel.OptimizeMetric) (float64, bool)
}

// Router picks targets from RouterConfigs. It is stateless across requests
// except for the random source used by the Percentage strategy.
type Router struct {
	metrics MetricsSource
	rng     *rand.Rand
}

// New constructs a Router. metrics may be nil if no RouterConfig uses the
// Optimized strategy.
func New(metrics MetricsSource) *Router {
	return &Router{metrics: metrics, rng: rand.New(rand.NewSource(1))}
}

// Pick selects the ordered list of targets to attempt, in the order the
// routed executor should try them: the strategy's preferred target first,
// followed by the remaining targets as fallbacks. Exhausting this list
// without success is a gwerrors.KindExhaustedRoutes failure (spec §4.D/§4.F).
func (r *Router) Pick(ctx context.Context, cfg gwmodel.RouterConfig, req *gwmodel.ChatCompletionRequest, costSoFar float64, headers map[string]string) ([]gwmodel.Target, error) {
	if len(cfg.Targets) == 0 {
		return nil, gwerrors.New(gwerrors.KindExhaustedRoutes, "router "+cfg.Name+" has no targets")
	}
	switch cfg.Strategy {
	case gwmodel.StrategyFallback:
		return cfg.Targets, nil
	case gwmodel.StrategyPercentage:
		return r.pickPercentage(cfg), nil
	case gwmodel.StrategyOptimized:
		return r.pickOptimized(ctx, cfg), nil
	case gwmodel.StrategyConditional:
		return r.pickConditional(cfg, req, costSoFar, headers), nil
	case gwmodel.StrategyScript:
		return r.pickScript(cfg, req, costSoFar, headers)
	default:
		return nil, gwerrors.New(gwerrors.KindBadRequest, "unknown router strategy "+string(cfg.Strategy))
	}
}

// pickPercentage weights target selection by cfg.Percentages (parallel to
// cfg.Targets). Weights that do not sum to 100 are renormalized rather than
// rejected, per the Open Question resolved in the design notes.
func (r *Router) pickPercentage(cfg gwmodel.RouterConfig) []gwmodel.Target {
	total := 0.0
	for _, p := range cfg.Percentages {
		total += p
	}
	if total <= 0 {
		return cfg.Targets
	}
	roll := r.rng.Float64() * total
	acc := 0.0
	order := make([]gwmodel.Target, 0, len(cfg.Targets))
	picked := -1
	for i, t := range cfg.Targets {
		if i >= len(cfg.Percentages) {
			order = append(order, t)
			continue
		}
		acc += cfg.Percentages[i]
		if picked == -1 && roll < acc {
			picked = i
		}
	}
	if picked == -1 {
		picked = len(cfg.Targets) - 1
	}
	out := []gwmodel.Target{cfg.Targets[picked]}
	for i, t := range cfg.Targets {
		if i != picked {
			out = append(out, t)
		}
	}
	_ = order
	return out
}

func (r *Router) pickOptimized(ctx context.Context, cfg gwmodel.RouterConfig) []gwmodel.Target {
	if r.metrics == nil {
		return cfg.Targets
	}
	best := -1
	bestValue := 0.0
	for i, t := range cfg.Targets {
		v, ok := r.metrics.Value(ctx, t.Model, cfg.Metric)
		if !ok {
			continue
		}
		if best == -1 {
			best, bestValue = i, v
			continue
		}
		if cfg.Direction == gwmodel.DirectionMax && v > bestValue {
			best, bestValue = i, v
		}
		if cfg.Direction != gwmodel.DirectionMax && v < bestValue {
			best, bestValue = i, v
		}
	}
	if best == -1 {
		return cfg.Targets
	}
	out := []gwmodel.Target{cfg.Targets[best]}
	for i, t := range cfg.Targets {
		if i != best {
			out = append(out, t)
		}
	}
	return out
}

func evalParams(req *gwmodel.ChatCompletionRequest, costSoFar float64, headers map[string]string) map[string]any {
	params := map[string]any{
		"CostSoFar": costSoFar,
		"Model":     req.Model,
		"Stream":    req.Stream,
	}
	for k, v := range headers {
		params["Header_"+k] = v
	}
	return params
}

func (r *Router) pickConditional(cfg gwmodel.RouterConfig, req *gwmodel.ChatCompletionRequest, costSoFar float64, headers map[string]string) []gwmodel.Target {
	params := evalParams(req, costSoFar, headers)
	for _, rule := range cfg.Rules {
		expr, err := govaluate.NewEvaluableExpression(rule.Expr)
		if err != nil {
			continue
		}
		result, err := expr.Evaluate(params)
		if err != nil {
			continue
		}
		if match, ok := result.(bool); ok && match && rule.TargetIndex < len(cfg.Targets) {
			out := []gwmodel.Target{cfg.Targets[rule.TargetIndex]}
			for i, t := range cfg.Targets {
				if i != rule.TargetIndex {
					out = append(out, t)
				}
			}
			return out
		}
	}
	return cfg.Targets
}

// pickScript evaluates cfg.ScriptSource as a govaluate expression that must
// return the numeric index of the preferred target. Script strategies are
// intentionally limited to arithmetic/boolean expressions over the same
// parameter set as Conditional rules; there is no general-purpose scripting
// sandbox (see design notes Open Question on script-router limits).
func (r *Router) pickScript(cfg gwmodel.RouterConfig, req *gwmodel.ChatCompletionRequest, costSoFar float64, headers map[string]string) ([]gwmodel.Target, error) {
	expr, err := govaluate.NewEvaluableExpression(cfg.ScriptSource)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadRequest, "router "+cfg.Name+" script", err)
	}
	result, err := expr.Evaluate(evalParams(req, costSoFar, headers))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindBadRequest, "router "+cfg.Name+" script evaluation", err)
	}
	idx, ok := result.(float64)
	if !ok || int(idx) < 0 || int(idx) >= len(cfg.Targets) {
		return cfg.Targets, nil
	}
	picked := int(idx)
	out := []gwmodel.Target{cfg.Targets[picked]}
	for i, t := range cfg.Targets {
		if i != picked {
			out = append(out, t)
		}
	}
	return out, nil
}

// MergeOverrides applies a non-nil RequestOverlay's set fields onto req,
// returning the merged request. Unset overlay fields leave req's values
// untouched.
func MergeOverrides(req gwmodel.ChatCompletionRequest, overlay *gwmodel.RequestOverlay) gwmodel.ChatCompletionRequest {
	if overlay == nil {
		return req
	}
	if overlay.Temperature != nil {
		req.Temperature = overlay.Temperature
	}
	if overlay.TopP != nil {
		req.TopP = overlay.TopP
	}
	if overlay.MaxTokens != nil {
		req.MaxTokens = overlay.MaxTokens
	}
	if overlay.ProviderSpecific != nil {
		if req.ProviderSpecific == nil {
			req.ProviderSpecific = map[string]any{}
		}
		for k, v := range overlay.ProviderSpecific {
			req.ProviderSpecific[k] = v
		}
	}
	return req
}
