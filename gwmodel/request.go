package gwmodel

import "encoding/json"

// ResponseFormatType selects how the model must shape its output.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat constrains model output, optionally to a JSON Schema.
type ResponseFormat struct {
	Type   ResponseFormatType `json:"type"`
	Schema json.RawMessage    `json:"schema,omitempty"`
}

// RouterStrategyKind enumerates the closed set of router strategies from
// spec §4.D.
type RouterStrategyKind string

const (
	StrategyFallback   RouterStrategyKind = "fallback"
	StrategyPercentage RouterStrategyKind = "percentage"
	StrategyOptimized  RouterStrategyKind = "optimized"
	StrategyConditional RouterStrategyKind = "conditional"
	StrategyScript     RouterStrategyKind = "script"
)

// OptimizeMetric is the metric an Optimized strategy extremizes.
type OptimizeMetric string

const (
	MetricLatency   OptimizeMetric = "latency"
	MetricCost      OptimizeMetric = "cost"
	MetricErrorRate OptimizeMetric = "error_rate"
	MetricTPS       OptimizeMetric = "tps"
	MetricRequests  OptimizeMetric = "requests"
)

// OptimizeDirection selects whether Optimized picks the min or max target.
type OptimizeDirection string

const (
	DirectionMin OptimizeDirection = "min"
	DirectionMax OptimizeDirection = "max"
)

// ConditionalRule is one predicate evaluated in order by the Conditional
// strategy. Expr is a govaluate boolean expression evaluated against the
// request/header parameters described in spec §4.D; each request header is
// exposed as a Header_<name> parameter (e.g. `[Header_x-tier] == "gold"`,
// `CostSoFar < 0.50`).
type ConditionalRule struct {
	Expr        string `json:"expr"`
	TargetIndex int    `json:"target_index"`
}

// Target is one routable model entry under a RouterConfig.
type Target struct {
	Model     string          `json:"model"`
	Overrides *RequestOverlay `json:"overrides,omitempty"`
	Guards    []string        `json:"guards,omitempty"`
}

// RequestOverlay carries a partial ChatCompletionRequest merged onto the
// in-flight request when a Target is selected. Only non-zero fields are
// applied, and ExtraHeaders is not applied at all; see
// router.MergeOverrides.
type RequestOverlay struct {
	Temperature      *float64          `json:"temperature,omitempty"`
	TopP             *float64          `json:"top_p,omitempty"`
	MaxTokens        *int              `json:"max_tokens,omitempty"`
	ProviderSpecific map[string]any    `json:"provider_specific,omitempty"`
	ExtraHeaders     map[string]string `json:"extra_headers,omitempty"`
}

// RouterConfig describes one routing policy: a strategy plus its ordered
// candidate targets.
type RouterConfig struct {
	Name         string             `json:"name"`
	Strategy     RouterStrategyKind `json:"strategy"`
	Targets      []Target           `json:"targets"`
	Percentages  []float64          `json:"percentages,omitempty"`  // parallel to Targets, Percentage strategy
	Metric       OptimizeMetric     `json:"metric,omitempty"`       // Optimized strategy
	Direction    OptimizeDirection  `json:"direction,omitempty"`    // Optimized strategy
	Rules        []ConditionalRule  `json:"rules,omitempty"`        // Conditional strategy
	ScriptSource string             `json:"script_source,omitempty"` // Script strategy
	Interceptors []string           `json:"interceptors,omitempty"`
}

// ChatCompletionRequest is the gateway's unified chat-completion request, the
// wire-stable contract consumed by every provider adapter.
type ChatCompletionRequest struct {
	Model            string            `json:"model"`
	Messages         []Message         `json:"messages"`
	Tools            []ToolSpec        `json:"tools,omitempty"`
	ToolChoice       *ToolChoice       `json:"tool_choice,omitempty"`
	ResponseFormat   *ResponseFormat   `json:"response_format,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	TopP             *float64          `json:"top_p,omitempty"`
	TopK             *int              `json:"top_k,omitempty"`
	N                *int              `json:"n,omitempty"`
	Stop             []string          `json:"stop,omitempty"`
	MaxTokens        *int              `json:"max_tokens,omitempty"`
	PresencePenalty  *float64          `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64          `json:"frequency_penalty,omitempty"`
	LogitBias        map[string]float64 `json:"logit_bias,omitempty"`
	User             string            `json:"user,omitempty"`
	Seed             *int64            `json:"seed,omitempty"`
	PromptCacheKey   string            `json:"prompt_cache_key,omitempty"`
	Variables        map[string]string `json:"variables,omitempty"`
	ProviderSpecific map[string]any    `json:"provider_specific,omitempty"`
	Router           *RouterConfig     `json:"router,omitempty"`
	Stream           bool              `json:"stream,omitempty"`
	TimeoutMS        int               `json:"timeout_ms,omitempty"`
	Extra            json.RawMessage   `json:"extra,omitempty"`

	// RequestID identifies this request in the interceptor state and the
	// Logging interceptor's log lines. Execute assigns a UUID when the caller
	// did not supply one. Spans and the cache fingerprint do not carry it,
	// and the Percentage strategy does not read it: its weighted pick comes
	// from the router's own random source.
	RequestID string `json:"-"`
}

// Validate enforces the invariants from spec §4.A/§8: non-empty messages,
// every message valid, ToolChoiceRequired only with tools declared, and
// unique tool names. N is not checked, here or in the provider adapters.
func (r ChatCompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return errEmptyMessages
	}
	for i, m := range r.Messages {
		if !m.Valid() {
			return newInvalidMessageErr(i)
		}
	}
	if r.ToolChoice != nil && r.ToolChoice.Mode == ToolChoiceRequired && len(r.Tools) == 0 {
		return errToolChoiceRequiredNoTools
	}
	seen := make(map[string]struct{}, len(r.Tools))
	for _, t := range r.Tools {
		if _, dup := seen[t.Name]; dup {
			return newDuplicateToolNameErr(t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}
