package interceptor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/storage"
	"github.com/vllora/gateway/telemetry"
)

// Logging records a one-line summary of the request and response. It never
// aborts the chain and never short-circuits.
type Logging struct {
	Logger telemetry.Logger
}

// NewLogging constructs the Logging built-in.
func NewLogging(logger telemetry.Logger) *Logging {
	return &Logging{Logger: logger}
}

func (l *Logging) Name() string { return "logging" }

func (l *Logging) ShouldExecute(context.Context, *InterceptorContext) bool { return true }

func (l *Logging) ValidateConfig() error { return nil }

func (l *Logging) PreRequest(ctx context.Context, ictx *InterceptorContext) (json.RawMessage, error) {
	l.Logger.Info(ctx, "chat_completion_request",
		"request_id", ictx.State.RequestID, "model", ictx.Request.Model,
		"messages", len(ictx.Request.Messages), "stream", ictx.Request.Stream)
	return nil, nil
}

func (l *Logging) PostRequest(ctx context.Context, ictx *InterceptorContext, resp *gwmodel.ChatCompletionResponse) (json.RawMessage, error) {
	if resp == nil {
		return nil, nil
	}
	l.Logger.Info(ctx, "chat_completion_response",
		"request_id", ictx.State.RequestID, "model", resp.Model,
		"total_tokens", resp.Usage.TotalTokens)
	return nil, nil
}

// ValidationConfig configures the Validation built-in.
type ValidationConfig struct {
	MaxTokens       int
	AllowedModels   []string
	RequiredHeaders []string
}

// Validation enforces request-shape policy before any provider is invoked.
type Validation struct {
	cfg ValidationConfig
}

// NewValidation constructs the Validation built-in.
func NewValidation(cfg ValidationConfig) *Validation {
	return &Validation{cfg: cfg}
}

func (v *Validation) Name() string { return "validation" }

func (v *Validation) ShouldExecute(context.Context, *InterceptorContext) bool { return true }

func (v *Validation) ValidateConfig() error { return nil }

func (v *Validation) PreRequest(_ context.Context, ictx *InterceptorContext) (json.RawMessage, error) {
	req := ictx.Request
	if v.cfg.MaxTokens > 0 && req.MaxTokens != nil && *req.MaxTokens > v.cfg.MaxTokens {
		return nil, gwerrors.New(gwerrors.KindBadRequest,
			fmt.Sprintf("max_tokens %d exceeds policy limit %d", *req.MaxTokens, v.cfg.MaxTokens))
	}
	if len(v.cfg.AllowedModels) > 0 && !contains(v.cfg.AllowedModels, req.Model) {
		return nil, gwerrors.New(gwerrors.KindBadRequest, "model "+req.Model+" is not in the allowed list")
	}
	for _, h := range v.cfg.RequiredHeaders {
		if _, ok := ictx.Headers[h]; !ok {
			return nil, gwerrors.New(gwerrors.KindBadRequest, "missing required header "+h)
		}
	}
	return nil, nil
}

func (v *Validation) PostRequest(context.Context, *InterceptorContext, *gwmodel.ChatCompletionResponse) (json.RawMessage, error) {
	return nil, nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Metrics records request counters and latencies around the chain.
type Metrics struct {
	metrics telemetry.Metrics
	starts  map[string]time.Time
}

// NewMetrics constructs the Metrics built-in.
func NewMetrics(metrics telemetry.Metrics) *Metrics {
	return &Metrics{metrics: metrics, starts: map[string]time.Time{}}
}

func (m *Metrics) Name() string { return "metrics" }

func (m *Metrics) ShouldExecute(context.Context, *InterceptorContext) bool { return true }

func (m *Metrics) ValidateConfig() error { return nil }

func (m *Metrics) PreRequest(_ context.Context, ictx *InterceptorContext) (json.RawMessage, error) {
	m.metrics.IncCounter("gateway_requests_total", 1, "model", ictx.Request.Model)
	ictx.State.Lock()
	ictx.State.Metadata["metrics_start"] = time.Now()
	ictx.State.Unlock()
	return nil, nil
}

func (m *Metrics) PostRequest(_ context.Context, ictx *InterceptorContext, resp *gwmodel.ChatCompletionResponse) (json.RawMessage, error) {
	ictx.State.Lock()
	start, _ := ictx.State.Metadata["metrics_start"].(time.Time)
	ictx.State.Unlock()
	if !start.IsZero() {
		m.metrics.RecordTimer("gateway_request_duration", time.Since(start), "model", ictx.Request.Model)
	}
	if resp != nil {
		m.metrics.IncCounter("gateway_tokens_total", float64(resp.Usage.TotalTokens), "model", ictx.Request.Model)
	}
	return nil, nil
}

// CachingConfig configures the Caching built-in.
type CachingConfig struct {
	TTL time.Duration
}

// Caching fingerprints cacheable request fields and short-circuits the chain
// on a hit, per spec §4.E. Streaming requests are never cached.
type Caching struct {
	store storage.KeyValueStore
	cfg   CachingConfig
}

// NewCaching constructs the Caching built-in backed by store.
func NewCaching(store storage.KeyValueStore, cfg CachingConfig) *Caching {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &Caching{store: store, cfg: cfg}
}

func (c *Caching) Name() string { return "caching" }

func (c *Caching) ShouldExecute(_ context.Context, ictx *InterceptorContext) bool {
	return !ictx.Request.Stream
}

func (c *Caching) ValidateConfig() error {
	if c.store == nil {
		return gwerrors.New(gwerrors.KindInterceptorError, "caching interceptor requires a key-value store")
	}
	return nil
}

// Fingerprint computes the cache key for req from its cacheable fields:
// model, messages (sans volatile fields), temperature, top_p, max_tokens,
// response_format, and tool specs.
func Fingerprint(req *gwmodel.ChatCompletionRequest) string {
	type fp struct {
		Model          string             `json:"model"`
		Messages       []gwmodel.Message  `json:"messages"`
		Temperature    *float64           `json:"temperature,omitempty"`
		TopP           *float64           `json:"top_p,omitempty"`
		MaxTokens      *int               `json:"max_tokens,omitempty"`
		ResponseFormat *gwmodel.ResponseFormat `json:"response_format,omitempty"`
		Tools          []gwmodel.ToolSpec `json:"tools,omitempty"`
	}
	data, _ := json.Marshal(fp{
		Model:          req.Model,
		Messages:       req.Messages,
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: req.ResponseFormat,
		Tools:          req.Tools,
	})
	sum := sha256.Sum256(data)
	return "cache:" + hex.EncodeToString(sum[:])
}

func (c *Caching) PreRequest(ctx context.Context, ictx *InterceptorContext) (json.RawMessage, error) {
	key := Fingerprint(ictx.Request)
	ictx.State.Lock()
	ictx.State.Metadata["cache_key"] = key
	ictx.State.Unlock()
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, nil
	}
	var resp gwmodel.ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil
	}
	ictx.State.Lock()
	ictx.State.Metadata["cache_hit"] = &resp
	ictx.State.Unlock()
	return json.RawMessage(`{"cache":"hit"}`), nil
}

// ShortCircuit implements interceptor.ShortCircuiter: a pre-hook cache hit
// returns the cached response immediately without invoking the router.
func (c *Caching) ShortCircuit(ictx *InterceptorContext) (*gwmodel.ChatCompletionResponse, bool) {
	ictx.State.Lock()
	defer ictx.State.Unlock()
	resp, ok := ictx.State.Metadata["cache_hit"].(*gwmodel.ChatCompletionResponse)
	if !ok {
		return nil, false
	}
	return resp, true
}

func (c *Caching) PostRequest(ctx context.Context, ictx *InterceptorContext, resp *gwmodel.ChatCompletionResponse) (json.RawMessage, error) {
	ictx.State.Lock()
	key, _ := ictx.State.Metadata["cache_key"].(string)
	_, hit := ictx.State.Metadata["cache_hit"]
	ictx.State.Unlock()
	if hit || resp == nil || key == "" {
		if hit {
			return json.RawMessage(`{"cache":"hit"}`), nil
		}
		return nil, nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, nil
	}
	_ = c.store.Set(ctx, key, raw, c.cfg.TTL)
	return json.RawMessage(`{"cache":"miss"}`), nil
}

// GuardrailsConfig configures the Guardrails built-in with a closed set of
// rejected substrings checked against the content of every message,
// whatever its role. A real
// deployment would delegate to a moderation model; the substring check here
// is the reference policy the teacher's validation-style interceptors use.
type GuardrailsConfig struct {
	RejectedPhrases []string
}

// Guardrails rejects requests whose content matches a configured policy,
// failing with gwerrors.KindGuardrailRejected (HTTP 446) per spec §4.E.
type Guardrails struct {
	cfg GuardrailsConfig
}

// NewGuardrails constructs the Guardrails built-in.
func NewGuardrails(cfg GuardrailsConfig) *Guardrails {
	return &Guardrails{cfg: cfg}
}

func (g *Guardrails) Name() string { return "guardrails" }

func (g *Guardrails) ShouldExecute(context.Context, *InterceptorContext) bool { return true }

func (g *Guardrails) ValidateConfig() error { return nil }

func (g *Guardrails) PreRequest(_ context.Context, ictx *InterceptorContext) (json.RawMessage, error) {
	for _, m := range ictx.Request.Messages {
		for _, phrase := range g.cfg.RejectedPhrases {
			if phrase != "" && containsFold(m.Content, phrase) {
				return nil, gwerrors.New(gwerrors.KindGuardrailRejected, "message content violates content policy")
			}
		}
	}
	return nil, nil
}

func (g *Guardrails) PostRequest(context.Context, *InterceptorContext, *gwmodel.ChatCompletionResponse) (json.RawMessage, error) {
	return nil, nil
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 || nl > hl {
		return false
	}
	lowerHaystack := toLower(haystack)
	lowerNeedle := toLower(needle)
	for i := 0; i+nl <= hl; i++ {
		if lowerHaystack[i:i+nl] == lowerNeedle {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
