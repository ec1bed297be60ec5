package gwmodel

import "github.com/shopspring/decimal"

// Cost is the USD cost breakdown for one model invocation. Total is always
// the sum of the four components (spec §3 invariant); values round-trip
// JSON to within 1e-9 relative error via decimal.Decimal.
type Cost struct {
	InputCost            decimal.Decimal `json:"input_cost"`
	CachedInputCost      decimal.Decimal `json:"cached_input_cost"`
	CachedInputWriteCost decimal.Decimal `json:"cached_input_write_cost"`
	OutputCost           decimal.Decimal `json:"output_cost"`
	Total                decimal.Decimal `json:"total"`
}

// Add returns the element-wise sum of two Cost values. cost.Sum folds a
// list of costs with it.
func (c Cost) Add(other Cost) Cost {
	return Cost{
		InputCost:            c.InputCost.Add(other.InputCost),
		CachedInputCost:      c.CachedInputCost.Add(other.CachedInputCost),
		CachedInputWriteCost: c.CachedInputWriteCost.Add(other.CachedInputWriteCost),
		OutputCost:           c.OutputCost.Add(other.OutputCost),
		Total:                c.Total.Add(other.Total),
	}
}

// PriceTable lists per-token USD prices for a model. CachedInput and
// CachedInputWrite default to Input when unset (spec §4.J).
type PriceTable struct {
	Input            decimal.Decimal            `json:"input"`
	Output           decimal.Decimal            `json:"output"`
	CachedInput      *decimal.Decimal           `json:"cached_input,omitempty"`
	CachedInputWrite *decimal.Decimal           `json:"cached_input_write,omitempty"`
	PerType          map[string]decimal.Decimal `json:"per_type,omitempty"`
}

// Capability names a model feature gateable by request shape.
type Capability string

const (
	CapabilityTools      Capability = "tools"
	CapabilityVision     Capability = "vision"
	CapabilityReasoning  Capability = "reasoning"
	CapabilityAudio      Capability = "audio"
	CapabilityJSONSchema Capability = "json_schema"
)

// ProviderFamily identifies which adapter translates requests for a model.
type ProviderFamily string

const (
	ProviderOpenAICompatible ProviderFamily = "openai"
	ProviderAnthropic        ProviderFamily = "anthropic"
	ProviderGemini           ProviderFamily = "gemini"
	ProviderBedrock          ProviderFamily = "bedrock"
	ProviderVertex           ProviderFamily = "vertex"
)

// ModelMetadata describes one resolvable model entry in the registry.
type ModelMetadata struct {
	ID                  string            `json:"id"`
	ProviderFamily       ProviderFamily    `json:"provider_family"`
	InferenceModelName   string            `json:"inference_model_name"`
	Endpoint             string            `json:"endpoint,omitempty"`
	Prices               PriceTable        `json:"prices"`
	ContextSize          int               `json:"context_size"`
	Capabilities         map[Capability]bool `json:"capabilities,omitempty"`
	IsCustom             bool              `json:"is_custom"`
	IsPrivate            bool              `json:"is_private"`
	ReleaseDate          string            `json:"release_date,omitempty"`
	KnowledgeCutoff      string            `json:"knowledge_cutoff,omitempty"`
	Benchmark            map[string]float64 `json:"benchmark,omitempty"`
	Owner                string            `json:"owner,omitempty"`
	DefaultTimeoutMS     int               `json:"default_timeout_ms,omitempty"`
}

// HasCapability reports whether the model declares the given capability.
func (m ModelMetadata) HasCapability(c Capability) bool {
	return m.Capabilities[c]
}

// CredentialsKind discriminates the concrete shape of Credentials.
type CredentialsKind string

const (
	CredentialsAPIKey CredentialsKind = "api_key"
	CredentialsAWS    CredentialsKind = "aws"
	CredentialsVertex CredentialsKind = "vertex"
	CredentialsNone   CredentialsKind = "none"
)

// Credentials is a tagged variant over the supported credential shapes,
// resolved per request from a project-scoped secret store (spec §3/§4.C).
type Credentials struct {
	Kind CredentialsKind

	APIKey string // CredentialsAPIKey

	AWSAccessKeyID     string // CredentialsAWS
	AWSSecretAccessKey string
	AWSSessionToken    string
	AWSRegion          string

	VertexProjectID string // CredentialsVertex
	VertexLocation  string
	VertexSAJSON    []byte
}
