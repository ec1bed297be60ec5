package gwmodel

// Usage tracks token counts for a model invocation. TotalTokens is always
// InputTokens + OutputTokens + ReasoningTokens (spec §3 invariant);
// CachedInputTokens must never exceed InputTokens.
type Usage struct {
	InputTokens            int `json:"input_tokens"`
	OutputTokens           int `json:"output_tokens"`
	CachedInputTokens      int `json:"cached_input_tokens,omitempty"`
	CachedInputWriteTokens int `json:"cached_input_write_tokens,omitempty"`
	ReasoningTokens        int `json:"reasoning_tokens,omitempty"`
	TotalTokens            int `json:"total_tokens"`
}

// Normalize recomputes TotalTokens from the component counts. Provider
// adapters call this after populating the component fields so callers never
// need to trust the provider's own total.
func (u Usage) Normalize() Usage {
	u.TotalTokens = u.InputTokens + u.OutputTokens + u.ReasoningTokens
	return u
}

// Add returns the element-wise sum of two Usage values, renormalized.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:            u.InputTokens + other.InputTokens,
		OutputTokens:           u.OutputTokens + other.OutputTokens,
		CachedInputTokens:      u.CachedInputTokens + other.CachedInputTokens,
		CachedInputWriteTokens: u.CachedInputWriteTokens + other.CachedInputWriteTokens,
		ReasoningTokens:        u.ReasoningTokens + other.ReasoningTokens,
	}.Normalize()
}
