// Package providers defines the adapter contract every model backend
// implements and a registry of constructors keyed by provider family.
package providers

import (
	"context"

	"github.com/vllora/gateway/gwmodel"
)

type (
	// Adapter translates gateway-native requests into one provider's wire
	// format and adapts its responses back. Implementations live in the
	// per-family subpackages (openaicompat, anthropic, gemini, vertex,
	// bedrock); each owns its own request mapping, non-streaming call, and
	// streaming call.
	Adapter interface {
		// Complete performs a non-streaming model invocation.
		Complete(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (*gwmodel.ChatCompletionResponse, error)

		// Stream performs a streaming model invocation. Not every adapter
		// supports every request shape while streaming; implementations
		// return a gwerrors error with KindBadRequest when a combination is
		// unsupported rather than silently downgrading to non-streaming.
		Stream(ctx context.Context, req *gwmodel.ChatCompletionRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (Streamer, error)
	}

	// Streamer delivers incremental chunks from a streaming invocation.
	// Callers must drain Recv until it returns io.EOF or another terminal
	// error, then call Close exactly once.
	Streamer interface {
		Recv() (gwmodel.ChatCompletionChunk, error)
		Close() error
	}

	// Constructor builds an Adapter from a model's static metadata. Each
	// provider family registers one Constructor at init time.
	Constructor func(meta gwmodel.ModelMetadata) (Adapter, error)

	// EmbeddingAdapter is an optional capability an Adapter may also
	// implement (spec.md §6 `/v1/embeddings`, SPEC_FULL.md §4.1). Not every
	// provider family supports embeddings; callers type-assert for it
	// rather than it being part of the core Adapter contract.
	EmbeddingAdapter interface {
		Embed(ctx context.Context, req *gwmodel.EmbeddingRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (*gwmodel.EmbeddingResponse, error)
	}

	// ImageAdapter is an optional capability for `/v1/images/generations`
	// (spec.md §6, SPEC_FULL.md §4.1), type-asserted the same way as
	// EmbeddingAdapter.
	ImageAdapter interface {
		GenerateImage(ctx context.Context, req *gwmodel.ImageGenerationRequest, creds gwmodel.Credentials, meta gwmodel.ModelMetadata) (*gwmodel.ImageGenerationResponse, error)
	}
)

var registry = map[gwmodel.ProviderFamily]Constructor{}

// Register associates a Constructor with a provider family. Called from the
// per-family subpackage's init function.
func Register(family gwmodel.ProviderFamily, ctor Constructor) {
	registry[family] = ctor
}

// For returns the Adapter constructor registered for family, or false if no
// adapter subpackage has been imported for it.
func For(family gwmodel.ProviderFamily) (Constructor, bool) {
	ctor, ok := registry[family]
	return ctor, ok
}
