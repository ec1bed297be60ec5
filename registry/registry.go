// Package registry resolves model identifiers to metadata, credentials, and
// provider adapters. A model name is either a concrete entry
// ("openai/gpt-4o", "anthropic/claude-sonnet-4-5@20250929"), a router
// reference ("router/<name>"), or a tenant-scoped custom deployment
// ("langdb/<project>/<name>").
package registry

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/providers"
)

// CredentialSource resolves the credentials a project has configured for a
// given provider family. Implementations typically back onto a secrets
// store; cmd/gateway's configCredentials resolves them from the loaded
// config file.
type CredentialSource interface {
	Lookup(ctx context.Context, projectID string, family gwmodel.ProviderFamily) (gwmodel.Credentials, error)
}

// Registry holds the set of resolvable models and their provider adapters.
type Registry struct {
	mu         sync.RWMutex
	models     map[string]gwmodel.ModelMetadata
	routers    map[string]gwmodel.RouterConfig
	creds      CredentialSource
}

// New constructs an empty Registry backed by the given credential source.
func New(creds CredentialSource) *Registry {
	return &Registry{
		models:  map[string]gwmodel.ModelMetadata{},
		routers: map[string]gwmodel.RouterConfig{},
		creds:   creds,
	}
}

// RegisterModel adds or replaces a model entry.
func (r *Registry) RegisterModel(meta gwmodel.ModelMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[meta.ID] = meta
}

// RegisterRouter adds or replaces a named router configuration.
func (r *Registry) RegisterRouter(cfg gwmodel.RouterConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routers[cfg.Name] = cfg
}

// ListModels returns a snapshot of every registered model, sorted by ID.
func (r *Registry) ListModels() []gwmodel.ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]gwmodel.ModelMetadata, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolved is the outcome of resolving a model name: its metadata, the
// adapter that can serve it, and whether the name referred to a router
// instead of a concrete model.
type Resolved struct {
	Metadata gwmodel.ModelMetadata
	Adapter  providers.Adapter
	IsRouter bool
	Router   gwmodel.RouterConfig
}

// Resolve parses name and looks it up. A "router/<name>" prefix resolves a
// named RouterConfig rather than a concrete model; callers must then consult
// the router package to pick a Target before calling Resolve again on the
// target's model string.
func (r *Registry) Resolve(name string) (Resolved, error) {
	if rest, ok := strings.CutPrefix(name, "router/"); ok {
		r.mu.RLock()
		cfg, ok := r.routers[rest]
		r.mu.RUnlock()
		if !ok {
			return Resolved{}, gwerrors.New(gwerrors.KindModelNotFound, "no router named "+rest)
		}
		return Resolved{IsRouter: true, Router: cfg}, nil
	}

	id := name
	if rest, ok := strings.CutPrefix(name, "langdb/"); ok {
		id = rest
	}
	id, _, _ = strings.Cut(id, "@") // drop any explicit version pin for lookup; metadata carries ReleaseDate

	r.mu.RLock()
	meta, ok := r.models[id]
	r.mu.RUnlock()
	if !ok {
		return Resolved{}, gwerrors.New(gwerrors.KindModelNotFound, "no model registered for "+name)
	}
	ctor, ok := providers.For(meta.ProviderFamily)
	if !ok {
		return Resolved{}, gwerrors.New(gwerrors.KindModelNotFound, "no adapter registered for provider family "+string(meta.ProviderFamily))
	}
	adapter, err := ctor(meta)
	if err != nil {
		return Resolved{}, gwerrors.Wrap(gwerrors.KindBadRequest, "construct adapter for "+id, err)
	}
	return Resolved{Metadata: meta, Adapter: adapter}, nil
}

// LookupCredentials resolves the credentials a project should use for a
// resolved model's provider family.
func (r *Registry) LookupCredentials(ctx context.Context, projectID string, meta gwmodel.ModelMetadata) (gwmodel.Credentials, error) {
	if r.creds == nil {
		return gwmodel.Credentials{Kind: gwmodel.CredentialsNone}, nil
	}
	creds, err := r.creds.Lookup(ctx, projectID, meta.ProviderFamily)
	if err != nil {
		return gwmodel.Credentials{}, gwerrors.Wrap(gwerrors.KindAuthMissing, "credentials for "+string(meta.ProviderFamily), err)
	}
	return creds, nil
}
