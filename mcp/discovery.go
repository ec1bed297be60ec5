package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/storage"
)

// DiscoveryCache wraps a Caller's ListTools with a TTL-backed cache so the
// tool loop doesn't re-query an MCP server's tool list on every request.
// Cache entries are keyed by server name in the supplied store.
type DiscoveryCache struct {
	store  storage.KeyValueStore
	caller Caller
	server string
	ttl    time.Duration
}

// NewDiscoveryCache constructs a DiscoveryCache for the named MCP server.
func NewDiscoveryCache(store storage.KeyValueStore, caller Caller, server string, ttl time.Duration) *DiscoveryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DiscoveryCache{store: store, caller: caller, server: server, ttl: ttl}
}

func (d *DiscoveryCache) cacheKey() string {
	return "mcp:tools:" + d.server
}

// Tools returns the server's tool list as gwmodel.ToolSpec, using the cached
// copy when present and falling back to a live ListTools call on a miss.
func (d *DiscoveryCache) Tools(ctx context.Context) ([]gwmodel.ToolSpec, error) {
	if raw, ok, err := d.store.Get(ctx, d.cacheKey()); err == nil && ok {
		var specs []gwmodel.ToolSpec
		if err := json.Unmarshal(raw, &specs); err == nil {
			return specs, nil
		}
	}
	descriptors, err := d.caller.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	specs := make([]gwmodel.ToolSpec, 0, len(descriptors))
	for _, desc := range descriptors {
		specs = append(specs, gwmodel.ToolSpec{
			Name:        desc.Name,
			Description: desc.Description,
			Parameters:  desc.InputSchema,
			Kind:        gwmodel.ToolKindMCP,
			MCPServer:   d.server,
		})
	}
	if raw, err := json.Marshal(specs); err == nil {
		_ = d.store.Set(ctx, d.cacheKey(), raw, d.ttl)
	}
	return specs, nil
}

// Invalidate drops the cached tool list for this server, forcing the next
// Tools call to re-query the MCP server.
func (d *DiscoveryCache) Invalidate(ctx context.Context) error {
	return d.store.Delete(ctx, d.cacheKey())
}
