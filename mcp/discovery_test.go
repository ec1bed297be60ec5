package mcp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/gwmodel"
)

type memKVStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKVStore() *memKVStore { return &memKVStore{data: map[string][]byte{}} }

func (m *memKVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKVStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKVStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type countingCaller struct {
	mu    sync.Mutex
	calls int
	tools []ToolDescriptor
}

func (c *countingCaller) ListTools(context.Context) ([]ToolDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.tools, nil
}

func (c *countingCaller) CallTool(context.Context, CallRequest) (CallResponse, error) {
	return CallResponse{}, nil
}

func TestDiscoveryCacheMissThenHitDoesNotReListTools(t *testing.T) {
	caller := &countingCaller{tools: []ToolDescriptor{{Name: "search", Description: "web search"}}}
	cache := NewDiscoveryCache(newMemKVStore(), caller, "acme-mcp", time.Minute)

	specs, err := cache.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, "search", specs[0].Name)
	require.Equal(t, gwmodel.ToolKindMCP, specs[0].Kind)
	require.Equal(t, "acme-mcp", specs[0].MCPServer)

	_, err = cache.Tools(context.Background())
	require.NoError(t, err)

	caller.mu.Lock()
	defer caller.mu.Unlock()
	require.Equal(t, 1, caller.calls)
}

func TestDiscoveryCacheInvalidateForcesReList(t *testing.T) {
	caller := &countingCaller{tools: []ToolDescriptor{{Name: "search"}}}
	cache := NewDiscoveryCache(newMemKVStore(), caller, "acme-mcp", time.Minute)

	_, err := cache.Tools(context.Background())
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(context.Background()))
	_, err = cache.Tools(context.Background())
	require.NoError(t, err)

	caller.mu.Lock()
	defer caller.mu.Unlock()
	require.Equal(t, 2, caller.calls)
}
