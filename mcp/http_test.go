package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeServer replays canned JSON-RPC responses keyed by method, mimicking an
// MCP HTTP-streamable server closely enough to exercise HTTPCaller end to
// end.
func fakeServer(t *testing.T, responses map[string]json.RawMessage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, ok := responses[req.Method]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: JSONRPCMethodNotFound, Message: "method not found"}})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
	}))
}

func TestHTTPCallerInitializeHandshake(t *testing.T) {
	srv := fakeServer(t, map[string]json.RawMessage{
		"initialize": json.RawMessage(`{"protocolVersion":"2024-11-05"}`),
	})
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)
	require.NotNil(t, caller)
}

func TestHTTPCallerInitializeFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	require.Error(t, err)
}

func TestHTTPCallerListTools(t *testing.T) {
	srv := fakeServer(t, map[string]json.RawMessage{
		"initialize": json.RawMessage(`{}`),
		"tools/list": json.RawMessage(`{"tools":[{"name":"search","description":"web search","inputSchema":{"type":"object"}}]}`),
	})
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	tools, err := caller.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "search", tools[0].Name)
}

func TestHTTPCallerCallToolNormalizesTextContent(t *testing.T) {
	srv := fakeServer(t, map[string]json.RawMessage{
		"initialize": json.RawMessage(`{}`),
		"tools/call": json.RawMessage(`{"content":[{"type":"text","text":"{\"temp_f\":72}","mimeType":"application/json"}]}`),
	})
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	resp, err := caller.CallTool(context.Background(), CallRequest{Tool: "weather", Payload: json.RawMessage(`{"city":"nyc"}`)})
	require.NoError(t, err)
	require.JSONEq(t, `{"temp_f":72}`, string(resp.Result))
	require.JSONEq(t, `{"temp_f":72}`, string(resp.Structured))
}

func TestHTTPCallerCallToolPropagatesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Method == "initialize" {
			_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)})
			return
		}
		_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: JSONRPCInvalidParams, Message: "bad args"}})
	}))
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = caller.CallTool(context.Background(), CallRequest{Tool: "weather", Payload: json.RawMessage(`{}`)})
	require.Error(t, err)
	var mcpErr *Error
	require.ErrorAs(t, err, &mcpErr)
	require.Equal(t, JSONRPCInvalidParams, mcpErr.Code)
}

func TestNormalizeToolResultEmptyContentErrors(t *testing.T) {
	_, err := normalizeToolResult(toolsCallResult{})
	require.Error(t, err)
}

func TestNormalizeToolResultPlainTextWrapsAsJSONString(t *testing.T) {
	text := "42 degrees"
	resp, err := normalizeToolResult(toolsCallResult{Content: []contentItem{{Type: "text", Text: &text}}})
	require.NoError(t, err)
	require.JSONEq(t, `"42 degrees"`, string(resp.Result))
}
