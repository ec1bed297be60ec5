// Package toolloop drives the tool-calling loop around a single model
// invocation: each iteration dispatches the tool calls a model turn
// requested, appends their results as Tool messages, and re-invokes the
// model until it stops requesting tools or the iteration budget is
// exhausted. Concurrent dispatch and budget tracking mirror the runtime's
// CapsState pattern, adapted from a planner-turn budget to a tool-call
// iteration budget.
package toolloop

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vllora/gateway/events"
	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/telemetry"
)

// MaxToolIterations bounds how many model-call/tool-dispatch round trips a
// single request may take before the loop gives up with ToolLoopExhausted.
const MaxToolIterations = 8

// MaxToolParallelism bounds how many tool calls from a single model turn may
// be dispatched concurrently.
const MaxToolParallelism = 32

// DefaultToolTimeout bounds a single tool call when the caller doesn't
// configure one explicitly.
const DefaultToolTimeout = 30 * time.Second

// ToolRuntime dispatches a tool call whose ToolSpec.Kind is local, i.e. not
// proxied to an MCP server.
type ToolRuntime interface {
	Call(ctx context.Context, call gwmodel.ToolCall) (json.RawMessage, error)
}

// ToolRuntimeFunc adapts a function to ToolRuntime.
type ToolRuntimeFunc func(ctx context.Context, call gwmodel.ToolCall) (json.RawMessage, error)

// Call implements ToolRuntime.
func (f ToolRuntimeFunc) Call(ctx context.Context, call gwmodel.ToolCall) (json.RawMessage, error) {
	return f(ctx, call)
}

// MCPDispatcher resolves the server a tool call targets and invokes it,
// keeping the loop itself agnostic of MCP transport and discovery.
type MCPDispatcher interface {
	Call(ctx context.Context, server string, call gwmodel.ToolCall) (json.RawMessage, error)
}

// MCPDispatcherFunc adapts a function to MCPDispatcher.
type MCPDispatcherFunc func(ctx context.Context, server string, call gwmodel.ToolCall) (json.RawMessage, error)

// Call implements MCPDispatcher.
func (f MCPDispatcherFunc) Call(ctx context.Context, server string, call gwmodel.ToolCall) (json.RawMessage, error) {
	return f(ctx, server, call)
}

// ModelInvoker performs one model turn, given the request-so-far including
// any Tool messages appended by a prior iteration. The tool loop never talks
// to a provider adapter directly; that's the executor's job.
type ModelInvoker func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error)

// Loop coordinates tool dispatch for a single chat completion request.
type Loop struct {
	Local     ToolRuntime
	MCP       MCPDispatcher
	Bus       events.Bus
	Tracer    telemetry.Tracer
	ToolSpecs map[string]gwmodel.ToolSpec // by name, for kind/server lookup
	Timeout   time.Duration
}

// New constructs a Loop. toolSpecs should contain every tool offered on the
// request so the loop can look up each call's Kind/MCPServer by name.
func New(local ToolRuntime, mcpDispatcher MCPDispatcher, bus events.Bus, tracer telemetry.Tracer, toolSpecs []gwmodel.ToolSpec) *Loop {
	byName := make(map[string]gwmodel.ToolSpec, len(toolSpecs))
	for _, t := range toolSpecs {
		byName[t.Name] = t
	}
	return &Loop{Local: local, MCP: mcpDispatcher, Bus: bus, Tracer: tracer, ToolSpecs: byName, Timeout: DefaultToolTimeout}
}

// Run drives the loop starting from req, invoking invoke for each model
// turn. It returns the final response once the model stops requesting
// tools, or a ToolLoopExhausted error once MaxToolIterations is spent.
func (l *Loop) Run(ctx context.Context, req *gwmodel.ChatCompletionRequest, invoke ModelInvoker) (*gwmodel.ChatCompletionResponse, error) {
	working := *req
	working.Messages = append([]gwmodel.Message(nil), req.Messages...)

	for iteration := 0; iteration < MaxToolIterations; iteration++ {
		ctx, span := l.startSpan(ctx, iteration)
		resp, err := invoke(ctx, &working)
		if span != nil {
			span.End()
		}
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
			return resp, nil
		}

		assistantMsg := resp.Choices[0].Message
		working.Messages = append(working.Messages, assistantMsg)

		results := l.dispatch(ctx, assistantMsg.ToolCalls)
		working.Messages = append(working.Messages, results...)
	}
	return nil, gwerrors.New(gwerrors.KindToolLoopExhausted, "tool loop exceeded maximum iterations")
}

func (l *Loop) startSpan(ctx context.Context, iteration int) (context.Context, telemetry.Span) {
	if l.Tracer == nil {
		return ctx, nil
	}
	next, span := l.Tracer.Start(ctx, telemetry.SpanNames.Tools)
	span.AddEvent("tool_loop_iteration", "index", iteration)
	return next, span
}

// dispatch runs every tool call in calls concurrently, bounded by
// MaxToolParallelism, and returns their results as Tool messages in the
// original call order.
func (l *Loop) dispatch(ctx context.Context, calls []gwmodel.ToolCall) []gwmodel.Message {
	results := make([]gwmodel.Message, len(calls))
	sem := make(chan struct{}, MaxToolParallelism)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call gwmodel.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = l.dispatchOne(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (l *Loop) dispatchOne(ctx context.Context, call gwmodel.ToolCall) gwmodel.Message {
	l.emit(ctx, events.ToolCallStart, events.ToolCallPayload{ToolCallID: call.ID, ToolName: call.Function.Name})

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var args json.RawMessage
	if !json.Valid([]byte(call.Function.Arguments)) {
		return l.errorMessage(ctx, call, gwerrors.New(gwerrors.KindToolArgumentParse, "invalid JSON in tool call arguments"))
	}
	args = json.RawMessage(call.Function.Arguments)
	call.Function.Arguments = string(args)

	spec, known := l.ToolSpecs[call.Function.Name]
	if known {
		if err := gwmodel.ValidateToolCallArguments(spec, args); err != nil {
			return l.errorMessage(ctx, call, err)
		}
	}

	var result json.RawMessage
	var err error
	switch {
	case known && spec.Kind == gwmodel.ToolKindMCP:
		result, err = l.MCP.Call(callCtx, spec.MCPServer, call)
	default:
		if l.Local == nil {
			err = gwerrors.New(gwerrors.KindBadRequest, "no local tool runtime configured for "+call.Function.Name)
			break
		}
		result, err = l.Local.Call(callCtx, call)
	}
	if err != nil {
		return l.errorMessage(ctx, call, err)
	}

	l.emit(ctx, events.ToolCallResult, events.ToolCallPayload{ToolCallID: call.ID, ToolName: call.Function.Name, Result: json.RawMessage(result)})
	return gwmodel.Message{
		Role:       gwmodel.RoleTool,
		Content:    string(result),
		ToolCallID: call.ID,
	}
}

// errorMessage turns a dispatch failure into a Tool message carrying the
// error text, so the model sees the failure and can retry or recover
// instead of aborting the whole request.
func (l *Loop) errorMessage(ctx context.Context, call gwmodel.ToolCall, err error) gwmodel.Message {
	l.emit(ctx, events.ToolCallResult, events.ToolCallPayload{ToolCallID: call.ID, ToolName: call.Function.Name, Error: err.Error()})
	return gwmodel.Message{
		Role:       gwmodel.RoleTool,
		Content:    `{"error":"` + jsonEscape(err.Error()) + `"}`,
		ToolCallID: call.ID,
	}
}

func (l *Loop) emit(ctx context.Context, typ events.Type, payload events.ToolCallPayload) {
	if l.Bus == nil {
		return
	}
	_ = l.Bus.Publish(ctx, events.Event{Type: typ, Timestamp: time.Now().UnixMicro(), Payload: payload})
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	if len(b) >= 2 {
		return string(b[1 : len(b)-1])
	}
	return s
}
