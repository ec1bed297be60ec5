// Package executor implements the routed executor: it resolves a request's
// model or router reference to an ordered list of candidate targets, runs
// the interceptor chain around the attempt, and walks targets on retryable
// failure up to a bounded depth. Admission runs once per request. Each
// attempt resolves credentials, opens its telemetry spans, and builds an
// invoke closure (a model_call span around the provider adapter call) that
// it calls directly or hands to the tool-calling loop when the request
// declares tools.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vllora/gateway/cost"
	"github.com/vllora/gateway/events"
	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/registry"
	"github.com/vllora/gateway/router"
	"github.com/vllora/gateway/telemetry"
	"github.com/vllora/gateway/toolloop"
)

// MaxDepth bounds how many targets a single request may attempt before the
// executor gives up with ExhaustedRoutes, per spec §4.F.
const MaxDepth = 5

// DefaultTimeout is used for an attempt when neither the request nor the
// model metadata specify one.
const DefaultTimeout = 60 * time.Second

// Admitter gates a request before any target is attempted: auth, rate
// limits, and cost limits (spec §4.H). Executor calls it once per request,
// not once per attempt, since admission decisions are request-scoped.
type Admitter interface {
	Admit(ctx context.Context, req *gwmodel.ChatCompletionRequest, headers map[string]string) (projectID string, err error)
}

// ToolRuntimeFactory builds the local tool runtime and MCP dispatcher for a
// request's declared tools. Returning nil for either is valid when the
// request carries no tools of that kind.
type ToolRuntimeFactory func(ctx context.Context, req *gwmodel.ChatCompletionRequest) (toolloop.ToolRuntime, toolloop.MCPDispatcher)

// CostRecorder records actual spend against a project's budget once an
// attempt succeeds, so a CostBucket-backed Admitter sees up-to-date spend on
// the next request (spec §4.H: "after the attempt, actual cost is added").
// admission.CostBucket satisfies this interface.
type CostRecorder interface {
	Add(ctx context.Context, projectID string, amountUSD float64) error
}

// Executor runs chat completion requests through admission, routing,
// interceptors, the provider adapter, and the tool loop.
type Executor struct {
	Registry     *registry.Registry
	Router       *router.Router
	Interceptors *interceptor.Chain
	Admitter     Admitter
	Costs        CostRecorder
	Tools        ToolRuntimeFactory
	Tracer       telemetry.Tracer
	Metrics      telemetry.Metrics
	Logger       telemetry.Logger
	Bus          events.Bus
}

// attempt records one target tried during Execute, for RoutingState-style
// diagnostics surfaced in logs and the final error message.
type attempt struct {
	model string
	err   error
}

// Execute runs req to completion, retrying across router targets on
// retryable provider failures, and returns the unified response.
func (e *Executor) Execute(ctx context.Context, req *gwmodel.ChatCompletionRequest, headers map[string]string) (*gwmodel.ChatCompletionResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, runSpan := e.startSpan(ctx, telemetry.SpanNames.Run)
	defer func() {
		if runSpan != nil {
			runSpan.End()
		}
	}()
	e.emit(ctx, events.RunStarted, nil)

	projectID, err := e.admit(ctx, req, headers)
	if err != nil {
		e.emitRunError(ctx, err)
		return nil, err
	}

	state := interceptor.NewState(req.RequestID)
	ictx := &interceptor.InterceptorContext{Request: req, Headers: headers, Metadata: map[string]any{}, State: state}

	var ran []interceptor.Interceptor
	if e.Interceptors != nil {
		var shortCircuit *gwmodel.ChatCompletionResponse
		ran, shortCircuit, err = e.Interceptors.RunPre(ctx, ictx)
		if err != nil {
			e.emitRunError(ctx, err)
			return nil, err
		}
		if shortCircuit != nil {
			e.Interceptors.RunPost(ctx, ictx, ran, shortCircuit)
			e.emit(ctx, events.RunFinished, nil)
			return shortCircuit, nil
		}
	}

	resp, err := e.route(ctx, req, headers, projectID)

	if e.Interceptors != nil {
		e.Interceptors.RunPost(ctx, ictx, ran, resp)
	}
	if err != nil {
		e.emitRunError(ctx, err)
		return nil, err
	}
	e.emit(ctx, events.RunFinished, nil)
	return resp, nil
}

func (e *Executor) admit(ctx context.Context, req *gwmodel.ChatCompletionRequest, headers map[string]string) (string, error) {
	if e.Admitter == nil {
		return "", nil
	}
	return e.Admitter.Admit(ctx, req, headers)
}

// route resolves req.Model (direct or router reference) into an ordered
// target list and walks it, stopping at the first success or the first
// non-retryable failure. A router is picked once, before any attempt, with
// a cost-so-far of 0; only the successful attempt's cost is recorded.
func (e *Executor) route(ctx context.Context, req *gwmodel.ChatCompletionRequest, headers map[string]string, projectID string) (*gwmodel.ChatCompletionResponse, error) {
	ctx, cloudSpan := e.startSpan(ctx, telemetry.SpanNames.CloudAPIInvoke)
	defer func() {
		if cloudSpan != nil {
			cloudSpan.End()
		}
	}()

	resolved, err := e.Registry.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	var targets []gwmodel.Target
	if resolved.IsRouter {
		targets, err = e.Router.Pick(ctx, resolved.Router, req, 0, headers)
		if err != nil {
			return nil, err
		}
	} else {
		targets = []gwmodel.Target{{Model: req.Model}}
	}
	if len(targets) > MaxDepth {
		targets = targets[:MaxDepth]
	}

	var attempts []attempt
	var costSoFar float64
	for _, target := range targets {
		overlaid := router.MergeOverrides(*req, target.Overrides)
		overlaid.Model = target.Model

		resp, attemptCost, err := e.attempt(ctx, &overlaid, headers, projectID)
		if err == nil {
			e.recordCost(ctx, projectID, attemptCost)
			return resp, nil
		}
		attempts = append(attempts, attempt{model: target.Model, err: err})
		costSoFar += attemptCost
		if !gwerrors.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, gwerrors.New(gwerrors.KindExhaustedRoutes, exhaustedMessage(attempts))
}

func exhaustedMessage(attempts []attempt) string {
	msg := "all routed targets failed"
	for _, a := range attempts {
		msg += "; " + a.model + ": " + a.err.Error()
	}
	return msg
}

// attempt resolves one concrete target's adapter and credentials, invokes
// it within a per-attempt timeout, drives the tool loop if the request
// declares tools, and returns the resulting cost, which route records
// against the project's budget. A failed attempt returns a cost of 0.
func (e *Executor) attempt(ctx context.Context, req *gwmodel.ChatCompletionRequest, headers map[string]string, projectID string) (*gwmodel.ChatCompletionResponse, float64, error) {
	resolved, err := e.Registry.Resolve(req.Model)
	if err != nil {
		return nil, 0, err
	}
	if resolved.IsRouter {
		return nil, 0, gwerrors.New(gwerrors.KindBadRequest, "router target must resolve to a concrete model: "+req.Model)
	}

	creds, err := e.Registry.LookupCredentials(ctx, projectID, resolved.Metadata)
	if err != nil {
		return nil, 0, err
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(resolved.Metadata.DefaultTimeoutMS) * time.Millisecond
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attemptCtx, apiSpan := e.startSpan(attemptCtx, telemetry.SpanNames.APIInvoke)
	defer func() {
		if apiSpan != nil {
			apiSpan.End()
		}
	}()

	invoke := func(ctx context.Context, r *gwmodel.ChatCompletionRequest) (*gwmodel.ChatCompletionResponse, error) {
		ctx, modelSpan := e.startSpan(ctx, telemetry.SpanNames.ModelCall)
		if modelSpan != nil {
			defer modelSpan.End()
		}
		resp, err := resolved.Adapter.Complete(ctx, r, creds, resolved.Metadata)
		if err != nil {
			if modelSpan != nil {
				modelSpan.RecordError(err)
			}
			return nil, err
		}
		return resp, nil
	}

	var resp *gwmodel.ChatCompletionResponse
	if len(req.Tools) > 0 && e.Tools != nil {
		local, mcpDispatcher := e.Tools(attemptCtx, req)
		loop := toolloop.New(local, mcpDispatcher, e.Bus, e.Tracer, req.Tools)
		resp, err = loop.Run(attemptCtx, req, invoke)
	} else {
		resp, err = invoke(attemptCtx, req)
	}
	if err != nil {
		return nil, 0, err
	}

	computed := cost.Calculate(resp.Usage, resolved.Metadata.Prices)
	resp.Cost = &computed
	return resp, decimalToFloat(computed.Total), nil
}

// recordCost reports an attempt's actual USD cost to the configured
// CostRecorder, if any. Failures are logged, not surfaced: a cost-recording
// hiccup must never turn a successful completion into a client-facing error.
func (e *Executor) recordCost(ctx context.Context, projectID string, amountUSD float64) {
	if e.Costs == nil || amountUSD <= 0 {
		return
	}
	if err := e.Costs.Add(ctx, projectID, amountUSD); err != nil && e.Logger != nil {
		e.Logger.Warn(ctx, "cost bucket update failed", "project_id", projectID, "error", err.Error())
	}
}

func (e *Executor) startSpan(ctx context.Context, name string) (context.Context, telemetry.Span) {
	if e.Tracer == nil {
		return ctx, nil
	}
	return e.Tracer.Start(ctx, name)
}

func (e *Executor) emit(ctx context.Context, typ events.Type, payload any) {
	if e.Bus == nil {
		return
	}
	_ = e.Bus.Publish(ctx, events.Event{Type: typ, Timestamp: time.Now().UnixMicro(), Payload: payload})
}

func (e *Executor) emitRunError(ctx context.Context, err error) {
	e.emit(ctx, events.RunError, events.RunErrorPayload{Message: err.Error(), Code: string(errKind(err))})
}

func errKind(err error) gwerrors.Kind {
	if e, ok := gwerrors.As(err); ok {
		return e.Kind
	}
	return ""
}

func decimalToFloat(d interface{ Float64() (float64, bool) }) float64 {
	f, _ := d.Float64()
	return f
}
