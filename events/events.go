// Package events implements a fan-out bus for AG-UI-shaped lifecycle events.
// The executor and tool loop publish to the bus as a request
// progresses; an external transport (SSE framing, websockets, a test
// recorder) subscribes to observe the run without coupling to wire framing,
// which stays out of scope here.
//
// Delivery is synchronous fan-out in the publisher's goroutine, stopping at
// the first subscriber error, mirroring the teacher's in-process hook bus.
package events

import (
	"context"
	"errors"
	"sync"
)

// Type discriminates the event frames a run can emit. The set matches the
// SSE discriminator values a GET /events subscriber expects on the wire,
// even though this package never frames SSE itself.
type Type string

const (
	RunStarted          Type = "RunStarted"
	RunFinished         Type = "RunFinished"
	RunError            Type = "RunError"
	StepStarted         Type = "StepStarted"
	StepFinished        Type = "StepFinished"
	TextMessageStart    Type = "TextMessageStart"
	TextMessageContent  Type = "TextMessageContent"
	TextMessageEnd      Type = "TextMessageEnd"
	ToolCallStart       Type = "ToolCallStart"
	ToolCallArgs        Type = "ToolCallArgs"
	ToolCallEnd         Type = "ToolCallEnd"
	ToolCallResult      Type = "ToolCallResult"
	StateSnapshot       Type = "StateSnapshot"
	StateDelta          Type = "StateDelta"
	MessagesSnapshot    Type = "MessagesSnapshot"
	Raw                 Type = "Raw"
	Custom              Type = "Custom"
)

// RunContext identifies the run and conversation thread an event belongs to,
// carried on every event per the wire contract.
type RunContext struct {
	RunID    string `json:"run_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Event is a single frame published on the Bus. Payload carries the
// type-specific body (e.g. a RunErrorPayload for RunError); callers type
// switch on Type to interpret it.
type Event struct {
	Type       Type        `json:"type"`
	RunContext RunContext  `json:"run_context"`
	Timestamp  int64       `json:"timestamp"`
	Payload    any         `json:"payload,omitempty"`
}

// RunErrorPayload is the Payload shape for a RunError event.
type RunErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// StepPayload is the Payload shape for StepStarted/StepFinished events,
// naming the executor attempt or tool-loop iteration a step corresponds to.
type StepPayload struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// TextMessagePayload is the Payload shape for TextMessageStart/Content/End
// events, streaming an assistant message incrementally.
type TextMessagePayload struct {
	MessageID string `json:"message_id"`
	Delta     string `json:"delta,omitempty"`
	Role      string `json:"role,omitempty"`
}

// ToolCallPayload is the Payload shape for ToolCallStart/Args/End/Result
// events, streaming a tool invocation and its eventual result.
type ToolCallPayload struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name,omitempty"`
	ArgsDelta  string `json:"args_delta,omitempty"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CustomPayload wraps an opaque named value for thread- or message-level
// signals the other discriminators don't cover.
type CustomPayload struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Subscriber reacts to published events. HandleEvent should return an error
// only when the failure should halt the run (a persistence sink that cannot
// write, for instance); non-critical subscribers should log and return nil
// so other subscribers still receive the event.
type Subscriber interface {
	HandleEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts an ordinary function to Subscriber.
type SubscriberFunc func(ctx context.Context, event Event) error

// HandleEvent implements Subscriber by invoking the function.
func (fn SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return fn(ctx, event)
}

// Subscription is a handle returned by Bus.Register. Close is idempotent and
// safe to call multiple times.
type Subscription interface {
	Close() error
}

// Bus fans out published events to every registered subscriber, in
// registration order, stopping at the first subscriber error.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Register(sub Subscriber) (Subscription, error)
}

type entry struct {
	sub *subscription
	fn  Subscriber
}

type bus struct {
	mu          sync.RWMutex
	subscribers []entry
}

type subscription struct {
	bus  *bus
	once sync.Once
}

// NewBus constructs an in-memory event bus ready for immediate use.
func NewBus() Bus {
	return &bus{}
}

// Publish delivers event to every currently registered subscriber in
// registration order. The subscriber snapshot is captured before iteration,
// so registrations and closes during Publish don't affect the current
// delivery.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, e := range b.subscribers {
		subs = append(subs, e.fn)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Register adds sub to the bus and returns a Subscription that unregisters
// it on Close. Register returns an error if sub is nil.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("events: subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, entry{sub: s, fn: sub})
	b.mu.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		for i, e := range s.bus.subscribers {
			if e.sub == s {
				s.bus.subscribers = append(s.bus.subscribers[:i], s.bus.subscribers[i+1:]...)
				break
			}
		}
		s.bus.mu.Unlock()
	})
	return nil
}
