package runloop

import "github.com/vtcode/vtcode/internal/message"

// Event is one item on the UI collaborator's feed (spec.md §6 "User
// interface"). The TUI and the non-interactive printer both consume this
// stream; the runloop core never renders anything itself.
type Event interface {
	eventKind() string
}

// AssistantTextEvent carries a streamed text delta from the model.
type AssistantTextEvent struct {
	Delta string
}

// ReasoningEvent carries a streamed reasoning/thinking delta.
type ReasoningEvent struct {
	Delta string
}

// ToolStartEvent announces that a tool call passed the gatekeeper and is
// about to execute.
type ToolStartEvent struct {
	Call message.ToolCall
}

// ToolOutputChunkEvent carries incremental tool output (PTY streaming).
type ToolOutputChunkEvent struct {
	ToolCallID string
	Chunk      string
}

// ToolEndEvent carries the final result of one tool call.
type ToolEndEvent struct {
	Result message.ToolResult
}

// ApprovalRequestEvent is emitted when the gatekeeper returns Prompt and
// the turn suspends awaiting the user.
type ApprovalRequestEvent struct {
	Request ApprovalRequest
}

// SteeringAckEvent confirms a steering command was observed and applied.
type SteeringAckEvent struct {
	Command SteeringCommand
}

// TurnEndEvent closes one orchestrated turn.
type TurnEndEvent struct {
	State     TurnState
	ToolLoops int
}

// SessionEndEvent closes the session.
type SessionEndEvent struct {
	Reason string
}

func (AssistantTextEvent) eventKind() string   { return "assistant_text" }
func (ReasoningEvent) eventKind() string       { return "reasoning" }
func (ToolStartEvent) eventKind() string       { return "tool_start" }
func (ToolOutputChunkEvent) eventKind() string { return "tool_output_chunk" }
func (ToolEndEvent) eventKind() string         { return "tool_end" }
func (ApprovalRequestEvent) eventKind() string { return "approval_request" }
func (SteeringAckEvent) eventKind() string     { return "steering_ack" }
func (TurnEndEvent) eventKind() string         { return "turn_end" }
func (SessionEndEvent) eventKind() string      { return "session_end" }

// Kind returns the wire name of an event, used by the session log.
func Kind(e Event) string { return e.eventKind() }

// Sink receives UI events in arrival order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// nopSink swallows events when no UI is attached.
type nopSink struct{}

func (nopSink) Emit(Event) {}
