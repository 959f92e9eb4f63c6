// Package message defines the canonical message types and utilities used across the codebase.
// All packages import from here to avoid circular dependencies.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Message represents a chat message exchanged between user and assistant.
//
// Messages are immutable once appended to a ConversationHistory; an edit
// produces a new message rather than mutating one in place.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	Images     []ImageData `json:"images,omitempty"`
	Thinking   string      `json:"thinking,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`

	// CacheControl marks this message as a stable prefix boundary for
	// providers that support prompt caching. Advisory only: a cache miss
	// must not change behavior beyond latency.
	CacheControl bool `json:"cache_control,omitempty"`

	// Pinned marks a decision-ledger entry or other content the Context
	// Manager must never drop during adaptive_trim.
	Pinned bool `json:"pinned,omitempty"`

	// Summary marks a synthetic message produced by the Context Manager to
	// replace a dropped or compacted band of history.
	Summary bool `json:"summary,omitempty"`

	// Synthetic marks a system-originated message injected into the
	// conversation (loop-detector steering), so summarization passes do
	// not attribute it to the user.
	Synthetic bool `json:"synthetic,omitempty"`
}

// ImageData represents image data for multimodal messages.
type ImageData struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
	FileName  string `json:"file_name"`
	Size      int    `json:"size"`
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Input     string    `json:"input"`
	IssuedAt  time.Time `json:"issued_at,omitempty"`
	TurnIndex int       `json:"turn_index,omitempty"`
}

// NewToolCallID generates an opaque, session-unique tool call id.
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}

// ToolResultStatus is the outcome of a single tool invocation.
type ToolResultStatus string

const (
	StatusOK       ToolResultStatus = "ok"
	StatusError    ToolResultStatus = "error"
	StatusTimeout  ToolResultStatus = "timeout"
	StatusDenied   ToolResultStatus = "denied"
	StatusCanceled ToolResultStatus = "cancelled"
	StatusSpooled  ToolResultStatus = "spooled"
)

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	ToolCallID string           `json:"tool_call_id"`
	ToolName   string           `json:"tool_name,omitempty"`
	Content    string           `json:"content"`
	IsError    bool             `json:"is_error,omitempty"`
	Status     ToolResultStatus `json:"status,omitempty"`

	// Truncated is set when Content was cut short of the tool's full output.
	Truncated bool `json:"truncated,omitempty"`
	// SpoolHandle references an Output Spooler entry when Status is spooled.
	SpoolHandle     string        `json:"spool_handle,omitempty"`
	TokensEstimated int           `json:"tokens_estimated,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
}

// NormalizedStatus returns Status, inferring it from IsError for results
// constructed before Status existed (teacher-era call sites).
func (r ToolResult) NormalizedStatus() ToolResultStatus {
	if r.Status != "" {
		return r.Status
	}
	if r.IsError {
		return StatusError
	}
	return StatusOK
}

// UserMessage creates a user message with optional images.
func UserMessage(text string, images []ImageData) Message {
	return Message{
		Role:    RoleUser,
		Content: text,
		Images:  images,
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(text, thinking string, calls []ToolCall) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   text,
		Thinking:  thinking,
		ToolCalls: calls,
	}
}

// SteeringMessage creates a synthetic, system-originated user message used
// by the loop detector to redirect the model.
func SteeringMessage(text string) Message {
	return Message{
		Role:      RoleUser,
		Content:   text,
		Synthetic: true,
	}
}

// ErrorResult creates an error ToolResult for a tool call.
func ErrorResult(tc ToolCall, content string) *ToolResult {
	return &ToolResult{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    content,
		IsError:    true,
	}
}

// ToolResultMessage creates a tool result message.
func ToolResultMessage(result ToolResult) Message {
	return Message{
		Role:       RoleUser,
		ToolResult: &result,
	}
}

// ParseToolInput deserializes JSON tool input into a params map.
func ParseToolInput(input string) (map[string]any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return nil, err
	}
	return params, nil
}

// BuildConversationText converts messages to text for summarization.
func BuildConversationText(msgs []Message) string {
	var sb strings.Builder
	sb.WriteString("Please summarize this coding conversation:\n\n")

	for _, msg := range msgs {
		switch msg.Role {
		case RoleUser:
			if msg.ToolResult != nil {
				content := msg.ToolResult.Content
				if len(content) > 500 {
					content = content[:500] + "...[truncated]"
				}
				fmt.Fprintf(&sb, "[Tool Result: %s]\n%s\n\n", msg.ToolResult.ToolName, content)
			} else {
				fmt.Fprintf(&sb, "User: %s\n\n", msg.Content)
			}

		case RoleAssistant:
			if msg.Content != "" {
				fmt.Fprintf(&sb, "Assistant: %s\n\n", msg.Content)
			}
			if len(msg.ToolCalls) > 0 {
				for _, tc := range msg.ToolCalls {
					fmt.Fprintf(&sb, "[Tool Call: %s]\n", tc.Name)
				}
				sb.WriteString("\n")
			}
		}
	}

	return sb.String()
}

// NeedsCompaction checks if token usage exceeds the threshold percentage of the input limit.
func NeedsCompaction(inputTokens, inputLimit int) bool {
	if inputLimit == 0 || inputTokens == 0 {
		return false
	}
	return float64(inputTokens)/float64(inputLimit)*100 >= 95
}

// CompletionResponse represents a completion response from an LLM provider.
type CompletionResponse struct {
	Content    string     `json:"content,omitempty"`
	Thinking   string     `json:"thinking,omitempty"` // Reasoning content for thinking models
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"` // "end_turn", "tool_use", "max_tokens"
	Usage      Usage      `json:"usage"`
}

// Usage contains token usage information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChunkType represents the type of a stream chunk.
type ChunkType string

const (
	ChunkTypeText      ChunkType = "text"
	ChunkTypeThinking  ChunkType = "thinking"
	ChunkTypeToolStart ChunkType = "tool_start"
	ChunkTypeToolInput ChunkType = "tool_input"
	ChunkTypeDone      ChunkType = "done"
	ChunkTypeError     ChunkType = "error"
)

// StreamChunk represents a chunk in a streaming response.
type StreamChunk struct {
	Type     ChunkType
	Text     string              // For text chunks
	ToolID   string              // For tool_start chunks
	ToolName string              // For tool_start chunks
	Response *CompletionResponse // For done chunks
	Error    error               // For error chunks
}

// ConversationHistory is an ordered, append-only sequence of Messages.
//
// It enforces three invariants at every observable point:
//
//	(I1) every tool_calls batch in an assistant message is immediately
//	     followed by exactly one tool-result message per call, in order,
//	     before the next assistant message.
//	(I2) for any turn with N issued tool calls, the history holds N tool
//	     results with matching ids — no dangling calls, no orphan results.
//	(I3) the system prompt, if present, is the first message and appears
//	     exactly once.
type ConversationHistory struct {
	messages []Message
}

// NewConversationHistory builds an empty history, optionally seeded with a
// system prompt as its first message (satisfying I3).
func NewConversationHistory(systemPrompt string) *ConversationHistory {
	h := &ConversationHistory{}
	if systemPrompt != "" {
		h.messages = append(h.messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return h
}

// Append adds a message to the end of the history.
func (h *ConversationHistory) Append(m Message) {
	h.messages = append(h.messages, m)
}

// Messages returns a copy of the underlying slice so callers cannot mutate
// history in place.
func (h *ConversationHistory) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages in the history.
func (h *ConversationHistory) Len() int { return len(h.messages) }

// Replace atomically swaps the full message sequence, e.g. after a Context
// Manager trim or summarization pass. Callers are responsible for keeping
// I1-I3 intact.
func (h *ConversationHistory) Replace(messages []Message) {
	h.messages = make([]Message, len(messages))
	copy(h.messages, messages)
}

// Validate checks invariants I1–I3 against the current history. The runloop
// tests run it after turns; the orchestrator does not call it.
func (h *ConversationHistory) Validate() error {
	systemCount := 0
	for i, m := range h.messages {
		if m.Role == RoleSystem {
			systemCount++
			if i != 0 {
				return fmt.Errorf("I3 violated: system prompt at index %d, want 0", i)
			}
		}
	}
	if systemCount > 1 {
		return fmt.Errorf("I3 violated: %d system messages, want at most 1", systemCount)
	}

	i := 0
	for i < len(h.messages) {
		m := h.messages[i]
		if m.Role != RoleAssistant || len(m.ToolCalls) == 0 {
			i++
			continue
		}
		calls := m.ToolCalls
		j := i + 1
		for _, tc := range calls {
			if j >= len(h.messages) {
				return fmt.Errorf("I1/I2 violated: tool_call %s has no following result", tc.ID)
			}
			next := h.messages[j]
			if next.ToolResult == nil || next.ToolResult.ToolCallID != tc.ID {
				return fmt.Errorf("I1 violated: expected tool_result for %s at index %d", tc.ID, j)
			}
			j++
		}
		i = j
	}
	return nil
}
