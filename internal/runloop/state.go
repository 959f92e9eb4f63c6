package runloop

import "github.com/vtcode/vtcode/internal/safety"

// TurnState names one state of the Turn Orchestrator's state machine.
// The legal transitions are:
//
//	Idle -> BuildingRequest -> Streaming -> ParsingToolCalls
//	ParsingToolCalls -> Finalizing            (no tool calls)
//	ParsingToolCalls -> ExecutingTools        (>=1 tool call)
//	ExecutingTools   -> AwaitingUser -> ExecutingTools
//	ExecutingTools   -> AwaitingFollowup -> BuildingRequest
//	Finalizing       -> Idle
//
// Cancelled, Failed, and BudgetExhausted are terminal.
type TurnState string

const (
	StateIdle             TurnState = "idle"
	StateBuildingRequest  TurnState = "building_request"
	StateStreaming        TurnState = "streaming"
	StateParsingToolCalls TurnState = "parsing_tool_calls"
	StateExecutingTools   TurnState = "executing_tools"
	StateAwaitingUser     TurnState = "awaiting_user"
	StateAwaitingFollowup TurnState = "awaiting_followup"
	StateFinalizing       TurnState = "finalizing"
	StateCancelled        TurnState = "cancelled"
	StateFailed           TurnState = "failed"
	StateBudgetExhausted  TurnState = "budget_exhausted"
)

// Terminal reports whether a state ends the turn with no successor.
func (s TurnState) Terminal() bool {
	switch s {
	case StateCancelled, StateFailed, StateBudgetExhausted:
		return true
	}
	return false
}

// Mode is the Session Controller's operating mode (spec.md §4.1). It is
// the same type the Safety Gatekeeper consumes, so mode-hide decisions
// need no translation layer.
type Mode = safety.Mode

const (
	// ModeEdit exposes the full tool set including writes, shell, patches.
	ModeEdit = safety.ModeEdit
	// ModePlan exposes only the read-only subset plus plan proposal.
	ModePlan = safety.ModePlan
	// ModeAgent is Edit plus long-running autonomy; policy still applies.
	ModeAgent = safety.ModeAgent
)
