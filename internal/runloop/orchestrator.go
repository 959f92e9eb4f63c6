// Package runloop implements the agent runloop core: the Turn Orchestrator
// state machine and the Session Controller that drives it across a
// multi-turn conversation. The orchestrator coordinates request building
// against the token budget, LLM streaming with idle-timeout retries, tool
// batch execution under gatekeeper policy, and loop detection; the
// controller owns the session aggregate and its steering channel.
package runloop

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vtcode/vtcode/internal/contextmgr"
	"github.com/vtcode/vtcode/internal/executor"
	"github.com/vtcode/vtcode/internal/log"
	"github.com/vtcode/vtcode/internal/loopdetect"
	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/provider"
	"github.com/vtcode/vtcode/internal/safety"
	"github.com/vtcode/vtcode/internal/spool"
	"github.com/vtcode/vtcode/internal/tool"
)

// LLM is the streaming surface the orchestrator needs from the client
// layer. *client.Client and *client.FakeClient both satisfy it.
type LLM interface {
	Stream(ctx context.Context, msgs []message.Message, tools []provider.Tool, sysPrompt string) <-chan message.StreamChunk
}

// OrchestratorConfig bounds one turn's streaming and execution behavior.
type OrchestratorConfig struct {
	// StreamIdleTimeout cancels a stream that produced no bytes for this
	// long; the request is retried with backoff.
	StreamIdleTimeout time.Duration
	// MaxStreamRetries bounds stream restarts per request.
	MaxStreamRetries int
	// RetryBackoffBase is doubled per retry attempt.
	RetryBackoffBase time.Duration
	// ParallelToolCap bounds concurrent read-pure tool executions.
	ParallelToolCap int
	// MaxToolLoops bounds assistant->tools->assistant iterations within
	// one RunTurn call.
	MaxToolLoops int
	// SubAgentDepthCap bounds nested sub-agent spawning.
	SubAgentDepthCap int
}

// DefaultOrchestratorConfig returns the stock limits.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		StreamIdleTimeout: 60 * time.Second,
		MaxStreamRetries:  3,
		RetryBackoffBase:  500 * time.Millisecond,
		ParallelToolCap:   4,
		MaxToolLoops:      50,
		SubAgentDepthCap:  1,
	}
}

// TurnResult is the outcome of one orchestrated turn (one user input
// through however many tool loops the model needed).
type TurnResult struct {
	State     TurnState
	FinalText string
	ToolLoops int

	// AbortReason is set when the loop detector terminated the turn
	// ("loop_repetition", "reasoning_stall", "idle_turns").
	AbortReason string
}

// Orchestrator executes the turn state machine against a fixed set of
// collaborators. It is owned and serialized by the Session Controller.
type Orchestrator struct {
	llm        LLM
	contextMgr *contextmgr.Manager
	history    *message.ConversationHistory
	registry   *tool.Registry
	gatekeeper *safety.Gatekeeper
	executor   *executor.Executor
	detector   *loopdetect.Detector
	spooler    *spool.Spooler
	approver   Approver
	events     Sink

	systemPrompt string
	cwd          string
	mode         func() Mode
	mcpTools     func() []provider.Tool

	cfg   OrchestratorConfig
	state TurnState

	turnIndex int
}

func (o *Orchestrator) setState(s TurnState) {
	o.state = s
}

// State returns the current turn state.
func (o *Orchestrator) State() TurnState { return o.state }

type subAgentDepthKey struct{}

// WithSubAgentDepth marks ctx as running inside a sub-agent at the given
// nesting depth. The Task tool adapter sets it before spawning.
func WithSubAgentDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, subAgentDepthKey{}, depth)
}

// SubAgentDepth reports the nesting depth recorded on ctx (0 = top level).
func SubAgentDepth(ctx context.Context) int {
	if d, ok := ctx.Value(subAgentDepthKey{}).(int); ok {
		return d
	}
	return 0
}

var errStreamIdle = errors.New("runloop: stream idle timeout")

// RunTurn drives the state machine for one user-visible turn: it loops
// request -> stream -> parse -> execute until the model stops issuing tool
// calls, a budget or loop limit trips, or the context is cancelled.
//
// Panics are caught here, at the turn boundary: the turn is marked Failed
// and the session remains usable (spec.md §7).
func (o *Orchestrator) RunTurn(ctx context.Context) (result *TurnResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger().Error("turn panicked", zap.Any("panic", r))
			o.setState(StateFailed)
			result = &TurnResult{State: StateFailed}
			err = fmt.Errorf("turn failed: %v", r)
		}
	}()

	o.turnIndex++

	for loops := 0; ; loops++ {
		if loops >= o.cfg.MaxToolLoops {
			o.setState(StateFinalizing)
			o.setState(StateIdle)
			return &TurnResult{State: StateIdle, FinalText: o.lastAssistantText(), ToolLoops: loops}, nil
		}
		if ctx.Err() != nil {
			o.setState(StateCancelled)
			return &TurnResult{State: StateCancelled, ToolLoops: loops}, ctx.Err()
		}

		// Each tool loop is a fresh chunk_read budget window.
		if o.spooler != nil {
			o.spooler.ResetTurn()
		}

		// BuildingRequest: trim history to fit the budget, then attach
		// the mode-filtered tool schemas.
		o.setState(StateBuildingRequest)
		msgs, buildErr := o.contextMgr.BuildRequest(ctx)
		if buildErr != nil {
			if errors.Is(buildErr, contextmgr.ErrBudgetExhausted) {
				o.setState(StateBudgetExhausted)
				return &TurnResult{State: StateBudgetExhausted, ToolLoops: loops}, buildErr
			}
			o.setState(StateFailed)
			return &TurnResult{State: StateFailed, ToolLoops: loops}, buildErr
		}
		tools := o.visibleTools()

		// Streaming: consume normalized events with an idle timeout,
		// restarting with backoff on stream errors. A restart discards
		// partially-accumulated tool-call JSON; deltas never carry
		// across a restart boundary.
		o.setState(StateStreaming)
		resp, streamErr := o.streamWithRetry(ctx, msgs, tools)
		if streamErr != nil {
			if ctx.Err() != nil {
				o.setState(StateCancelled)
				return &TurnResult{State: StateCancelled, ToolLoops: loops}, ctx.Err()
			}
			o.setState(StateFailed)
			return &TurnResult{State: StateFailed, ToolLoops: loops}, streamErr
		}

		// ParsingToolCalls: finalize accumulated JSON against schemas.
		// Malformed calls become tool errors returned to the model, not
		// errors thrown upward.
		o.setState(StateParsingToolCalls)
		accepted, rejected := o.parseToolCalls(resp, tools)

		o.history.Append(message.AssistantMessage(resp.Content, resp.Thinking, resp.ToolCalls))

		verdict := o.detector.RecordTurn(resp.Thinking, resp.Content, len(resp.ToolCalls) > 0)
		if verdict.Abort {
			cancelled := make([]message.ToolResult, len(accepted))
			for i, tc := range accepted {
				cancelled[i] = cancelledResult(tc)
			}
			o.appendResultsOrdered(resp.ToolCalls, accepted, cancelled, rejected)
			o.setState(StateFinalizing)
			o.setState(StateIdle)
			return &TurnResult{State: StateIdle, FinalText: resp.Content, ToolLoops: loops, AbortReason: verdict.AbortKind}, nil
		}

		if len(resp.ToolCalls) == 0 {
			if strings.TrimSpace(resp.Content) == "" {
				// Neither text nor tool calls: no-op turn. Advance and
				// let the idle detector bound the streak.
				continue
			}
			// Final text without tool calls: yield to the user.
			o.setState(StateFinalizing)
			o.setState(StateIdle)
			return &TurnResult{State: StateIdle, FinalText: resp.Content, ToolLoops: loops}, nil
		}

		// ExecutingTools: rejected calls already hold their error
		// results; accepted calls run under gatekeeper policy.
		o.setState(StateExecutingTools)
		executed := o.executeBatch(ctx, accepted)

		// AwaitingFollowup: append every result in issued order so the
		// history stays deterministic regardless of completion order.
		o.setState(StateAwaitingFollowup)
		o.appendResultsOrdered(resp.ToolCalls, accepted, executed, rejected)

		if steer := o.recordLoopSignals(accepted, executed); steer != nil {
			if steer.Abort {
				o.setState(StateFinalizing)
				o.setState(StateIdle)
				return &TurnResult{State: StateIdle, FinalText: resp.Content, ToolLoops: loops + 1, AbortReason: steer.AbortKind}, nil
			}
			if steer.Steer != "" {
				o.history.Append(message.SteeringMessage(steer.Steer))
			}
		}

		if ctx.Err() != nil {
			o.setState(StateCancelled)
			return &TurnResult{State: StateCancelled, ToolLoops: loops + 1}, ctx.Err()
		}
		// Finish reason was tool use: immediately start the next loop.
	}
}

// lastAssistantText returns the most recent assistant text in history.
func (o *Orchestrator) lastAssistantText() string {
	msgs := o.history.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleAssistant && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}

// visibleTools returns the tool schemas filtered by the current mode, so
// hidden tools never reach the model's declaration list.
func (o *Orchestrator) visibleTools() []provider.Tool {
	var mcp func() []provider.Tool
	if o.mcpTools != nil {
		mcp = o.mcpTools
	}
	all := tool.GetToolSchemasWithMCP(mcp)
	mode := o.mode()
	var disabled map[string]bool
	if o.gatekeeper != nil && o.gatekeeper.Settings != nil {
		disabled = o.gatekeeper.Settings.DisabledTools
	}
	out := make([]provider.Tool, 0, len(all))
	for _, t := range all {
		if disabled[t.Name] {
			continue
		}
		if safety.VisibleInMode(t.Name, mode) {
			out = append(out, t)
		}
	}
	return out
}

// streamWithRetry runs the streaming request with idle-timeout protection
// and exponential backoff across restarts. Partial accumulation from a
// failed attempt is discarded; only a completed stream's response is used.
func (o *Orchestrator) streamWithRetry(ctx context.Context, msgs []message.Message, tools []provider.Tool) (*message.CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxStreamRetries; attempt++ {
		if attempt > 0 {
			backoff := o.cfg.RetryBackoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			log.Logger().Warn("retrying stream",
				zap.Int("attempt", attempt), zap.Error(lastErr))
		}

		resp, err := o.streamOnce(ctx, msgs, tools)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("stream failed after %d retries: %w", o.cfg.MaxStreamRetries, lastErr)
}

// streamOnce consumes a single stream attempt, accumulating text,
// reasoning, and per-id tool-call JSON while emitting UI deltas.
func (o *Orchestrator) streamOnce(ctx context.Context, msgs []message.Message, tools []provider.Tool) (*message.CompletionResponse, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := o.llm.Stream(streamCtx, msgs, tools, o.systemPrompt)

	var resp message.CompletionResponse
	idleTimeout := o.cfg.StreamIdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = time.Hour
	}
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-idle.C:
			cancel()
			return nil, errStreamIdle
		case chunk, ok := <-ch:
			if !ok {
				// Stream closed without a finish reason. Reasoning-only
				// output with no finish is a stream error (retried).
				if resp.Content == "" && len(resp.ToolCalls) == 0 {
					return nil, errors.New("runloop: stream ended without finish reason")
				}
				return &resp, nil
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(idleTimeout)

			switch chunk.Type {
			case message.ChunkTypeText:
				resp.Content += chunk.Text
				o.events.Emit(AssistantTextEvent{Delta: chunk.Text})
			case message.ChunkTypeThinking:
				resp.Thinking += chunk.Text
				o.events.Emit(ReasoningEvent{Delta: chunk.Text})
			case message.ChunkTypeToolStart:
				resp.ToolCalls = append(resp.ToolCalls, message.ToolCall{
					ID:   chunk.ToolID,
					Name: chunk.ToolName,
				})
			case message.ChunkTypeToolInput:
				if n := len(resp.ToolCalls); n > 0 {
					resp.ToolCalls[n-1].Input += chunk.Text
				}
			case message.ChunkTypeDone:
				if chunk.Response != nil {
					if chunk.Response.Content != "" && resp.Content == "" {
						o.events.Emit(AssistantTextEvent{Delta: chunk.Response.Content})
					}
					return chunk.Response, nil
				}
				return &resp, nil
			case message.ChunkTypeError:
				return nil, chunk.Error
			}
		}
	}
}

// parseToolCalls finalizes the batch: it stamps issue metadata, rejects
// duplicate ids, validates arguments against each tool's declared schema,
// and converts unknown tool names into error results naming the nearest
// valid alternatives.
func (o *Orchestrator) parseToolCalls(resp *message.CompletionResponse, declared []provider.Tool) (accepted []message.ToolCall, rejected []message.ToolResult) {
	schemas := make(map[string]provider.Tool, len(declared))
	for _, t := range declared {
		schemas[t.Name] = t
	}

	seen := make(map[string]bool, len(resp.ToolCalls))
	now := time.Now()

	for i := range resp.ToolCalls {
		tc := &resp.ToolCalls[i]
		if tc.ID == "" {
			tc.ID = message.NewToolCallID()
		}
		tc.IssuedAt = now
		tc.TurnIndex = o.turnIndex

		if seen[tc.ID] {
			// Duplicate ids within one batch: accept the first, reject
			// the rest as schema errors.
			dup := *tc
			dup.ID = message.NewToolCallID()
			rejected = append(rejected, message.ToolResult{
				ToolCallID: dup.ID,
				ToolName:   tc.Name,
				Content:    fmt.Sprintf("invalid_arguments: duplicate tool_call id %q in batch", tc.ID),
				IsError:    true,
				Status:     message.StatusError,
			})
			tc.ID = dup.ID
			continue
		}
		seen[tc.ID] = true

		params, err := message.ParseToolInput(tc.Input)
		if err != nil {
			rejected = append(rejected, message.ToolResult{
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
				Content:    fmt.Sprintf("invalid_arguments: malformed JSON: %v", err),
				IsError:    true,
				Status:     message.StatusError,
			})
			continue
		}

		schema, declaredToModel := schemas[tc.Name]
		if !declaredToModel {
			if _, registered := o.registry.Get(tc.Name); !registered {
				rejected = append(rejected, message.ToolResult{
					ToolCallID: tc.ID,
					ToolName:   tc.Name,
					Content: fmt.Sprintf("not_found: unknown tool %q; nearest valid names: %s",
						tc.Name, strings.Join(o.nearestToolNames(tc.Name, 3), ", ")),
					IsError: true,
					Status:  message.StatusError,
				})
				continue
			}
			if !safety.VisibleInMode(tc.Name, o.mode()) {
				rejected = append(rejected, message.ToolResult{
					ToolCallID: tc.ID,
					ToolName:   tc.Name,
					Content:    fmt.Sprintf("denied_by_policy: tool %q is not available in %s mode", tc.Name, o.mode()),
					IsError:    true,
					Status:     message.StatusDenied,
				})
				continue
			}
			// Registered but declared without a schema here (MCP or
			// dynamically registered): let the gatekeeper and the tool's
			// own validation handle it.
			accepted = append(accepted, *tc)
			continue
		}

		if missing := missingRequired(schema, params); len(missing) > 0 {
			rejected = append(rejected, message.ToolResult{
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
				Content:    fmt.Sprintf("invalid_arguments: missing required: %s", strings.Join(missing, ", ")),
				IsError:    true,
				Status:     message.StatusError,
			})
			continue
		}

		accepted = append(accepted, *tc)
	}
	return accepted, rejected
}

// missingRequired checks the declared JSON schema's required list against
// the parsed arguments.
func missingRequired(schema provider.Tool, params map[string]any) []string {
	root, ok := schema.Parameters.(map[string]any)
	if !ok {
		return nil
	}
	var missing []string
	switch req := root["required"].(type) {
	case []string:
		for _, field := range req {
			if _, present := params[field]; !present {
				missing = append(missing, field)
			}
		}
	case []any:
		for _, f := range req {
			field, _ := f.(string)
			if field == "" {
				continue
			}
			if _, present := params[field]; !present {
				missing = append(missing, field)
			}
		}
	}
	return missing
}

// nearestToolNames ranks registered tool names by edit distance to the
// unknown name.
func (o *Orchestrator) nearestToolNames(name string, n int) []string {
	names := o.registry.List()
	sort.Slice(names, func(i, j int) bool {
		return editDistance(name, names[i]) < editDistance(name, names[j])
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func editDistance(a, b string) int {
	a, b = strings.ToLower(a), strings.ToLower(b)
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// executeBatch resolves policy for each accepted call, suspends for
// approvals, then runs the batch: write/exec calls serially in issued
// order, read-pure calls in parallel up to the concurrency cap. The
// returned slice is indexed like calls; every entry is populated (P1).
func (o *Orchestrator) executeBatch(ctx context.Context, calls []message.ToolCall) []message.ToolResult {
	results := make([]message.ToolResult, len(calls))
	runnable := make([]bool, len(calls))

	// Policy resolution first, serialized: AwaitingUser suspensions must
	// happen one at a time, and no tool may start before its decision.
	for i, tc := range calls {
		if ctx.Err() != nil {
			results[i] = cancelledResult(tc)
			continue
		}
		params, _ := message.ParseToolInput(tc.Input)
		decision := o.gatekeeper.Check(tc.Name, params, o.mode())

		switch decision.Kind {
		case safety.Allow:
			runnable[i] = true
		case safety.ModeRestricted, safety.Deny:
			results[i] = deniedResult(tc, "denied_by_policy: "+decision.Reason)
		case safety.Prompt:
			o.setState(StateAwaitingUser)
			req := ApprovalRequest{
				ToolName: tc.Name,
				Args:     params,
				Summary:  summarizeCall(tc.Name, params),
				Risk:     decision.Risk,
			}
			o.events.Emit(ApprovalRequestEvent{Request: req})
			answer := o.approver.Approve(ctx, req)
			o.setState(StateExecutingTools)

			switch answer.Kind {
			case ApprovalApproveRemember:
				o.gatekeeper.RememberApproval(tc.Name, params)
				runnable[i] = true
			case ApprovalApprove:
				runnable[i] = true
			default:
				feedback := answer.Feedback
				if feedback == "" {
					feedback = "denied by user"
				}
				results[i] = deniedResult(tc, feedback)
			}
		}
	}

	// Reentrancy guard: a sub-agent spawned from inside a sub-agent of
	// the same kind is refused before dispatch.
	depth := SubAgentDepth(ctx)
	for i, tc := range calls {
		if !runnable[i] {
			continue
		}
		if tc.Name == "Task" && depth >= o.cfg.SubAgentDepthCap {
			runnable[i] = false
			results[i] = deniedResult(tc, "denied_by_policy: sub-agent depth cap reached; finish the current task directly")
		}
	}

	capacity := o.cfg.ParallelToolCap
	if capacity <= 0 {
		capacity = 1
	}
	sem := make(chan struct{}, capacity)
	var wg sync.WaitGroup

	for i, tc := range calls {
		if !runnable[i] {
			continue
		}
		if tool.ReadPure(tc.Name) {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, tc message.ToolCall) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = o.runOne(ctx, tc)
			}(i, tc)
			continue
		}
		// Write/exec calls run sequentially in issued order; a failure
		// does not skip subsequent issued calls unless ctx is cancelled.
		results[i] = o.runOne(ctx, tc)
	}
	wg.Wait()

	return results
}

// runOne dispatches a single approved call through the Tool Executor.
func (o *Orchestrator) runOne(ctx context.Context, tc message.ToolCall) message.ToolResult {
	if ctx.Err() != nil {
		return cancelledResult(tc)
	}
	o.events.Emit(ToolStartEvent{Call: tc})
	depthCtx := WithSubAgentDepth(ctx, SubAgentDepth(ctx)+boolToInt(tc.Name == "Task"))
	result := o.executor.Execute(depthCtx, tc, o.cwd)
	o.events.Emit(ToolEndEvent{Result: result})
	return result
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// appendResultsOrdered appends one result per issued call, in issued
// order, matching rejected and executed results back to their ids so
// invariants I1/I2 hold at every observable point.
func (o *Orchestrator) appendResultsOrdered(issued []message.ToolCall, accepted []message.ToolCall, executed []message.ToolResult, rejected []message.ToolResult) {
	byID := make(map[string]message.ToolResult, len(executed)+len(rejected))
	for i, tc := range accepted {
		byID[tc.ID] = executed[i]
	}
	for _, r := range rejected {
		byID[r.ToolCallID] = r
	}
	for _, tc := range issued {
		r, ok := byID[tc.ID]
		if !ok {
			r = cancelledResult(tc)
		}
		o.history.Append(message.ToolResultMessage(r))
	}
}

// recordLoopSignals feeds executed calls to the loop detector in issued
// order and returns the strongest verdict.
func (o *Orchestrator) recordLoopSignals(calls []message.ToolCall, results []message.ToolResult) *loopdetect.Verdict {
	var strongest *loopdetect.Verdict
	for i, tc := range calls {
		if results[i].Status == message.StatusDenied {
			continue
		}
		v := o.detector.RecordToolCall(tc.Name, tc.Input)
		if v.Abort {
			return &v
		}
		if v.Steer != "" && strongest == nil {
			strongest = &v
		}
	}
	return strongest
}

func summarizeCall(name string, params map[string]any) string {
	if cmd, ok := params["command"].(string); ok {
		return cmd
	}
	if path, ok := params["file_path"].(string); ok {
		return name + " " + path
	}
	return name
}

func cancelledResult(tc message.ToolCall) message.ToolResult {
	return message.ToolResult{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    "cancelled: the user interrupted this operation",
		IsError:    true,
		Status:     message.StatusCanceled,
	}
}

func deniedResult(tc message.ToolCall, payload string) message.ToolResult {
	return message.ToolResult{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    payload,
		IsError:    true,
		Status:     message.StatusDenied,
	}
}
