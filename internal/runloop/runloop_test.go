package runloop

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtcode/vtcode/internal/client"
	"github.com/vtcode/vtcode/internal/contextmgr"
	"github.com/vtcode/vtcode/internal/loopdetect"
	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/session"
)

func toolUseResponse(calls ...message.ToolCall) message.CompletionResponse {
	return message.CompletionResponse{ToolCalls: calls, StopReason: "tool_use"}
}

func textResponse(text string) message.CompletionResponse {
	return message.CompletionResponse{Content: text, StopReason: "end_turn"}
}

func newTestController(t *testing.T, fake *client.FakeClient, mutate func(*ControllerConfig)) *Controller {
	t.Helper()
	ws := t.TempDir()
	cfg := ControllerConfig{
		Client:       fake,
		WorkspaceDir: ws,
		Mode:         ModeEdit,
		SystemPrompt: "test agent",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c := NewController(cfg)
	t.Cleanup(func() { c.Close("test done") })
	return c
}

func TestSimpleReadTurn(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, nil)

	readme := filepath.Join(c.cfg.WorkspaceDir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("# hello\nworld\n"), 0o644))

	args, _ := json.Marshal(map[string]any{"file_path": "README.md", "limit": 40})
	fake.Responses = []message.CompletionResponse{
		toolUseResponse(message.ToolCall{ID: "call_1", Name: "Read", Input: string(args)}),
		textResponse("The file greets the world."),
	}

	result, err := c.RunTurn(context.Background(), "show me the first 40 lines of README.md")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, result.State)
	assert.Equal(t, "The file greets the world.", result.FinalText)

	history := c.History()
	require.NoError(t, validateHistory(history))

	calls, results := countCallsAndResults(history)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, results)

	for _, m := range history {
		if m.ToolResult != nil {
			assert.Equal(t, "call_1", m.ToolResult.ToolCallID)
			assert.Equal(t, message.StatusOK, m.ToolResult.NormalizedStatus())
			assert.Empty(t, m.ToolResult.SpoolHandle)
		}
	}
}

func validateHistory(msgs []message.Message) error {
	h := message.NewConversationHistory("")
	for _, m := range msgs {
		h.Append(m)
	}
	return h.Validate()
}

func countCallsAndResults(msgs []message.Message) (calls, results int) {
	for _, m := range msgs {
		calls += len(m.ToolCalls)
		if m.ToolResult != nil {
			results++
		}
	}
	return calls, results
}

func TestShellApprovalDeny(t *testing.T) {
	fake := &client.FakeClient{}
	var sawRequest *ApprovalRequest
	c := newTestController(t, fake, func(cfg *ControllerConfig) {
		cfg.Approver = ApproverFunc(func(_ context.Context, req ApprovalRequest) ApprovalDecision {
			sawRequest = &req
			return DeniedWithFeedback("do not run shell commands today")
		})
	})

	args, _ := json.Marshal(map[string]any{"command": "ls -la"})
	fake.Responses = []message.CompletionResponse{
		toolUseResponse(message.ToolCall{ID: "call_sh", Name: "Bash", Input: string(args)}),
		textResponse("Understood, I will not run it."),
	}

	result, err := c.RunTurn(context.Background(), "run ls -la")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, result.State)

	require.NotNil(t, sawRequest)
	assert.Equal(t, "Bash", sawRequest.ToolName)
	assert.Equal(t, "ls -la", sawRequest.Summary)

	var denied *message.ToolResult
	for _, m := range c.History() {
		if m.ToolResult != nil && m.ToolResult.ToolCallID == "call_sh" {
			denied = m.ToolResult
		}
	}
	require.NotNil(t, denied)
	assert.Equal(t, message.StatusDenied, denied.Status)
	assert.Contains(t, denied.Content, "do not run shell commands today")
}

func TestShellApprovalApproveAndRemember(t *testing.T) {
	fake := &client.FakeClient{}
	prompts := 0
	c := newTestController(t, fake, func(cfg *ControllerConfig) {
		cfg.Approver = ApproverFunc(func(_ context.Context, _ ApprovalRequest) ApprovalDecision {
			prompts++
			return ApprovedAndRemember
		})
	})

	args, _ := json.Marshal(map[string]any{"command": "echo approved"})
	fake.Responses = []message.CompletionResponse{
		toolUseResponse(message.ToolCall{ID: "c1", Name: "Bash", Input: string(args)}),
		toolUseResponse(message.ToolCall{ID: "c2", Name: "Bash", Input: string(args)}),
		textResponse("done"),
	}

	_, err := c.RunTurn(context.Background(), "echo twice")
	require.NoError(t, err)

	// The second identical command must not prompt again.
	assert.Equal(t, 1, prompts)
}

func TestLoopDetectorSteersThenAborts(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, func(cfg *ControllerConfig) {
		cfg.LoopConfig = loopdetect.Config{R: 3, W: 5, S: 3, K: 5, E: 0}
	})

	args, _ := json.Marshal(map[string]any{"pattern": "TODO"})
	grep := func(id string) message.CompletionResponse {
		return toolUseResponse(message.ToolCall{ID: id, Name: "Grep", Input: string(args)})
	}
	fake.Responses = []message.CompletionResponse{
		grep("g1"), grep("g2"), grep("g3"), grep("g4"),
		textResponse("unreachable"),
	}

	result, err := c.RunTurn(context.Background(), "find TODOs")
	require.NoError(t, err)
	assert.Equal(t, "loop_repetition", result.AbortReason)

	// Exactly one synthetic steering injection before termination.
	steering := 0
	for _, m := range c.History() {
		if m.Synthetic {
			steering++
		}
	}
	assert.Equal(t, 1, steering)
	require.NoError(t, validateHistory(c.History()))

	// A loop abort stops the session.
	_, err = c.RunTurn(context.Background(), "again")
	assert.ErrorIs(t, err, ErrSessionStopped)
}

func TestUnknownToolNameReturnsNearestNames(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, nil)

	fake.Responses = []message.CompletionResponse{
		toolUseResponse(message.ToolCall{ID: "u1", Name: "Raed", Input: `{"file_path":"x"}`}),
		textResponse("ok"),
	}

	_, err := c.RunTurn(context.Background(), "read something")
	require.NoError(t, err)

	var r *message.ToolResult
	for _, m := range c.History() {
		if m.ToolResult != nil && m.ToolResult.ToolCallID == "u1" {
			r = m.ToolResult
		}
	}
	require.NotNil(t, r)
	assert.Contains(t, r.Content, "not_found")
	assert.Contains(t, strings.ToLower(r.Content), "read")
	require.NoError(t, validateHistory(c.History()))
}

func TestMalformedArgumentsBecomeToolErrors(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, nil)

	fake.Responses = []message.CompletionResponse{
		toolUseResponse(message.ToolCall{ID: "m1", Name: "Read", Input: `{"file_path":`}),
		textResponse("recovered"),
	}

	result, err := c.RunTurn(context.Background(), "read")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.FinalText)

	var r *message.ToolResult
	for _, m := range c.History() {
		if m.ToolResult != nil && m.ToolResult.ToolCallID == "m1" {
			r = m.ToolResult
		}
	}
	require.NotNil(t, r)
	assert.Contains(t, r.Content, "invalid_arguments")
}

func TestPlanModeHidesWriteTools(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, func(cfg *ControllerConfig) {
		cfg.Mode = ModePlan
	})

	args, _ := json.Marshal(map[string]any{"file_path": "a.txt", "content": "x"})
	fake.Responses = []message.CompletionResponse{
		toolUseResponse(message.ToolCall{ID: "w1", Name: "Write", Input: string(args)}),
		textResponse("cannot write in plan mode"),
	}

	_, err := c.RunTurn(context.Background(), "write a file")
	require.NoError(t, err)

	var r *message.ToolResult
	for _, m := range c.History() {
		if m.ToolResult != nil && m.ToolResult.ToolCallID == "w1" {
			r = m.ToolResult
		}
	}
	require.NotNil(t, r)
	assert.Equal(t, message.StatusDenied, r.Status)

	// Write never reached the model's declared tool list.
	require.NotEmpty(t, fake.Calls)
	for _, opt := range fake.Calls {
		for _, tl := range opt.Tools {
			assert.NotEqual(t, "Write", tl.Name)
		}
	}
}

func TestPlanModeExitRequiresConfirmation(t *testing.T) {
	fake := &client.FakeClient{}
	confirmed := false
	c := newTestController(t, fake, func(cfg *ControllerConfig) {
		cfg.Mode = ModePlan
		cfg.Approver = ApproverFunc(func(_ context.Context, req ApprovalRequest) ApprovalDecision {
			if req.ToolName == "SwitchMode" {
				confirmed = true
				return Approved
			}
			return Denied
		})
	})

	c.Steer(SteeringCommand{Kind: SteerSwitchMode, Mode: ModeEdit})
	fake.Responses = []message.CompletionResponse{textResponse("hello")}
	_, err := c.RunTurn(context.Background(), "hi")
	require.NoError(t, err)

	assert.True(t, confirmed)
	assert.Equal(t, ModeEdit, c.Mode())
}

func TestSteeringStop(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, nil)

	c.Steer(SteeringCommand{Kind: SteerStop})
	_, err := c.RunTurn(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSessionStopped)
}

func TestInjectUserMessage(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, nil)

	c.Steer(SteeringCommand{Kind: SteerInjectUserMessage, Text: "also check the tests"})
	fake.Responses = []message.CompletionResponse{textResponse("will do")}

	_, err := c.RunTurn(context.Background(), "fix the bug")
	require.NoError(t, err)

	found := false
	for _, m := range c.History() {
		if m.Role == message.RoleUser && m.Content == "also check the tests" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBudgetExhausted(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, func(cfg *ControllerConfig) {
		cfg.Budget = contextmgr.Budget{WarnAt: 1, HardAt: 2, ReserveForResponse: 1}
	})

	result, err := c.RunTurn(context.Background(), "a message that cannot possibly fit the absurdly small budget configured for this test case")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contextmgr.ErrBudgetExhausted))
	assert.Equal(t, StateBudgetExhausted, result.State)
}

func TestStreamErrorRetriesThenSucceeds(t *testing.T) {
	fake := &client.FakeClient{
		ErrorAt:    1,
		ErrorValue: errors.New("transient network error"),
		Responses:  []message.CompletionResponse{textResponse("made it")},
	}
	c := newTestController(t, fake, func(cfg *ControllerConfig) {
		cfg.Orchestrator = DefaultOrchestratorConfig()
		cfg.Orchestrator.RetryBackoffBase = time.Millisecond
	})

	result, err := c.RunTurn(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "made it", result.FinalText)
}

func TestDuplicateToolCallIDs(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, nil)

	readme := filepath.Join(c.cfg.WorkspaceDir, "a.txt")
	require.NoError(t, os.WriteFile(readme, []byte("content"), 0o644))

	args, _ := json.Marshal(map[string]any{"file_path": "a.txt"})
	fake.Responses = []message.CompletionResponse{
		toolUseResponse(
			message.ToolCall{ID: "dup", Name: "Read", Input: string(args)},
			message.ToolCall{ID: "dup", Name: "Read", Input: string(args)},
		),
		textResponse("done"),
	}

	_, err := c.RunTurn(context.Background(), "read twice")
	require.NoError(t, err)

	history := c.History()
	require.NoError(t, validateHistory(history))
	calls, results := countCallsAndResults(history)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, results)

	// Exactly one of the two succeeded; the duplicate is a schema error.
	okCount, errCount := 0, 0
	for _, m := range history {
		if m.ToolResult == nil {
			continue
		}
		switch m.ToolResult.NormalizedStatus() {
		case message.StatusOK:
			okCount++
		default:
			errCount++
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, errCount)
}

func TestWorkspaceEscapeDenied(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, nil)

	args, _ := json.Marshal(map[string]any{"file_path": "../../etc/passwd"})
	fake.Responses = []message.CompletionResponse{
		toolUseResponse(message.ToolCall{ID: "esc", Name: "Read", Input: string(args)}),
		textResponse("denied, as expected"),
	}

	_, err := c.RunTurn(context.Background(), "read /etc/passwd")
	require.NoError(t, err)

	var r *message.ToolResult
	for _, m := range c.History() {
		if m.ToolResult != nil && m.ToolResult.ToolCallID == "esc" {
			r = m.ToolResult
		}
	}
	require.NotNil(t, r)
	assert.Equal(t, message.StatusDenied, r.Status)
	assert.Contains(t, r.Content, "workspace_violation")
}

func TestSessionLogReplayRoundTrip(t *testing.T) {
	fake := &client.FakeClient{}
	logPath := filepath.Join(t.TempDir(), "session.jsonl")
	c := newTestController(t, fake, func(cfg *ControllerConfig) {
		cfg.SessionLogPath = logPath
	})

	readme := filepath.Join(c.cfg.WorkspaceDir, "f.txt")
	require.NoError(t, os.WriteFile(readme, []byte("data"), 0o644))

	args, _ := json.Marshal(map[string]any{"file_path": "f.txt"})
	fake.Responses = []message.CompletionResponse{
		toolUseResponse(message.ToolCall{ID: "r1", Name: "Read", Input: string(args)}),
		textResponse("read it"),
	}

	_, err := c.RunTurn(context.Background(), "read f.txt")
	require.NoError(t, err)

	live := c.History()
	replayed, err := session.ReplayHistory(logPath)
	require.NoError(t, err)

	require.Equal(t, len(live), replayed.Len())
	for i, m := range replayed.Messages() {
		assert.Equal(t, live[i].Role, m.Role)
		if live[i].ToolResult != nil {
			require.NotNil(t, m.ToolResult)
			assert.Equal(t, live[i].ToolResult.ToolCallID, m.ToolResult.ToolCallID)
		}
		for j, tc := range live[i].ToolCalls {
			assert.Equal(t, tc.ID, m.ToolCalls[j].ID)
		}
	}
	require.NoError(t, replayed.Validate())
}

func TestAuditLogRecordsDecisions(t *testing.T) {
	fake := &client.FakeClient{}
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	c := newTestController(t, fake, func(cfg *ControllerConfig) {
		cfg.AuditLogPath = auditPath
	})

	readme := filepath.Join(c.cfg.WorkspaceDir, "f.txt")
	require.NoError(t, os.WriteFile(readme, []byte("data"), 0o644))

	args, _ := json.Marshal(map[string]any{"file_path": "f.txt"})
	fake.Responses = []message.CompletionResponse{
		toolUseResponse(message.ToolCall{ID: "r1", Name: "Read", Input: string(args)}),
		textResponse("done"),
	}

	_, err := c.RunTurn(context.Background(), "read")
	require.NoError(t, err)
	c.Close("flush")

	records, err := session.ReadEventLog(auditPath)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "gatekeeper_decision", records[0].Kind)
}

func TestCancellationMidTurn(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := c.RunTurn(ctx, "anything")
	require.Error(t, err)
	assert.Equal(t, StateCancelled, result.State)
	require.NoError(t, validateHistory(c.History()))
}

func TestEditDistanceRanking(t *testing.T) {
	assert.Equal(t, 0, editDistance("Read", "read"))
	assert.Equal(t, 2, editDistance("Grpe", "Grep"))
	assert.Less(t, editDistance("Raed", "Read"), editDistance("Raed", "WebSearch"))
}

func TestConfigDefaults(t *testing.T) {
	fake := &client.FakeClient{}
	c := newTestController(t, fake, nil)
	assert.Equal(t, ModeEdit, c.Mode())
	assert.NotNil(t, c.Gatekeeper())
	assert.Equal(t, StateIdle, c.orchestrator.State())
}
