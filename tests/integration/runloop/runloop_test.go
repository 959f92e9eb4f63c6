package runloop_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vtcode/vtcode/internal/client"
	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/runloop"
	"github.com/vtcode/vtcode/internal/session"
)

// TestSingleReadSession drives a full controller round through the public
// surface: one Read tool call, a final answer, and a replayable session
// log.
func TestSingleReadSession(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "README.md"), []byte("# readme\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(t.TempDir(), "session.jsonl")

	args, _ := json.Marshal(map[string]any{"file_path": "README.md"})
	fake := &client.FakeClient{
		Responses: []message.CompletionResponse{
			{
				StopReason: "tool_use",
				ToolCalls:  []message.ToolCall{{ID: "tc1", Name: "Read", Input: string(args)}},
			},
			{Content: "the readme has one heading", StopReason: "end_turn"},
		},
	}

	var mu sync.Mutex
	var events []runloop.Event
	c := runloop.NewController(runloop.ControllerConfig{
		Client:         fake,
		WorkspaceDir:   ws,
		Mode:           runloop.ModeEdit,
		SystemPrompt:   "test",
		SessionLogPath: logPath,
		Events: runloop.SinkFunc(func(e runloop.Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		}),
	})
	defer c.Close("done")

	result, err := c.RunTurn(context.Background(), "what's in the readme?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.FinalText != "the readme has one heading" {
		t.Errorf("FinalText = %q", result.FinalText)
	}

	// The event feed must show a tool start before its end, then turn end.
	var sawStart, sawEnd, sawTurnEnd bool
	for _, e := range events {
		switch e.(type) {
		case runloop.ToolStartEvent:
			sawStart = true
		case runloop.ToolEndEvent:
			if !sawStart {
				t.Error("ToolEnd before ToolStart")
			}
			sawEnd = true
		case runloop.TurnEndEvent:
			sawTurnEnd = true
		}
	}
	if !sawStart || !sawEnd || !sawTurnEnd {
		t.Errorf("missing events: start=%v end=%v turnEnd=%v", sawStart, sawEnd, sawTurnEnd)
	}

	// The persisted log replays to an equivalent, invariant-clean history.
	replayed, err := session.ReplayHistory(logPath)
	if err != nil {
		t.Fatalf("ReplayHistory: %v", err)
	}
	if err := replayed.Validate(); err != nil {
		t.Errorf("replayed history violates invariants: %v", err)
	}
	if replayed.Len() != len(c.History()) {
		t.Errorf("replayed %d messages, live history has %d", replayed.Len(), len(c.History()))
	}
}

// TestStopSteering confirms a stopped session refuses further turns.
func TestStopSteering(t *testing.T) {
	c := runloop.NewController(runloop.ControllerConfig{
		Client:       &client.FakeClient{},
		WorkspaceDir: t.TempDir(),
	})
	defer c.Close("done")

	c.Steer(runloop.SteeringCommand{Kind: runloop.SteerStop})
	if _, err := c.RunTurn(context.Background(), "hello"); err != runloop.ErrSessionStopped {
		t.Errorf("expected ErrSessionStopped, got %v", err)
	}
}
