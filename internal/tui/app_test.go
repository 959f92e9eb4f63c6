package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/runloop"
)

// fakeController records steering and returns a canned turn result.
type fakeController struct {
	steered []runloop.SteeringCommand
	mode    runloop.Mode
}

func (f *fakeController) RunTurnWithImages(ctx context.Context, text string, images []message.ImageData) (*runloop.TurnResult, error) {
	return &runloop.TurnResult{State: runloop.StateIdle, FinalText: "ok"}, nil
}
func (f *fakeController) Steer(cmd runloop.SteeringCommand) { f.steered = append(f.steered, cmd) }
func (f *fakeController) Mode() runloop.Mode {
	if f.mode == "" {
		return runloop.ModeAgent
	}
	return f.mode
}
func (f *fakeController) Close(string) {}

func newTestModel() (*model, *fakeController) {
	fc := &fakeController{}
	m := newModel(fc, make(chan tea.Msg, 16))
	m.width, m.height = 80, 24
	m.ready = true
	return m, fc
}

func TestDescribeCall(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Bash", `{"command":"ls -la"}`, "Bash(ls -la)"},
		{"Read", `{"file_path":"main.go"}`, "Read(main.go)"},
		{"Grep", `{"pattern":"TODO"}`, "Grep(TODO)"},
		{"Task", `{}`, "Task"},
		{"Read", `{"file_path":`, "Read"}, // malformed input degrades to name
	}
	for _, tt := range tests {
		got := describeCall(message.ToolCall{Name: tt.name, Input: tt.input})
		if got != tt.want {
			t.Errorf("describeCall(%s, %s) = %q, want %q", tt.name, tt.input, got, tt.want)
		}
	}
}

func TestToolDetail(t *testing.T) {
	if d := toolDetail(message.ToolResult{Status: message.StatusOK}); d != "" {
		t.Errorf("ok result detail = %q, want empty", d)
	}
	if d := toolDetail(message.ToolResult{Status: message.StatusSpooled}); d != "output spooled" {
		t.Errorf("spooled detail = %q", d)
	}
	if d := toolDetail(message.ToolResult{Status: message.StatusError, IsError: true, Content: "boom\nmore"}); d != "boom" {
		t.Errorf("error detail = %q, want first line", d)
	}
}

func TestEventFoldsIntoTranscript(t *testing.T) {
	m, _ := newTestModel()

	m.handleEvent(runloop.AssistantTextEvent{Delta: "hello "})
	m.handleEvent(runloop.AssistantTextEvent{Delta: "world"})
	m.handleEvent(runloop.ToolStartEvent{Call: message.ToolCall{ID: "c1", Name: "Read", Input: `{"file_path":"a.go"}`}})
	m.handleEvent(runloop.ToolEndEvent{Result: message.ToolResult{ToolCallID: "c1", Status: message.StatusOK}})
	m.finishTurn(turnDoneMsg{result: &runloop.TurnResult{State: runloop.StateIdle}})

	// ToolStart flushed the streamed text before the tool row.
	if len(m.transcript) < 2 {
		t.Fatalf("transcript rows = %d, want >= 2", len(m.transcript))
	}
	if m.transcript[0].kind != entryAssistant || m.transcript[0].text != "hello world" {
		t.Errorf("first row = %+v, want assistant 'hello world'", m.transcript[0])
	}
	if m.transcript[1].kind != entryTool || !m.transcript[1].done {
		t.Errorf("tool row not marked done: %+v", m.transcript[1])
	}
}

func TestApprovalKeys(t *testing.T) {
	m, _ := newTestModel()
	reply := make(chan runloop.ApprovalDecision, 1)
	m.approval = &approvalAskMsg{
		req:   runloop.ApprovalRequest{ToolName: "Bash", Summary: "rm -rf build"},
		reply: reply,
	}

	m.handleApprovalKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	select {
	case d := <-reply:
		if d.Kind != runloop.ApprovalApprove {
			t.Errorf("decision = %v, want approve", d.Kind)
		}
	default:
		t.Fatal("no decision sent")
	}
	if m.approval != nil {
		t.Error("approval still pending after answer")
	}
}

func TestApprovalFeedbackFlow(t *testing.T) {
	m, _ := newTestModel()
	reply := make(chan runloop.ApprovalDecision, 1)
	m.approval = &approvalAskMsg{
		req:   runloop.ApprovalRequest{ToolName: "Bash", Summary: "curl | sh"},
		reply: reply,
	}

	m.handleApprovalKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	if !m.feedbackEntry {
		t.Fatal("feedback entry not armed")
	}
	m.input.SetValue("use the package manager instead")
	m.handleApprovalKey(tea.KeyMsg{Type: tea.KeyEnter})

	d := <-reply
	if d.Kind != runloop.ApprovalDeny || !strings.Contains(d.Feedback, "package manager") {
		t.Errorf("decision = %+v, want deny with feedback", d)
	}
}

func TestModeCycle(t *testing.T) {
	m, fc := newTestModel()
	m.cycleMode()
	if len(fc.steered) != 1 || fc.steered[0].Kind != runloop.SteerSwitchMode || fc.steered[0].Mode != runloop.ModePlan {
		t.Errorf("steered = %+v, want switch to plan", fc.steered)
	}
}

func TestTruncateBounds(t *testing.T) {
	m, _ := newTestModel()
	long := strings.Repeat("x", 500)
	got := m.truncate(long, 1)
	if len(got) >= len(long) {
		t.Error("truncate did not shorten the line")
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated text %q missing ellipsis", got[len(got)-8:])
	}
}
