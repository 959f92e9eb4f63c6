package contextmgr

import (
	"context"
	"strings"
	"testing"

	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/spool"
)

func newTestSpooler(t *testing.T) (*spool.Spooler, error) {
	t.Helper()
	sp, err := spool.New()
	if sp != nil {
		t.Cleanup(func() { _ = sp.Close() })
	}
	return sp, err
}

func TestDefaultEstimatorFallbackFormula(t *testing.T) {
	e := DefaultEstimator{}
	text := strings.Repeat("a", 35) // 10 by chars/3.5, 1 word*1.3 -> chars wins
	if got := e.Estimate(text); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	if e.Estimate("") != 0 {
		t.Fatal("expected 0 for empty text")
	}
}

func buildHistory(n int) *message.ConversationHistory {
	h := message.NewConversationHistory("be concise")
	for i := 0; i < n; i++ {
		h.Append(message.UserMessage(strings.Repeat("x", 500), nil))
		h.Append(message.AssistantMessage(strings.Repeat("y", 500), "", nil))
	}
	return h
}

func TestBuildRequestNoTrimUnderWarnAt(t *testing.T) {
	h := buildHistory(2)
	m := New(h, nil, Budget{WarnAt: 1_000_000, HardAt: 2_000_000, ReserveForResponse: 0}, nil, nil)
	msgs, err := m.BuildRequest(context.Background())
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if len(msgs) != h.Len() {
		t.Fatalf("expected no trim, got %d want %d", len(msgs), h.Len())
	}
}

func TestAdaptiveTrimDropsOldestBand(t *testing.T) {
	h := buildHistory(20)
	before := h.Len()
	m := New(h, nil, Budget{WarnAt: 10, HardAt: 2000, ReserveForResponse: 0}, nil, nil)
	msgs, err := m.BuildRequest(context.Background())
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if len(msgs) >= before {
		t.Fatalf("expected history to shrink, got %d from %d", len(msgs), before)
	}
	foundSummary := false
	for _, msg := range msgs {
		if msg.Summary {
			foundSummary = true
		}
	}
	if !foundSummary {
		t.Fatal("expected a synthetic summary placeholder after trim")
	}
}

func TestAdaptiveTrimPreservesPinnedMessages(t *testing.T) {
	h := message.NewConversationHistory("sys")
	h.Append(message.UserMessage("pinned decision", nil))
	m := New(h, nil, Budget{WarnAt: 1, HardAt: 1000, ReserveForResponse: 0}, nil, nil)
	m.Pin()
	for i := 0; i < 20; i++ {
		h.Append(message.UserMessage(strings.Repeat("z", 200), nil))
	}

	msgs, _ := m.BuildRequest(context.Background())
	found := false
	for _, msg := range msgs {
		if msg.Content == "pinned decision" {
			found = true
			if !msg.Pinned {
				t.Fatal("expected pinned message to keep its Pinned flag")
			}
		}
	}
	if !found {
		t.Fatal("expected pinned message to survive adaptive_trim")
	}
}

func TestAdaptiveTrimReturnsBudgetExhaustedWhenUnreachable(t *testing.T) {
	h := message.NewConversationHistory("sys")
	h.Append(message.UserMessage(strings.Repeat("w", 5000), nil))
	m := New(h, nil, Budget{WarnAt: 1, HardAt: 1, ReserveForResponse: 0}, nil, nil)
	_, err := m.BuildRequest(context.Background())
	if err == nil {
		t.Fatal("expected budget exhausted error")
	}
}

func TestCacheViewCoversSystemAndSummary(t *testing.T) {
	h := buildHistory(20)
	m := New(h, nil, Budget{WarnAt: 10, HardAt: 2000, ReserveForResponse: 0}, nil, nil)
	if _, err := m.BuildRequest(context.Background()); err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	cache := m.CacheView()
	if len(cache) == 0 {
		t.Fatal("expected a non-empty cache view after trim")
	}
	for _, msg := range cache {
		if msg.Role != message.RoleSystem && !msg.Summary {
			t.Fatalf("cache view should only hold system/summary messages, got %+v", msg)
		}
	}
}

func TestSpoolOversizedResults(t *testing.T) {
	h := message.NewConversationHistory("sys")
	h.Append(message.ToolResultMessage(message.ToolResult{
		ToolCallID: "c1",
		ToolName:   "Read",
		Content:    strings.Repeat("q", 20000),
	}))

	sp, err := newTestSpooler(t)
	if err != nil {
		t.Fatalf("spooler: %v", err)
	}
	m := New(h, nil, Budget{WarnAt: 1, HardAt: 5000, ReserveForResponse: 0}, nil, sp)
	// Pin the oversized tool result so adaptive_trim's drop-band step leaves
	// it alone and it must go through the spool step instead.
	m.Pin()
	for i := 0; i < 10; i++ {
		h.Append(message.UserMessage(strings.Repeat("m", 200), nil))
	}

	msgs, err := m.BuildRequest(context.Background())
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	for _, msg := range msgs {
		if msg.ToolResult != nil && msg.ToolResult.ToolCallID == "c1" {
			if msg.ToolResult.SpoolHandle == "" {
				t.Fatal("expected oversized tool result to be spooled")
			}
		}
	}
}
