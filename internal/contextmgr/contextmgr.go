// Package contextmgr implements the Context Manager: it holds conversation
// history and computes three derived views (live, summary, cache) plus the
// adaptive_trim pipeline that keeps a turn's request inside its token
// budget. Grounded on nexus's internal/agent/context/packer.go (budgeted
// message selection) and internal/agent/compaction.go (threshold-triggered
// summarization), generalized from percentage-based session bookkeeping to
// the turn-scoped trim/summarize/spool pipeline.
package contextmgr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/spool"
)

// TokenEstimator estimates the token cost of a piece of text. It is
// pluggable so a precise provider tokenizer can replace the fallback
// formula without touching the rest of the Context Manager.
type TokenEstimator interface {
	Estimate(text string) int
}

// DefaultEstimator implements the fallback formula: max(chars/3.5, words*1.3).
type DefaultEstimator struct{}

func (DefaultEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	chars := float64(len(text)) / 3.5
	words := float64(len(strings.Fields(text))) * 1.3
	est := chars
	if words > est {
		est = words
	}
	return int(math.Ceil(est))
}

// Budget bounds how much of a model's context window a request may use.
type Budget struct {
	// WarnAt triggers adaptive_trim once the live view's estimate exceeds it.
	WarnAt int
	// HardAt is the model's effective context window.
	HardAt int
	// ReserveForResponse is held back for the model's own output.
	ReserveForResponse int
}

// DefaultBudget is a conservative default for 128k-class context windows.
func DefaultBudget() Budget {
	return Budget{WarnAt: 60000, HardAt: 120000, ReserveForResponse: 8000}
}

func (b Budget) target() int {
	t := b.HardAt - b.ReserveForResponse
	if t < 0 {
		return 0
	}
	return t
}

// Summarizer produces a lossy synthetic summary message for a band of
// history. It may itself call the LLM in a bounded sub-request.
type Summarizer interface {
	Summarize(ctx context.Context, messages []message.Message) (message.Message, error)
}

// SummarizerFunc adapts a plain function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, messages []message.Message) (message.Message, error)

func (f SummarizerFunc) Summarize(ctx context.Context, msgs []message.Message) (message.Message, error) {
	return f(ctx, msgs)
}

// ErrBudgetExhausted is returned when adaptive_trim cannot bring the live
// view under budget; the caller (the Turn Orchestrator) should fail the
// turn with a BudgetExhausted terminal state.
var ErrBudgetExhausted = errors.New("contextmgr: budget exhausted after adaptive_trim")

const minBandSize = 2

// Manager owns a conversation history and keeps it within budget.
type Manager struct {
	mu         sync.Mutex
	history    *message.ConversationHistory
	estimator  TokenEstimator
	budget     Budget
	summarizer Summarizer
	spooler    *spool.Spooler
	bandSize   int
}

// New builds a Context Manager over an existing history. estimator and
// summarizer default to DefaultEstimator and a no-op summarizer
// (dropped bands become a placeholder message) when nil.
func New(history *message.ConversationHistory, estimator TokenEstimator, budget Budget, summarizer Summarizer, spooler *spool.Spooler) *Manager {
	if estimator == nil {
		estimator = DefaultEstimator{}
	}
	return &Manager{
		history:    history,
		estimator:  estimator,
		budget:     budget,
		summarizer: summarizer,
		spooler:    spooler,
		bandSize:   6,
	}
}

// Estimate returns the token estimate of the full live view.
func (m *Manager) Estimate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimateMessages(m.history.Messages())
}

func (m *Manager) estimateMessages(msgs []message.Message) int {
	total := 0
	for _, msg := range msgs {
		total += m.estimateMessage(msg)
	}
	return total
}

func (m *Manager) estimateMessage(msg message.Message) int {
	total := m.estimator.Estimate(msg.Content) + m.estimator.Estimate(msg.Thinking)
	for _, tc := range msg.ToolCalls {
		total += m.estimator.Estimate(tc.Name) + m.estimator.Estimate(tc.Input)
	}
	if msg.ToolResult != nil {
		total += m.estimator.Estimate(msg.ToolResult.Content)
	}
	return total
}

// LiveView returns the unmodified tail used for the current request.
func (m *Manager) LiveView() []message.Message {
	return m.history.Messages()
}

// SummaryView returns the synthetic messages the Context Manager has
// produced to replace compacted bands of history, in order.
func (m *Manager) SummaryView() []message.Message {
	var out []message.Message
	for _, msg := range m.history.Messages() {
		if msg.Summary {
			out = append(out, msg)
		}
	}
	return out
}

// CacheView returns the leading prefix segment tagged as stable across
// turns (system prompt plus any leading summary messages).
func (m *Manager) CacheView() []message.Message {
	msgs := m.history.Messages()
	var out []message.Message
	for _, msg := range msgs {
		if !msg.CacheControl {
			break
		}
		out = append(out, msg)
	}
	return out
}

// BuildRequest returns the history to send for this turn, running
// adaptive_trim first if the live view is over WarnAt.
func (m *Manager) BuildRequest(ctx context.Context) ([]message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.budget.WarnAt > 0 && m.estimateMessages(m.history.Messages()) > m.budget.WarnAt {
		if err := m.adaptiveTrim(ctx); err != nil {
			return nil, err
		}
	}
	m.refreshCacheBoundaryLocked()
	return m.history.Messages(), nil
}

// adaptiveTrim implements spec.md §4.5's trimming policy: drop oldest
// non-pinned pairs and replace them with a synthetic summary, spool
// oversized tool results, then summarize the next-oldest band, repeating
// until the estimate fits HardAt-ReserveForResponse or no step makes
// progress.
func (m *Manager) adaptiveTrim(ctx context.Context) error {
	target := m.budget.target()

	for m.estimateMessages(m.history.Messages()) > target {
		if m.dropOldestBandLocked() {
			continue
		}
		if m.spoolOversizedResultsLocked() {
			continue
		}
		progressed, err := m.summarizeNextBandLocked(ctx)
		if err != nil {
			return err
		}
		if progressed {
			continue
		}
		break
	}

	if m.estimateMessages(m.history.Messages()) > target {
		return fmt.Errorf("%w: estimate %d exceeds target %d", ErrBudgetExhausted,
			m.estimateMessages(m.history.Messages()), target)
	}
	return nil
}

// dropOldestBandLocked drops the oldest contiguous band of non-pinned,
// non-summary user/assistant messages (preserving I1/I2 tool-call/result
// pairing) and replaces it with a single synthetic summary placeholder.
// It reports whether it made progress.
func (m *Manager) dropOldestBandLocked() bool {
	msgs := m.history.Messages()
	start, end := m.findDroppableBand(msgs)
	if start < 0 {
		return false
	}

	dropped := msgs[start:end]
	placeholder := message.Message{
		Role:    message.RoleAssistant,
		Content: fmt.Sprintf("[%d earlier messages dropped to stay within budget]", len(dropped)),
		Summary: true,
	}

	next := make([]message.Message, 0, len(msgs)-(end-start)+1)
	next = append(next, msgs[:start]...)
	next = append(next, placeholder)
	next = append(next, msgs[end:]...)
	m.history.Replace(next)
	return true
}

// findDroppableBand locates the oldest run of at least bandSize messages,
// after the system prompt, that contains no pinned or summary message and
// does not split a tool_calls/tool_result group (I1). It returns [-1,-1]
// when no such band exists.
func (m *Manager) findDroppableBand(msgs []message.Message) (int, int) {
	i := 0
	if len(msgs) > 0 && msgs[0].Role == message.RoleSystem {
		i = 1
	}

	// Never touch the most recent band; it is the live turn.
	tailGuard := m.bandSize
	for i < len(msgs)-tailGuard {
		if msgs[i].Pinned || msgs[i].Summary {
			i++
			continue
		}
		end := i + m.bandSize
		if end > len(msgs)-tailGuard {
			end = len(msgs) - tailGuard
		}
		end = m.extendToResultBoundary(msgs, i, end)

		ok := true
		for _, msg := range msgs[i:end] {
			if msg.Pinned {
				ok = false
				break
			}
		}
		if ok && end-i >= minBandSize {
			return i, end
		}
		i++
	}
	return -1, -1
}

// extendToResultBoundary grows end so a tool_calls batch starting inside
// [start,end) is never split from its tool results.
func (m *Manager) extendToResultBoundary(msgs []message.Message, start, end int) int {
	for idx := start; idx < end && idx < len(msgs); idx++ {
		msg := msgs[idx]
		if msg.Role != message.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		need := end
		for j := idx + 1; j < len(msgs) && j < idx+1+len(msg.ToolCalls); j++ {
			need = j + 1
		}
		if need > end {
			end = need
		}
	}
	if end > len(msgs) {
		end = len(msgs)
	}
	return end
}

// spoolOversizedResultsLocked replaces any still-inline tool result payload
// larger than the spooler's threshold with a handle reference. Reports
// whether it spooled anything.
func (m *Manager) spoolOversizedResultsLocked() bool {
	if m.spooler == nil {
		return false
	}
	msgs := m.history.Messages()
	changed := false
	for i := range msgs {
		tr := msgs[i].ToolResult
		if tr == nil || tr.SpoolHandle != "" {
			continue
		}
		if !spool.ShouldSpool(len(tr.Content)) {
			continue
		}
		preview, err := m.spooler.Create(tr.Content)
		if err != nil {
			continue
		}
		tr.SpoolHandle = preview.Handle
		tr.Content = preview.HeadPreview + "\n...[spooled, use chunk_read]...\n" + preview.TailPreview
		tr.Status = message.StatusSpooled
		tr.Truncated = true
		msgs[i].ToolResult = tr
		changed = true
	}
	if changed {
		m.history.Replace(msgs)
	}
	return changed
}

// summarizeNextBandLocked calls the Summarizer over the next-oldest
// droppable band (relaxing the pinned exclusion is out of scope: pinned
// entries are never summarized away, only everything around them).
func (m *Manager) summarizeNextBandLocked(ctx context.Context) (bool, error) {
	if m.summarizer == nil {
		return false, nil
	}
	msgs := m.history.Messages()
	start, end := m.findDroppableBand(msgs)
	if start < 0 {
		return false, nil
	}

	band := msgs[start:end]
	summary, err := m.summarizer.Summarize(ctx, band)
	if err != nil {
		return false, fmt.Errorf("contextmgr: summarize band: %w", err)
	}
	summary.Summary = true

	next := make([]message.Message, 0, len(msgs)-(end-start)+1)
	next = append(next, msgs[:start]...)
	next = append(next, summary)
	next = append(next, msgs[end:]...)
	m.history.Replace(next)
	return true, nil
}

// refreshCacheBoundaryLocked marks the system prompt and any leading
// summary messages as the stable cache prefix.
func (m *Manager) refreshCacheBoundaryLocked() {
	msgs := m.history.Messages()
	boundary := 0
	for boundary < len(msgs) {
		if msgs[boundary].Role == message.RoleSystem || msgs[boundary].Summary {
			boundary++
			continue
		}
		break
	}
	for i := range msgs {
		msgs[i].CacheControl = i < boundary
	}
	m.history.Replace(msgs)
}

// Pin marks the most recently appended message as a decision-ledger entry
// that adaptive_trim must never drop.
func (m *Manager) Pin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.history.Messages()
	if len(msgs) == 0 {
		return
	}
	msgs[len(msgs)-1].Pinned = true
	m.history.Replace(msgs)
}
