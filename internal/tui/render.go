package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/tool/ui"
)

// entryKind classifies one transcript row.
type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryReasoning
	entryTool
	entryInfo
)

// entry is one rendered row of the conversation transcript.
type entry struct {
	kind     entryKind
	text     string
	toolName string
	toolArg  string
	done     bool
	status   message.ToolResultStatus
	detail   string
}

// describeCall phrases a tool call for its transcript row.
func describeCall(tc message.ToolCall) string {
	name, arg := callNameArg(tc)
	if arg == "" {
		return name
	}
	return fmt.Sprintf("%s(%s)", name, arg)
}

// callNameArg picks the one argument worth showing for a call.
func callNameArg(tc message.ToolCall) (name, arg string) {
	params, err := message.ParseToolInput(tc.Input)
	if err != nil {
		return tc.Name, ""
	}
	for _, key := range []string{"command", "file_path", "pattern", "url", "handle", "query"} {
		if v, ok := params[key].(string); ok && v != "" {
			return tc.Name, v
		}
	}
	return tc.Name, ""
}

// toolDetail is the short trailer shown after a finished tool row.
func toolDetail(r message.ToolResult) string {
	switch r.NormalizedStatus() {
	case message.StatusOK:
		return ""
	case message.StatusSpooled:
		return "output spooled"
	case message.StatusDenied:
		return "denied"
	case message.StatusTimeout:
		return "timed out"
	case message.StatusCanceled:
		return "cancelled"
	default:
		return firstLine(r.Content)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// renderTranscript draws the whole conversation into one string for the
// viewport.
func (m *model) renderTranscript() string {
	var b strings.Builder

	for _, e := range m.transcript {
		switch e.kind {
		case entryUser:
			b.WriteString(userPromptStyle.Render("> "))
			b.WriteString(e.text)
		case entryAssistant:
			b.WriteString(agentLabelStyle.Render("agent "))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(e.text))
		case entryReasoning:
			b.WriteString(reasoningStyle.Render(m.truncate("· "+collapseWhitespace(e.text), 3)))
		case entryTool:
			b.WriteString(m.renderToolRow(e))
		case entryInfo:
			b.WriteString(mutedStyle.Render("— " + e.text))
		}
		b.WriteString("\n")
	}

	// In-flight deltas render live below the committed transcript.
	if m.reasoning.Len() > 0 {
		b.WriteString(reasoningStyle.Render(m.truncate("· "+collapseWhitespace(m.reasoning.String()), 3)))
		b.WriteString("\n")
	}
	if m.streamText.Len() > 0 {
		b.WriteString(agentLabelStyle.Render("agent "))
		b.WriteString("\n")
		b.WriteString(m.streamText.String())
		b.WriteString("\n")
	}
	return b.String()
}

func (m *model) renderToolRow(e entry) string {
	if !e.done {
		// In flight: spinner plus the tool's own progress phrasing.
		return fmt.Sprintf("%s %s",
			spinnerStyle.Render("◌"),
			mutedStyle.Render(ui.GetProgressMessage(e.toolName, e.toolArg)))
	}
	marker := toolOKStyle.Render("●")
	switch e.status {
	case message.StatusOK, message.StatusSpooled:
	default:
		marker = toolErrStyle.Render("●")
	}
	row := fmt.Sprintf("%s %s", marker, m.truncate(e.text, 1))
	if e.detail != "" {
		row += mutedStyle.Render(" — " + e.detail)
	}
	return row
}

// renderMarkdown renders final assistant text; on any renderer error the
// raw text is shown instead.
func (m *model) renderMarkdown(text string) string {
	width := max(m.width-2, 40)
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// renderApproval draws the keyboard-capturing approval prompt.
func (m *model) renderApproval() string {
	req := m.approval.req
	var b strings.Builder
	b.WriteString(approvalStyle.Render(fmt.Sprintf("approve %s?", req.ToolName)))
	if req.Risk == "destructive" {
		b.WriteString(" " + toolErrStyle.Render("[destructive]"))
	}
	b.WriteString("\n  ")
	b.WriteString(m.truncate(req.Summary, 1))
	b.WriteString("\n  ")
	if m.feedbackEntry {
		b.WriteString(m.input.View())
	} else {
		b.WriteString(mutedStyle.Render("[y] approve  [a] always  [n] deny  [f] deny with feedback"))
	}
	return b.String()
}

func (m *model) renderStatus() string {
	parts := []string{modeBadgeStyle.Render(string(m.controller.Mode()) + " mode")}
	if m.busy {
		parts = append(parts, m.spin.View()+" working")
	}
	parts = append(parts, "shift+tab mode · esc cancel · ctrl+c exit")
	return statusStyle.Render(strings.Join(parts, "  ·  "))
}

// truncate bounds text to n display lines of the current width.
func (m *model) truncate(s string, lines int) string {
	width := max(m.width-4, 20)
	budget := width * lines
	if runewidth.StringWidth(s) <= budget {
		return s
	}
	return runewidth.Truncate(s, budget-1, "…")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
