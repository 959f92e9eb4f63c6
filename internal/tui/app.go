// Package tui is the interactive front end: a thin bubbletea adapter over
// the runloop Session Controller. It renders the controller's event feed
// and feeds user input, approvals, and steering back in; all agent
// behavior lives on the other side of that boundary.
package tui

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vtcode/vtcode/internal/image"
	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/provider"
	"github.com/vtcode/vtcode/internal/runloop"
	"github.com/vtcode/vtcode/internal/tool"
)

const (
	inputHeight  = 3
	statusHeight = 2
)

// imageRefPattern finds @path references to attachable images in input.
var imageRefPattern = regexp.MustCompile(`@(\S+\.(?:png|jpe?g|gif|webp))`)

// --- messages bridged into the bubbletea loop ---

type runloopEventMsg struct{ event runloop.Event }

type approvalAskMsg struct {
	req   runloop.ApprovalRequest
	reply chan<- runloop.ApprovalDecision
}

type turnDoneMsg struct {
	result *runloop.TurnResult
	err    error
}

// model is the whole TUI state: transcript, in-flight turn, and the
// pending approval, if any.
type model struct {
	controller Controller
	msgs       chan tea.Msg

	input    textarea.Model
	view     viewport.Model
	spin     spinner.Model
	width    int
	height   int
	ready    bool
	quitting bool

	transcript []entry
	streamText strings.Builder
	reasoning  strings.Builder
	busy       bool

	approval      *approvalAskMsg
	feedbackEntry bool
}

// Controller is the narrow surface the TUI needs from the session layer;
// satisfied by *runloop.Controller.
type Controller interface {
	RunTurnWithImages(ctx context.Context, text string, images []message.ImageData) (*runloop.TurnResult, error)
	Steer(cmd runloop.SteeringCommand)
	Mode() runloop.Mode
	Close(reason string)
}

// Run starts the interactive session: resolve a provider, build the
// Session Controller, and hand the terminal to bubbletea.
func Run() error {
	ctx := context.Background()

	llm, modelID, err := resolveProvider(ctx)
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	msgs := make(chan tea.Msg, 512)

	controller := runloop.NewController(runloop.ControllerConfig{
		Provider:     llm,
		Model:        modelID,
		WorkspaceDir: cwd,
		Mode:         runloop.ModeAgent,
		SystemPrompt: "You are an autonomous coding agent working in the user's terminal.",
		ToolRegistry: tool.DefaultRegistry,
		Events: runloop.SinkFunc(func(e runloop.Event) {
			msgs <- runloopEventMsg{event: e}
		}),
		Approver: runloop.ApproverFunc(func(ctx context.Context, req runloop.ApprovalRequest) runloop.ApprovalDecision {
			reply := make(chan runloop.ApprovalDecision, 1)
			msgs <- approvalAskMsg{req: req, reply: reply}
			select {
			case d := <-reply:
				return d
			case <-ctx.Done():
				return runloop.DeniedWithFeedback("cancelled before the approval was answered")
			}
		}),
	})
	defer controller.Close("session ended")

	m := newModel(controller, msgs)
	_, err = tea.NewProgram(m).Run()
	return err
}

// resolveProvider picks the pinned model, falling back to the first
// connected provider with a working default.
func resolveProvider(ctx context.Context) (provider.LLMProvider, string, error) {
	store, err := provider.NewStore()
	if err != nil {
		return nil, "", fmt.Errorf("load provider store: %w", err)
	}

	if current := store.GetCurrentModel(); current != nil {
		p, err := provider.GetProvider(ctx, current.Provider, current.AuthMethod)
		if err != nil {
			return nil, "", fmt.Errorf("provider %s not available: %w", current.Provider, err)
		}
		return p, current.ModelID, nil
	}

	for name, conn := range store.GetConnections() {
		p, err := provider.GetProvider(ctx, provider.Provider(name), conn.AuthMethod)
		if err == nil {
			return p, defaultModelFor(provider.Provider(name)), nil
		}
	}
	for _, meta := range provider.GetReadyProviders() {
		p, err := provider.GetProvider(ctx, meta.Provider, meta.AuthMethod)
		if err == nil {
			return p, defaultModelFor(meta.Provider), nil
		}
	}
	return nil, "", fmt.Errorf("no provider configured; set a provider API key in the environment or .env")
}

func defaultModelFor(p provider.Provider) string {
	switch p {
	case provider.ProviderOpenAI:
		return "gpt-4o"
	case provider.ProviderGoogle:
		return "gemini-2.0-flash"
	case provider.ProviderMoonshot:
		return "kimi-k2-0711-preview"
	default:
		return "claude-sonnet-4-20250514"
	}
}

func newModel(controller Controller, msgs chan tea.Msg) *model {
	input := textarea.New()
	input.Placeholder = "Ask anything. @file.png attaches an image. /help for commands."
	input.SetHeight(inputHeight - 1)
	input.ShowLineNumbers = false
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = spinnerStyle

	return &model{
		controller: controller,
		msgs:       msgs,
		input:      input,
		spin:       spin,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitMsg())
}

// waitMsg pumps the next bridged message into the tea loop.
func (m *model) waitMsg() tea.Cmd {
	return func() tea.Msg { return <-m.msgs }
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.view = viewport.New(msg.Width, max(msg.Height-inputHeight-statusHeight, 3))
		m.input.SetWidth(msg.Width - 2)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case runloopEventMsg:
		m.handleEvent(msg.event)
		return m, m.waitMsg()

	case approvalAskMsg:
		ask := msg
		m.approval = &ask
		m.feedbackEntry = false
		m.refresh()
		return m, m.waitMsg()

	case turnDoneMsg:
		m.finishTurn(msg)
		return m, m.waitMsg()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.busy {
			m.refresh()
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	// A pending approval captures the keyboard until answered.
	if m.approval != nil {
		return m.handleApprovalKey(key)
	}

	switch key.Type {
	case tea.KeyCtrlC:
		if m.busy {
			m.controller.Steer(runloop.SteeringCommand{Kind: runloop.SteerStop})
		}
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEsc:
		if m.busy {
			m.controller.Steer(runloop.SteeringCommand{Kind: runloop.SteerCancelCurrentTool})
			m.appendInfo("cancelling current tool")
			m.refresh()
		}
		return m, nil

	case tea.KeyShiftTab:
		m.cycleMode()
		m.refresh()
		return m, nil

	case tea.KeyEnter:
		if key.Alt {
			break // newline
		}
		return m.submit()

	case tea.KeyPgUp:
		m.view.HalfViewUp()
		return m, nil
	case tea.KeyPgDown:
		m.view.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

func (m *model) handleApprovalKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.feedbackEntry {
		switch key.Type {
		case tea.KeyEnter:
			m.answerApproval(runloop.DeniedWithFeedback(strings.TrimSpace(m.input.Value())))
			m.input.Reset()
			return m, nil
		case tea.KeyEsc:
			m.feedbackEntry = false
			m.input.Reset()
			m.refresh()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(key)
		return m, cmd
	}

	switch strings.ToLower(key.String()) {
	case "y":
		m.answerApproval(runloop.Approved)
	case "a":
		m.answerApproval(runloop.ApprovedAndRemember)
	case "n", "esc":
		m.answerApproval(runloop.Denied)
	case "f":
		m.feedbackEntry = true
		m.input.Reset()
		m.input.Placeholder = "Why not? (feedback goes back to the model)"
		m.refresh()
	}
	return m, nil
}

func (m *model) answerApproval(d runloop.ApprovalDecision) {
	if m.approval == nil {
		return
	}
	m.approval.reply <- d
	verdict := "approved"
	if d.Kind == runloop.ApprovalDeny {
		verdict = "denied"
	}
	m.appendInfo(fmt.Sprintf("%s %s", verdict, m.approval.req.Summary))
	m.approval = nil
	m.feedbackEntry = false
	m.input.Placeholder = "Ask anything. @file.png attaches an image. /help for commands."
	m.refresh()
}

func (m *model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	m.input.Reset()

	if strings.HasPrefix(text, "/") {
		m.runCommand(text)
		m.refresh()
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	}

	images := m.loadImageRefs(text)

	m.transcript = append(m.transcript, entry{kind: entryUser, text: text})
	m.busy = true
	m.streamText.Reset()
	m.reasoning.Reset()
	m.refresh()

	go func() {
		result, err := m.controller.RunTurnWithImages(context.Background(), text, images)
		m.msgs <- turnDoneMsg{result: result, err: err}
	}()
	return m, m.spin.Tick
}

// loadImageRefs attaches every readable @file.png-style reference.
func (m *model) loadImageRefs(text string) []message.ImageData {
	var images []message.ImageData
	for _, match := range imageRefPattern.FindAllStringSubmatch(text, -1) {
		info, err := image.Load(match[1])
		if err != nil {
			m.appendInfo(fmt.Sprintf("could not attach %s: %v", match[1], err))
			continue
		}
		images = append(images, info.ToProviderData())
		m.appendInfo(fmt.Sprintf("attached %s (%s)", match[1], image.FormatBytes(info.Size)))
	}
	return images
}

func (m *model) runCommand(text string) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/help":
		m.appendInfo("commands: /mode edit|plan|agent · /quit — keys: shift+tab cycles mode, esc cancels the running tool, ctrl+c exits")
	case "/mode":
		if len(fields) < 2 {
			m.appendInfo("current mode: " + string(m.controller.Mode()))
			return
		}
		switch fields[1] {
		case "edit":
			m.switchMode(runloop.ModeEdit)
		case "plan":
			m.switchMode(runloop.ModePlan)
		case "agent":
			m.switchMode(runloop.ModeAgent)
		default:
			m.appendInfo("unknown mode " + fields[1])
		}
	case "/quit", "/exit":
		m.quitting = true
		m.controller.Steer(runloop.SteeringCommand{Kind: runloop.SteerStop})
	default:
		m.appendInfo("unknown command " + fields[0] + "; try /help")
	}
}

// cycleMode walks Agent -> Plan -> Edit -> Agent, matching the
// shift+tab affordance.
func (m *model) cycleMode() {
	switch m.controller.Mode() {
	case runloop.ModeAgent:
		m.switchMode(runloop.ModePlan)
	case runloop.ModePlan:
		m.switchMode(runloop.ModeEdit)
	default:
		m.switchMode(runloop.ModeAgent)
	}
}

func (m *model) switchMode(mode runloop.Mode) {
	m.controller.Steer(runloop.SteeringCommand{Kind: runloop.SteerSwitchMode, Mode: mode})
	m.appendInfo("mode switch to " + string(mode) + " queued for the next turn")
}

// handleEvent folds one runloop event into the transcript.
func (m *model) handleEvent(e runloop.Event) {
	switch e := e.(type) {
	case runloop.AssistantTextEvent:
		m.streamText.WriteString(e.Delta)
	case runloop.ReasoningEvent:
		m.reasoning.WriteString(e.Delta)
	case runloop.ToolStartEvent:
		m.flushStream()
		name, arg := callNameArg(e.Call)
		m.transcript = append(m.transcript, entry{
			kind:     entryTool,
			text:     describeCall(e.Call),
			toolName: name,
			toolArg:  arg,
		})
	case runloop.ToolEndEvent:
		m.markToolDone(e.Result)
	case runloop.SteeringAckEvent:
		// Already narrated where the command was issued.
	case runloop.SessionEndEvent:
		m.appendInfo("session ended: " + e.Reason)
	}
	m.refresh()
}

// finishTurn commits streamed text as the assistant's final message.
func (m *model) finishTurn(done turnDoneMsg) {
	m.flushStream()
	m.busy = false
	if done.err != nil {
		m.appendInfo("turn failed: " + done.err.Error())
	} else if done.result != nil && done.result.AbortReason != "" {
		m.appendInfo("session aborted: " + done.result.AbortReason)
	}
	m.refresh()
}

// flushStream turns accumulated deltas into transcript entries.
func (m *model) flushStream() {
	if m.reasoning.Len() > 0 {
		m.transcript = append(m.transcript, entry{kind: entryReasoning, text: m.reasoning.String()})
		m.reasoning.Reset()
	}
	if m.streamText.Len() > 0 {
		m.transcript = append(m.transcript, entry{kind: entryAssistant, text: m.streamText.String()})
		m.streamText.Reset()
	}
}

// markToolDone updates the most recent unfinished tool entry in place.
func (m *model) markToolDone(result message.ToolResult) {
	for i := len(m.transcript) - 1; i >= 0; i-- {
		if m.transcript[i].kind == entryTool && !m.transcript[i].done {
			m.transcript[i].done = true
			m.transcript[i].status = result.NormalizedStatus()
			m.transcript[i].detail = toolDetail(result)
			return
		}
	}
}

func (m *model) appendInfo(text string) {
	m.transcript = append(m.transcript, entry{kind: entryInfo, text: text})
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.view.SetContent(m.renderTranscript())
	m.view.GotoBottom()
}

func (m *model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.view.View())
	b.WriteString("\n")
	if m.approval != nil {
		b.WriteString(m.renderApproval())
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	return b.String()
}
