package runloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vtcode/vtcode/internal/client"
	"github.com/vtcode/vtcode/internal/config"
	"github.com/vtcode/vtcode/internal/contextmgr"
	"github.com/vtcode/vtcode/internal/executor"
	"github.com/vtcode/vtcode/internal/log"
	"github.com/vtcode/vtcode/internal/loopdetect"
	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/provider"
	"github.com/vtcode/vtcode/internal/safety"
	"github.com/vtcode/vtcode/internal/sanitizer"
	"github.com/vtcode/vtcode/internal/session"
	"github.com/vtcode/vtcode/internal/spool"
	"github.com/vtcode/vtcode/internal/tool"
)

// ControllerConfig wires a Session Controller. Provider+Model (or Client,
// for tests) select the LLM; everything else has a working default.
type ControllerConfig struct {
	Provider provider.LLMProvider
	Model    string
	// Client overrides Provider/Model when set; used by tests to plug in
	// a fake.
	Client LLM

	WorkspaceDir string
	TrustedDirs  []string
	Mode         Mode
	SystemPrompt string

	ToolRegistry *tool.Registry
	Approver     Approver
	Events       Sink
	Settings     *config.Settings

	Budget         contextmgr.Budget
	ExecutorConfig executor.Config
	LoopConfig     loopdetect.Config
	Orchestrator   OrchestratorConfig

	// MCPTools, when set, supplies additional tool schemas from connected
	// MCP servers (the spawn/return contract; wire details live outside
	// the runloop core).
	MCPTools func() []provider.Tool

	MaxConversationTurns   int
	MaxConsecutiveFailures int

	// SessionLogPath and AuditLogPath enable the persisted JSONL logs
	// when non-empty.
	SessionLogPath string
	AuditLogPath   string
}

// Controller owns the Session aggregate and serializes every mutation
// through its own calls: multi-turn loop, steering, mode switching, and
// session teardown. It is the single writer of conversation history.
type Controller struct {
	cfg ControllerConfig

	mu            sync.Mutex
	mode          Mode
	paused        bool
	stopped       bool
	pendingInject []string
	pendingMode   *Mode
	cancelCurrent context.CancelFunc

	history      *message.ConversationHistory
	contextMgr   *contextmgr.Manager
	gatekeeper   *safety.Gatekeeper
	executor     *executor.Executor
	detector     *loopdetect.Detector
	spooler      *spool.Spooler
	orchestrator *Orchestrator
	events       Sink
	approver     Approver

	eventLog *session.EventLog
	auditLog *session.EventLog

	turns               int
	consecutiveFailures int
	loggedMessages      int
}

// ErrSessionStopped is returned once a Stop steering command has been
// processed; the controller accepts no further turns.
var ErrSessionStopped = errors.New("runloop: session stopped")

// NewController builds the session aggregate: history, context manager,
// gatekeeper, executor, spooler, loop detector, and the orchestrator that
// ties them together.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Mode == "" {
		cfg.Mode = ModeAgent
	}
	if cfg.ToolRegistry == nil {
		cfg.ToolRegistry = tool.DefaultRegistry
	}
	if cfg.Approver == nil {
		cfg.Approver = denyAll{}
	}
	if cfg.Events == nil {
		cfg.Events = nopSink{}
	}
	if cfg.Budget == (contextmgr.Budget{}) {
		cfg.Budget = contextmgr.DefaultBudget()
	}
	if cfg.ExecutorConfig.MaxConcurrency == 0 {
		cfg.ExecutorConfig = executor.DefaultConfig()
	}
	if cfg.LoopConfig.R == 0 {
		cfg.LoopConfig = loopdetect.DefaultConfig()
	}
	if cfg.Orchestrator.MaxToolLoops == 0 {
		cfg.Orchestrator = DefaultOrchestratorConfig()
	}
	if cfg.MaxConversationTurns <= 0 {
		cfg.MaxConversationTurns = 200
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.Settings == nil {
		cfg.Settings = &config.Settings{}
	}

	c := &Controller{
		cfg:      cfg,
		mode:     cfg.Mode,
		history:  message.NewConversationHistory(""),
		approver: cfg.Approver,
	}

	c.events = SinkFunc(c.emit)

	spooler, err := spool.New()
	if err != nil {
		log.Logger().Warn("spooler unavailable; large outputs stay inline", zap.Error(err))
	} else {
		c.spooler = spooler
		cfg.ToolRegistry.Register(tool.NewChunkReadTool(spooler))
	}

	var llm LLM
	var summarizer contextmgr.Summarizer
	if cfg.Client != nil {
		llm = cfg.Client
	} else {
		cl := &client.Client{Provider: cfg.Provider, Model: cfg.Model}
		llm = cl
		summarizer = contextmgr.NewLLMSummarizer(cl, 2048)
	}

	c.contextMgr = contextmgr.New(c.history, contextmgr.DefaultEstimator{}, cfg.Budget, summarizer, c.spooler)
	c.gatekeeper = safety.New(cfg.Settings, config.NewSessionPermissions(), safety.PathScope{
		WorkspaceRoot: cfg.WorkspaceDir,
		TrustedDirs:   cfg.TrustedDirs,
	})
	c.executor = executor.New(cfg.ToolRegistry, c.spooler, cfg.ExecutorConfig)
	c.detector = loopdetect.New(cfg.LoopConfig)

	if cfg.SessionLogPath != "" {
		if l, err := session.OpenEventLog(cfg.SessionLogPath); err == nil {
			c.eventLog = l
		} else {
			log.Logger().Warn("session log disabled", zap.Error(err))
		}
	}
	if cfg.AuditLogPath != "" {
		if l, err := session.OpenEventLog(cfg.AuditLogPath); err == nil {
			c.auditLog = l
		} else {
			log.Logger().Warn("audit log disabled", zap.Error(err))
		}
	}
	c.gatekeeper.OnAudit(func(rec safety.AuditRecord) {
		if c.auditLog == nil {
			return
		}
		_ = c.auditLog.Append("gatekeeper_decision", redactAudit(rec))
	})

	c.orchestrator = &Orchestrator{
		llm:          llm,
		contextMgr:   c.contextMgr,
		history:      c.history,
		registry:     cfg.ToolRegistry,
		gatekeeper:   c.gatekeeper,
		executor:     c.executor,
		detector:     c.detector,
		spooler:      c.spooler,
		approver:     approverWithSteering(c),
		events:       c.events,
		systemPrompt: cfg.SystemPrompt,
		cwd:          cfg.WorkspaceDir,
		mode:         c.Mode,
		mcpTools:     cfg.MCPTools,
		cfg:          cfg.Orchestrator,
		state:        StateIdle,
	}

	return c
}

// emit tees every event to the configured sink and the session log.
func (c *Controller) emit(e Event) {
	c.cfg.Events.Emit(e)
	if c.eventLog != nil {
		_ = c.eventLog.Append(Kind(e), e)
	}
}

// redactAudit applies the sanitizer to every string argument so secrets
// never land in the audit log verbatim.
func redactAudit(rec safety.AuditRecord) safety.AuditRecord {
	if len(rec.Args) == 0 {
		return rec
	}
	clean := make(map[string]any, len(rec.Args))
	for k, v := range rec.Args {
		if s, ok := v.(string); ok {
			clean[k] = sanitizer.Redact(s)
			continue
		}
		clean[k] = v
	}
	rec.Args = clean
	return rec
}

// approverWithSteering wraps the configured approver so a Stop steering
// command received while an approval is pending cancels the wait.
func approverWithSteering(c *Controller) Approver {
	return ApproverFunc(func(ctx context.Context, req ApprovalRequest) ApprovalDecision {
		if c.isStopped() {
			return DeniedWithFeedback("session stopped")
		}
		return c.approver.Approve(ctx, req)
	})
}

// Mode returns the current session mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// History returns a snapshot of the conversation history.
func (c *Controller) History() []message.Message {
	return c.history.Messages()
}

// Gatekeeper exposes the session's Safety Gatekeeper (for audit queries).
func (c *Controller) Gatekeeper() *safety.Gatekeeper { return c.gatekeeper }

// Steer applies one steering command. Stop, Pause, Resume, and
// CancelCurrentTool take effect immediately; InjectUserMessage and
// SwitchMode are queued and applied at the next turn boundary.
func (c *Controller) Steer(cmd SteeringCommand) {
	c.mu.Lock()
	switch cmd.Kind {
	case SteerStop:
		c.stopped = true
		if c.cancelCurrent != nil {
			c.cancelCurrent()
		}
	case SteerPause:
		c.paused = true
	case SteerResume:
		c.paused = false
	case SteerCancelCurrentTool:
		if c.cancelCurrent != nil {
			c.cancelCurrent()
		}
	case SteerInjectUserMessage:
		if cmd.Text != "" {
			c.pendingInject = append(c.pendingInject, cmd.Text)
		}
	case SteerSwitchMode:
		mode := cmd.Mode
		c.pendingMode = &mode
	}
	c.mu.Unlock()

	c.events.Emit(SteeringAckEvent{Command: cmd})
}

func (c *Controller) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// applyQueuedSteering runs at the turn boundary: injected user messages
// are appended, and a queued mode switch is applied. Leaving Plan mode
// requires an explicit confirmation round through the approver.
func (c *Controller) applyQueuedSteering(ctx context.Context) {
	c.mu.Lock()
	inject := c.pendingInject
	c.pendingInject = nil
	pendingMode := c.pendingMode
	c.pendingMode = nil
	current := c.mode
	c.mu.Unlock()

	for _, text := range inject {
		c.history.Append(message.UserMessage(text, nil))
	}

	if pendingMode == nil || *pendingMode == current {
		return
	}
	if current == ModePlan {
		req := ApprovalRequest{
			ToolName: "SwitchMode",
			Summary:  fmt.Sprintf("leave plan mode and switch to %s", *pendingMode),
			Risk:     "normal",
		}
		c.events.Emit(ApprovalRequestEvent{Request: req})
		if c.approver.Approve(ctx, req).Kind == ApprovalDeny {
			return
		}
	}
	c.mu.Lock()
	c.mode = *pendingMode
	c.mu.Unlock()
}

// waitWhilePaused blocks at the turn boundary while the session is
// paused, polling for Resume/Stop.
func (c *Controller) waitWhilePaused(ctx context.Context) error {
	for {
		c.mu.Lock()
		paused, stopped := c.paused, c.stopped
		c.mu.Unlock()
		if stopped {
			return ErrSessionStopped
		}
		if !paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		// Cooperative poll; steering commands flip the flags directly.
		if err := sleepCtx(ctx); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

// RunTurn appends the user's message and drives the Turn Orchestrator for
// one full turn (all tool loops included).
func (c *Controller) RunTurn(ctx context.Context, userText string) (*TurnResult, error) {
	return c.RunTurnWithImages(ctx, userText, nil)
}

// RunTurnWithImages is RunTurn with inline image attachments on the user
// message (multimodal input from the TUI's @file references).
func (c *Controller) RunTurnWithImages(ctx context.Context, userText string, images []message.ImageData) (*TurnResult, error) {
	if c.isStopped() {
		return nil, ErrSessionStopped
	}
	if err := c.waitWhilePaused(ctx); err != nil {
		return nil, err
	}
	c.applyQueuedSteering(ctx)

	if userText != "" {
		c.history.Append(message.UserMessage(userText, images))
	}

	turnCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelCurrent = cancel
	c.mu.Unlock()

	result, err := c.orchestrator.RunTurn(turnCtx)
	cancel()
	c.mu.Lock()
	c.cancelCurrent = nil
	c.mu.Unlock()

	c.turns++
	c.persistNewMessages()
	c.events.Emit(TurnEndEvent{State: result.State, ToolLoops: result.ToolLoops})

	if err != nil && result.State == StateFailed {
		c.consecutiveFailures++
	} else if err == nil {
		c.consecutiveFailures = 0
	}

	if result.AbortReason != "" {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
		c.events.Emit(SessionEndEvent{Reason: "LoopAborted: " + result.AbortReason})
	}

	return result, err
}

// InputSource supplies user inputs to the multi-turn loop. Next blocks
// until input is available; ok=false ends the session.
type InputSource interface {
	Next(ctx context.Context) (text string, ok bool)
}

// Run drives the top-level session loop: read input, run a turn, repeat,
// until an exit condition fires (user exit, Stop, turn cap, repeated
// unrecoverable failures, or a loop-detector abort).
func (c *Controller) Run(ctx context.Context, input InputSource) error {
	defer c.Close("session ended")

	for {
		if c.isStopped() {
			return nil
		}
		if c.turns >= c.cfg.MaxConversationTurns {
			c.events.Emit(SessionEndEvent{Reason: "max_conversation_turns reached"})
			return nil
		}
		if c.consecutiveFailures >= c.cfg.MaxConsecutiveFailures {
			c.events.Emit(SessionEndEvent{Reason: "too many consecutive failures"})
			return fmt.Errorf("runloop: %d consecutive failed turns", c.consecutiveFailures)
		}

		text, ok := input.Next(ctx)
		if !ok {
			return nil
		}

		if _, err := c.RunTurn(ctx, text); err != nil {
			if errors.Is(err, ErrSessionStopped) || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Logger().Error("turn error", zap.Error(err))
		}
	}
}

// persistNewMessages appends messages added since the last call to the
// session log, sanitized.
func (c *Controller) persistNewMessages() {
	if c.eventLog == nil {
		return
	}
	msgs := c.history.Messages()
	for ; c.loggedMessages < len(msgs); c.loggedMessages++ {
		m := msgs[c.loggedMessages]
		m.Content = sanitizer.Redact(m.Content)
		if m.ToolResult != nil {
			redacted := *m.ToolResult
			redacted.Content = sanitizer.Redact(redacted.Content)
			m.ToolResult = &redacted
		}
		_ = c.eventLog.Append(session.KindMessage, m)
	}
}

// Close tears the session down: spool files are purged, logs are flushed
// and closed, and a final SessionEnd event is emitted.
func (c *Controller) Close(reason string) {
	c.mu.Lock()
	if c.stopped && c.cancelCurrent == nil && c.spooler == nil && c.eventLog == nil && c.auditLog == nil {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	c.events.Emit(SessionEndEvent{Reason: reason})

	if c.spooler != nil {
		_ = c.spooler.Close()
		c.spooler = nil
	}
	if c.eventLog != nil {
		_ = c.eventLog.Close()
		c.eventLog = nil
	}
	if c.auditLog != nil {
		_ = c.auditLog.Close()
		c.auditLog = nil
	}
}
