// Package executor implements the Tool Executor: the per-call wrapper that
// gates a single tool invocation through its circuit breaker, rate limiter,
// and soft/hard timeout ladder, then hands oversized output to the Output
// Spooler (spec.md §4.4). Concurrency shape (semaphore backpressure,
// panic recovery, ordered results) is grounded on
// haasonsaas-nexus/internal/agent/executor.go; the breaker itself lives in
// this package's circuit.go, generalized from the same pack's
// internal/infra/circuit.go registry shape.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/sanitizer"
	"github.com/vtcode/vtcode/internal/spool"
	"github.com/vtcode/vtcode/internal/tool"
	"github.com/vtcode/vtcode/internal/tool/ui"
)

// RateLimitClass configures a token bucket for one tool-class (spec.md §4.4
// step 2: "burst + sustained rate configurable per tool class").
type RateLimitClass struct {
	Burst      int
	Sustained  rate.Limit // events/sec
}

// DefaultRateLimitClass allows a generous default so tools are not
// throttled unless configured otherwise.
func DefaultRateLimitClass() RateLimitClass {
	return RateLimitClass{Burst: 20, Sustained: rate.Limit(20)}
}

// Config configures an Executor instance.
type Config struct {
	MaxConcurrency  int
	DefaultTimeout  time.Duration
	SoftTimeout     time.Duration // grace period before hard abort
	InlineThreshold int
	CircuitConfig   CircuitConfig
	RateLimitClass  RateLimitClass
}

// DefaultConfig mirrors the spec's per-tool timeout/rate-limit/circuit
// defaults (spec.md §6).
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:  8,
		DefaultTimeout:  30 * time.Second,
		SoftTimeout:     5 * time.Second,
		InlineThreshold: spool.DefaultInlineThreshold,
		CircuitConfig:   DefaultCircuitConfig(),
		RateLimitClass:  DefaultRateLimitClass(),
	}
}

// Dispatcher is the minimal surface the executor needs from the Tool
// Registry; satisfied by *tool.Registry and the package-level default.
type Dispatcher interface {
	Get(name string) (tool.Tool, bool)
}

// Executor invokes single tool calls with circuit-breaker, rate-limit,
// timeout, and spool-handoff protection.
type Executor struct {
	registry   Dispatcher
	cfg        Config
	breakers   *Registry
	limiters   sync.Map // tool name -> *rate.Limiter
	spooler    *spool.Spooler
	toolConfig sync.Map // tool name -> *Config override
}

// New creates an Executor bound to a tool registry and spooler.
func New(registry Dispatcher, spooler *spool.Spooler, cfg Config) *Executor {
	return &Executor{
		registry: registry,
		cfg:      cfg,
		breakers: NewRegistry(cfg.CircuitConfig),
		spooler:  spooler,
	}
}

// ConfigureTool overrides timeout/rate-limit settings for a single tool
// name (e.g. a longer timeout for a build tool, tighter rate limit for a
// network-bound one).
func (e *Executor) ConfigureTool(name string, cfg Config) {
	e.toolConfig.Store(name, &cfg)
}

func (e *Executor) configFor(name string) Config {
	if v, ok := e.toolConfig.Load(name); ok {
		return *v.(*Config)
	}
	return e.cfg
}

func (e *Executor) limiterFor(name string) *rate.Limiter {
	if v, ok := e.limiters.Load(name); ok {
		return v.(*rate.Limiter)
	}
	cfg := e.configFor(name)
	lim := rate.NewLimiter(cfg.RateLimitClass.Sustained, cfg.RateLimitClass.Burst)
	actual, _ := e.limiters.LoadOrStore(name, lim)
	return actual.(*rate.Limiter)
}

// Execute runs a single tool call end to end, returning a ToolResult ready
// to append to conversation history. It never panics: a recovered panic is
// converted into an io_error-class ToolResult (spec.md §7: "Panics are
// caught at turn boundaries").
func (e *Executor) Execute(ctx context.Context, tc message.ToolCall, cwd string) message.ToolResult {
	start := time.Now()
	cfg := e.configFor(tc.Name)
	breaker := e.breakers.Get(tc.Name)

	if !breaker.Allow() {
		return message.ToolResult{
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Content:    fmt.Sprintf("circuit_open: tool %q is temporarily disabled after repeated failures", tc.Name),
			IsError:    true,
			Status:     message.StatusError,
			Duration:   time.Since(start),
		}
	}

	limiter := e.limiterFor(tc.Name)
	if !limiter.Allow() {
		return message.ToolResult{
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Content:    fmt.Sprintf("rate_limited: tool %q exceeded its call rate", tc.Name),
			IsError:    true,
			Status:     message.StatusError,
			Duration:   time.Since(start),
		}
	}

	params, err := message.ParseToolInput(tc.Input)
	if err != nil {
		breaker.RecordFailure()
		return message.ToolResult{
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Content:    fmt.Sprintf("invalid_arguments: %v", err),
			IsError:    true,
			Status:     message.StatusError,
			Duration:   time.Since(start),
		}
	}

	t, ok := e.registry.Get(tc.Name)
	if !ok {
		breaker.RecordFailure()
		return message.ToolResult{
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Content:    fmt.Sprintf("not_found: unknown tool %q", tc.Name),
			IsError:    true,
			Status:     message.StatusError,
			Duration:   time.Since(start),
		}
	}

	timeout := cfg.DefaultTimeout
	if timeoutMs, ok := params["timeout"].(float64); ok && timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	result, status, err := e.runWithTimeout(ctx, t, params, cwd, timeout, cfg.SoftTimeout)
	duration := time.Since(start)

	if err != nil {
		breaker.RecordFailure()
		return message.ToolResult{
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Content:    sanitizer.Redact(err.Error()),
			IsError:    true,
			Status:     status,
			Duration:   duration,
		}
	}
	if result.Success {
		breaker.RecordSuccess()
	} else {
		breaker.RecordFailure()
	}

	content := sanitizer.Redact(result.FormatForLLM())
	tr := message.ToolResult{
		ToolCallID:      tc.ID,
		ToolName:        tc.Name,
		IsError:         !result.Success,
		Status:          message.StatusOK,
		Duration:        duration,
		TokensEstimated: estimateTokens(content),
	}
	if !result.Success {
		tr.Status = message.StatusError
	}

	if e.spooler != nil && spool.ShouldSpool(len(content)) {
		preview, serr := e.spooler.Create(content)
		if serr == nil {
			tr.Status = message.StatusSpooled
			tr.SpoolHandle = preview.Handle
			tr.Truncated = true
			tr.Content = fmt.Sprintf(
				"[output spooled: %d bytes, %d chunks]\nhandle=%s\n--- head ---\n%s\n--- tail ---\n%s\nUse chunk_read(handle, offset) for more.",
				preview.TotalBytes, preview.TotalChunks, preview.Handle, preview.HeadPreview, preview.TailPreview,
			)
			return tr
		}
	}

	tr.Content = content
	return tr
}

// runWithTimeout runs the tool on its own goroutine, applying a soft
// cancellation at `timeout` and a hard abort (the goroutine is abandoned,
// its result discarded) at timeout+softGrace, and recovering panics.
func (e *Executor) runWithTimeout(
	ctx context.Context, t tool.Tool, params map[string]any, cwd string,
	timeout, softGrace time.Duration,
) (ui.ToolResult, message.ToolResultStatus, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type out struct {
		result ui.ToolResult
		err    error
	}
	ch := make(chan out, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- out{err: fmt.Errorf("io_error: tool panicked: %v\n%s", r, debug.Stack())}
			}
		}()
		if pat, ok := t.(tool.PermissionAwareTool); ok && pat.RequiresPermission() {
			ch <- out{result: pat.ExecuteApproved(execCtx, params, cwd)}
			return
		}
		ch <- out{result: t.Execute(execCtx, params, cwd)}
	}()

	select {
	case o := <-ch:
		return o.result, message.StatusOK, o.err
	case <-execCtx.Done():
		// Soft timeout elapsed; grant a hard-kill grace window for the
		// goroutine to observe cancellation and return before we give up
		// on it entirely.
		select {
		case o := <-ch:
			return o.result, message.StatusOK, o.err
		case <-time.After(softGrace):
			if ctx.Err() != nil {
				return ui.ToolResult{}, message.StatusCanceled, fmt.Errorf("cancelled: %w", ctx.Err())
			}
			return ui.ToolResult{}, message.StatusTimeout, fmt.Errorf("timeout: tool exceeded %s", timeout)
		}
	}
}

// estimateTokens uses the pluggable fallback tokenizer formula from
// spec.md §4.5 when no precise tokenizer is configured.
func estimateTokens(s string) int {
	chars := float64(len(s)) / 3.5
	words := float64(len(splitWords(s))) * 1.3
	if chars > words {
		return int(chars)
	}
	return int(words)
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}
