package task

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/vtcode/vtcode/internal/sanitizer"
)

// ProgressUpdate is one item on an AgentTask subscriber channel.
type ProgressUpdate struct {
	Message string
	Done    bool
}

// AgentTask is a sub-agent conversation running in the background. The
// spawn/return contract is narrow: the spawner registers the task, the
// agent runtime appends output and progress, and TaskOutput reads the
// snapshot.
type AgentTask struct {
	ID          string
	AgentName   string
	Description string
	StartTime   time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	status      TaskStatus
	endTime     time.Time
	turnCount   int
	tokenUsage  int
	errText     string
	output      bytes.Buffer
	subscribers []chan ProgressUpdate
	done        *completion
}

var _ BackgroundTask = (*AgentTask)(nil)

// NewAgentTask creates a running agent task bound to ctx.
func NewAgentTask(id, agentName, description string, ctx context.Context, cancel context.CancelFunc) *AgentTask {
	return &AgentTask{
		ID:          id,
		AgentName:   agentName,
		Description: description,
		StartTime:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		status:      StatusRunning,
		done:        newCompletion(),
	}
}

func (t *AgentTask) GetID() string          { return t.ID }
func (t *AgentTask) GetType() TaskType      { return TaskTypeAgent }
func (t *AgentTask) GetDescription() string { return t.Description }

// Subscribe returns a channel of progress updates, closed on completion.
func (t *AgentTask) Subscribe() <-chan ProgressUpdate {
	ch := make(chan ProgressUpdate, 100)
	t.mu.Lock()
	t.subscribers = append(t.subscribers, ch)
	t.mu.Unlock()
	return ch
}

// notify fans an update out to subscribers without blocking: a full
// channel drops the update rather than stalling the agent.
func (t *AgentTask) notify(msg string, doneFlag bool) {
	t.mu.RLock()
	subs := t.subscribers
	t.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- ProgressUpdate{Message: msg, Done: doneFlag}:
		default:
		}
	}
}

// AppendOutput buffers agent output (redacted) and notifies subscribers.
func (t *AgentTask) AppendOutput(data []byte) {
	if len(data) == 0 {
		return
	}
	clean := sanitizer.Redact(string(data))
	t.mu.Lock()
	t.output.WriteString(clean)
	t.mu.Unlock()
	t.notify(clean, false)
}

// AppendProgress sends an ephemeral progress line (not buffered).
func (t *AgentTask) AppendProgress(msg string) {
	t.notify(msg, false)
}

func (t *AgentTask) GetOutput() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.output.String()
}

// Complete finishes the task, notifies and closes all subscribers, and
// releases waiters.
func (t *AgentTask) Complete(err error) {
	t.mu.Lock()
	t.endTime = time.Now()
	if err != nil {
		t.status = StatusFailed
		t.errText = err.Error()
	} else {
		t.status = StatusCompleted
	}
	subs := t.subscribers
	t.subscribers = nil
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ProgressUpdate{Done: true}:
		default:
		}
		close(ch)
	}
	t.done.signal()
}

// MarkKilled records a forced termination and releases waiters.
func (t *AgentTask) MarkKilled() {
	t.mu.Lock()
	t.status = StatusKilled
	t.endTime = time.Now()
	t.mu.Unlock()
	t.done.signal()
}

func (t *AgentTask) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status == StatusRunning
}

func (t *AgentTask) WaitForCompletion(timeout time.Duration) bool {
	return t.done.wait(timeout)
}

// Stop cancels the agent's context; the agent loop observes it at its
// next suspension point.
func (t *AgentTask) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

// Kill cancels the context and marks the task killed immediately.
func (t *AgentTask) Kill() error {
	if t.cancel != nil {
		t.cancel()
	}
	t.MarkKilled()
	return nil
}

func (t *AgentTask) GetStatus() TaskInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TaskInfo{
		ID:          t.ID,
		Type:        TaskTypeAgent,
		Description: t.Description,
		Status:      t.status,
		StartTime:   t.StartTime,
		EndTime:     t.endTime,
		Error:       t.errText,
		Output:      t.output.String(),
		AgentName:   t.AgentName,
		TurnCount:   t.turnCount,
		TokenUsage:  t.tokenUsage,
	}
}

// UpdateProgress records the agent loop's turn and token counters.
func (t *AgentTask) UpdateProgress(turnCount, tokenUsage int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turnCount = turnCount
	t.tokenUsage = tokenUsage
}

// GetContext returns the task's context.
func (t *AgentTask) GetContext() context.Context { return t.ctx }

// GetCancel returns the task's cancel function.
func (t *AgentTask) GetCancel() context.CancelFunc { return t.cancel }
