package task

import (
	"sync"
	"time"
)

// TaskType distinguishes shell-command tasks from sub-agent tasks.
type TaskType string

const (
	TaskTypeBash  TaskType = "bash"
	TaskTypeAgent TaskType = "agent"
)

// TaskStatus is a background task's lifecycle state.
type TaskStatus string

const (
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusKilled    TaskStatus = "killed"
)

// BackgroundTask is the common surface the Manager and the TaskOutput/
// TaskStop tools operate on. BashTask and AgentTask implement it.
type BackgroundTask interface {
	GetID() string
	GetType() TaskType
	GetDescription() string

	// GetStatus returns a point-in-time snapshot.
	GetStatus() TaskInfo
	IsRunning() bool

	// WaitForCompletion blocks until the task leaves StatusRunning or the
	// timeout elapses; it reports whether the task finished.
	WaitForCompletion(timeout time.Duration) bool

	// Stop requests a graceful shutdown (signal ladder for bash tasks,
	// context cancellation for agent tasks).
	Stop() error
	// Kill terminates immediately.
	Kill() error

	AppendOutput(data []byte)
	GetOutput() string
}

// TaskInfo is a snapshot of one task, with type-specific fields populated
// only for the matching TaskType.
type TaskInfo struct {
	ID          string
	Type        TaskType
	Description string
	Status      TaskStatus
	StartTime   time.Time
	EndTime     time.Time
	Output      string
	Error       string

	// bash
	Command  string
	PID      int
	ExitCode int

	// agent
	AgentName  string
	TurnCount  int
	TokenUsage int
}

// completion is a one-shot latch closed when a task leaves StatusRunning,
// so waiters block on a channel instead of polling.
type completion struct {
	once sync.Once
	ch   chan struct{}
}

func newCompletion() *completion {
	return &completion{ch: make(chan struct{})}
}

func (c *completion) signal() {
	c.once.Do(func() { close(c.ch) })
}

func (c *completion) wait(timeout time.Duration) bool {
	select {
	case <-c.ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
