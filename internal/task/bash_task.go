package task

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/vtcode/vtcode/internal/sanitizer"
)

// BashTask is a shell command running in the background. Output is
// redacted before it is buffered, so secrets a command prints never reach
// conversation history or the session log.
type BashTask struct {
	ID          string
	Command     string
	Description string
	PID         int
	StartTime   time.Time
	Cmd         *exec.Cmd
	Ctx         context.Context
	Cancel      context.CancelFunc

	mu       sync.RWMutex
	status   TaskStatus
	endTime  time.Time
	exitCode int
	errText  string
	output   bytes.Buffer
	done     *completion
}

var _ BackgroundTask = (*BashTask)(nil)

// setProcessGroup places cmd in its own process group so the signal
// ladder addresses the whole process tree.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// NewBashTask wraps an already-started command. The command must run in
// its own process group so the signal ladder can address the whole tree.
func NewBashTask(id, command, description string, cmd *exec.Cmd, ctx context.Context, cancel context.CancelFunc) *BashTask {
	return &BashTask{
		ID:          id,
		Command:     command,
		Description: description,
		PID:         cmd.Process.Pid,
		StartTime:   time.Now(),
		Cmd:         cmd,
		Ctx:         ctx,
		Cancel:      cancel,
		status:      StatusRunning,
		done:        newCompletion(),
	}
}

func (t *BashTask) GetID() string          { return t.ID }
func (t *BashTask) GetType() TaskType      { return TaskTypeBash }
func (t *BashTask) GetDescription() string { return t.Description }

// AppendOutput buffers command output after secret redaction.
func (t *BashTask) AppendOutput(data []byte) {
	clean := sanitizer.Redact(string(data))
	t.mu.Lock()
	t.output.WriteString(clean)
	t.mu.Unlock()
}

func (t *BashTask) GetOutput() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.output.String()
}

// Complete records the command's exit and releases waiters.
func (t *BashTask) Complete(exitCode int, err error) {
	t.mu.Lock()
	t.endTime = time.Now()
	t.exitCode = exitCode
	switch {
	case err != nil:
		t.status = StatusFailed
		t.errText = err.Error()
	case exitCode != 0:
		t.status = StatusFailed
	default:
		t.status = StatusCompleted
	}
	t.mu.Unlock()
	t.done.signal()
}

// MarkKilled records a forced termination and releases waiters.
func (t *BashTask) MarkKilled() {
	t.mu.Lock()
	t.status = StatusKilled
	t.endTime = time.Now()
	t.mu.Unlock()
	t.done.signal()
}

func (t *BashTask) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status == StatusRunning
}

func (t *BashTask) WaitForCompletion(timeout time.Duration) bool {
	return t.done.wait(timeout)
}

// signalGroup delivers sig to the task's process group, tolerating a group
// that already exited.
func (t *BashTask) signalGroup(sig syscall.Signal) error {
	if t.PID <= 0 {
		return nil
	}
	if err := syscall.Kill(-t.PID, sig); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}

// Stop walks the cancellation ladder: SIGINT, then after a grace period
// SIGTERM. Kill is the caller's escalation if the group still survives.
func (t *BashTask) Stop() error {
	if t.Cancel != nil {
		t.Cancel()
	}
	if err := t.signalGroup(syscall.SIGINT); err != nil {
		return err
	}
	if t.done.wait(2 * time.Second) {
		return nil
	}
	return t.signalGroup(syscall.SIGTERM)
}

// Kill sends SIGKILL to the process group and marks the task killed.
func (t *BashTask) Kill() error {
	if t.Cancel != nil {
		t.Cancel()
	}
	if err := t.signalGroup(syscall.SIGKILL); err != nil {
		return err
	}
	t.MarkKilled()
	return nil
}

func (t *BashTask) GetStatus() TaskInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TaskInfo{
		ID:          t.ID,
		Type:        TaskTypeBash,
		Command:     t.Command,
		Description: t.Description,
		Status:      t.status,
		PID:         t.PID,
		StartTime:   t.StartTime,
		EndTime:     t.endTime,
		ExitCode:    t.exitCode,
		Error:       t.errText,
		Output:      t.output.String(),
	}
}
