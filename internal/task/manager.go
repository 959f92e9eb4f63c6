package task

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager is the registry of background tasks, bash and agent alike.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]BackgroundTask
}

// DefaultManager is the process-wide task registry the tools use.
var DefaultManager = NewManager()

// NewManager creates an empty task registry.
func NewManager() *Manager {
	return &Manager{tasks: make(map[string]BackgroundTask)}
}

// GenerateID returns a short unique task id.
func GenerateID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// RegisterTask adds an already-constructed task to the registry.
func (m *Manager) RegisterTask(t BackgroundTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.GetID()] = t
}

// Create wraps a started shell command in a BashTask and registers it.
func (m *Manager) Create(cmd *exec.Cmd, command, description string, ctx context.Context, cancel context.CancelFunc) *BashTask {
	t := NewBashTask(GenerateID(), command, description, cmd, ctx, cancel)
	m.RegisterTask(t)
	return t
}

// Get retrieves a task by id.
func (m *Manager) Get(id string) (BackgroundTask, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

// List returns all registered tasks.
func (m *Manager) List() []BackgroundTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]BackgroundTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out
}

// ListRunning returns tasks still in StatusRunning.
func (m *Manager) ListRunning() []BackgroundTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]BackgroundTask, 0)
	for _, t := range m.tasks {
		if t.IsRunning() {
			out = append(out, t)
		}
	}
	return out
}

// Kill stops a running task: graceful Stop first, Kill if it survives the
// grace window.
func (m *Manager) Kill(id string) error {
	t, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	if !t.IsRunning() {
		return fmt.Errorf("task already completed: %s", id)
	}

	if err := t.Stop(); err != nil {
		return t.Kill()
	}
	if t.WaitForCompletion(2 * time.Second) {
		return nil
	}
	return t.Kill()
}

// Remove deletes a task from the registry.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
}

// Cleanup drops completed tasks older than maxAge.
func (m *Manager) Cleanup(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, t := range m.tasks {
		info := t.GetStatus()
		if !t.IsRunning() && now.Sub(info.EndTime) > maxAge {
			delete(m.tasks, id)
		}
	}
}
