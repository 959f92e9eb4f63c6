package tool

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// TodoTask is one tracked work item, with optional dependency edges to
// other tasks.
type TodoTask struct {
	ID          string         `json:"id"`
	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	ActiveForm  string         `json:"activeForm,omitempty"`
	Status      string         `json:"status"`
	Owner       string         `json:"owner,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Blocks      []string       `json:"blocks,omitempty"`
	BlockedBy   []string       `json:"blockedBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

const (
	TodoStatusPending    = "pending"
	TodoStatusInProgress = "in_progress"
	TodoStatusCompleted  = "completed"
	TodoStatusDeleted    = "deleted"
)

// TodoStore holds the session's task list. Deletion is a soft status so
// task ids stay stable for the whole session.
type TodoStore struct {
	mu     sync.RWMutex
	tasks  map[string]*TodoTask
	nextID int
}

// NewTodoStore creates an empty store.
func NewTodoStore() *TodoStore {
	return &TodoStore{tasks: make(map[string]*TodoTask), nextID: 1}
}

// DefaultTodoStore is the session-wide store the todo tools share.
var DefaultTodoStore = NewTodoStore()

// Create adds a pending task and returns it.
func (s *TodoStore) Create(subject, description, activeForm string, metadata map[string]any) *TodoTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	t := &TodoTask{
		ID:          strconv.Itoa(s.nextID),
		Subject:     subject,
		Description: description,
		ActiveForm:  activeForm,
		Status:      TodoStatusPending,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.nextID++
	s.tasks[t.ID] = t
	return t
}

// Get retrieves a live (non-deleted) task.
func (s *TodoStore) Get(id string) (*TodoTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok || t.Status == TodoStatusDeleted {
		return nil, false
	}
	return t, true
}

// Update applies the given options to a task and bumps UpdatedAt.
func (s *TodoStore) Update(id string, opts ...UpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	for _, opt := range opts {
		opt(t)
	}
	t.UpdatedAt = time.Now()
	return nil
}

// List returns live tasks in id order.
func (s *TodoStore) List() []*TodoTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*TodoTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Status != TodoStatusDeleted {
			out = append(out, t)
		}
	}
	sortByID(out)
	return out
}

// sortByID orders tasks numerically when ids parse as integers, falling
// back to lexical order for imported non-numeric ids.
func sortByID(tasks []*TodoTask) {
	sort.Slice(tasks, func(i, j int) bool {
		a, aerr := strconv.Atoi(tasks[i].ID)
		b, berr := strconv.Atoi(tasks[j].ID)
		if aerr == nil && berr == nil {
			return a < b
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// openBlockersLocked returns the live, uncompleted tasks blocking id.
// Caller holds at least a read lock.
func (s *TodoStore) openBlockersLocked(id string) []string {
	t, ok := s.tasks[id]
	if !ok || t.Status == TodoStatusDeleted {
		return nil
	}
	var open []string
	for _, blockerID := range t.BlockedBy {
		blocker, ok := s.tasks[blockerID]
		if ok && blocker.Status != TodoStatusCompleted && blocker.Status != TodoStatusDeleted {
			open = append(open, blockerID)
		}
	}
	return open
}

// IsBlocked reports whether the task has any open blockers.
func (s *TodoStore) IsBlocked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.openBlockersLocked(id)) > 0
}

// OpenBlockers returns the ids of open tasks blocking the given one.
func (s *TodoStore) OpenBlockers(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openBlockersLocked(id)
}

// Delete soft-deletes a task.
func (s *TodoStore) Delete(id string) error {
	return s.Update(id, WithStatus(TodoStatusDeleted))
}

// Reset drops every task; called at session start.
func (s *TodoStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*TodoTask)
	s.nextID = 1
}

// Export snapshots every task, deleted included, for session persistence.
func (s *TodoStore) Export() []TodoTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ptrs := make([]*TodoTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		ptrs = append(ptrs, t)
	}
	sortByID(ptrs)

	out := make([]TodoTask, len(ptrs))
	for i, t := range ptrs {
		out[i] = *t
	}
	return out
}

// Import replaces the store's contents from a session snapshot, restoring
// the id counter past the highest numeric id seen.
func (s *TodoStore) Import(tasks []TodoTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*TodoTask, len(tasks))
	s.nextID = 1
	for i := range tasks {
		t := tasks[i]
		s.tasks[t.ID] = &t
		if n, err := strconv.Atoi(t.ID); err == nil && n >= s.nextID {
			s.nextID = n + 1
		}
	}
}

// UpdateOption mutates one task inside Update's critical section.
type UpdateOption func(*TodoTask)

// WithStatus sets the task status.
func WithStatus(status string) UpdateOption {
	return func(t *TodoTask) { t.Status = status }
}

// WithSubject sets the task subject.
func WithSubject(subject string) UpdateOption {
	return func(t *TodoTask) { t.Subject = subject }
}

// WithDescription sets the task description.
func WithDescription(description string) UpdateOption {
	return func(t *TodoTask) { t.Description = description }
}

// WithActiveForm sets the spinner text shown while in progress.
func WithActiveForm(activeForm string) UpdateOption {
	return func(t *TodoTask) { t.ActiveForm = activeForm }
}

// WithOwner assigns the task.
func WithOwner(owner string) UpdateOption {
	return func(t *TodoTask) { t.Owner = owner }
}

// WithMetadata merges metadata keys; a nil value deletes its key.
func WithMetadata(metadata map[string]any) UpdateOption {
	return func(t *TodoTask) {
		if t.Metadata == nil {
			t.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			if v == nil {
				delete(t.Metadata, k)
			} else {
				t.Metadata[k] = v
			}
		}
	}
}

// WithAddBlocks records tasks this one blocks.
func WithAddBlocks(ids []string) UpdateOption {
	return func(t *TodoTask) { t.Blocks = appendUnique(t.Blocks, ids) }
}

// WithAddBlockedBy records tasks that must finish before this one.
func WithAddBlockedBy(ids []string) UpdateOption {
	return func(t *TodoTask) { t.BlockedBy = appendUnique(t.BlockedBy, ids) }
}

func appendUnique(slice, ids []string) []string {
	existing := make(map[string]bool, len(slice))
	for _, id := range slice {
		existing[id] = true
	}
	for _, id := range ids {
		if !existing[id] {
			slice = append(slice, id)
			existing[id] = true
		}
	}
	return slice
}
