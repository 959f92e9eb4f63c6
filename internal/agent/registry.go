package agent

import (
	"sort"
	"strings"
	"sync"
)

// builtinAgents are the agent types available without any user
// configuration. Explore/Plan/Review run read-only; general-purpose is
// denied the Task tool so sub-agents cannot spawn sub-agents.
var builtinAgents = []*AgentConfig{
	{
		Name:           "Explore",
		Description:    "Fast codebase exploration and understanding. Use for finding files, searching code, and answering questions about the codebase.",
		Model:          "inherit",
		PermissionMode: PermissionPlan,
		Tools: ToolAccess{
			Mode:  ToolAccessAllowlist,
			Allow: []string{"Read", "Glob", "Grep", "WebFetch", "WebSearch"},
		},
		MaxTurns: 30,
	},
	{
		Name:           "Plan",
		Description:    "Software architect for designing implementation plans. Use for planning complex tasks, identifying critical files, and considering architectural trade-offs.",
		Model:          "inherit",
		PermissionMode: PermissionPlan,
		Tools: ToolAccess{
			Mode:  ToolAccessAllowlist,
			Allow: []string{"Read", "Glob", "Grep", "WebFetch", "WebSearch"},
		},
		MaxTurns: 50,
	},
	{
		Name:           "Bash",
		Description:    "Command execution specialist for running bash commands, git operations, and terminal tasks.",
		Model:          "inherit",
		PermissionMode: PermissionDefault,
		Tools: ToolAccess{
			Mode:  ToolAccessAllowlist,
			Allow: []string{"Bash", "Read", "Glob", "Grep"},
		},
		MaxTurns: 30,
	},
	{
		Name:           "Review",
		Description:    "Code review specialist for analyzing code changes, identifying issues, and suggesting improvements.",
		Model:          "inherit",
		PermissionMode: PermissionPlan,
		Tools: ToolAccess{
			Mode:  ToolAccessAllowlist,
			Allow: []string{"Read", "Glob", "Grep", "Bash"},
		},
		MaxTurns: 30,
	},
	{
		Name:           "general-purpose",
		Description:    "General-purpose agent for researching complex questions, searching for code, and executing multi-step tasks.",
		Model:          "inherit",
		PermissionMode: PermissionDefault,
		Tools: ToolAccess{
			Mode: ToolAccessDenylist,
			Deny: []string{"Task"},
		},
		MaxTurns: 50,
	},
}

// Registry holds agent type definitions plus the user- and project-level
// enabled/disabled state. Lookup is case-insensitive.
type Registry struct {
	mu           sync.RWMutex
	agents       map[string]*AgentConfig
	userStore    *AgentStore
	projectStore *AgentStore
	cwd          string
}

// NewRegistry creates a registry pre-seeded with the built-in agents.
func NewRegistry() *Registry {
	r := &Registry{agents: make(map[string]*AgentConfig)}
	for _, cfg := range builtinAgents {
		r.agents[strings.ToLower(cfg.Name)] = cfg
	}
	return r
}

// DefaultRegistry is the global agent registry.
var DefaultRegistry = NewRegistry()

// Register adds or replaces an agent configuration.
func (r *Registry) Register(config *AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[strings.ToLower(config.Name)] = config
}

// Get looks an agent up by name.
func (r *Registry) Get(name string) (*AgentConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.agents[strings.ToLower(name)]
	return config, ok
}

// List returns registered agent names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListConfigs returns every registered configuration, sorted by name.
func (r *Registry) ListConfigs() []*AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedConfigsLocked(false)
}

// ListEnabled returns configurations not disabled at any level.
func (r *Registry) ListEnabled() []*AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedConfigsLocked(true)
}

func (r *Registry) sortedConfigsLocked(enabledOnly bool) []*AgentConfig {
	configs := make([]*AgentConfig, 0, len(r.agents))
	for name, config := range r.agents {
		if enabledOnly && r.disabledLocked(name) {
			continue
		}
		configs = append(configs, config)
	}
	sort.Slice(configs, func(i, j int) bool {
		return strings.ToLower(configs[i].Name) < strings.ToLower(configs[j].Name)
	})
	return configs
}

// InitStores attaches the user- and project-level state stores.
func (r *Registry) InitStores(cwd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cwd = cwd
	r.userStore = NewUserAgentStore()
	r.projectStore = NewProjectAgentStore(cwd)
	return nil
}

// disabledLocked resolves the two stores: an agent is disabled if either
// the project or the user store disables it.
func (r *Registry) disabledLocked(name string) bool {
	if r.projectStore != nil && r.projectStore.IsDisabled(name) {
		return true
	}
	return r.userStore != nil && r.userStore.IsDisabled(name)
}

// IsEnabled reports whether an agent is enabled. Agents are enabled
// unless explicitly disabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabledLocked(strings.ToLower(name))
}

// SetEnabled flips an agent's state at the user or project level.
func (r *Registry) SetEnabled(name string, enabled bool, userLevel bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.projectStore
	if userLevel {
		store = r.userStore
	}
	if store == nil {
		return nil
	}
	return store.SetDisabled(strings.ToLower(name), !enabled)
}

// GetDisabledAt returns the disabled set for one level.
func (r *Registry) GetDisabledAt(userLevel bool) map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store := r.projectStore
	if userLevel {
		store = r.userStore
	}
	if store == nil {
		return make(map[string]bool)
	}
	return store.GetDisabled()
}

// GetAgentPromptForLLM renders the enabled agents as a prompt fragment so
// the model knows what the Task tool can spawn.
func (r *Registry) GetAgentPromptForLLM() string {
	var sb strings.Builder
	sb.WriteString("Available agent types:\n")
	for _, config := range r.ListEnabled() {
		sb.WriteString("- ")
		sb.WriteString(config.Name)
		sb.WriteString(": ")
		sb.WriteString(config.Description)
		sb.WriteString("\n")
	}
	return sb.String()
}
