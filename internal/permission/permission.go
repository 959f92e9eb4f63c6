// Package permission provides the minimal permission surface sub-agent
// runtimes consult before dispatching a tool call. The full policy engine
// (settings rules, path confinement, approval prompts) lives in the safety
// package; this one covers the embedded-loop cases where a coarse
// permit/reject/prompt answer is enough.
package permission

import "github.com/vtcode/vtcode/internal/tool"

// Checker decides whether a tool call is permitted.
type Checker interface {
	Check(name string, params map[string]any) Decision
}

// Decision is a coarse permission outcome.
type Decision int

const (
	// Permit auto-executes the tool call.
	Permit Decision = iota
	// Reject blocks the tool call.
	Reject
	// Prompt delegates to the caller for interactive approval.
	Prompt
)

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(name string, params map[string]any) Decision

// Check calls f.
func (f CheckerFunc) Check(name string, params map[string]any) Decision {
	return f(name, params)
}

// PermitAll returns a Checker that always permits.
func PermitAll() Checker {
	return CheckerFunc(func(string, map[string]any) Decision { return Permit })
}

// ReadOnly returns a Checker that permits read-only tools and rejects the
// rest; it backs Plan-mode sub-agents.
func ReadOnly() Checker {
	return CheckerFunc(func(name string, _ map[string]any) Decision {
		if IsReadOnlyTool(name) {
			return Permit
		}
		return Reject
	})
}

// DenyAll returns a Checker that always rejects.
func DenyAll() Checker {
	return CheckerFunc(func(string, map[string]any) Decision { return Reject })
}

// IsReadOnlyTool reports whether a tool only reads data. The answer comes
// from the tool registry's declared side-effect classes so this package
// and the orchestrator's read-pure parallelization never disagree.
func IsReadOnlyTool(name string) bool {
	return tool.ReadPure(name)
}
