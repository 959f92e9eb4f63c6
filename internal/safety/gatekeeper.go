// Package safety implements the Safety Gatekeeper: the mode-hide, policy,
// path-confinement, and shell allow/deny resolution that precedes every
// tool execution (spec.md §4.3). It wraps the teacher's config.Settings
// rule engine and adds path canonicalization/confinement plus a
// destructive-command escalation identical in spirit to the teacher's own
// IsDestructiveCommand check, generalized into a standalone, auditable
// Decision type instead of config.PermissionResult alone.
package safety

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vtcode/vtcode/internal/config"
)

// Mode is the active session mode, mirroring the Session Controller's
// Edit/Plan/Agent modes (spec.md §4.1).
type Mode string

const (
	ModeEdit  Mode = "edit"
	ModePlan  Mode = "plan"
	ModeAgent Mode = "agent"
)

// DecisionKind is the gatekeeper's outcome for one pending tool call.
type DecisionKind string

const (
	Allow         DecisionKind = "allow"
	Prompt        DecisionKind = "prompt"
	Deny          DecisionKind = "deny"
	ModeRestricted DecisionKind = "mode_restricted"
)

// Decision is the full gatekeeper verdict plus the reason it was reached,
// so it can be both acted on and audited.
type Decision struct {
	Kind   DecisionKind
	Reason string
	Risk   string // classified_risk surfaced with an ApprovalRequest
}

// AuditRecord is one entry in the Safety Gatekeeper's audit log
// (spec.md §7/§8): every decision, its inputs, and its outcome.
type AuditRecord struct {
	Time     time.Time
	Tool     string
	Args     map[string]any
	Mode     Mode
	Decision Decision
}

// PathScope bounds which directories path-accepting tools may touch:
// the workspace root plus any additional trusted directories.
type PathScope struct {
	WorkspaceRoot string
	TrustedDirs   []string
}

// planModeTools is the read-only tool subset exposed while in Plan mode,
// plus the plan-proposal tool itself (spec.md §4.1).
var planModeTools = map[string]bool{
	"Read":         true,
	"ChunkRead":    true,
	"Glob":         true,
	"Grep":         true,
	"WebFetch":     true,
	"WebSearch":    true,
	"LSP":          true,
	"ProposePlan":  true,
	"ExitPlanMode": true,
	"TodoList":     true,
	"TodoGet":      true,
}

// pathArgFields lists the argument keys, by tool name, that carry
// filesystem paths requiring confinement checks.
var pathArgFields = map[string][]string{
	"Read":  {"file_path"},
	"Edit":  {"file_path"},
	"Write": {"file_path"},
	"Glob":  {"path"},
	"Grep":  {"path"},
}

// VisibleInMode reports whether a tool is exposed to the model in the
// given mode. Edit and Agent expose the full set; Plan exposes only the
// read-only subset plus the plan-proposal tools.
func VisibleInMode(toolName string, mode Mode) bool {
	if mode == ModePlan {
		return planModeTools[toolName]
	}
	return true
}

// Gatekeeper resolves (tool_name, arguments, policies, mode) -> Decision.
type Gatekeeper struct {
	Settings *config.Settings
	Session  *config.SessionPermissions
	Scope    PathScope

	// onAudit, if set, receives every decision for persistence to the
	// audit log (spec.md §6 "Persisted state: Audit log").
	onAudit func(AuditRecord)

	auditLog []AuditRecord
}

// New creates a Gatekeeper bound to the given settings, session state, and
// path scope.
func New(settings *config.Settings, session *config.SessionPermissions, scope PathScope) *Gatekeeper {
	return &Gatekeeper{Settings: settings, Session: session, Scope: scope}
}

// OnAudit registers a sink for audit records (e.g. the persisted audit log
// writer). Calling it more than once replaces the sink.
func (g *Gatekeeper) OnAudit(fn func(AuditRecord)) {
	g.onAudit = fn
}

// AuditLog returns all decisions recorded so far (in-memory fallback when
// no external sink is registered).
func (g *Gatekeeper) AuditLog() []AuditRecord {
	out := make([]AuditRecord, len(g.auditLog))
	copy(out, g.auditLog)
	return out
}

// RememberApproval records an ApproveAndRemember answer in the
// session-local allow-list, so identical calls skip the prompt for the
// rest of the session.
func (g *Gatekeeper) RememberApproval(toolName string, args map[string]any) {
	if g.Session == nil {
		return
	}
	if toolName == "Bash" {
		g.Session.AllowPattern(config.BuildRule(toolName, args))
		return
	}
	g.Session.AllowTool(toolName)
}

// Check resolves a single pending tool call to a Decision, in order:
// mode-hide, path confinement, outright denial of destructive shell
// patterns, then the settings rule engine (deny rules, destructive
// escalation, session permissions, allow/ask/default).
func (g *Gatekeeper) Check(toolName string, args map[string]any, mode Mode) Decision {
	decision := g.check(toolName, args, mode)
	record := AuditRecord{Time: time.Now(), Tool: toolName, Args: args, Mode: mode, Decision: decision}
	g.auditLog = append(g.auditLog, record)
	if g.onAudit != nil {
		g.onAudit(record)
	}
	return decision
}

func (g *Gatekeeper) check(toolName string, args map[string]any, mode Mode) Decision {
	// 1. Mode-hide.
	if mode == ModePlan && !planModeTools[toolName] {
		return Decision{Kind: ModeRestricted, Reason: "tool hidden in plan mode"}
	}

	// 2. Path confinement for path-accepting tools, checked before the
	// generic settings rule so a workspace escape is denied even if the
	// tool would otherwise be allowed.
	if fields, ok := pathArgFields[toolName]; ok {
		for _, field := range fields {
			raw, ok := args[field].(string)
			if !ok || raw == "" {
				continue
			}
			if !g.withinScope(raw) {
				return Decision{Kind: Deny, Reason: fmt.Sprintf("workspace_violation: %s escapes workspace scope", field)}
			}
		}
	}

	// 3. Shell-class command rejection: explicit deny-token match denies
	// outright, ahead of the settings engine's allow/ask resolution.
	if toolName == "Bash" {
		if cmd, ok := args["command"].(string); ok {
			if reason, denied := g.shellDenied(cmd); denied {
				return Decision{Kind: Deny, Reason: reason}
			}
		}
	}

	// 4. Delegate to the settings rule engine (deny rules, destructive
	// command escalation, session permissions, allow/ask/default).
	if g.Settings == nil {
		return Decision{Kind: Allow, Reason: "no settings configured; default allow"}
	}
	result := g.Settings.CheckPermission(toolName, args, g.Session)
	switch result {
	case config.PermissionDeny:
		return Decision{Kind: Deny, Reason: "denied by policy"}
	case config.PermissionAsk:
		risk := "normal"
		if toolName == "Bash" {
			if cmd, ok := args["command"].(string); ok && config.IsDestructiveCommand(cmd) {
				risk = "destructive"
			}
		}
		return Decision{Kind: Prompt, Reason: "policy requires confirmation", Risk: risk}
	default:
		return Decision{Kind: Allow, Reason: "allowed by policy"}
	}
}

// withinScope checks that path resolves under the workspace root or a
// trusted directory. Relative paths are resolved against the workspace
// root and ".." components are cleaned away. The check is purely lexical:
// symlinks are not resolved, which also lets it check write targets that
// do not exist yet.
func (g *Gatekeeper) withinScope(path string) bool {
	if g.Scope.WorkspaceRoot == "" {
		return true
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.Scope.WorkspaceRoot, abs)
	}
	abs = filepath.Clean(abs)

	roots := append([]string{g.Scope.WorkspaceRoot}, g.Scope.TrustedDirs...)
	for _, root := range roots {
		root = filepath.Clean(root)
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// destructiveShellPatterns are glob/substring fragments that must always
// require confirmation or outright denial regardless of declared policy
// (spec.md §4.3 step 4: "rm -rf", "mkfs", "dd writing to devices").
var destructiveShellPatterns = []string{
	"rm -rf /",
	"rm -rf /*",
	"mkfs",
	"dd if=*of=/dev/*",
	":(){ :|:& };:", // fork bomb
}

// shellDenied reports whether a shell command matches a pattern severe
// enough to be denied outright rather than merely escalated to Prompt.
func (g *Gatekeeper) shellDenied(cmd string) (string, bool) {
	normalized := strings.TrimSpace(strings.ToLower(cmd))
	for _, pattern := range destructiveShellPatterns {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), normalized); ok {
			return fmt.Sprintf("command_rejected: matches destructive pattern %q", pattern), true
		}
		if strings.Contains(pattern, "*") {
			continue
		}
		if strings.Contains(normalized, pattern) {
			return fmt.Sprintf("command_rejected: matches destructive pattern %q", pattern), true
		}
	}
	return "", false
}
