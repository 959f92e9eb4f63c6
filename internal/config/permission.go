package config

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// PermissionResult represents the result of a permission check.
type PermissionResult int

const (
	// PermissionAllow means the action is automatically allowed.
	PermissionAllow PermissionResult = iota

	// PermissionDeny means the action is automatically denied.
	PermissionDeny

	// PermissionAsk means the action requires user confirmation.
	PermissionAsk
)

// String returns a human-readable representation of the permission result.
func (p PermissionResult) String() string {
	switch p {
	case PermissionAllow:
		return "allow"
	case PermissionDeny:
		return "deny"
	case PermissionAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// ReadOnlyTools is a list of tools that are considered read-only.
// These tools don't modify any files or state.
var ReadOnlyTools = map[string]bool{
	"Read":      true,
	"Glob":      true,
	"Grep":      true,
	"WebFetch":  true,
	"WebSearch": true,
}

// IsReadOnlyTool returns true if the tool is read-only.
func IsReadOnlyTool(toolName string) bool {
	return ReadOnlyTools[toolName]
}

// CheckPermission checks if a tool action is allowed based on settings and session permissions.
// Priority:
//  1. Deny rules (highest priority - cannot be bypassed by session permissions)
//  2. Destructive command protection (always ask for dangerous bash commands)
//  3. Session permissions (runtime, e.g., "allow all edits this session")
//  4. Allow rules
//  5. Ask rules
//  6. Default behavior (read-only tools allowed, others need confirmation)
func (s *Settings) CheckPermission(toolName string, args map[string]any, session *SessionPermissions) PermissionResult {
	// Build the rule string for this tool invocation
	rule := BuildRule(toolName, args)

	// SECURITY: Check deny rules FIRST - deny rules cannot be bypassed by session permissions
	for _, pattern := range s.Permissions.Deny {
		if MatchRule(rule, pattern) {
			return PermissionDeny
		}
	}

	// SECURITY: Check for destructive Bash commands - always require confirmation
	if toolName == "Bash" {
		if cmd, ok := args["command"].(string); ok {
			if IsDestructiveCommand(cmd) {
				return PermissionAsk // Always ask for destructive commands
			}
		}
	}

	// Check session permissions (after security checks)
	if session != nil {
		if session.IsToolAllowed(toolName) {
			return PermissionAllow
		}
		// Check session allowed patterns using MatchRule
		for pattern := range session.AllowedPatterns {
			if MatchRule(rule, pattern) {
				return PermissionAllow
			}
		}
		// For Bash commands, also check each command in a chained command
		if toolName == "Bash" {
			if cmd, ok := args["command"].(string); ok {
				commands := extractBashCommands(cmd)
				for _, subCmd := range commands {
					subRule := "Bash(" + normalizeBashCommand(subCmd) + ")"
					for pattern := range session.AllowedPatterns {
						if MatchRule(subRule, pattern) {
							return PermissionAllow
						}
					}
				}
			}
		}
	}

	// Check allow rules
	for _, pattern := range s.Permissions.Allow {
		if MatchRule(rule, pattern) {
			return PermissionAllow
		}
	}

	// Check ask rules
	for _, pattern := range s.Permissions.Ask {
		if MatchRule(rule, pattern) {
			return PermissionAsk
		}
	}

	// Default behavior
	if IsReadOnlyTool(toolName) {
		return PermissionAllow
	}
	return PermissionAsk
}

// BuildRule builds a rule string from a tool name and arguments.
// Format: "Tool(args)"
//
// Different tools extract different parts of args:
//   - Bash: "Bash(command)" where command is the shell command
//   - Read/Edit/Write: "Read(file_path)"
//   - Glob/Grep: "Glob(pattern)" or "Grep(pattern)"
//   - WebFetch: "WebFetch(domain:hostname)"
func BuildRule(toolName string, args map[string]any) string {
	var argStr string

	switch toolName {
	case "Bash":
		// For Bash, use the command with prefix matching support
		if cmd, ok := args["command"].(string); ok {
			// Extract command prefix (e.g., "npm install" -> "npm:install")
			// This allows patterns like "Bash(npm:*)"
			argStr = normalizeBashCommand(cmd)
		}

	case "Read", "Edit", "Write":
		// For file tools, use the file path
		if fp, ok := args["file_path"].(string); ok {
			argStr = fp
		}

	case "Glob":
		// For Glob, use the pattern
		if p, ok := args["pattern"].(string); ok {
			argStr = p
		}

	case "Grep":
		// For Grep, use the pattern
		if p, ok := args["pattern"].(string); ok {
			argStr = p
		}

	case "WebFetch":
		// For WebFetch, extract domain from URL
		if u, ok := args["url"].(string); ok {
			if parsed, err := url.Parse(u); err == nil {
				argStr = "domain:" + parsed.Host
			} else {
				argStr = u
			}
		}

	case "Skill":
		// For Skill, use the skill name
		// Supports patterns like "Skill(git:*)", "Skill(test-skill)"
		if s, ok := args["skill"].(string); ok {
			argStr = s
		}

	default:
		// Generic: try common field names
		if fp, ok := args["file_path"].(string); ok {
			argStr = fp
		} else if p, ok := args["path"].(string); ok {
			argStr = p
		} else if p, ok := args["pattern"].(string); ok {
			argStr = p
		}
	}

	return toolName + "(" + argStr + ")"
}

// normalizeBashCommand normalizes a bash command for pattern matching.
// Examples:
//   - "npm install lodash" -> "npm:install lodash"
//   - "git commit -m 'msg'" -> "git:commit -m 'msg'"
//   - "ls -la" -> "ls:-la"
//   - "/bin/rm -rf foo" -> "rm:-rf foo" (strips path prefix)
func normalizeBashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return ""
	}
	parts := strings.SplitN(cmd, " ", 2)

	// Get the base command (without path)
	baseCmd := filepath.Base(parts[0])

	if len(parts) == 1 {
		return baseCmd
	}

	// Return "command:rest"
	return baseCmd + ":" + parts[1]
}

// extractBashCommands extracts individual commands from a chained bash command.
// It splits on && and ; to get each command separately.
func extractBashCommands(cmd string) []string {
	var commands []string

	// Split on && first, then on ;
	parts := strings.Split(cmd, "&&")
	for _, part := range parts {
		subParts := strings.Split(part, ";")
		for _, subPart := range subParts {
			trimmed := strings.TrimSpace(subPart)
			if trimmed != "" {
				commands = append(commands, trimmed)
			}
		}
	}

	return commands
}

// MatchRule checks if a rule matches a pattern.
// Rule format: "Tool(args)"
// Pattern format: "Tool(pattern)" where pattern supports:
//   - "*" matches any sequence of characters
//   - "**" matches any sequence including path separators
//   - "domain:" prefix for WebFetch domain matching
func MatchRule(rule, pattern string) bool {
	// Parse rule
	toolRule, argsRule := parseRule(rule)
	toolPat, argsPat := parseRule(pattern)

	// Tool names must match exactly
	if toolRule != toolPat {
		return false
	}

	// Match arguments using glob-like patterns
	return matchGlob(argsRule, argsPat)
}

// parseRule parses a rule string into tool name and arguments.
// "Bash(npm install)" -> ("Bash", "npm install")
func parseRule(s string) (tool, args string) {
	tool, args, found := strings.Cut(s, "(")
	if !found {
		return s, ""
	}
	return tool, strings.TrimSuffix(args, ")")
}

// matchGlob performs glob-like pattern matching over rule arguments.
// Supported syntax:
//   - "*" matches any sequence of characters
//   - "?" matches a single character
//   - "**" matches any sequence including path separators; a pattern like
//     "**/.env.*" also matches against the final path component, so
//     deny rules written for basenames work on absolute paths
func matchGlob(str, pattern string) bool {
	if pattern == "" {
		return str == ""
	}
	if pattern == "**" {
		return true
	}

	if before, after, found := strings.Cut(pattern, "**"); found {
		prefix := strings.TrimSuffix(before, "/")
		suffix := strings.TrimPrefix(after, "/")

		// More than one "**": degrade to plain wildcard matching, where
		// every star already crosses separators.
		if strings.Contains(suffix, "**") {
			return matchWildcard(str, pattern)
		}

		if prefix != "" && !strings.HasPrefix(str, prefix) {
			return false
		}
		if suffix == "" {
			return true
		}
		if !strings.ContainsAny(suffix, "*?") {
			return strings.HasSuffix(str, suffix)
		}

		// Wildcard suffix: try the basename first (patterns like ".env.*"
		// or "*.go" target the final component), then the remainder of
		// the path after the prefix (patterns like "test/*.go").
		if matchWildcard(basename(str), suffix) {
			return true
		}
		remaining := strings.TrimPrefix(strings.TrimPrefix(str, prefix), "/")
		return matchWildcard(remaining, suffix)
	}

	if strings.ContainsAny(pattern, "*?") {
		return matchWildcard(str, pattern)
	}
	return str == pattern
}

func basename(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// wildcardRegexps caches compiled wildcard patterns; permission rules are
// matched on every tool call, so recompiling per check would be wasteful.
var wildcardRegexps sync.Map // pattern -> *regexp.Regexp

// matchWildcard matches the full string against a pattern where "*" is
// any sequence (separators included) and "?" is any single character.
func matchWildcard(str, pattern string) bool {
	if cached, ok := wildcardRegexps.Load(pattern); ok {
		return cached.(*regexp.Regexp).MatchString(str)
	}

	var b strings.Builder
	b.WriteString(`(?s)^`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	wildcardRegexps.Store(pattern, re)
	return re.MatchString(str)
}

// CommonDenyPatterns contains commonly denied patterns for security.
var CommonDenyPatterns = []string{
	"Read(**/.env)",
	"Read(**/.env.*)",
	"Read(**/secrets/**)",
	"Read(**/*credentials*)",
	"Read(**/*password*)",
	"Read(**/.aws/**)",
	"Read(**/.ssh/**)",
	"Edit(**/.env)",
	"Edit(**/.env.*)",
	"Write(**/.env)",
	"Write(**/.env.*)",
}

// DestructiveCommands are patterns that should always require user confirmation,
// even when session permissions like AllowAllBash are enabled.
// These commands can cause irreversible data loss or system damage.
var DestructiveCommands = []string{
	"rm:-rf",
	"rm:-fr",
	"rm:-r",
	"git:reset --hard",
	"git:clean -fd",
	"git:clean -f",
	"git:push --force",
	"git:push -f",
	"chmod:777",
	"chmod:-R 777",
	":(){ :|:& };:", // fork bomb
	"> /dev/",       // device writes
	"dd:if=",        // direct disk access
	"mkfs",          // filesystem creation
	"fdisk",         // disk partitioning
}

// IsDestructiveCommand checks if a bash command matches any destructive pattern.
// Returns true if the command should always require user confirmation.
func IsDestructiveCommand(cmd string) bool {
	normalized := normalizeBashCommand(cmd)
	for _, pattern := range DestructiveCommands {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}

// CommonAllowPatterns contains commonly allowed patterns.
var CommonAllowPatterns = []string{
	"Bash(git:*)",
	"Bash(npm:*)",
	"Bash(yarn:*)",
	"Bash(pnpm:*)",
	"Bash(go:*)",
	"Bash(make:*)",
	"Bash(ls:*)",
	"Bash(cat:*)",
	"Bash(head:*)",
	"Bash(tail:*)",
	"Bash(pwd)",
}
