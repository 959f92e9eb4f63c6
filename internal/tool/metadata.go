package tool

// SideEffect classifies what a tool does to the workspace. The Turn
// Orchestrator uses it to decide execution order: read-pure calls may run
// in parallel, write/exec calls are serialized in issued order, and
// interactive calls suspend for user input.
type SideEffect string

const (
	SideEffectRead        SideEffect = "read"
	SideEffectWrite       SideEffect = "write"
	SideEffectExec        SideEffect = "exec"
	SideEffectInteractive SideEffect = "interactive"
)

// sideEffects maps built-in tool names to their declared side-effect class.
// MCP and plugin tools absent from this table default to write, the
// conservative choice (serialized, never parallelized).
var sideEffects = map[string]SideEffect{
	"Read":       SideEffectRead,
	"LSP":        SideEffectRead,
	"Glob":       SideEffectRead,
	"Grep":       SideEffectRead,
	"WebFetch":   SideEffectRead,
	"WebSearch":  SideEffectRead,
	"ChunkRead":  SideEffectRead,
	"TaskOutput": SideEffectRead,
	"TaskList":   SideEffectRead,
	"TaskGet":    SideEffectRead,
	"TodoWrite":  SideEffectWrite,
	"TaskCreate": SideEffectWrite,
	"TaskUpdate": SideEffectWrite,
	"Write":      SideEffectWrite,
	"Edit":       SideEffectWrite,
	"Skill":      SideEffectRead,

	"Bash":      SideEffectExec,
	"Task":      SideEffectExec,
	"TaskStop":  SideEffectExec,
	"KillShell": SideEffectExec,

	"AskUserQuestion": SideEffectInteractive,
	"EnterPlanMode":   SideEffectInteractive,
	"ExitPlanMode":    SideEffectInteractive,
}

// SideEffectOf returns the declared side-effect class for a tool name.
func SideEffectOf(name string) SideEffect {
	if se, ok := sideEffects[name]; ok {
		return se
	}
	return SideEffectWrite
}

// ReadPure reports whether a tool is idempotent and safe to parallelize.
func ReadPure(name string) bool {
	return SideEffectOf(name) == SideEffectRead
}
