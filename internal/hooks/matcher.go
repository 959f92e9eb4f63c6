package hooks

import (
	"regexp"
	"sync"
)

var matcherCache sync.Map // pattern -> *regexp.Regexp (nil entry = invalid)

// MatchesEvent reports whether a hook's matcher pattern applies to the
// given value. Empty or "*" matches everything; otherwise the matcher is
// treated as a regular expression anchored at both ends, falling back to
// exact string comparison when the pattern fails to compile.
func MatchesEvent(matcher, matchValue string) bool {
	if matcher == "" || matcher == "*" {
		return true
	}

	if cached, ok := matcherCache.Load(matcher); ok {
		if re, ok := cached.(*regexp.Regexp); ok && re != nil {
			return re.MatchString(matchValue)
		}
		return matcher == matchValue
	}

	re, err := regexp.Compile("^(" + matcher + ")$")
	if err != nil {
		matcherCache.Store(matcher, (*regexp.Regexp)(nil))
		return matcher == matchValue
	}
	matcherCache.Store(matcher, re)
	return re.MatchString(matchValue)
}

// GetMatchValue extracts the field a matcher is compared against for each
// event type.
func GetMatchValue(event EventType, input HookInput) string {
	switch event {
	case PreToolUse, PostToolUse, PostToolUseFailure, PermissionRequest:
		return input.ToolName
	case SessionStart:
		return input.Source
	case SessionEnd:
		return input.Reason
	case Notification:
		return input.NotificationType
	case SubagentStart, SubagentStop:
		return input.AgentType
	case PreCompact:
		return input.Trigger
	default:
		return ""
	}
}

// EventSupportsMatcher reports whether the event type supports matcher
// filtering at all.
func EventSupportsMatcher(event EventType) bool {
	return event != UserPromptSubmit && event != Stop
}
