package session

import (
	"strings"
	"unicode/utf8"
)

// MaxTitleLength bounds session titles shown in the session picker.
const MaxTitleLength = 60

// GenerateTitle derives a session title from the first real user message,
// skipping tool results and synthetic injections.
func GenerateTitle(messages []StoredMessage) string {
	for _, msg := range messages {
		if msg.Role != "user" || msg.Content == "" || msg.ToolResult != nil {
			continue
		}
		return truncateTitle(msg.Content)
	}
	return "Untitled Session"
}

// truncateTitle collapses whitespace and cuts at a word boundary near the
// length cap.
func truncateTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= MaxTitleLength {
		return s
	}

	runes := []rune(s)
	cut := string(runes[:MaxTitleLength])
	if lastSpace := strings.LastIndex(cut, " "); lastSpace > MaxTitleLength/2 {
		cut = cut[:lastSpace]
	}
	return strings.TrimSpace(cut) + "..."
}
