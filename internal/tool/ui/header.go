package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ResultMetadata is the header line data for one tool result
type ResultMetadata struct {
	Title      string        // Tool name
	Icon       string        // Tool icon
	Subtitle   string        // Short description (e.g., file path)
	Size       int64         // File/content size in bytes
	Duration   time.Duration // Execution duration
	LineCount  int           // Number of lines
	ItemCount  int           // Number of items (files/matches)
	StatusCode int           // HTTP status code (WebFetch)
	Truncated  bool          // Whether output was truncated
}

// RenderHeader draws the three-line result header box: tool name, icon
// plus subject, then the size/count/duration meta row.
func RenderHeader(meta ResultMetadata, width int) string {
	title := HeaderTitleStyle.Render(meta.Title)
	subtitle := fmt.Sprintf("%s %s", meta.Icon, HeaderSubtitleStyle.Render(meta.Subtitle))
	metaLine := HeaderMetaStyle.Render(strings.Join(metaRow(meta), " · "))

	content := fmt.Sprintf("%s\n%s\n%s", title, subtitle, metaLine)

	// Apply border style
	boxWidth := width
	if boxWidth <= 0 {
		boxWidth = 50
	}
	if boxWidth > 80 {
		boxWidth = 80
	}

	box := HeaderStyle.Width(boxWidth - 4).Render(content)
	return box
}

// RenderErrorHeader renders an error header box
// ┌─ Read ──────────────────────────────────────┐
// │ ❌ Error                                    │
// │ file not found: /path/to/missing.go         │
// └─────────────────────────────────────────────┘
func RenderErrorHeader(toolName, errorMsg string, width int) string {
	title := HeaderTitleStyle.Render(toolName)
	errorLine := fmt.Sprintf("%s %s", IconError, ErrorStyle.Render("Error"))
	msgLine := ErrorMsgStyle.Render(errorMsg)

	content := fmt.Sprintf("%s\n%s\n%s", title, errorLine, msgLine)

	boxWidth := width
	if boxWidth <= 0 {
		boxWidth = 50
	}
	if boxWidth > 80 {
		boxWidth = 80
	}

	// Use red border for errors
	errorBoxStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1)

	box := errorBoxStyle.Width(boxWidth - 4).Render(content)
	return box
}


// metaRow assembles the meta fragments present for this result.
func metaRow(meta ResultMetadata) []string {
	var parts []string
	if meta.Size > 0 {
		parts = append(parts, FormatSize(meta.Size))
	}
	if meta.LineCount > 0 {
		parts = append(parts, fmt.Sprintf("%d lines", meta.LineCount))
	}
	if meta.ItemCount > 0 {
		switch meta.Title {
		case "Glob":
			parts = append(parts, fmt.Sprintf("%d files", meta.ItemCount))
		case "Grep":
			parts = append(parts, fmt.Sprintf("%d matches", meta.ItemCount))
		default:
			parts = append(parts, fmt.Sprintf("%d items", meta.ItemCount))
		}
	}
	if meta.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("%d OK", meta.StatusCode))
	}
	if meta.Duration > 0 {
		parts = append(parts, FormatDuration(meta.Duration))
	}
	if meta.Truncated {
		parts = append(parts, TruncatedStyle.Render("(truncated)"))
	}
	return parts
}

// RenderCompactHeader draws the one-line variant:
// 📄 Read: /path/to/file.go (2.4 KB · 85 lines · 12ms)
func RenderCompactHeader(meta ResultMetadata) string {
	metaStr := ""
	if parts := metaRow(meta); len(parts) > 0 {
		metaStr = HeaderMetaStyle.Render(fmt.Sprintf(" (%s)", strings.Join(parts, " · ")))
	}

	return fmt.Sprintf("%s %s: %s%s",
		meta.Icon,
		HeaderTitleStyle.Render(meta.Title),
		HeaderSubtitleStyle.Render(meta.Subtitle),
		metaStr)
}
