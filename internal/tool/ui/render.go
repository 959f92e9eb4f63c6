package ui

import (
	"strconv"
	"strings"
	"time"
)

// ToolResult is the raw outcome of one tool execution, carrying both the
// render-ready pieces (lines, files, metadata) and the plain Output that
// FormatForLLM folds into conversation history.
type ToolResult struct {
	Success   bool             // Whether the tool succeeded
	Output    string           // Main output content
	Error     string           // Error message if failed
	Metadata  ResultMetadata   // Result metadata
	Lines     []ContentLine    // Formatted content lines (optional)
	Files     []string         // File list (for Glob)
	SkillInfo *SkillResultInfo // Skill-specific info (for Skill tool)
}

// RenderToolResult draws the boxed header plus tool-appropriate body.
func RenderToolResult(result ToolResult, width int) string {
	if !result.Success {
		return RenderErrorHeader(result.Metadata.Title, result.Error, width)
	}

	var sb strings.Builder
	sb.WriteString(RenderHeader(result.Metadata, width))
	sb.WriteString("\n")

	switch result.Metadata.Title {
	case "Read":
		if len(result.Lines) > 0 {
			sb.WriteString(RenderLines(result.Lines, true))
		} else if result.Output != "" {
			sb.WriteString(result.Output)
		}
	case "Glob":
		if len(result.Files) > 0 {
			sb.WriteString(RenderFileList(result.Files, 20))
		} else if result.Output != "" {
			sb.WriteString(result.Output)
		}
	case "Grep":
		if len(result.Lines) > 0 {
			sb.WriteString(RenderGrepResults(result.Lines, 30))
		} else if result.Output != "" {
			sb.WriteString(result.Output)
		}
	case "WebFetch":
		if result.Output != "" {
			lines := strings.Split(result.Output, "\n")
			for _, line := range lines {
				sb.WriteString("  ")
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}
	default:
		if result.Output != "" {
			sb.WriteString(result.Output)
		}
	}

	return sb.String()
}

// RenderCompactResult draws the one-line form used in dense layouts
func RenderCompactResult(result ToolResult) string {
	if !result.Success {
		return IconError + " " + ErrorStyle.Render(result.Error)
	}
	return RenderCompactHeader(result.Metadata)
}

// NewSuccessResult builds a success result with a populated header
func NewSuccessResult(title, icon, subtitle string, size int64, lineCount, itemCount int, duration time.Duration) ToolResult {
	return ToolResult{
		Success: true,
		Metadata: ResultMetadata{
			Title:     title,
			Icon:      icon,
			Subtitle:  subtitle,
			Size:      size,
			LineCount: lineCount,
			ItemCount: itemCount,
			Duration:  duration,
		},
	}
}

// NewErrorResult builds a failed result carrying only the error text
func NewErrorResult(title, errorMsg string) ToolResult {
	return ToolResult{
		Success: false,
		Error:   errorMsg,
		Metadata: ResultMetadata{
			Title: title,
		},
	}
}

// FormatForLLM flattens the result to the plain text appended to
// conversation history; styling never reaches the model.
func (r ToolResult) FormatForLLM() string {
	if !r.Success {
		return "Error: " + r.Error
	}

	switch r.Metadata.Title {
	case "Read":
		if len(r.Lines) > 0 {
			var sb strings.Builder
			for _, line := range r.Lines {
				sb.WriteString(line.Text)
				sb.WriteString("\n")
			}
			return sb.String()
		}
	case "Glob":
		if len(r.Files) > 0 {
			return strings.Join(r.Files, "\n") + "\n"
		}
	case "Grep":
		if len(r.Lines) > 0 {
			var sb strings.Builder
			for _, line := range r.Lines {
				if line.File != "" {
					sb.WriteString(line.File)
					sb.WriteString(":")
				}
				if line.LineNo > 0 {
					sb.WriteString(strconv.Itoa(line.LineNo))
					sb.WriteString(":")
				}
				sb.WriteString(line.Text)
				sb.WriteString("\n")
			}
			return sb.String()
		}
	}
	return r.Output
}
