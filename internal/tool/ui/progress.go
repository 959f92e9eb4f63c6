package ui

import "fmt"

// SpinnerFrames are the braille spinner animation frames
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// RenderProgress renders one spinner line for a tool in flight.
func RenderProgress(spinnerFrame string, message string) string {
	return fmt.Sprintf("%s %s",
		SpinnerStyle.Render(spinnerFrame),
		ProgressMsgStyle.Render(message))
}

// GetProgressMessage phrases the spinner text per tool.
func GetProgressMessage(toolName string, args string) string {
	switch toolName {
	case "Read":
		return fmt.Sprintf("Reading %s...", args)
	case "Glob":
		return fmt.Sprintf("Searching for %s...", args)
	case "Grep":
		return fmt.Sprintf("Searching pattern %s...", args)
	case "WebFetch":
		return fmt.Sprintf("Fetching %s...", args)
	case "ChunkRead":
		return "Reading spooled output..."
	default:
		return fmt.Sprintf("Executing %s...", toolName)
	}
}
