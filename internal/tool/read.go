package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vtcode/vtcode/internal/tool/ui"
)

const (
	readDefaultLimit  = 2000
	readMaxLineLength = 500
)

// ReadTool returns a window of a text file's lines, numbered, with long
// lines clipped so a single minified file cannot flood the context.
type ReadTool struct{}

func (t *ReadTool) Name() string        { return "Read" }
func (t *ReadTool) Description() string { return "Read file contents" }
func (t *ReadTool) Icon() string        { return ui.IconRead }

func (t *ReadTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	start := time.Now()

	rawPath, err := stringParam(params, "file_path")
	if err != nil {
		return ui.NewErrorResult(t.Name(), err.Error())
	}
	path := resolvePath(rawPath, cwd)

	offset := intParam(params, "offset", 1)
	limit := intParam(params, "limit", readDefaultLimit)

	info, statErr := os.Stat(path)
	switch {
	case os.IsNotExist(statErr):
		return ui.NewErrorResult(t.Name(), "file not found: "+path)
	case statErr != nil:
		return ui.NewErrorResult(t.Name(), "failed to stat file: "+statErr.Error())
	case info.IsDir():
		return ui.NewErrorResult(t.Name(), "path is a directory: "+path)
	}

	file, openErr := os.Open(path)
	if openErr != nil {
		return ui.NewErrorResult(t.Name(), "failed to open file: "+openErr.Error())
	}
	defer file.Close()

	// Sniff the head for binary content before line-reading.
	head := make([]byte, 512)
	n, _ := file.Read(head)
	if looksBinary(head[:n]) {
		return ui.ToolResult{
			Success: true,
			Output:  "(binary file, " + ui.FormatSize(info.Size()) + ")",
			Metadata: ui.ResultMetadata{
				Title:    t.Name(),
				Icon:     t.Icon(),
				Subtitle: path,
				Size:     info.Size(),
				Duration: time.Since(start),
			},
		}
	}
	if _, err := file.Seek(0, 0); err != nil {
		return ui.NewErrorResult(t.Name(), "failed to rewind file: "+err.Error())
	}

	var lines []ui.ContentLine
	truncated := false
	lineNo := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		if lineNo < offset {
			continue
		}
		if len(lines) >= limit {
			truncated = true
			break
		}
		text := scanner.Text()
		if len(text) > readMaxLineLength {
			text = text[:readMaxLineLength] + "…"
		}
		lines = append(lines, ui.ContentLine{LineNo: lineNo, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return ui.NewErrorResult(t.Name(), "failed to read file: "+err.Error())
	}

	if truncated {
		lines = append(lines, ui.ContentLine{
			Type: ui.LineTruncated,
			Text: fmt.Sprintf("... (stopped after %d lines; continue with offset=%d)", limit, lineNo),
		})
	}

	result := ui.NewSuccessResult(t.Name(), t.Icon(), path, info.Size(), len(lines), 0, time.Since(start))
	result.Lines = lines
	result.Metadata.Truncated = truncated
	return result
}

func init() {
	Register(&ReadTool{})
}
