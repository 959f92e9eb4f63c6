package tool

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vtcode/vtcode/internal/tool/permission"
	"github.com/vtcode/vtcode/internal/tool/ui"
)

const IconWrite = "✎"

// WriteTool creates or replaces a file. The write is atomic (temp file
// plus rename), and approval shows a content preview for new files or a
// diff for overwrites.
type WriteTool struct{}

func (t *WriteTool) Name() string        { return "Write" }
func (t *WriteTool) Description() string { return "Write content to a file" }
func (t *WriteTool) Icon() string        { return IconWrite }

func (t *WriteTool) RequiresPermission() bool { return true }

// PreparePermission builds the approval payload: a preview for a file
// that does not exist yet, a diff against the current contents otherwise.
func (t *WriteTool) PreparePermission(ctx context.Context, params map[string]any, cwd string) (*permission.PermissionRequest, error) {
	rawPath, err := stringParam(params, "file_path")
	if err != nil {
		return nil, err
	}
	content, ok := params["content"].(string)
	if !ok {
		return nil, &ToolError{Message: "content is required"}
	}
	path := resolvePath(rawPath, cwd)

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)
	if statErr != nil && !isNew {
		return nil, &ToolError{Message: "failed to check file: " + statErr.Error()}
	}

	var diffMeta *permission.DiffMetadata
	description := "Create new file"
	if isNew {
		diffMeta = permission.GeneratePreview(path, content, true)
	} else {
		old, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, &ToolError{Message: "failed to read existing file: " + readErr.Error()}
		}
		diffMeta = permission.GenerateDiff(path, string(old), content)
		description = "Overwrite existing file"
	}

	return &permission.PermissionRequest{
		ID:          generateRequestID(),
		ToolName:    t.Name(),
		FilePath:    path,
		Description: description,
		DiffMeta:    diffMeta,
	}, nil
}

// ExecuteApproved performs the write and returns a structured change
// summary (created/updated, line delta).
func (t *WriteTool) ExecuteApproved(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	start := time.Now()

	rawPath, err := stringParam(params, "file_path")
	if err != nil {
		return ui.NewErrorResult(t.Name(), err.Error())
	}
	content, _ := params["content"].(string)
	path := resolvePath(rawPath, cwd)

	mode := os.FileMode(0o644)
	if m := intParam(params, "mode", 0); m > 0 {
		mode = os.FileMode(m)
	}

	oldLines := 0
	isNew := true
	if old, readErr := os.ReadFile(path); readErr == nil {
		isNew = false
		oldLines = countLines(string(old))
	}

	if err := atomicWrite(path, []byte(content), mode); err != nil {
		return ui.NewErrorResult(t.Name(), "write failed: "+err.Error())
	}

	newLines := countLines(content)
	action := "Created"
	summary := fmt.Sprintf("%d lines", newLines)
	if !isNew {
		action = "Updated"
		summary = fmt.Sprintf("%d -> %d lines", oldLines, newLines)
	}

	result := ui.NewSuccessResult(t.Name(), t.Icon(), path, int64(len(content)), newLines, 0, time.Since(start))
	result.Output = fmt.Sprintf("%s %s (%s)", action, path, summary)
	return result
}

// Execute runs the write directly when no approval flow is attached.
func (t *WriteTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	return t.ExecuteApproved(ctx, params, cwd)
}

func init() {
	Register(&WriteTool{})
}
