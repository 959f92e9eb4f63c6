package tool

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vtcode/vtcode/internal/tool/permission"
	"github.com/vtcode/vtcode/internal/tool/ui"
)

const IconEdit = "✏"

// EditTool replaces an exact string in a file. Unless replace_all is set
// the target must be unique; the apply is atomic via temp-and-rename.
type EditTool struct{}

func (t *EditTool) Name() string        { return "Edit" }
func (t *EditTool) Description() string { return "Edit file contents using string replacement" }
func (t *EditTool) Icon() string        { return IconEdit }

func (t *EditTool) RequiresPermission() bool { return true }

// plan resolves the edit's inputs into the old and new file contents.
func (t *EditTool) plan(params map[string]any, cwd string) (path, oldContent, newContent string, replacements int, err error) {
	rawPath, err := stringParam(params, "file_path")
	if err != nil {
		return "", "", "", 0, err
	}
	oldString, ok := params["old_string"].(string)
	if !ok || oldString == "" {
		return "", "", "", 0, &ToolError{Message: "old_string is required"}
	}
	newString, ok := params["new_string"].(string)
	if !ok {
		return "", "", "", 0, &ToolError{Message: "new_string is required"}
	}
	replaceAll, _ := params["replace_all"].(bool)

	path = resolvePath(rawPath, cwd)
	data, readErr := os.ReadFile(path)
	switch {
	case os.IsNotExist(readErr):
		return "", "", "", 0, &ToolError{Message: "file not found: " + path}
	case readErr != nil:
		return "", "", "", 0, &ToolError{Message: "failed to read file: " + readErr.Error()}
	}
	oldContent = string(data)

	count := strings.Count(oldContent, oldString)
	switch {
	case count == 0:
		return "", "", "", 0, &ToolError{Message: "old_string not found in file"}
	case count > 1 && !replaceAll:
		return "", "", "", 0, &ToolError{Message: fmt.Sprintf(
			"old_string is not unique in file (found %d occurrences). Use replace_all=true to replace all.", count)}
	}

	if replaceAll {
		return path, oldContent, strings.ReplaceAll(oldContent, oldString, newString), count, nil
	}
	return path, oldContent, strings.Replace(oldContent, oldString, newString, 1), 1, nil
}

// PreparePermission computes the diff the approval prompt shows.
func (t *EditTool) PreparePermission(ctx context.Context, params map[string]any, cwd string) (*permission.PermissionRequest, error) {
	path, oldContent, newContent, _, err := t.plan(params, cwd)
	if err != nil {
		return nil, err
	}
	return &permission.PermissionRequest{
		ID:          generateRequestID(),
		ToolName:    t.Name(),
		FilePath:    path,
		Description: "Replace text in file",
		DiffMeta:    permission.GenerateDiff(path, oldContent, newContent),
	}, nil
}

// ExecuteApproved applies the edit and reports the replacement count and
// line delta.
func (t *EditTool) ExecuteApproved(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	start := time.Now()

	path, oldContent, newContent, replacements, err := t.plan(params, cwd)
	if err != nil {
		return ui.NewErrorResult(t.Name(), err.Error())
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := atomicWrite(path, []byte(newContent), mode); err != nil {
		return ui.NewErrorResult(t.Name(), "apply failed: "+err.Error())
	}

	result := ui.NewSuccessResult(t.Name(), t.Icon(), path, int64(len(newContent)), countLines(newContent), 0, time.Since(start))
	result.Output = fmt.Sprintf("Edited %s (%d replacement(s), %d -> %d lines)",
		path, replacements, countLines(oldContent), countLines(newContent))
	return result
}

// Execute applies the edit directly when no approval flow is attached.
func (t *EditTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	return t.ExecuteApproved(ctx, params, cwd)
}

func init() {
	Register(&EditTool{})
}
