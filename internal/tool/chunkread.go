package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vtcode/vtcode/internal/spool"
	"github.com/vtcode/vtcode/internal/tool/ui"
)

// ChunkReadTool reads one chunk of a spooled tool output by handle. It is
// the model-facing half of the Output Spooler's re-read protocol: when a
// tool result comes back spooled, the payload names a handle and this tool
// advances through it one chunk per call.
type ChunkReadTool struct {
	Spooler *spool.Spooler
}

// NewChunkReadTool creates a ChunkReadTool bound to the session's spooler.
func NewChunkReadTool(s *spool.Spooler) *ChunkReadTool {
	return &ChunkReadTool{Spooler: s}
}

func (t *ChunkReadTool) Name() string { return "ChunkRead" }
func (t *ChunkReadTool) Description() string {
	return "Read one chunk of a spooled tool output by handle and byte offset"
}
func (t *ChunkReadTool) Icon() string { return ui.IconRead }

func (t *ChunkReadTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	start := time.Now()

	if t.Spooler == nil {
		return ui.NewErrorResult(t.Name(), "spool_error: no spooler attached to this session")
	}

	handle, ok := params["handle"].(string)
	if !ok || handle == "" {
		return ui.NewErrorResult(t.Name(), "invalid_arguments: handle is required")
	}

	offset := 0
	if v, ok := params["offset"].(float64); ok {
		offset = int(v)
	} else if v, ok := params["offset"].(int); ok {
		offset = v
	}

	chunk, err := t.Spooler.ChunkRead(handle, offset)
	switch {
	case errors.Is(err, spool.ErrRateLimited):
		return ui.NewErrorResult(t.Name(), "rate_limited: chunk_read budget for this turn is exhausted; continue next turn")
	case errors.Is(err, spool.ErrNotFound):
		return ui.NewErrorResult(t.Name(), fmt.Sprintf("not_found: no spool entry for handle %q", handle))
	case err != nil:
		return ui.NewErrorResult(t.Name(), "spool_error: "+err.Error())
	}

	status := fmt.Sprintf("next_offset=%d done=%v", chunk.NextOffset, chunk.Done)
	result := ui.NewSuccessResult(t.Name(), ui.IconRead, status, int64(len(chunk.Data)), 0, 0, time.Since(start))
	result.Output = fmt.Sprintf("[%s]\n%s", status, chunk.Data)
	return result
}
