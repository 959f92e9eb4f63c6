package tool

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vtcode/vtcode/internal/tool/ui"
)

const globMaxResults = 200

// skipDirs are directory names never descended into during a glob walk.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".venv":        true,
	"__pycache__":  true,
}

// GlobTool finds files matching a doublestar pattern, newest first.
type GlobTool struct{}

func (t *GlobTool) Name() string        { return "Glob" }
func (t *GlobTool) Description() string { return "Find files matching a pattern" }
func (t *GlobTool) Icon() string        { return ui.IconGlob }

func (t *GlobTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	start := time.Now()

	pattern, err := stringParam(params, "pattern")
	if err != nil {
		return ui.NewErrorResult(t.Name(), err.Error())
	}
	base := cwd
	if p, ok := params["path"].(string); ok && p != "" {
		base = resolvePath(p, cwd)
	}

	type hit struct {
		rel     string
		modTime time.Time
	}
	var hits []hit
	truncated := false

	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path == base {
				return nil
			}
			if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return nil
		}
		matched, matchErr := doublestar.Match(pattern, filepath.ToSlash(rel))
		if matchErr != nil {
			return matchErr
		}
		if !matched {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		hits = append(hits, hit{rel: rel, modTime: info.ModTime()})
		return nil
	})
	if walkErr != nil {
		return ui.NewErrorResult(t.Name(), "glob failed: "+walkErr.Error())
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].modTime.After(hits[j].modTime) })
	if len(hits) > globMaxResults {
		hits = hits[:globMaxResults]
		truncated = true
	}

	files := make([]string, len(hits))
	for i, h := range hits {
		files[i] = h.rel
	}

	subtitle := pattern
	if len(files) == 0 {
		subtitle = pattern + " (no matches)"
	}
	result := ui.NewSuccessResult(t.Name(), t.Icon(), subtitle, 0, 0, len(files), time.Since(start))
	result.Files = files
	result.Metadata.Truncated = truncated
	if len(files) == 0 {
		result.Output = "No files matched " + pattern
	}
	return result
}

func init() {
	Register(&GlobTool{})
}
