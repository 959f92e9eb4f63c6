package tool

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vtcode/vtcode/internal/tool/ui"
)

const (
	grepMaxMatches   = 100
	grepMaxFileSize  = 4 * 1024 * 1024
	grepMaxLineShown = 300
)

// GrepTool searches file contents with a Go regexp, optionally narrowed
// by an include glob. Binary files and oversized files are skipped.
type GrepTool struct{}

func (t *GrepTool) Name() string        { return "Grep" }
func (t *GrepTool) Description() string { return "Search for patterns in files" }
func (t *GrepTool) Icon() string        { return ui.IconGrep }

func (t *GrepTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	start := time.Now()

	pattern, err := stringParam(params, "pattern")
	if err != nil {
		return ui.NewErrorResult(t.Name(), err.Error())
	}
	re, compErr := regexp.Compile(pattern)
	if compErr != nil {
		return ui.NewErrorResult(t.Name(), "invalid pattern: "+compErr.Error())
	}

	base := cwd
	if p, ok := params["path"].(string); ok && p != "" {
		base = resolvePath(p, cwd)
	}
	include, _ := params["include"].(string)

	var lines []ui.ContentLine
	matches := 0
	filesScanned := 0
	truncated := false

	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if matches >= grepMaxMatches {
			truncated = true
			return filepath.SkipAll
		}
		if d.IsDir() {
			if path != base && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return nil
		}
		if include != "" {
			ok, _ := doublestar.Match(include, filepath.ToSlash(rel))
			if !ok {
				return nil
			}
		}
		if info, infoErr := d.Info(); infoErr != nil || info.Size() > grepMaxFileSize {
			return nil
		}

		fileMatches, scanErr := scanFile(path, rel, re, grepMaxMatches-matches)
		if scanErr != nil {
			return nil
		}
		filesScanned++
		matches += len(fileMatches)
		lines = append(lines, fileMatches...)
		return nil
	})
	if walkErr != nil {
		return ui.NewErrorResult(t.Name(), "search failed: "+walkErr.Error())
	}

	result := ui.NewSuccessResult(t.Name(), t.Icon(), pattern, 0, 0, matches, time.Since(start))
	result.Lines = lines
	result.Metadata.Truncated = truncated
	if matches == 0 {
		result.Output = "No matches for " + pattern
	}
	return result
}

// scanFile collects up to budget matching lines from one file, bailing
// out early on binary content.
func scanFile(path, rel string, re *regexp.Regexp, budget int) ([]ui.ContentLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	if looksBinary(head[:n]) {
		return nil, nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	var out []ui.ContentLine
	lineNo := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), grepMaxFileSize)
	for scanner.Scan() && len(out) < budget {
		lineNo++
		text := scanner.Text()
		if !re.MatchString(text) {
			continue
		}
		if len(text) > grepMaxLineShown {
			text = text[:grepMaxLineShown] + "…"
		}
		out = append(out, ui.ContentLine{
			File:   rel,
			LineNo: lineNo,
			Text:   strings.TrimSpace(text),
			Type:   ui.LineMatch,
		})
	}
	return out, scanner.Err()
}

func init() {
	Register(&GrepTool{})
}
