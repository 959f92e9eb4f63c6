package permission

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// GenerateDiff computes the myers diff between two versions of a file
// and parses it into the structured lines the approval prompt renders.
func GenerateDiff(filePath, oldContent, newContent string) *DiffMetadata {
	edits := myers.ComputeEdits(span.URIFromPath(filePath), oldContent, newContent)
	diffStr := fmt.Sprint(gotextdiff.ToUnified(filePath, filePath, oldContent, edits))
	lines := ParseDiffLines(diffStr)

	added, removed := 0, 0
	for _, line := range lines {
		switch line.Type {
		case DiffLineAdded:
			added++
		case DiffLineRemoved:
			removed++
		}
	}

	return &DiffMetadata{
		OldContent:   oldContent,
		NewContent:   newContent,
		UnifiedDiff:  diffStr,
		Lines:        lines,
		IsNewFile:    oldContent == "",
		AddedCount:   added,
		RemovedCount: removed,
	}
}

// hunkHeaderRegex matches @@ -1,3 +1,4 @@ style headers
var hunkHeaderRegex = regexp.MustCompile(`^@@\s+-(\d+)(?:,\d+)?\s+\+(\d+)(?:,\d+)?\s+@@`)

// ParseDiffLines converts unified diff text into DiffLines carrying
// old/new line numbers, tracked across hunks
func ParseDiffLines(unifiedDiff string) []DiffLine {
	if unifiedDiff == "" {
		return nil
	}

	var lines []DiffLine
	diffLines := strings.Split(unifiedDiff, "\n")

	var oldLineNo, newLineNo int

	for _, line := range diffLines {
		if strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++") {
			continue
		}

		// "\ No newline at end of file" carries no line numbers.
		if strings.HasPrefix(line, "\\") {
			lines = append(lines, DiffLine{
				Type:    DiffLineMetadata,
				Content: strings.TrimPrefix(line, "\\ "),
			})
			continue
		}

		// Handle hunk headers
		if matches := hunkHeaderRegex.FindStringSubmatch(line); matches != nil {
			oldLineNo, _ = strconv.Atoi(matches[1])
			newLineNo, _ = strconv.Atoi(matches[2])

			lines = append(lines, DiffLine{
				Type:    DiffLineHunk,
				Content: line,
			})
			continue
		}

		if len(line) == 0 {
			lines = append(lines, DiffLine{
				Type:      DiffLineContext,
				Content:   "",
				OldLineNo: oldLineNo,
				NewLineNo: newLineNo,
			})
			oldLineNo++
			newLineNo++
			continue
		}

		prefix := line[0]
		content := ""
		if len(line) > 1 {
			content = line[1:]
		}

		switch prefix {
		case '+':
			lines = append(lines, DiffLine{
				Type:      DiffLineAdded,
				Content:   content,
				NewLineNo: newLineNo,
			})
			newLineNo++
		case '-':
			lines = append(lines, DiffLine{
				Type:      DiffLineRemoved,
				Content:   content,
				OldLineNo: oldLineNo,
			})
			oldLineNo++
		case ' ':
			lines = append(lines, DiffLine{
				Type:      DiffLineContext,
				Content:   content,
				OldLineNo: oldLineNo,
				NewLineNo: newLineNo,
			})
			oldLineNo++
			newLineNo++
		default:
			// Unknown prefix; render as context rather than dropping it.
			lines = append(lines, DiffLine{
				Type:      DiffLineContext,
				Content:   line,
				OldLineNo: oldLineNo,
				NewLineNo: newLineNo,
			})
			oldLineNo++
			newLineNo++
		}
	}

	return lines
}

// GenerateNewFileDiff builds the all-additions diff for a file that does
// not exist yet.
func GenerateNewFileDiff(filePath, content string) *DiffMetadata {
	lines := strings.Split(content, "\n")
	diffLines := make([]DiffLine, 0, len(lines)+1)

	diffLines = append(diffLines, DiffLine{
		Type:    DiffLineHunk,
		Content: fmt.Sprintf("@@ -0,0 +1,%d @@", len(lines)),
	})

	for i, line := range lines {
		diffLines = append(diffLines, DiffLine{
			Type:      DiffLineAdded,
			Content:   line,
			NewLineNo: i + 1,
		})
	}

	return &DiffMetadata{
		OldContent:   "",
		NewContent:   content,
		Lines:        diffLines,
		IsNewFile:    true,
		AddedCount:   len(lines),
		RemovedCount: 0,
	}
}

// GeneratePreview renders full content as context lines; the Write
// approval prompt shows the file body rather than a diff.
func GeneratePreview(filePath, content string, isNewFile bool) *DiffMetadata {
	lines := strings.Split(content, "\n")
	previewLines := make([]DiffLine, 0, len(lines))

	for i, line := range lines {
		previewLines = append(previewLines, DiffLine{
			Type:      DiffLineContext,
			Content:   line,
			NewLineNo: i + 1,
		})
	}

	return &DiffMetadata{
		OldContent:   "",
		NewContent:   content,
		Lines:        previewLines,
		IsNewFile:    isNewFile,
		PreviewMode:  true,
		AddedCount:   len(lines),
		RemovedCount: 0,
	}
}
