package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/vtcode/vtcode/internal/tool/ui"
)

const (
	webFetchTimeout  = 30 * time.Second
	webFetchMaxBytes = 5 * 1024 * 1024
	webFetchMaxLines = 2000
)

// WebFetchTool fetches a URL and, for HTML, converts the body to
// markdown so the model reads prose rather than markup.
type WebFetchTool struct{}

func (t *WebFetchTool) Name() string        { return "WebFetch" }
func (t *WebFetchTool) Description() string { return "Fetch content from a URL" }
func (t *WebFetchTool) Icon() string        { return ui.IconWeb }

func (t *WebFetchTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	start := time.Now()

	urlStr, err := stringParam(params, "url")
	if err != nil {
		return ui.NewErrorResult(t.Name(), err.Error())
	}
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		urlStr = "https://" + urlStr
	}
	format, _ := params["format"].(string)
	if format == "" {
		format = "markdown"
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if reqErr != nil {
		return ui.NewErrorResult(t.Name(), "invalid URL: "+reqErr.Error())
	}
	req.Header.Set("User-Agent", "vtcode/1.0")

	client := &http.Client{Timeout: webFetchTimeout}
	resp, doErr := client.Do(req)
	if doErr != nil {
		return ui.NewErrorResult(t.Name(), "request failed: "+doErr.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ui.NewErrorResult(t.Name(), fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBytes))
	if readErr != nil {
		return ui.NewErrorResult(t.Name(), "failed to read response: "+readErr.Error())
	}

	content := string(body)
	if format == "markdown" && strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		if converted, convErr := md.NewConverter("", true, nil).ConvertString(content); convErr == nil {
			content = converted
		}
	}

	truncated := false
	lines := strings.Split(content, "\n")
	if len(lines) > webFetchMaxLines {
		lines = lines[:webFetchMaxLines]
		content = strings.Join(lines, "\n")
		truncated = true
	}

	result := ui.NewSuccessResult(t.Name(), t.Icon(), urlStr, int64(len(body)), len(lines), 0, time.Since(start))
	result.Output = content
	result.Metadata.StatusCode = resp.StatusCode
	result.Metadata.Truncated = truncated
	return result
}

func init() {
	Register(&WebFetchTool{})
}
