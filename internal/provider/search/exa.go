package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const exaMCPEndpoint = "https://mcp.exa.ai/mcp"

// ExaProvider searches via Exa's public MCP endpoint. It needs no API key,
// which makes it the default backend.
type ExaProvider struct{}

// NewExaProvider creates an Exa provider.
func NewExaProvider() *ExaProvider { return &ExaProvider{} }

func (p *ExaProvider) Name() ProviderName   { return ProviderExa }
func (p *ExaProvider) DisplayName() string  { return "Exa AI" }
func (p *ExaProvider) RequiresAPIKey() bool { return false }
func (p *ExaProvider) EnvVars() []string    { return nil }
func (p *ExaProvider) IsAvailable() bool    { return true }

// The wire format is JSON-RPC 2.0 carrying an MCP tools/call.
type exaRPCRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      int        `json:"id"`
	Method  string     `json:"method"`
	Params  exaRPCCall `json:"params"`
}

type exaRPCCall struct {
	Name      string  `json:"name"`
	Arguments exaArgs `json:"arguments"`
}

type exaContents struct {
	Text bool `json:"text"`
}

type exaArgs struct {
	Query          string      `json:"query"`
	NumResults     int         `json:"numResults,omitempty"`
	Type           string      `json:"type,omitempty"`
	Contents       exaContents `json:"contents"`
	IncludeDomains []string    `json:"includeDomains,omitempty"`
	ExcludeDomains []string    `json:"excludeDomains,omitempty"`
}

type exaRPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type exaToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type exaSearchPayload struct {
	Results []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Text  string `json:"text"`
	} `json:"results"`
}

// Search issues one tools/call round-trip. Domain rules are passed through
// to Exa, which filters server-side.
func (p *ExaProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	args := exaArgs{
		Query:          query,
		NumResults:     resultCount(opts, 8),
		Type:           "auto",
		IncludeDomains: opts.AllowedDomains,
		ExcludeDomains: opts.BlockedDomains,
	}
	args.Contents = exaContents{Text: true}

	req := exaRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  exaRPCCall{Name: "web_search", Arguments: args},
	}

	var rpc exaRPCResponse
	err := doJSON(ctx,
		&http.Client{Timeout: getTimeout(opts)},
		http.MethodPost, exaMCPEndpoint, req, nil, &rpc)
	if err != nil {
		return nil, err
	}
	if rpc.Error != nil {
		return nil, fmt.Errorf("exa error %d: %s", rpc.Error.Code, rpc.Error.Message)
	}

	var tool exaToolResult
	if err := json.Unmarshal(rpc.Result, &tool); err != nil {
		return nil, fmt.Errorf("parse tool result: %w", err)
	}

	// The search payload rides inside the first JSON text content block.
	var payload exaSearchPayload
	for _, content := range tool.Content {
		if content.Type != "text" {
			continue
		}
		if err := json.Unmarshal([]byte(content.Text), &payload); err == nil {
			break
		}
	}

	results := make([]SearchResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncateSnippet(r.Text, snippetCap),
		})
	}
	return results, nil
}
