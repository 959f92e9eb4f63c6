package search

import (
	"context"
	"fmt"
	"net/http"
	"os"
)

const (
	serperEndpoint = "https://google.serper.dev/search"
	serperEnvKey   = "SERPER_API_KEY"
)

// SerperProvider searches Google results via serper.dev.
type SerperProvider struct {
	apiKey string
}

// NewSerperProvider reads the API key from the environment.
func NewSerperProvider() *SerperProvider {
	return &SerperProvider{apiKey: os.Getenv(serperEnvKey)}
}

func (p *SerperProvider) Name() ProviderName   { return ProviderSerper }
func (p *SerperProvider) DisplayName() string  { return "Serper (Google)" }
func (p *SerperProvider) RequiresAPIKey() bool { return true }
func (p *SerperProvider) EnvVars() []string    { return []string{serperEnvKey} }
func (p *SerperProvider) IsAvailable() bool    { return p.apiKey != "" }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search queries Serper. Domain filtering is client-side; the API has no
// native support for it.
func (p *SerperProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("%s environment variable is not set", serperEnvKey)
	}

	var parsed serperResponse
	err := doJSON(ctx,
		&http.Client{Timeout: getTimeout(opts)},
		http.MethodPost, serperEndpoint,
		serperRequest{Q: query, Num: resultCount(opts, 10)},
		map[string]string{"X-API-KEY": p.apiKey},
		&parsed)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(parsed.Organic))
	for _, r := range parsed.Organic {
		if !matchesDomainFilter(r.Link, opts.AllowedDomains, opts.BlockedDomains) {
			continue
		}
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: truncateSnippet(r.Snippet, snippetCap),
		})
	}
	return results, nil
}
