package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
)

const (
	braveEndpoint = "https://api.search.brave.com/res/v1/web/search"
	braveEnvKey   = "BRAVE_API_KEY"
)

// BraveProvider searches via the Brave Search REST API.
type BraveProvider struct {
	apiKey string
}

// NewBraveProvider reads the API key from the environment.
func NewBraveProvider() *BraveProvider {
	return &BraveProvider{apiKey: os.Getenv(braveEnvKey)}
}

func (p *BraveProvider) Name() ProviderName   { return ProviderBrave }
func (p *BraveProvider) DisplayName() string  { return "Brave Search" }
func (p *BraveProvider) RequiresAPIKey() bool { return true }
func (p *BraveProvider) EnvVars() []string    { return []string{braveEnvKey} }
func (p *BraveProvider) IsAvailable() bool    { return p.apiKey != "" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search queries Brave and filters results client-side so domain rules
// behave identically across providers.
func (p *BraveProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("%s environment variable is not set", braveEnvKey)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(resultCount(opts, 10)))

	var parsed braveResponse
	err := doJSON(ctx,
		&http.Client{Timeout: getTimeout(opts)},
		http.MethodGet, braveEndpoint+"?"+q.Encode(), nil,
		map[string]string{"X-Subscription-Token": p.apiKey},
		&parsed)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		if !matchesDomainFilter(r.URL, opts.AllowedDomains, opts.BlockedDomains) {
			continue
		}
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncateSnippet(r.Description, snippetCap),
		})
	}
	return results, nil
}
