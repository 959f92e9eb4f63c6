package search

import (
	"net/url"
	"strings"
)

// CreateProvider builds a backend by name; unknown names fall back to Exa,
// the keyless default.
func CreateProvider(name ProviderName) Provider {
	switch name {
	case ProviderSerper:
		return NewSerperProvider()
	case ProviderBrave:
		return NewBraveProvider()
	default:
		return NewExaProvider()
	}
}

// GetDefaultProvider returns the backend used when none is configured.
func GetDefaultProvider() Provider {
	return NewExaProvider()
}

// GetAvailableProviders returns the backends that are configured and ready.
func GetAvailableProviders() []Provider {
	candidates := []Provider{NewExaProvider(), NewSerperProvider(), NewBraveProvider()}
	available := make([]Provider, 0, len(candidates))
	for _, p := range candidates {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return available
}

// matchesDomainFilter applies allow/deny domain rules to a result URL.
// Blocked rules win; an allow list, when present, is exclusive. Subdomains
// of a listed domain match.
func matchesDomainFilter(urlStr string, allowedDomains, blockedDomains []string) bool {
	if len(allowedDomains) == 0 && len(blockedDomains) == 0 {
		return true
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return true
	}
	host := strings.ToLower(parsed.Host)

	domainMatches := func(domain string) bool {
		domain = strings.ToLower(domain)
		return host == domain || strings.HasSuffix(host, "."+domain)
	}

	for _, blocked := range blockedDomains {
		if domainMatches(blocked) {
			return false
		}
	}
	if len(allowedDomains) == 0 {
		return true
	}
	for _, allowed := range allowedDomains {
		if domainMatches(allowed) {
			return true
		}
	}
	return false
}
