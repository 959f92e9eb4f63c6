// Package sanitizer redacts secrets from tool output, command echoes, and
// LLM text before it enters conversation history, spool files, or logs.
package sanitizer

import "regexp"

// Pattern pairs a compiled matcher with the redaction label substituted for
// any match (e.g. "<redacted:aws_access_key>").
type Pattern struct {
	Name string
	re   *regexp.Regexp
}

// defaultPatterns covers the common secret shapes: provider API key
// prefixes, bearer tokens, private-key PEM blocks, and cloud tokens.
// False positives are acceptable; the spec favors conservative redaction
// over precision.
var defaultPatterns = []Pattern{
	{Name: "anthropic_key", re: regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{8,}`)},
	{Name: "openai_key", re: regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{Name: "github_token", re: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{20,}`)},
	{Name: "slack_token", re: regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,}`)},
	{Name: "aws_access_key", re: regexp.MustCompile(`(?:AKIA|ASIA)[A-Z0-9]{16}`)},
	{Name: "aws_secret_key", re: regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`)},
	{Name: "gcp_key", re: regexp.MustCompile(`AIza[A-Za-z0-9_-]{35}`)},
	{Name: "azure_key", re: regexp.MustCompile(`(?i)(?:azure|az)[-_]?(?:api)?[-_]?key['"]?\s*[:=]\s*['"]?[A-Za-z0-9+/=]{32,}['"]?`)},
	{Name: "bearer_token", re: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{10,}`)},
	{Name: "basic_auth", re: regexp.MustCompile(`(?i)basic\s+[A-Za-z0-9+/=]{10,}`)},
	{Name: "private_key_block", re: regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)},
	{Name: "generic_secret_assignment", re: regexp.MustCompile(`(?i)(?:api[_-]?key|secret|token|password|passwd)['"]?\s*[:=]\s*['"][A-Za-z0-9_\-./+]{12,}['"]`)},
	{Name: "jwt", re: regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`)},
	{Name: "url_userinfo", re: regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/\s:@]+:[^/\s:@]+@`)},
}

// Sanitizer redacts secrets from text. The zero value is ready to use with
// the built-in pattern set; Add appends project-specific patterns.
type Sanitizer struct {
	patterns []Pattern
}

// New returns a Sanitizer seeded with the default pattern set.
func New() *Sanitizer {
	patterns := make([]Pattern, len(defaultPatterns))
	copy(patterns, defaultPatterns)
	return &Sanitizer{patterns: patterns}
}

// Add registers an additional pattern, e.g. a project-specific token shape.
func (s *Sanitizer) Add(name, expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, Pattern{Name: name, re: re})
	return nil
}

// Redact replaces every match of every configured pattern with
// "<redacted:kind>". Patterns run in registration order; a span already
// redacted by an earlier pattern is not re-matched by a later one since its
// text no longer resembles a secret.
func (s *Sanitizer) Redact(text string) string {
	for _, p := range s.patterns {
		if p.Name == "url_userinfo" {
			text = p.re.ReplaceAllString(text, "${1}<redacted:"+p.Name+">@")
			continue
		}
		text = p.re.ReplaceAllString(text, "<redacted:"+p.Name+">")
	}
	return text
}

// Default is the package-level Sanitizer used by callers that don't need
// custom patterns.
var Default = New()

// Redact redacts text using the package-level default Sanitizer.
func Redact(text string) string {
	return Default.Redact(text)
}
