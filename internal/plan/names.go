// Package plan stores and names the implementation plans Plan mode
// produces: the model explores read-only, proposes a plan, and the plan
// is saved under a dated slug before any edit happens.
package plan

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// GeneratePlanName derives a dated slug from a task description,
// e.g. "20260129-add-dark-mode". An empty task yields "YYYYMMDD-plan".
func GeneratePlanName(task string) string {
	timestamp := time.Now().Format("20060102")

	if task == "" {
		return timestamp + "-plan"
	}

	keywords := extractKeywords(task)
	if len(keywords) == 0 {
		return timestamp + "-plan"
	}
	if len(keywords) > 4 {
		keywords = keywords[:4]
	}

	return timestamp + "-" + strings.Join(keywords, "-")
}

// GeneratePlanNameFromContent names a plan after its first markdown
// heading, falling back to the first non-empty line.
func GeneratePlanNameFromContent(content string) string {
	fallback := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ") {
			title := strings.TrimPrefix(strings.TrimPrefix(line, "## "), "# ")
			return GeneratePlanName(title)
		}
		if fallback == "" && line != "" && !strings.HasPrefix(line, "---") {
			fallback = line
		}
	}
	return GeneratePlanName(fallback)
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// extractKeywords pulls deduplicated, stop-word-filtered words out of a
// task description.
func extractKeywords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	keywords := make([]string, 0)
	seen := make(map[string]bool)

	for _, word := range words {
		if len(word) < 2 || isStopWord(word) || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}

	return keywords
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"to": true, "for": true, "of": true, "in": true, "on": true,
	"with": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "may": true, "might": true,
	"must": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "you": true, "we": true, "they": true,
	"it": true, "its": true, "my": true, "your": true, "our": true,
	"their": true, "what": true, "which": true, "who": true, "whom": true,
	"how": true, "when": true, "where": true, "why": true, "all": true,
	"each": true, "every": true, "both": true, "few": true, "more": true,
	"most": true, "other": true, "some": true, "such": true, "no": true,
	"not": true, "only": true, "same": true, "so": true, "than": true,
	"too": true, "very": true, "just": true, "also": true, "now": true,
	"please": true, "help": true, "me": true, "want": true, "need": true,
	"like": true, "make": true, "get": true, "let": true, "using": true,
}

func isStopWord(word string) bool {
	return stopWords[word]
}

// SanitizeName lowercases a name and strips everything but letters,
// digits, and single hyphens so it is safe as a file name.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, " ", "-")

	var result strings.Builder
	lastHyphen := false
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		} else if r == '-' && !lastHyphen && result.Len() > 0 {
			result.WriteRune('-')
			lastHyphen = true
		}
	}

	return strings.TrimSuffix(result.String(), "-")
}
