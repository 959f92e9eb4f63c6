package ui

import (
	"fmt"
	"strings"
)

// SkillResultInfo carries skill-load metadata for the result header
type SkillResultInfo struct {
	SkillName   string // Full skill name (namespace:name)
	ScriptCount int    // Number of scripts in skill
	RefCount    int    // Number of reference files
}

// FormatSkillSummary formats the skill result summary for display
//
// Examples:
//
//	Loaded: git:commit [2 scripts, 1 ref]
//	Loaded: pdf [3 scripts]
//	Loaded: my-skill
func FormatSkillSummary(info *SkillResultInfo) string {
	if info == nil {
		return ""
	}

	var resources []string
	if info.ScriptCount > 0 {
		resources = append(resources, pluralize(info.ScriptCount, "script"))
	}
	if info.RefCount > 0 {
		resources = append(resources, pluralize(info.RefCount, "ref"))
	}

	result := "Loaded: " + info.SkillName
	if len(resources) > 0 {
		result += " [" + strings.Join(resources, ", ") + "]"
	}
	return result
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
