package confidence

import (
	"regexp"
	"strings"
)

// Token patterns for the complexity heuristic. These are intentionally
// crude: the factor only needs to separate trivial edits from changes
// to dense control-flow-heavy files, across both TypeScript and Go
// workspaces.
var (
	funcPattern  = regexp.MustCompile(`\bfunction\b|\bfunc\b|=>`)
	classPattern = regexp.MustCompile(`\bclass\b`)
	condPattern  = regexp.MustCompile(`\bif\b|\bswitch\b`)
	loopPattern  = regexp.MustCompile(`\bfor\b|\bwhile\b`)
)

// fileComplexity estimates how risky a file is to change:
// lines/100 + functions + 2*classes + conditionals + loops.
func fileComplexity(content string) float64 {
	if content == "" {
		return 0
	}
	lines := strings.Count(content, "\n") + 1
	return float64(lines)/100 +
		float64(countMatches(funcPattern, content)) +
		2*float64(countMatches(classPattern, content)) +
		float64(countMatches(condPattern, content)) +
		float64(countMatches(loopPattern, content))
}

func countMatches(re *regexp.Regexp, s string) int {
	return len(re.FindAllStringIndex(s, -1))
}

// complexityPoints maps an average file complexity onto 0-20 points.
// Under 10 the change is considered trivially simple and gets full
// points; above that the score falls half a point per unit, reaching
// zero at 50.
func complexityPoints(avg float64) float64 {
	if avg < 10 {
		return 20
	}
	points := 20 - (avg-10)/2
	if points < 0 {
		return 0
	}
	return points
}
