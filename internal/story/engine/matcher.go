package engine

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// ConditionMatcher decides whether a single exit condition is evidenced by the
// recent turn window. Implementations must be deterministic for a given
// (condition, window) pair.
type ConditionMatcher interface {
	Matches(condition string, window []string) bool
}

// KeywordMatcher is the default lexical matcher: an exit condition counts as
// met when any of its significant keywords appears, case-folded, in the
// window text.
type KeywordMatcher struct {
	// MinKeywordLen filters out filler words. Zero means the default of 4.
	MinKeywordLen int
}

func (m KeywordMatcher) Matches(condition string, window []string) bool {
	minLen := m.MinKeywordLen
	if minLen <= 0 {
		minLen = 4
	}
	haystack := foldText(strings.Join(window, "\n"))
	for _, keyword := range tokenize(condition) {
		if len([]rune(keyword)) < minLen {
			continue
		}
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

// MatchConditions counts conditions evidenced in the window and returns the
// unmet remainder in order.
func MatchConditions(matcher ConditionMatcher, conditions []string, window []string) (met int, unmet []string) {
	for _, condition := range conditions {
		if matcher.Matches(condition, window) {
			met++
			continue
		}
		unmet = append(unmet, condition)
	}
	return met, unmet
}

// SemanticThreshold is the number of exit conditions that must be evidenced
// before a node counts as semantically ready: more than half, rounded up.
func SemanticThreshold(conditionCount int) int {
	if conditionCount <= 0 {
		return 0
	}
	return (conditionCount + 1) / 2
}

var folder = cases.Fold()

func foldText(s string) string {
	return folder.String(s)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(foldText(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
