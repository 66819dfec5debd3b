// Package pattern validates regular expressions before compilation,
// defending the ring buffer's query and readiness-wait entry points
// against catastrophic backtracking. It is shared by internal/ring (log
// queries and the readiness wait) and the tap client's observe filter.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// maxPatternLength is the longest regex source tap will attempt to
// compile. Longer patterns are rejected outright.
const maxPatternLength = 200

// ErrPatternTooLong, ErrPatternDangerous, and ErrPatternInvalid classify
// why CompileSafe rejected a pattern. Callers that need a stable error
// code for an HTTP response can type-switch or use errors.Is against
// these sentinels' wrapped forms.
var (
	ErrPatternTooLong   = fmt.Errorf("pattern exceeds maximum length of %d characters", maxPatternLength)
	ErrPatternDangerous = fmt.Errorf("pattern matches a known catastrophic-backtracking shape")
	ErrPatternInvalid   = fmt.Errorf("pattern failed to compile")
)

// dangerousShapes are heuristic signatures of nested or ambiguous
// quantification that can cause catastrophic backtracking in a regex
// engine. Each is checked independently; matching any one rejects the
// pattern.
var dangerousShapes = []*regexp.Regexp{
	// Adjacent quantified wildcards: ".*.*", ".+.+", ".*.+", etc.
	regexp.MustCompile(`[.*+]\*[.*+]\*|[.*+]\+[.*+]\+|[.*+]\*[.*+]\+|[.*+]\+[.*+]\*`),
	// A bracket class flanked by quantifiers on both sides: e.g. "[a-z]+[a-z]+".
	regexp.MustCompile(`\[[^\]]*\][*+][^\[]*\[[^\]]*\][*+]`),
	// A quantifier applied to a group containing alternation: "(a|b)+".
	regexp.MustCompile(`\([^)]*\|[^)]*\)[*+?]`),
	// Two consecutive bounded quantifiers: "a{1,10}{1,10}".
	regexp.MustCompile(`\{\d+(,\d*)?\}\{\d+(,\d*)?\}`),
}

// Validate rejects patterns longer than maxPatternLength and patterns
// matching one of the dangerousShapes heuristics. It does not compile
// the pattern; call CompileSafe for that.
func Validate(source string) error {
	if len(source) > maxPatternLength {
		return ErrPatternTooLong
	}
	for _, shape := range dangerousShapes {
		if shape.MatchString(source) {
			return ErrPatternDangerous
		}
	}
	if countOpenGroups(source) > 3 && hasAnyQuantifier(source) {
		return ErrPatternDangerous
	}
	return nil
}

// countOpenGroups counts unescaped "(" occurrences.
func countOpenGroups(source string) int {
	count := 0
	escaped := false
	for _, r := range source {
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == '(' {
			count++
		}
	}
	return count
}

func hasAnyQuantifier(source string) bool {
	return strings.ContainsAny(source, "*+?") || strings.Contains(source, "{")
}

// CompileSafe validates source and, if it passes, compiles it with the
// given case-insensitivity flag. The case flag follows Go's regexp
// inline-flag convention: a leading "(?i)" is prefixed whenever
// caseInsensitive is true; flags set inside the source still apply
// after it.
func CompileSafe(source string, caseInsensitive bool) (*regexp.Regexp, error) {
	if err := Validate(source); err != nil {
		return nil, err
	}
	compiled := source
	if caseInsensitive {
		compiled = "(?i)" + source
	}
	re, err := regexp.Compile(compiled)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPatternInvalid, err)
	}
	return re, nil
}
