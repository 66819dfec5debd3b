package main

import (
	"strings"

	"github.com/tap-run/tap/internal/ring/pattern"
)

func lineMatches(text, source string, isRegex, caseSensitive bool) bool {
	if isRegex {
		re, err := pattern.CompileSafe(source, !caseSensitive)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	needle := source
	haystack := text
	if !caseSensitive {
		needle = strings.ToLower(needle)
		haystack = strings.ToLower(haystack)
	}
	return strings.Contains(haystack, needle)
}
