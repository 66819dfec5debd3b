package locator

import (
	"fmt"
	"regexp"
	"strings"
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const (
	maxSegmentLength = 64
	maxNameLength    = 128
)

// ValidateSegment enforces spec.md §4.4's name-validation rule on a
// single path segment (a bare base name, a base name, or one
// "/"-separated prefix component): it must match [A-Za-z0-9_-]+ and be
// 1..64 characters. This check runs before any filesystem join, which
// is the primary defense against path traversal.
func ValidateSegment(segment string) error {
	if len(segment) < 1 || len(segment) > maxSegmentLength {
		return fmt.Errorf("segment %q must be 1-%d characters", segment, maxSegmentLength)
	}
	if !segmentPattern.MatchString(segment) {
		return fmt.Errorf("segment %q must match [A-Za-z0-9_-]+", segment)
	}
	return nil
}

// ValidateName validates a full composed service name: either a bare
// base name, or a "prefix:base" name where prefix may itself contain
// "/"-separated segments. Overall length must not exceed 128.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > maxNameLength {
		return fmt.Errorf("name %q must be 1-%d characters", name, maxNameLength)
	}

	prefix, base := splitName(name)
	if prefix != "" {
		for _, part := range strings.Split(prefix, "/") {
			if err := ValidateSegment(part); err != nil {
				return fmt.Errorf("invalid prefix segment: %w", err)
			}
		}
	}
	return ValidateSegment(base)
}

// splitName splits a composed name "prefix:base" into (prefix, base).
// A name with no ":" returns ("", name).
func splitName(name string) (prefix, base string) {
	idx := strings.LastIndexByte(name, ':')
	if idx < 0 {
		return "", name
	}
	return name[:idx], name[idx+1:]
}
