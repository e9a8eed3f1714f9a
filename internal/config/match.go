package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// MatchBranch reports whether head matches a branch pattern. A single star
// stays within one path segment; "**" crosses slashes.
func MatchBranch(pattern, head string) (bool, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return false, fmt.Errorf("invalid branch pattern %q: %w", pattern, err)
	}
	return g.Match(head), nil
}
