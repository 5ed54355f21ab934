package scanner

import (
	"path"
	"strings"
)

// IgnorePattern represents a single gitignore-style pattern.
type IgnorePattern struct {
	pattern     string
	isNegation  bool // Starts with !
	isDirectory bool // Ends with /, matches directories only
	isAnchored  bool // Contains a slash before the end, matches from the base
	segments    []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{pattern: pattern}

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.Contains(pattern, "/") {
		p.isAnchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}

	p.segments = strings.Split(pattern, "/")
	return p
}

// IsNegation returns true if this pattern is a negation pattern.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

// Match reports whether the slash-separated relPath matches. Segments
// support *, ? and [...] as in path.Match, and ** spans directories.
// A pattern without a slash matches a name at any depth.
func (p IgnorePattern) Match(relPath string, isDir bool) bool {
	if p.isDirectory && !isDir {
		return false
	}

	parts := strings.Split(relPath, "/")
	if p.isAnchored {
		return matchSegments(p.segments, parts)
	}
	return matchSegments(p.segments, parts[len(parts)-1:])
}

func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}
