package scanner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// IgnorePattern represents a single gitignore-style pattern.
type IgnorePattern struct {
	pattern     string // Original pattern
	isNegation  bool   // True if pattern starts with !
	isDirectory bool   // True if pattern ends with /
	isAbsolute  bool   // True if pattern starts with / or contains an inner /
	globs       []glob.Glob
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(pattern string) (IgnorePattern, error) {
	p := IgnorePattern{pattern: pattern}

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}

	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	// a slash anywhere but the end anchors the pattern at the root
	if strings.HasPrefix(pattern, "/") {
		p.isAbsolute = true
		pattern = pattern[1:]
	} else if strings.Contains(pattern, "/") {
		p.isAbsolute = true
	}

	variants := []string{pattern}
	if !p.isAbsolute {
		variants = append(variants, "**/"+pattern)
	}
	for _, v := range variants {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return IgnorePattern{}, fmt.Errorf("invalid pattern %q: %w", p.pattern, err)
		}
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// Match reports whether path, relative to the scanned root, matches the
// pattern. Directory patterns only match directories.
func (p IgnorePattern) Match(path string, isDir bool) bool {
	if p.isDirectory && !isDir {
		return false
	}
	path = filepath.ToSlash(path)
	for _, g := range p.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// IsNegation returns true if this pattern is a negation pattern.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

// String returns the pattern as written.
func (p IgnorePattern) String() string {
	return p.pattern
}

// GlobSet is a list of include or exclude globs over slash separated
// relative paths.
type GlobSet []glob.Glob

// CompileGlobs compiles patterns. `**` crosses directories, `*` does not.
func CompileGlobs(patterns []string) (GlobSet, error) {
	set := make(GlobSet, 0, len(patterns))
	for _, pat := range patterns {
		g, err := glob.Compile(filepath.ToSlash(pat), '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pat, err)
		}
		set = append(set, g)
	}
	return set, nil
}

// Match reports whether any glob matches path.
func (s GlobSet) Match(path string) bool {
	for _, g := range s {
		if g.Match(path) {
			return true
		}
	}
	return false
}
