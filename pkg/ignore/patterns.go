// Package ignore matches file and directory paths against exclusion rules:
// a configurable default-excludes set, optional .gitignore patterns, and a
// general path-exclusion list. The path-exclusion list is what the
// REDESIGN FLAG in spec.md §9 calls for: a general rule on the configuration
// surface replacing a hard-coded carve-out for one specific repository name.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Matcher matches paths against glob-style patterns, generalizing the
// reference implementation's pkg/ignore/patterns.go to also carry a
// gitignore-style pattern set and an arbitrary path-exclusion list.
type Matcher struct {
	patterns []string
}

// NewMatcher creates a matcher from a flat pattern list.
func NewMatcher(patterns []string) *Matcher {
	return &Matcher{patterns: patterns}
}

// NewFromConfig builds a matcher from default excludes, general path
// exclusions (the REDESIGN FLAG destination), and, if repoRoot carries a
// .gitignore and respectGitignore is true, its patterns too.
func NewFromConfig(defaultExcludes, pathExclusions []string, respectGitignore bool, repoRoot string) *Matcher {
	patterns := make([]string, 0, len(defaultExcludes)+len(pathExclusions))
	for _, d := range defaultExcludes {
		patterns = append(patterns, d+"/**")
	}
	patterns = append(patterns, pathExclusions...)

	if respectGitignore {
		if gi := loadGitignore(filepath.Join(repoRoot, ".gitignore")); len(gi) > 0 {
			patterns = append(patterns, gi...)
		}
	}

	return &Matcher{patterns: patterns}
}

func loadGitignore(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// ShouldIgnore returns true if path matches any pattern.
func (m *Matcher) ShouldIgnore(path string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range m.patterns {
		if m.matchPattern(path, pattern) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchPattern(path, pattern string) bool {
	pattern = filepath.ToSlash(pattern)

	if strings.Contains(pattern, "**") {
		parts := strings.Split(pattern, "**")

		if len(parts) > 0 && parts[0] != "" {
			prefix := strings.TrimSuffix(parts[0], "/")
			if strings.HasPrefix(path, prefix+"/") || path == prefix {
				return true
			}
		}

		for _, part := range parts {
			if part != "" && part != "/" {
				part = strings.Trim(part, "/")
				if strings.Contains(path, "/"+part+"/") || strings.HasPrefix(path, part+"/") || strings.HasSuffix(path, "/"+part) {
					return true
				}
			}
		}
	}

	// A bare "name/" pattern (no slash, no glob) also matches the path when
	// any path segment equals name: the general form of the venv/ carve-out.
	if strings.HasSuffix(pattern, "/") && !strings.ContainsAny(pattern, "*?[") {
		name := strings.TrimSuffix(pattern, "/")
		for _, seg := range strings.Split(path, "/") {
			if seg == name {
				return true
			}
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	filename := filepath.Base(path)
	if matched, err := filepath.Match(pattern, filename); err == nil && matched {
		return true
	}

	dir := filepath.Dir(path)
	for dir != "." && dir != "/" {
		if filepath.Base(dir) == strings.TrimSuffix(pattern, "/**") {
			return true
		}
		dir = filepath.Dir(dir)
	}

	return false
}

// DefaultPatterns returns the default traversal exclusions named in
// spec.md §4.4 and §6 (default_excludes).
func DefaultPatterns() []string {
	return []string{
		".git/**",
		"node_modules/**",
		"__pycache__/**",
		"venv/**",
		".venv/**",
		"dist/**",
		"build/**",
	}
}

// RootInsideExcluded reports whether repoRoot itself sits inside a directory
// that the matcher would exclude, honoring spec.md §4.4's "refuse to index a
// root path that is itself inside an excluded directory unless explicitly
// overridden".
func (m *Matcher) RootInsideExcluded(repoRoot string) bool {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		abs = repoRoot
	}
	for _, seg := range strings.Split(filepath.ToSlash(abs), "/") {
		if seg == "" {
			continue
		}
		if m.ShouldIgnore(seg + "/") {
			return true
		}
	}
	return false
}
