// Package ignore provides gitignore-style pattern matching used to filter
// changed files out of spec reconciliation.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type pattern struct {
	glob     string
	negated  bool
	dirOnly  bool
	anchored bool
}

// Matcher holds compiled ignore patterns.
type Matcher struct {
	patterns []pattern
}

// NewMatcher creates an empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// AddPattern compiles a single gitignore-style line into the matcher.
// Empty lines and comments are skipped.
func (m *Matcher) AddPattern(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	p := pattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}

	// A pattern without a slash matches its basename at any depth.
	if !p.anchored && !strings.Contains(line, "/") {
		line = "**/" + line
	}

	p.glob = line
	m.patterns = append(m.patterns, p)
}

// AddPatterns compiles multiple pattern lines.
func (m *Matcher) AddPatterns(lines []string) {
	for _, line := range lines {
		m.AddPattern(line)
	}
}

// LoadFile reads patterns from a gitignore-style file. A missing file is
// not an error.
func (m *Matcher) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// Match reports whether a slash-separated relative path is ignored. Later
// patterns win, so negations can re-include earlier matches.
func (m *Matcher) Match(path string) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")

	ignored := false
	for _, p := range m.patterns {
		if m.matchPattern(p, path) {
			ignored = !p.negated
		}
	}
	return ignored
}

func (m *Matcher) matchPattern(p pattern, path string) bool {
	if p.dirOnly {
		// A directory pattern ignores everything beneath it.
		parts := strings.Split(path, "/")
		for i := 1; i < len(parts); i++ {
			if ok, _ := doublestar.Match(p.glob, strings.Join(parts[:i], "/")); ok {
				return true
			}
		}
		return false
	}

	if ok, _ := doublestar.Match(p.glob, path); ok {
		return true
	}
	ok, _ := doublestar.Match(p.glob+"/**", path)
	return ok
}

// Defaults are the build artifacts and vendored trees of a JavaScript
// project that never feed spec updates.
var Defaults = []string{
	".git/",
	".specsync/",
	"node_modules/",
	".next/",
	".nuxt/",
	".vercel/",
	".turbo/",
	"dist/",
	"build/",
	"out/",
	"coverage/",
	"storybook-static/",
	"*.min.js",
	"*.d.ts",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
}

// LoadFromDir builds a matcher from the default patterns plus the
// directory's .gitignore when present.
func LoadFromDir(dir string) (*Matcher, error) {
	m := NewMatcher()
	m.AddPatterns(Defaults)
	if err := m.LoadFile(filepath.Join(dir, ".gitignore")); err != nil {
		return nil, err
	}
	return m, nil
}
