// Package resolve maps JavaScript/TypeScript import specifiers to files on
// disk, honoring tsconfig.json path mappings.
package resolve

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extension probe order when a specifier has no extension.
var sourceExts = []string{".js", ".jsx", ".ts", ".tsx", ".mjs"}

// Index file probe order for directory imports.
var indexExts = []string{".js", ".jsx", ".ts", ".tsx"}

// Bare first segments that always denote npm packages or Node builtins.
var knownExternals = map[string]bool{
	"react":   true,
	"next":    true,
	"lodash":  true,
	"axios":   true,
	"moment":  true,
	"express": true,
	"fs":      true,
	"path":    true,
	"url":     true,
	"crypto":  true,
	"util":    true,
	"os":      true,
	"http":    true,
	"https":   true,
}

type aliasRule struct {
	pattern string
	targets []string
}

// Resolver resolves import specifiers against a project root.
type Resolver struct {
	root    string
	aliases []aliasRule
}

// New creates a Resolver for the project rooted at root. Path mappings are
// loaded once from tsconfig.json compilerOptions.paths; a missing or
// unparsable file leaves the resolver without aliases.
func New(root string) *Resolver {
	r := &Resolver{root: root}
	r.loadAliases(filepath.Join(root, "tsconfig.json"))
	return r
}

func (r *Resolver) loadAliases(tsconfigPath string) {
	data, err := os.ReadFile(tsconfigPath)
	if err != nil {
		return
	}

	var tsconfig struct {
		CompilerOptions struct {
			Paths map[string][]string `json:"paths"`
		} `json:"compilerOptions"`
	}
	if err := json.Unmarshal(data, &tsconfig); err != nil {
		return
	}

	// Alias patterns are checked in sorted order so resolution does not
	// depend on map iteration.
	patterns := make([]string, 0, len(tsconfig.CompilerOptions.Paths))
	for p := range tsconfig.CompilerOptions.Paths {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	for _, p := range patterns {
		r.aliases = append(r.aliases, aliasRule{pattern: p, targets: tsconfig.CompilerOptions.Paths[p]})
	}
}

// Resolve maps an import specifier found in fromFile (root-relative, slash
// separated) to a root-relative file path. The second return value is false
// when the specifier does not resolve to a file inside the project.
func (r *Resolver) Resolve(specifier, fromFile string) (string, bool) {
	fromDir := filepath.Dir(filepath.Join(r.root, filepath.FromSlash(fromFile)))

	switch {
	case r.matchesAlias(specifier):
		// An alias match never falls through to the other strategies.
		if p := r.resolveAlias(specifier); p != "" {
			return r.relative(p)
		}
		return "", false

	case strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../"):
		if p := probeExtensions(filepath.Join(fromDir, filepath.FromSlash(specifier))); p != "" {
			return r.relative(p)
		}
		return "", false

	case strings.HasPrefix(specifier, "/"):
		if p := probeExtensions(filepath.Join(r.root, filepath.FromSlash(strings.TrimPrefix(specifier, "/")))); p != "" {
			return r.relative(p)
		}
		return "", false

	default:
		return r.resolveBare(specifier, fromDir)
	}
}

// resolveBare handles specifiers with no local prefix: the importing
// directory is tried first, then the project root, then src/.
func (r *Resolver) resolveBare(specifier, fromDir string) (string, bool) {
	rel := filepath.FromSlash(specifier)

	if p := probeExtensions(filepath.Join(fromDir, rel)); p != "" {
		return r.relative(p)
	}
	if p := probeExtensions(filepath.Join(r.root, rel)); p != "" {
		return r.relative(p)
	}

	srcDir := filepath.Join(r.root, "src")
	if info, err := os.Stat(srcDir); err == nil && info.IsDir() {
		if p := probeExtensions(filepath.Join(srcDir, rel)); p != "" {
			return r.relative(p)
		}
	}
	return "", false
}

func (r *Resolver) matchesAlias(specifier string) bool {
	for _, rule := range r.aliases {
		if prefix, ok := strings.CutSuffix(rule.pattern, "/*"); ok {
			if strings.HasPrefix(specifier, prefix+"/") {
				return true
			}
		} else if specifier == rule.pattern {
			return true
		}
	}
	return false
}

func (r *Resolver) resolveAlias(specifier string) string {
	for _, rule := range r.aliases {
		if prefix, ok := strings.CutSuffix(rule.pattern, "/*"); ok {
			rest, matched := strings.CutPrefix(specifier, prefix+"/")
			if !matched {
				continue
			}
			for _, target := range rule.targets {
				base := strings.TrimSuffix(target, "/*")
				full := strings.TrimPrefix(base+"/"+rest, "./")
				if p := probeExtensions(filepath.Join(r.root, filepath.FromSlash(full))); p != "" {
					return p
				}
			}
		} else if specifier == rule.pattern {
			for _, target := range rule.targets {
				full := strings.TrimPrefix(target, "./")
				if p := probeExtensions(filepath.Join(r.root, filepath.FromSlash(full))); p != "" {
					return p
				}
			}
		}
	}
	return ""
}

// relative converts an absolute path back to a root-relative slash path.
// Files outside the project root do not resolve.
func (r *Resolver) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// probeExtensions validates a candidate path against the filesystem. A path
// that already carries an extension must exist as-is; otherwise the source
// extensions are probed, then index files inside the candidate directory.
func probeExtensions(candidate string) string {
	if filepath.Ext(candidate) != "" {
		if fileExists(candidate) {
			return candidate
		}
		return ""
	}
	for _, ext := range sourceExts {
		if p := candidate + ext; fileExists(p) {
			return p
		}
	}
	for _, ext := range indexExts {
		if p := filepath.Join(candidate, "index"+ext); fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// IsExternal reports whether a specifier names an npm package or Node
// builtin rather than a project file.
func IsExternal(specifier string) bool {
	if strings.HasPrefix(specifier, ".") || strings.HasPrefix(specifier, "/") {
		return false
	}

	first, _, _ := strings.Cut(specifier, "/")
	if strings.HasPrefix(first, "@") {
		return true
	}
	if knownExternals[first] {
		return true
	}

	// A bare name with no path separators is an npm package; a multi-segment
	// specifier that failed local resolution may still be a project file.
	return !strings.Contains(specifier, "/")
}
