// Package importtree builds a recursive import tree for a Next.js-style
// project: one subtree per page entry point, with every local dependency the
// page reaches through import statements.
package importtree

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"specsync/internal/resolve"
)

// Recursion cap per entry point.
const maxDepth = 20

// Node is a single file in the import tree. Unresolved nodes keep the raw
// specifier in Path; circular nodes mark a revisit or the depth cap.
type Node struct {
	Path        string           `json:"path"`
	Imports     map[string]*Node `json:"imports,omitempty"`
	ImportCount int              `json:"import_count,omitempty"`
	Circular    bool             `json:"circular,omitempty"`
	Unresolved  bool             `json:"unresolved,omitempty"`
}

// Tree maps entry-point paths (root-relative, slash separated) to their
// import subtrees.
type Tree map[string]*Node

var validExts = map[string]bool{
	".js":  true,
	".jsx": true,
	".ts":  true,
	".tsx": true,
	".mjs": true,
	".cjs": true,
}

// Directories scanned when no page entry points exist.
var scanDirs = []string{"src", "pages", "app", "components", "lib", "utils", "hooks", "styles"}

// Path fragments that disqualify a file under pages/ or app/ from being an
// entry point.
var entrySkips = []string{"api/", "layout", "_middleware", ".config", "_document", "_error"}

var (
	lineComments  = regexp.MustCompile(`(?m)//.*$`)
	blockComments = regexp.MustCompile(`(?s)/\*.*?\*/`)

	importPatterns = []*regexp.Regexp{
		// import ... from '...'
		regexp.MustCompile(`import\s+(?:.*?\s+from\s+)?['"]([^'"]+)['"]`),
		// require('...')
		regexp.MustCompile(`require\s*\(\s*['"]([^'"]+)['"]\s*\)`),
		// dynamic import()
		regexp.MustCompile(`import\s*\(\s*['"]([^'"]+)['"]\s*\)`),
		// next/dynamic lazy imports
		regexp.MustCompile(`dynamic\s*\(\s*\(\s*\)\s*=>\s*import\s*\(\s*['"]([^'"]+)['"]\s*\)`),
	}
)

// Builder walks a project and produces its import tree.
type Builder struct {
	root     string
	resolver *resolve.Resolver
}

// NewBuilder creates a Builder for the project rooted at root.
func NewBuilder(root string) *Builder {
	return &Builder{root: root, resolver: resolve.New(root)}
}

// ValidFile reports whether path (root-relative, slash separated) should be
// analyzed for imports.
func ValidFile(path string) bool {
	base := filepath.Base(path)
	return validExts[filepath.Ext(path)] &&
		!strings.HasPrefix(base, ".") &&
		!strings.Contains(path, "node_modules") &&
		!strings.Contains(path, ".next")
}

// BuildTree generates the import tree. When entryPoints is empty, page files
// are discovered under pages/ and app/ (and their src/ variants); when that
// finds nothing either, all source files under the conventional directories
// become entry points.
func (b *Builder) BuildTree(entryPoints []string) (Tree, error) {
	files := entryPoints
	if len(files) == 0 {
		files = b.FindEntryPoints()
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "warning: no entry points found, scanning all source files")
		files = b.scanAll()
	}

	tree := make(Tree)
	for _, rel := range files {
		abs := filepath.Join(b.root, filepath.FromSlash(rel))
		if !fileExists(abs) {
			continue
		}
		// Each entry point gets a fresh visited set so shared dependencies
		// appear under every page that imports them.
		visited := make(map[string]bool)
		tree[filepath.ToSlash(rel)] = b.analyze(abs, 0, visited)
	}
	return tree, nil
}

// analyze extracts the imports of one file and recurses into the local ones.
func (b *Builder) analyze(abs string, depth int, visited map[string]bool) *Node {
	rel := b.relative(abs)

	if visited[rel] || depth > maxDepth {
		return &Node{Path: rel, Imports: map[string]*Node{}, Circular: true}
	}
	visited[rel] = true

	specifiers := b.extractImports(abs, rel)
	imports := make(map[string]*Node)

	for _, spec := range specifiers {
		resolved, ok := b.resolver.Resolve(spec, rel)
		if ok && ValidFile(resolved) {
			imports[spec] = b.analyze(filepath.Join(b.root, filepath.FromSlash(resolved)), depth+1, visited)
		} else if !resolve.IsExternal(spec) {
			// Local-looking specifiers that fail resolution stay in the tree
			// as stubs; external packages are dropped.
			imports[spec] = &Node{Path: spec, Unresolved: true}
		}
	}

	return &Node{Path: rel, Imports: imports, ImportCount: len(imports)}
}

// extractImports pulls import specifiers out of a source file. Comments are
// stripped first to avoid false positives.
func (b *Builder) extractImports(abs, rel string) []string {
	data, err := os.ReadFile(abs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: reading %s: %v\n", rel, err)
		return nil
	}

	content := string(data)
	content = lineComments.ReplaceAllString(content, "")
	content = blockComments.ReplaceAllString(content, "")

	var specifiers []string
	for _, pattern := range importPatterns {
		for _, m := range pattern.FindAllStringSubmatch(content, -1) {
			specifiers = append(specifiers, m[1])
		}
	}
	return specifiers
}

// FindEntryPoints returns all page files under the pages and app directories,
// sorted and root-relative.
func (b *Builder) FindEntryPoints() []string {
	seen := make(map[string]bool)

	for _, dir := range []string{"pages", "src/pages", "app", "src/app"} {
		dirAbs := filepath.Join(b.root, filepath.FromSlash(dir))
		if !dirExists(dirAbs) {
			continue
		}
		filepath.WalkDir(dirAbs, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			rel := b.relative(path)
			if !ValidFile(rel) {
				return nil
			}
			inDir, _ := filepath.Rel(dirAbs, path)
			inDir = filepath.ToSlash(inDir)
			for _, skip := range entrySkips {
				if strings.Contains(inDir, skip) {
					return nil
				}
			}
			seen[rel] = true
			return nil
		})
	}

	entries := make([]string, 0, len(seen))
	for e := range seen {
		entries = append(entries, e)
	}
	sort.Strings(entries)
	return entries
}

// scanAll collects every valid source file under the conventional Next.js
// directories.
func (b *Builder) scanAll() []string {
	var files []string
	for _, dir := range scanDirs {
		dirAbs := filepath.Join(b.root, dir)
		if !dirExists(dirAbs) {
			continue
		}
		filepath.WalkDir(dirAbs, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if rel := b.relative(path); ValidFile(rel) {
				files = append(files, rel)
			}
			return nil
		})
	}
	sort.Strings(files)
	return files
}

// Manifest returns a stable listing of every analyzable source file with
// its size and mtime, plus tsconfig.json since aliases change resolution.
// Identical manifests mean the import tree does not need rebuilding.
func (b *Builder) Manifest() []byte {
	var sb strings.Builder

	if info, err := os.Stat(filepath.Join(b.root, "tsconfig.json")); err == nil {
		fmt.Fprintf(&sb, "tsconfig.json %d %d\n", info.Size(), info.ModTime().UnixNano())
	}

	filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != b.root && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		rel := b.relative(path)
		if !ValidFile(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fmt.Fprintf(&sb, "%s %d %d\n", rel, info.Size(), info.ModTime().UnixNano())
		return nil
	})

	return []byte(sb.String())
}

func (b *Builder) relative(abs string) string {
	rel, err := filepath.Rel(b.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// MarshalIndent renders the tree as indented JSON with stable key order.
func (t Tree) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// UnmarshalTree parses a tree previously produced by MarshalIndent.
func UnmarshalTree(data []byte) (Tree, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing import tree: %w", err)
	}
	return t, nil
}
