// Package pages classifies Next.js page files and answers reachability
// queries over an import tree.
package pages

import (
	"path/filepath"
	"sort"
	"strings"

	"specsync/internal/importtree"
)

var pageExts = map[string]bool{
	".js":  true,
	".jsx": true,
	".ts":  true,
	".tsx": true,
}

// Directories whose files are never pages.
var nonPageDirs = map[string]bool{
	"components": true,
	"hooks":      true,
	"utils":      true,
	"lib":        true,
	"helpers":    true,
	"shared":     true,
	"common":     true,
	"constants":  true,
	"types":      true,
	"interfaces": true,
	"services":   true,
	"store":      true,
	"context":    true,
	"providers":  true,
	"styles":     true,
	"public":     true,
}

// Pages-router files with framework meaning that are not navigable pages.
var specialPageFiles = map[string]bool{
	"_app":        true,
	"_document":   true,
	"_error":      true,
	"404":         true,
	"500":         true,
	"_middleware": true,
	"middleware":  true,
}

// IsPage reports whether path is a navigable Next.js page, for either the
// app router (page.* files outside api/) or the pages router (any file not
// in the special set, outside api/). Paths under src/ are classified by the
// remainder after the src segment.
func IsPage(path string) bool {
	if path == "" {
		return false
	}

	path = filepath.ToSlash(path)
	if !pageExts[filepath.Ext(path)] {
		return false
	}

	parts := splitParts(path)
	base := parts[len(parts)-1]
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	for _, part := range parts {
		if nonPageDirs[strings.ToLower(part)] {
			return false
		}
	}

	// Hook files are named useSomething.
	if strings.HasPrefix(stem, "use") && stem != "use" {
		return false
	}

	if i := index(parts, "app"); i >= 0 {
		if stem != "page" {
			return false
		}
		return index(parts[i+1:], "api") < 0
	}

	if i := index(parts, "pages"); i >= 0 {
		rest := parts[i+1:]
		if len(rest) > 0 && rest[0] == "api" {
			return false
		}
		return !specialPageFiles[stem]
	}

	if i := index(parts, "src"); i >= 0 {
		rest := parts[i+1:]
		if len(rest) > 0 {
			return IsPage(strings.Join(rest, "/"))
		}
	}

	return false
}

// PageFolder extracts the spec folder name for a page path: the first
// directory after the root segment.
func PageFolder(pagePath string) string {
	parts := splitParts(filepath.ToSlash(pagePath))

	// Drop the filename, then the root segment (src, app, pages).
	if len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}
	if len(parts) > 0 {
		parts = parts[1:]
	}
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

// PagesUsingFile returns every page whose import closure contains target,
// in sorted order. Circular nodes terminate the walk on their branch.
func PagesUsingFile(tree importtree.Tree, target string) []string {
	var result []string
	for _, page := range sortedKeys(tree) {
		node := tree[page]
		if node != nil && findInImports(node.Imports, target) {
			result = append(result, page)
		}
	}
	return result
}

func findInImports(imports map[string]*importtree.Node, target string) bool {
	for _, spec := range sortedNodeKeys(imports) {
		node := imports[spec]
		if node == nil {
			continue
		}
		if node.Path != "" && strings.HasSuffix(target, node.Path) {
			return true
		}
		if !node.Circular && len(node.Imports) > 0 && findInImports(node.Imports, target) {
			return true
		}
	}
	return false
}

// ReverseIndex builds a file-to-pages map for bulk lookups. Page lists come
// out sorted and without duplicates.
func ReverseIndex(tree importtree.Tree) map[string][]string {
	idx := make(map[string][]string)

	for _, page := range sortedKeys(tree) {
		node := tree[page]
		if node == nil {
			continue
		}
		files := make(map[string]bool)
		collectFiles(node.Imports, files, make(map[string]bool))
		for file := range files {
			idx[file] = append(idx[file], page)
		}
	}
	return idx
}

func collectFiles(imports map[string]*importtree.Node, files, visited map[string]bool) {
	for _, node := range imports {
		if node == nil || node.Path == "" {
			continue
		}
		files[node.Path] = true
		if !node.Circular && !visited[node.Path] {
			visited[node.Path] = true
			collectFiles(node.Imports, files, visited)
		}
	}
}

// AffectedPages maps a set of changed files to the pages they affect: a page
// file affects itself, anything else affects every page that reaches it.
func AffectedPages(files []string, tree importtree.Tree) []string {
	seen := make(map[string]bool)
	for _, file := range files {
		if IsPage(file) {
			seen[file] = true
			continue
		}
		for _, page := range PagesUsingFile(tree, file) {
			seen[page] = true
		}
	}

	affected := make([]string, 0, len(seen))
	for page := range seen {
		affected = append(affected, page)
	}
	sort.Strings(affected)
	return affected
}

func splitParts(path string) []string {
	raw := strings.Split(path, "/")
	parts := raw[:0]
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func index(parts []string, name string) int {
	for i, p := range parts {
		if p == name {
			return i
		}
	}
	return -1
}

func sortedKeys(tree importtree.Tree) []string {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedNodeKeys(m map[string]*importtree.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
