package pages

import (
	"strings"

	"specsync/internal/diffparse"
	"specsync/internal/importtree"
)

// ChangesPerPage maps raw diff text onto affected pages. A change whose old
// path is itself a page is attributed to that page (with the worktree prefix
// stripped); any other change is attributed to every page whose import
// closure contains the file. Each file contributes its block at most once
// per page, and ordering follows the diff.
func ChangesPerPage(tree importtree.Tree, diffText, worktreePrefix string) map[string][]string {
	perPage := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	attribute := func(page string, fc diffparse.FileChange) {
		if seen[page] == nil {
			seen[page] = make(map[string]bool)
		}
		if seen[page][fc.OldPath] {
			return
		}
		seen[page][fc.OldPath] = true
		perPage[page] = append(perPage[page], diffparse.FormatFile(fc))
	}

	for _, fc := range diffparse.Parse(diffText) {
		if IsPage(fc.OldPath) {
			page := strings.TrimLeft(strings.TrimPrefix(fc.OldPath, worktreePrefix), "/")
			attribute(page, fc)
			continue
		}
		for _, page := range PagesUsingFile(tree, fc.OldPath) {
			attribute(page, fc)
		}
	}

	return perPage
}

// JoinPageDiff combines the blocks attributed to one page into the single
// diff payload sent to the generation API.
func JoinPageDiff(blocks []string) string {
	return strings.Join(blocks, "\n==========\n")
}
