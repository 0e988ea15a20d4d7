// Package diffparse parses raw git diff text into structured file changes
// and renders them as readable change blocks.
package diffparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Hunk is a single contiguous change region within a file.
type Hunk struct {
	OldStart int      `json:"old_start"`
	OldCount int      `json:"old_count"`
	NewStart int      `json:"new_start"`
	NewCount int      `json:"new_count"`
	Added    []string `json:"added_lines"`
	Removed  []string `json:"removed_lines"`
	Context  []string `json:"context_lines"`
}

// FileChange is the parsed diff of one file.
type FileChange struct {
	OldPath   string `json:"old_path"`
	NewPath   string `json:"new_path"`
	OldHash   string `json:"old_hash"`
	NewHash   string `json:"new_hash"`
	IsNew     bool   `json:"is_new,omitempty"`
	IsDeleted bool   `json:"is_deleted,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Hunks     []Hunk `json:"hunks"`
}

var (
	fileHeaderRe = regexp.MustCompile(`^diff --git a/(.*) b/(.*)$`)
	indexRe      = regexp.MustCompile(`^index ([a-f0-9]+)\.\.([a-f0-9]+)`)
	hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+),?(\d*) \+(\d+),?(\d*) @@`)
	newFileRe    = regexp.MustCompile(`^new file mode (\d+)$`)
	deletedRe    = regexp.MustCompile(`^deleted file mode (\d+)$`)
)

// Parse converts raw git diff output into file changes, in diff order.
func Parse(text string) []FileChange {
	var files []FileChange
	lines := strings.Split(strings.TrimSpace(text), "\n")
	i := 0

	for i < len(lines) {
		m := fileHeaderRe.FindStringSubmatch(lines[i])
		if m == nil {
			i++
			continue
		}

		fc := FileChange{OldPath: m[1], NewPath: m[2]}

		// Scan the extended header up to the index line, recording new and
		// deleted file markers on the way.
		i++
		for i < len(lines) && !strings.HasPrefix(lines[i], "index") {
			if nm := newFileRe.FindStringSubmatch(lines[i]); nm != nil {
				fc.IsNew = true
				fc.Mode = nm[1]
			} else if dm := deletedRe.FindStringSubmatch(lines[i]); dm != nil {
				fc.IsDeleted = true
				fc.Mode = dm[1]
			} else if strings.HasPrefix(lines[i], "diff --git") {
				break
			}
			i++
		}
		if i >= len(lines) {
			if fc.IsNew || fc.IsDeleted {
				files = append(files, fc)
			}
			break
		}
		if strings.HasPrefix(lines[i], "diff --git") {
			files = append(files, fc)
			continue
		}

		if im := indexRe.FindStringSubmatch(lines[i]); im != nil {
			fc.OldHash = im[1]
			fc.NewHash = im[2]
		}

		// Skip the --- and +++ path lines.
		i++
		for i < len(lines) && (strings.HasPrefix(lines[i], "---") || strings.HasPrefix(lines[i], "+++")) {
			i++
		}

		for i < len(lines) && strings.HasPrefix(lines[i], "@@") {
			hunk, next := parseHunk(lines, i)
			if hunk != nil {
				fc.Hunks = append(fc.Hunks, *hunk)
			}
			i = next
			if i < len(lines) && strings.HasPrefix(lines[i], "diff --git") {
				break
			}
		}

		files = append(files, fc)
	}

	return files
}

func parseHunk(lines []string, start int) (*Hunk, int) {
	m := hunkHeaderRe.FindStringSubmatch(lines[start])
	if m == nil {
		return nil, start + 1
	}

	h := &Hunk{
		OldStart: atoiDefault(m[1], 0),
		OldCount: atoiDefault(m[2], 1),
		NewStart: atoiDefault(m[3], 0),
		NewCount: atoiDefault(m[4], 1),
	}

	i := start + 1
	for i < len(lines) {
		line := lines[i]
		if strings.HasPrefix(line, "@@") || strings.HasPrefix(line, "diff --git") {
			break
		}

		switch {
		case strings.HasPrefix(line, "+"):
			h.Added = append(h.Added, line[1:])
		case strings.HasPrefix(line, "-"):
			h.Removed = append(h.Removed, line[1:])
		case strings.HasPrefix(line, " "):
			h.Context = append(h.Context, line[1:])
		case strings.TrimSpace(line) == "":
			h.Context = append(h.Context, "")
		}
		i++
	}

	return h, i
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// FormatFile renders one file change as a readable block: the file header
// followed by each hunk's location and its added, removed and context lines.
func FormatFile(fc FileChange) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "File: %s\n", fc.NewPath)
	fmt.Fprintf(&sb, "   Old version: %s\n", fc.OldHash)
	fmt.Fprintf(&sb, "   New version: %s\n", fc.NewHash)
	sb.WriteString("\n")

	for i, h := range fc.Hunks {
		fmt.Fprintf(&sb, "   Change #%d:\n", i+1)
		fmt.Fprintf(&sb, "      Location: Lines %d-%d -> Lines %d-%d\n",
			h.OldStart, h.OldStart+h.OldCount-1, h.NewStart, h.NewStart+h.NewCount-1)

		if len(h.Added) > 0 {
			sb.WriteString("      Added lines:\n")
			for _, line := range h.Added {
				fmt.Fprintf(&sb, "         + %s\n", line)
			}
		}
		if len(h.Removed) > 0 {
			sb.WriteString("      Removed lines:\n")
			for _, line := range h.Removed {
				fmt.Fprintf(&sb, "         - %s\n", line)
			}
		}
		if len(h.Context) > 0 {
			sb.WriteString("      Context (unchanged):\n")
			for _, line := range h.Context {
				fmt.Fprintf(&sb, "           %s\n", line)
			}
		}
		sb.WriteString("\n")
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// Format renders all file changes separated by a rule line.
func Format(files []FileChange) string {
	var parts []string
	for _, fc := range files {
		parts = append(parts, FormatFile(fc))
		parts = append(parts, strings.Repeat("=", 60))
		parts = append(parts, "")
	}
	return strings.Join(parts, "\n")
}
