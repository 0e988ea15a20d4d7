package gitio

import "strings"

// ParseStatus categorizes git status --porcelain output. The keep filter
// drops paths that should not participate (wrong extension, ignored).
//
// The first status character is the index state, the second the worktree
// state. Deletion wins over the other states; a staged A or C is a new
// file; M, R and U in either column mean modified. The combined codes AD,
// AM, MD and DM override the single-column reading.
func ParseStatus(text string, keep func(string) bool) Changes {
	var changes Changes

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if len(line) < 3 {
			continue
		}

		code := line[:2]
		path := strings.TrimSpace(line[2:])
		if path == "" || (keep != nil && !keep(path)) {
			continue
		}

		switch code {
		case "??":
			changes.New = append(changes.New, path)
			continue
		case "!!":
			continue
		}

		staged, unstaged := code[0], code[1]

		var isDeleted, isNew, isModified bool
		switch {
		case staged == 'D' || unstaged == 'D':
			isDeleted = true
		case staged == 'A' || staged == 'C':
			isNew = true
		case staged == 'M' || unstaged == 'M' || staged == 'R' || unstaged == 'R' ||
			staged == 'U' || unstaged == 'U':
			isModified = true
		}

		if staged != ' ' && unstaged != ' ' {
			switch {
			case staged == 'A' && unstaged == 'D':
				isDeleted, isNew = true, false
			case staged == 'A' && unstaged == 'M':
				isNew, isModified = true, false
			case staged == 'M' && unstaged == 'D':
				isDeleted, isModified = true, false
			case staged == 'D' && unstaged == 'M':
				isModified, isDeleted = true, false
			}
		}

		switch {
		case isDeleted:
			changes.Deleted = append(changes.Deleted, path)
		case isNew:
			changes.New = append(changes.New, path)
		case isModified:
			changes.Modified = append(changes.Modified, path)
		}
	}

	return changes
}

// ParseNameStatus categorizes git diff --name-status output. Renames and
// copies count as modifications of the pre-change path.
func ParseNameStatus(text string, keep func(string) bool) Changes {
	var changes Changes

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}

		code := strings.TrimSpace(parts[0])
		path := strings.TrimSpace(parts[1])
		if path == "" || (keep != nil && !keep(path)) {
			continue
		}

		switch {
		case strings.HasPrefix(code, "D"):
			changes.Deleted = append(changes.Deleted, path)
		case strings.HasPrefix(code, "A"):
			changes.New = append(changes.New, path)
		case strings.HasPrefix(code, "M"),
			strings.HasPrefix(code, "R"),
			strings.HasPrefix(code, "C"):
			changes.Modified = append(changes.Modified, path)
		}
	}

	return changes
}
