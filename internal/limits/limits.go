// Package limits implements the bounded-selection policies: a proportional
// per-folder budget for test runs and a strict-priority budget for
// destructive agents.
package limits

import (
	"sort"
	"strings"

	"specsync/internal/specs"
)

// TestFile is one spec file queued for execution.
type TestFile struct {
	Path    string
	Entries []specs.Entry
}

// Assignment pairs a page with one destructive agent and the diff that
// triggered it.
type Assignment struct {
	Page  string
	Agent string
	Diff  string
}

// Agent classes in descending priority. Unknown agents rank below both.
var agentPriorities = map[string]int{
	"UI Crashers":    2,
	"From Destroyer": 1,
}

// ApplyTestLimit selects a representative subset of test files when the
// total entry count exceeds max. A nil max means no limit. Selection is
// proportional across top-level folders: each folder gets max/M files, the
// first max mod M folders in lexicographic order get one extra, and no
// folder exceeds its own size. With more folders than max, the first max
// folders contribute one file each. The distribution report maps folder to
// selected count.
func ApplyTestLimit(files []TestFile, max *int) ([]TestFile, map[string]int) {
	if max == nil {
		return files, map[string]int{}
	}
	if countEntries(files) <= *max {
		return files, map[string]int{}
	}
	if *max <= 0 {
		return nil, map[string]int{}
	}

	groups := groupByFolder(files)
	folders := sortedGroupKeys(groups)

	var selected []TestFile
	distribution := make(map[string]int)

	perFolder := *max / len(folders)
	if perFolder >= 1 {
		extra := *max % len(folders)
		for i, folder := range folders {
			take := perFolder
			if i < extra {
				take++
			}
			if take > len(groups[folder]) {
				take = len(groups[folder])
			}
			if take > 0 {
				selected = append(selected, groups[folder][:take]...)
				distribution[folder] = take
			}
			if len(selected) >= *max {
				break
			}
		}
	} else {
		for i, folder := range folders {
			if i >= *max {
				break
			}
			selected = append(selected, groups[folder][0])
			distribution[folder] = 1
		}
	}

	if len(selected) > *max {
		selected = selected[:*max]
	}
	return selected, distribution
}

// ApplyAgentLimit selects at most max assignments by strict priority:
// every UI Crashers assignment before any From Destroyer, and both before
// unknown agents. A nil max means no limit. The distribution report maps
// agent class to selected count.
func ApplyAgentLimit(assignments []Assignment, max *int) ([]Assignment, map[string]int) {
	if max == nil {
		return assignments, map[string]int{}
	}
	if len(assignments) <= *max {
		return assignments, map[string]int{}
	}
	if *max <= 0 {
		return nil, map[string]int{}
	}

	groups := make(map[string][]Assignment)
	for _, a := range assignments {
		class := AgentClass(a.Agent)
		groups[class] = append(groups[class], a)
	}

	classes := make([]string, 0, len(groups))
	for class := range groups {
		classes = append(classes, class)
	}
	// Priority first, name as tie-break so the order is stable.
	sort.Slice(classes, func(i, j int) bool {
		pi, pj := agentPriorities[classes[i]], agentPriorities[classes[j]]
		if pi != pj {
			return pi > pj
		}
		return classes[i] < classes[j]
	})

	var selected []Assignment
	distribution := make(map[string]int)
	remaining := *max

	for _, class := range classes {
		if remaining <= 0 {
			break
		}
		take := len(groups[class])
		if take > remaining {
			take = remaining
		}
		selected = append(selected, groups[class][:take]...)
		distribution[class] = take
		remaining -= take
	}

	return selected, distribution
}

// AgentClass maps an agent name onto its priority class.
func AgentClass(agent string) string {
	lower := strings.ToLower(agent)
	switch {
	case strings.Contains(agent, "UI Crashers") || strings.Contains(lower, "ui_crasher"):
		return "UI Crashers"
	case strings.Contains(agent, "From Destroyer") || strings.Contains(lower, "destroyer"):
		return "From Destroyer"
	default:
		return "Other"
	}
}

// countEntries counts individual test entries across files; a file with no
// parsed entries still counts as one.
func countEntries(files []TestFile) int {
	total := 0
	for _, f := range files {
		if len(f.Entries) > 0 {
			total += len(f.Entries)
		} else {
			total++
		}
	}
	return total
}

// groupByFolder groups files by their top-level folder under the specs
// root; files at the root itself group under "root".
func groupByFolder(files []TestFile) map[string][]TestFile {
	groups := make(map[string][]TestFile)
	for _, f := range files {
		folder := "root"
		if dir, _, ok := strings.Cut(strings.Trim(f.Path, "/"), "/"); ok {
			folder = dir
		}
		groups[folder] = append(groups[folder], f)
	}
	return groups
}

func sortedGroupKeys(groups map[string][]TestFile) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
