// Package destructive assigns destructive testing agents to the pages
// touched by uncommitted work.
package destructive

import (
	"fmt"
	"io"
	"sort"

	"specsync/internal/gitio"
	"specsync/internal/importtree"
	"specsync/internal/limits"
	"specsync/internal/pages"
	"specsync/internal/remote"
)

// AgentProvider returns per-page agent assignments. The API client
// implements it; tests substitute their own.
type AgentProvider interface {
	AgentAssignments(pages []remote.PageDiff) ([]remote.PageAgents, error)
}

// Options carries one destructive run's collaborators.
type Options struct {
	Provider       AgentProvider
	Git            *gitio.Runner
	Tree           importtree.Tree
	Out            io.Writer
	WorktreePrefix string

	// Limit caps how many page/agent pairs run; nil means unlimited.
	Limit *int
}

// Run diffs unstaged work, maps it to pages, asks the provider which agents
// to unleash on each page and returns the capped assignments.
func Run(o Options) ([]limits.Assignment, error) {
	diffText, err := o.Git.Diff(gitio.Unstaged, "")
	if err != nil {
		return nil, fmt.Errorf("diffing: %w", err)
	}

	perPage := pages.ChangesPerPage(o.Tree, diffText, o.WorktreePrefix)
	if len(perPage) == 0 {
		fmt.Fprintln(o.Out, "No affected pages.")
		return nil, nil
	}

	assignments, err := Assign(o.Provider, perPage)
	if err != nil {
		return nil, err
	}

	selected, dist := limits.ApplyAgentLimit(assignments, o.Limit)
	report(o.Out, selected, dist)
	return selected, nil
}

// Assign asks the provider for agents page by page and expands the answer
// into one assignment per page/agent pair.
func Assign(provider AgentProvider, perPage map[string][]string) ([]limits.Assignment, error) {
	var request []remote.PageDiff
	diffs := make(map[string]string, len(perPage))

	for _, page := range sortedKeys(perPage) {
		diff := pages.JoinPageDiff(perPage[page])
		diffs[page] = diff
		request = append(request, remote.PageDiff{Page: page, Diff: diff})
	}

	pageAgents, err := provider.AgentAssignments(request)
	if err != nil {
		return nil, fmt.Errorf("requesting agents: %w", err)
	}

	var assignments []limits.Assignment
	for _, pa := range pageAgents {
		for _, agent := range pa.Agents {
			assignments = append(assignments, limits.Assignment{
				Page:  pa.Page,
				Agent: agent,
				Diff:  diffs[pa.Page],
			})
		}
	}
	return assignments, nil
}

func report(out io.Writer, selected []limits.Assignment, dist map[string]int) {
	if len(selected) == 0 {
		fmt.Fprintln(out, "No agents assigned.")
		return
	}

	fmt.Fprintf(out, "Running %d destructive agents:\n", len(selected))
	for _, a := range selected {
		fmt.Fprintf(out, "  %s -> %s\n", a.Agent, a.Page)
	}
	if len(dist) > 0 {
		fmt.Fprintln(out, "Selection by agent class:")
		for _, class := range []string{"UI Crashers", "From Destroyer", "Other"} {
			if n, ok := dist[class]; ok {
				fmt.Fprintf(out, "  %s: %d\n", class, n)
			}
		}
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
