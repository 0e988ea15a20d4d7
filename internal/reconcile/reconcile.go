// Package reconcile drives the spec repository toward the current state of
// the code: updating specs for changed pages, suggesting specs for
// uncovered pages and deleting specs for removed pages.
package reconcile

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"specsync/internal/gitio"
	"specsync/internal/importtree"
	"specsync/internal/pages"
	"specsync/internal/remote"
	"specsync/internal/specs"
)

// Options carries everything one reconciliation run needs.
type Options struct {
	Store *specs.Store
	Gen   remote.Generator
	Git   *gitio.Runner
	Tree  importtree.Tree
	Out   io.Writer

	// Exactly one baseline applies: the working tree (default), the
	// default branch, or the commit of the last recorded run.
	AgainstDefault    bool
	AgainstLastUpdate bool
	LastCommit        string

	// WorktreePrefix is stripped from diff paths when the command runs
	// from a subdirectory of the repo.
	WorktreePrefix string
}

// Changeset is the collected view of what changed: the categorized files,
// the diff blocks attributed to each affected page, and the narrower
// modified-only attribution that scopes spec updates. A page whose file was
// added or deleted appears in PerPage but not in UpdatePerPage.
type Changeset struct {
	Changes       gitio.Changes
	PerPage       map[string][]string
	UpdatePerPage map[string][]string
}

// Collect computes the changeset for the configured baseline.
func Collect(o Options) (*Changeset, error) {
	full, modified, commit, err := o.variants()
	if err != nil {
		return nil, err
	}

	fullDiff, err := o.Git.Diff(full, commit)
	if err != nil {
		return nil, fmt.Errorf("diffing: %w", err)
	}
	modifiedDiff, err := o.Git.Diff(modified, commit)
	if err != nil {
		return nil, fmt.Errorf("diffing modified files: %w", err)
	}

	var changes gitio.Changes
	if full == gitio.WorkingTree {
		changes, err = o.Git.Status()
		if err != nil {
			return nil, fmt.Errorf("reading status: %w", err)
		}
	} else {
		changes, err = o.Git.NameStatus(full, commit)
		if err != nil {
			return nil, fmt.Errorf("listing changed files: %w", err)
		}
	}

	return &Changeset{
		Changes:       changes,
		PerPage:       pages.ChangesPerPage(o.Tree, fullDiff, o.WorktreePrefix),
		UpdatePerPage: pages.ChangesPerPage(o.Tree, modifiedDiff, o.WorktreePrefix),
	}, nil
}

func (o Options) variants() (full, modified gitio.Variant, commit string, err error) {
	switch {
	case o.AgainstDefault:
		return gitio.AgainstDefault, gitio.ModifiedAgainstDefault, "", nil
	case o.AgainstLastUpdate:
		if o.LastCommit == "" {
			return 0, 0, "", fmt.Errorf("no previous update recorded on this branch")
		}
		return gitio.AgainstCommit, gitio.ModifiedAgainstCommit, o.LastCommit, nil
	default:
		return gitio.WorkingTree, gitio.ModifiedOnly, "", nil
	}
}

// Update rewrites the specs of every page affected by modified files. Pages
// of added or deleted files are out of scope here; suggest and delete own
// those. A page with changes but no specs is reported, not failed on; a
// failed rewrite is reported and the run continues.
func Update(o Options, cs *Changeset, idx specs.Index) error {
	for _, page := range sortedPages(cs.UpdatePerPage) {
		refs := refsFor(idx, page)
		if len(refs) == 0 {
			fmt.Fprintf(o.Out, "✗ Page %s not found in test cases\n", page)
			continue
		}

		diff := pages.JoinPageDiff(cs.UpdatePerPage[page])
		all := pageEntries(refs)

		for _, ref := range refs {
			for _, entry := range ref.File.Entries {
				context := specs.FormatContext(others(all, entry))
				updated, err := o.Gen.UpdateSpec(entry, diff, context)
				if err != nil {
					fmt.Fprintf(o.Out, "✗ Updating %s: %v\n", ref.Path, err)
					continue
				}
				if err := o.Store.Update(ref, updated); err != nil {
					fmt.Fprintf(o.Out, "✗ Writing %s: %v\n", ref.Path, err)
					continue
				}
				fmt.Fprintf(o.Out, "✓ Updated %s\n", ref.Path)
			}
		}
	}
	return nil
}

// Suggest generates new specs for every affected page. When the page
// already has specs they are passed as context so the generator does not
// duplicate their coverage.
func Suggest(o Options, cs *Changeset, idx specs.Index) error {
	for _, page := range sortedPages(cs.PerPage) {
		context := ""
		if existing := refsFor(idx, page); len(existing) > 0 {
			context = specs.FormatContext(pageEntries(existing))
		}

		diff := pages.JoinPageDiff(cs.PerPage[page])
		entries, err := o.Gen.SuggestSpecs(page, diff, context)
		if err != nil {
			fmt.Fprintf(o.Out, "✗ Suggesting specs for %s: %v\n", page, err)
			continue
		}

		for _, entry := range entries {
			if entry.PagePath == "" {
				entry.PagePath = page
			}
			rel, err := o.Store.SaveNew(entry)
			if err != nil {
				fmt.Fprintf(o.Out, "✗ Saving spec for %s: %v\n", page, err)
				continue
			}
			fmt.Fprintf(o.Out, "✓ Created %s\n", rel)
		}
	}
	return nil
}

// Delete removes the specs of deleted pages. It returns the root-relative
// paths of the removed spec files so sync can mirror the deletion remotely.
func Delete(o Options, cs *Changeset, idx specs.Index) ([]string, error) {
	var removed []string

	deleted := append([]string(nil), cs.Changes.Deleted...)
	sort.Strings(deleted)

	for _, path := range deleted {
		path = strings.TrimLeft(strings.TrimPrefix(path, o.WorktreePrefix), "/")
		if !pages.IsPage(path) {
			continue
		}

		for _, ref := range refsFor(idx, path) {
			if err := o.Store.Delete(ref.Path); err != nil {
				fmt.Fprintf(o.Out, "✗ Deleting %s: %v\n", ref.Path, err)
				continue
			}
			removed = append(removed, ref.Path)
			fmt.Fprintf(o.Out, "✓ Deleted %s (page %s removed)\n", ref.Path, path)
		}
	}
	return removed, nil
}

// refsFor finds the spec files covering a page. Spec page paths and diff
// paths can disagree on a src prefix, so matching tolerates either side
// being the suffix of the other.
func refsFor(idx specs.Index, page string) []specs.Ref {
	if refs, ok := idx[page]; ok {
		return refs
	}
	var out []specs.Ref
	for _, key := range sortedIndexKeys(idx) {
		if strings.HasSuffix(page, "/"+key) || strings.HasSuffix(key, "/"+page) {
			out = append(out, idx[key]...)
		}
	}
	return out
}

func sortedIndexKeys(idx specs.Index) []string {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedPages(perPage map[string][]string) []string {
	out := make([]string, 0, len(perPage))
	for page := range perPage {
		out = append(out, page)
	}
	sort.Strings(out)
	return out
}

func pageEntries(refs []specs.Ref) []specs.Entry {
	var all []specs.Entry
	for _, ref := range refs {
		all = append(all, ref.File.Entries...)
	}
	return all
}

// others returns every entry except the one being rewritten, for the dedup
// context sent to the generator.
func others(all []specs.Entry, current specs.Entry) []specs.Entry {
	var out []specs.Entry
	for _, e := range all {
		if e.Name == current.Name && e.Task == current.Task {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Detect prints which pages the current branch touches relative to a target
// branch and whether each page has spec coverage.
func Detect(o Options, target string, idx specs.Index) error {
	diffText, err := o.Git.DiffBranchHead(target)
	if err != nil {
		return fmt.Errorf("diffing against %s: %w", target, err)
	}

	perPage := pages.ChangesPerPage(o.Tree, diffText, o.WorktreePrefix)
	if len(perPage) == 0 {
		fmt.Fprintln(o.Out, "No affected pages.")
		return nil
	}

	fmt.Fprintf(o.Out, "Affected pages (vs %s):\n", target)
	for _, page := range sortedPages(perPage) {
		covered := "no specs"
		if n := len(refsFor(idx, page)); n == 1 {
			covered = "1 spec file"
		} else if n > 1 {
			covered = fmt.Sprintf("%d spec files", n)
		}
		fmt.Fprintf(o.Out, "  %s (%s)\n", page, covered)
	}
	return nil
}
