// Package gitio produces diff and status text for the project's source
// files and exposes repository metadata.
package gitio

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"specsync/internal/ignore"
)

// Variant selects which diff the git layer produces.
type Variant int

const (
	// WorkingTree diffs everything against HEAD, staging untracked files
	// with intent-to-add for the duration of the command.
	WorkingTree Variant = iota
	// Unstaged diffs only unstaged changes.
	Unstaged
	// ModifiedOnly restricts the working-tree diff to modified files.
	ModifiedOnly
	// AgainstDefault diffs against the remote default branch.
	AgainstDefault
	// ModifiedAgainstDefault restricts the default-branch diff to modified files.
	ModifiedAgainstDefault
	// AgainstCommit diffs against a specific commit.
	AgainstCommit
	// ModifiedAgainstCommit restricts the commit diff to modified files.
	ModifiedAgainstCommit
)

// Source-file pathspec appended to every diff and status command.
var pathspec = []string{"--", "*.tsx", "*.ts", "*.js", "*.jsx"}

var allowedExts = []string{".ts", ".tsx", ".js", ".jsx"}

// Changes categorizes changed files.
type Changes struct {
	Modified []string
	Deleted  []string
	New      []string
}

// Runner executes git commands in a repository directory.
type Runner struct {
	dir     string
	matcher *ignore.Matcher
}

// NewRunner creates a Runner for the repository at dir. Ignore patterns are
// loaded from the defaults plus the repo's .gitignore.
func NewRunner(dir string) (*Runner, error) {
	matcher, err := ignore.LoadFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}
	return &Runner{dir: dir, matcher: matcher}, nil
}

// Diff returns the raw diff text for a variant. Commit is only consulted by
// the AgainstCommit variants. A failing git command is fatal to the caller's
// mapping operation.
func (r *Runner) Diff(variant Variant, commit string) (string, error) {
	args, err := r.diffArgs(variant, commit)
	if err != nil {
		return "", err
	}

	if variant == WorkingTree || variant == AgainstDefault || variant == AgainstCommit {
		// diff HEAD only sees untracked files once they are intent-to-add.
		if _, err := r.run("add", "-N", "."); err != nil {
			return "", err
		}
		defer r.run("reset", "--quiet")
	}

	return r.run(args...)
}

func (r *Runner) diffArgs(variant Variant, commit string) ([]string, error) {
	base := []string{"diff"}

	switch variant {
	case WorkingTree:
		base = append(base, "HEAD")
	case Unstaged:
		// plain git diff
	case ModifiedOnly:
		base = append(base, "--diff-filter=M")
	case AgainstDefault, ModifiedAgainstDefault:
		branch, err := r.DefaultBranch()
		if err != nil {
			return nil, err
		}
		if variant == ModifiedAgainstDefault {
			base = append(base, "--diff-filter=M")
		}
		base = append(base, branch)
	case AgainstCommit, ModifiedAgainstCommit:
		if commit == "" {
			return nil, fmt.Errorf("commit hash required for commit diff")
		}
		if variant == ModifiedAgainstCommit {
			base = append(base, "--diff-filter=M")
		}
		base = append(base, commit)
	default:
		return nil, fmt.Errorf("unknown diff variant %d", variant)
	}

	return append(base, pathspec...), nil
}

// DiffBranchHead diffs target..HEAD, used by affected-spec detection.
func (r *Runner) DiffBranchHead(target string) (string, error) {
	args := append([]string{"diff", target + "..HEAD"}, pathspec...)
	return r.run(args...)
}

// Status returns the categorized porcelain status of source files.
func (r *Runner) Status() (Changes, error) {
	args := append([]string{"status", "--porcelain"}, pathspec...)
	out, err := r.run(args...)
	if err != nil {
		return Changes{}, err
	}
	return ParseStatus(out, r.Keep), nil
}

// NameStatus returns categorized name-status output for a diff variant.
func (r *Runner) NameStatus(variant Variant, commit string) (Changes, error) {
	var args []string
	switch variant {
	case AgainstDefault:
		branch, err := r.DefaultBranch()
		if err != nil {
			return Changes{}, err
		}
		args = append([]string{"diff", "--name-status", branch}, pathspec...)
	case AgainstCommit:
		args = append([]string{"diff", "--name-status", commit}, pathspec...)
	default:
		args = append([]string{"diff", "--name-status"}, pathspec...)
	}

	out, err := r.run(args...)
	if err != nil {
		return Changes{}, err
	}
	return ParseNameStatus(out, r.Keep), nil
}

// DefaultBranch resolves the remote default branch name (e.g. main).
func (r *Runner) DefaultBranch() (string, error) {
	out, err := r.run("symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving default branch: %w", err)
	}
	ref := strings.TrimSpace(out)
	if _, name, ok := strings.Cut(ref, "/"); ok {
		return name, nil
	}
	return ref, nil
}

// WorktreePrefix returns the repository-relative prefix of the current
// working directory, empty at the repo root.
func (r *Runner) WorktreePrefix() (string, error) {
	out, err := r.run("rev-parse", "--show-prefix")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Keep reports whether a changed path participates in reconciliation: it
// must carry a source extension and not match the ignore patterns.
func (r *Runner) Keep(path string) bool {
	ok := false
	for _, ext := range allowedExts {
		if strings.HasSuffix(path, ext) {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	return !r.matcher.Match(path)
}

func (r *Runner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// --- Repository metadata (go-git) ---

func (r *Runner) open() (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(r.dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return repo, nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Runner) CurrentBranch() (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return head.Name().Short(), nil
}

// HeadCommit returns the current commit hash.
func (r *Runner) HeadCommit() (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// CommitExists reports whether the repository contains the commit.
func (r *Runner) CommitExists(hash string) bool {
	if hash == "" {
		return false
	}
	repo, err := r.open()
	if err != nil {
		return false
	}
	_, err = repo.CommitObject(plumbing.NewHash(hash))
	return err == nil
}
