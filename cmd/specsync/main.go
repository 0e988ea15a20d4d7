// Package main provides the specsync CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"specsync/internal/config"
	"specsync/internal/destructive"
	"specsync/internal/gitio"
	"specsync/internal/importtree"
	"specsync/internal/limits"
	"specsync/internal/reconcile"
	"specsync/internal/remote"
	"specsync/internal/specs"
	"specsync/internal/state"
)

const (
	testsDir = "tests"
	dbFile   = "state.db"
)

var rootCmd = &cobra.Command{
	Use:   "specsync",
	Short: "Keep YAML test specs synchronized with a Next.js codebase",
	Long:  `Specsync analyzes the project's import graph, maps git diffs to affected pages, and updates, suggests or deletes the YAML test specs covering those pages.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize specsync in the current directory",
	RunE:  runInit,
}

var treeCmd = &cobra.Command{
	Use:   "tree [entry...]",
	Short: "Print the import tree as JSON",
	RunE:  runTree,
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Report pages affected by this branch and their spec coverage",
	RunE:  runDetect,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Reconcile specs with the current code changes",
	RunE:  runUpdate,
}

var destructiveCmd = &cobra.Command{
	Use:   "destructive",
	Short: "Assign destructive agents to changed pages",
	RunE:  runDestructive,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize specs with the team's remote snapshot",
	RunE:  runSync,
}

var (
	initAPIURL    string
	initAPIKey    string
	initProjectID string

	detectTarget string

	updateOnly        bool
	suggestOnly       bool
	deleteOnly        bool
	againstDefault    bool
	againstLastUpdate bool

	destructiveLimit int

	syncPull bool
	syncPush bool
)

func init() {
	initCmd.Flags().StringVar(&initAPIURL, "api-url", "", "Generation API base URL")
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "API key")
	initCmd.Flags().StringVar(&initProjectID, "project-id", "", "Project id (generated when omitted)")

	detectCmd.Flags().StringVar(&detectTarget, "target", "", "Branch to compare against (default: remote default branch)")

	updateCmd.Flags().BoolVar(&updateOnly, "update-only", false, "Only update existing specs")
	updateCmd.Flags().BoolVar(&suggestOnly, "suggest-only", false, "Only suggest specs for uncovered pages")
	updateCmd.Flags().BoolVar(&deleteOnly, "delete-only", false, "Only delete specs for removed pages")
	updateCmd.Flags().BoolVar(&againstDefault, "against-default", false, "Diff against the remote default branch")
	updateCmd.Flags().BoolVar(&againstLastUpdate, "against-last-update", false, "Diff against the last recorded update on this branch")

	destructiveCmd.Flags().IntVar(&destructiveLimit, "limit", -1, "Max page/agent pairs (default: configured limit)")

	syncCmd.Flags().BoolVar(&syncPull, "pull", false, "Pull the remote snapshot")
	syncCmd.Flags().BoolVar(&syncPush, "push", false, "Push the local specs")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(destructiveCmd)
	rootCmd.AddCommand(syncCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const exampleSpec = `# Example spec. Folders named "example" are never loaded.
name: Landing page renders
page: Home
page_path: pages/index.tsx
task: Verify the landing page loads
steps:
  - Open the landing page
expected_result: The page renders without errors
`

func runInit(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	projectID := initProjectID
	if projectID == "" {
		projectID = uuid.NewString()
	}

	cfg := config.Default(projectID)
	cfg.APIURL = initAPIURL
	cfg.APIKey = initAPIKey
	if err := config.Save(root, cfg); err != nil {
		return err
	}

	exampleDir := filepath.Join(root, config.Dir, testsDir, "example")
	if err := os.MkdirAll(exampleDir, 0755); err != nil {
		return fmt.Errorf("creating tests directory: %w", err)
	}
	examplePath := filepath.Join(exampleDir, "1_example.yaml")
	if _, err := os.Stat(examplePath); os.IsNotExist(err) {
		if err := os.WriteFile(examplePath, []byte(exampleSpec), 0644); err != nil {
			return fmt.Errorf("writing example spec: %w", err)
		}
	}

	db, err := state.Open(filepath.Join(root, config.Dir, dbFile))
	if err != nil {
		return err
	}
	db.Close()

	fmt.Printf("✓ Initialized specsync in %s/ (project %s)\n", config.Dir, projectID)
	return nil
}

func runTree(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	builder := importtree.NewBuilder(root)
	tree, err := builder.BuildTree(args)
	if err != nil {
		return fmt.Errorf("building import tree: %w", err)
	}

	data, err := tree.MarshalIndent()
	if err != nil {
		return fmt.Errorf("encoding tree: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// env gathers the collaborators every reconciliation command shares.
type env struct {
	root       string
	cfg        *config.Config
	git        *gitio.Runner
	store      *specs.Store
	tree       importtree.Tree
	treeDigest string
	prefix     string
	db         *state.DB
}

func setup() (*env, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	git, err := gitio.NewRunner(root)
	if err != nil {
		return nil, err
	}
	prefix, err := git.WorktreePrefix()
	if err != nil {
		return nil, fmt.Errorf("resolving worktree prefix: %w", err)
	}

	db, err := state.Open(filepath.Join(root, config.Dir, dbFile))
	if err != nil {
		return nil, err
	}

	tree, digest, err := loadTree(db, root)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &env{
		root:       root,
		cfg:        cfg,
		git:        git,
		store:      specs.NewStore(filepath.Join(root, config.Dir, testsDir)),
		tree:       tree,
		treeDigest: digest,
		prefix:     prefix,
		db:         db,
	}, nil
}

// loadTree reuses the cached import tree when the source files are
// unchanged since it was built, rebuilding and re-caching otherwise.
func loadTree(db *state.DB, root string) (importtree.Tree, string, error) {
	builder := importtree.NewBuilder(root)
	digest := state.TreeDigest(builder.Manifest())

	if cached, err := db.Tree(digest); err == nil && cached != nil {
		if tree, err := importtree.UnmarshalTree(cached); err == nil {
			return tree, digest, nil
		}
	}

	tree, err := builder.BuildTree(nil)
	if err != nil {
		return nil, "", fmt.Errorf("building import tree: %w", err)
	}
	if content, err := tree.MarshalIndent(); err == nil {
		if err := db.StoreTree(digest, content); err != nil {
			fmt.Fprintf(os.Stderr, "warning: caching import tree: %v\n", err)
		}
	}
	return tree, digest, nil
}

func (e *env) client() *remote.Client {
	baseURL := e.cfg.APIURL
	if baseURL == "" {
		baseURL = os.Getenv("SPECSYNC_SERVER")
	}
	if baseURL == "" {
		baseURL = remote.DefaultServer
	}
	return remote.NewClient(baseURL, e.cfg.APIKey, e.cfg.ProjectID)
}

func runDetect(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.db.Close()

	target := detectTarget
	if target == "" {
		target, err = e.git.DefaultBranch()
		if err != nil {
			return err
		}
	}

	idx, err := e.store.Load()
	if err != nil {
		return err
	}

	o := reconcile.Options{Git: e.git, Tree: e.tree, Out: os.Stdout, WorktreePrefix: e.prefix}
	return reconcile.Detect(o, target, idx)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.db.Close()

	branch, err := e.git.CurrentBranch()
	if err != nil {
		return err
	}

	o := reconcile.Options{
		Store:             e.store,
		Gen:               e.client(),
		Git:               e.git,
		Tree:              e.tree,
		Out:               os.Stdout,
		AgainstDefault:    againstDefault,
		AgainstLastUpdate: againstLastUpdate,
		WorktreePrefix:    e.prefix,
	}

	if againstLastUpdate {
		run, err := e.db.LastRun(branch)
		if err != nil {
			return err
		}
		if run == nil || !e.git.CommitExists(run.CommitHash) {
			return fmt.Errorf("no previous update recorded on branch %s", branch)
		}
		o.LastCommit = run.CommitHash
	}

	cs, err := reconcile.Collect(o)
	if err != nil {
		return err
	}

	idx, err := e.store.Load()
	if err != nil {
		return err
	}

	doUpdate := !suggestOnly && !deleteOnly
	doSuggest := !updateOnly && !deleteOnly
	doDelete := !updateOnly && !suggestOnly

	if doUpdate {
		idxToUpdate := applyTestLimit(idx, cs, e.cfg.TestLimit())
		if err := reconcile.Update(o, cs, idxToUpdate); err != nil {
			return err
		}
	}
	if doSuggest {
		if err := reconcile.Suggest(o, cs, idx); err != nil {
			return err
		}
	}
	if doDelete {
		removed, err := reconcile.Delete(o, cs, idx)
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			if err := e.client().DeleteSpecs(removed); err != nil {
				fmt.Fprintf(os.Stderr, "warning: deleting remote specs: %v\n", err)
			}
		}
	}

	return recordRun(e, branch)
}

// applyTestLimit caps how many spec files one run rewrites, spreading the
// budget proportionally across spec folders. Pages whose files fall outside
// the selection are dropped from the index handed to Update.
func applyTestLimit(idx specs.Index, cs *reconcile.Changeset, max *int) specs.Index {
	if max == nil {
		return idx
	}

	var files []limits.TestFile
	for _, refs := range idx {
		for _, ref := range refs {
			files = append(files, limits.TestFile{Path: ref.Path, Entries: ref.File.Entries})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	selected, dist := limits.ApplyTestLimit(files, max)
	if len(dist) == 0 {
		return idx
	}

	keep := make(map[string]bool, len(selected))
	for _, f := range selected {
		keep[f.Path] = true
	}

	trimmed := make(specs.Index)
	for page, refs := range idx {
		for _, ref := range refs {
			if keep[ref.Path] {
				trimmed[page] = append(trimmed[page], ref)
			}
		}
	}

	fmt.Printf("Applying test limit of %d:\n", *max)
	for _, folder := range sortedKeys(dist) {
		fmt.Printf("  %s: %d\n", folder, dist[folder])
	}
	return trimmed
}

func recordRun(e *env, branch string) error {
	commit, err := e.git.HeadCommit()
	if err != nil {
		return err
	}
	return e.db.RecordRun(commit, branch, e.treeDigest)
}

func runDestructive(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.db.Close()

	limit := e.cfg.DestructiveLimit()
	if destructiveLimit >= 0 {
		limit = &destructiveLimit
	}

	_, err = destructive.Run(destructive.Options{
		Provider:       e.client(),
		Git:            e.git,
		Tree:           e.tree,
		Out:            os.Stdout,
		WorktreePrefix: e.prefix,
		Limit:          limit,
	})
	return err
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncPull == syncPush {
		return fmt.Errorf("pass exactly one of --pull or --push")
	}

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.db.Close()

	branch, err := e.git.CurrentBranch()
	if err != nil {
		return err
	}

	if syncPull {
		return pullSpecs(e, branch)
	}
	return pushSpecs(e, branch)
}

func pullSpecs(e *env, branch string) error {
	payload, err := e.client().PullSpecs(branch)
	if err != nil {
		return err
	}
	if len(payload.Files) == 0 {
		fmt.Println("Remote snapshot is empty.")
		return nil
	}

	for _, rel := range sortedKeys(payload.Files) {
		path := filepath.Join(e.store.Root(), filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("creating spec folder: %w", err)
		}
		if err := os.WriteFile(path, []byte(payload.Files[rel]), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", rel, err)
		}
		fmt.Printf("✓ Pulled %s\n", rel)
	}
	return nil
}

func pushSpecs(e *env, branch string) error {
	files := make(map[string]string)
	root := e.store.Root()

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if strings.Contains(rel, "example") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	if err != nil {
		return fmt.Errorf("collecting specs: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No specs to push.")
		return nil
	}

	if err := e.client().PushSpecs(&remote.SyncPayload{Branch: branch, Files: files}); err != nil {
		return err
	}
	fmt.Printf("✓ Pushed %d spec files\n", len(files))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
