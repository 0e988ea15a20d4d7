// Package specs loads, indexes and rewrites the YAML spec files kept under
// the project's tests directory.
package specs

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Entry is one test spec. Field order here is the field order written to
// disk.
type Entry struct {
	Name           string   `yaml:"name" json:"name"`
	Page           string   `yaml:"page,omitempty" json:"page,omitempty"`
	PagePath       string   `yaml:"page_path" json:"page_path"`
	Task           string   `yaml:"task" json:"task"`
	Steps          []string `yaml:"steps" json:"steps"`
	ExpectedResult string   `yaml:"expected_result" json:"expected_result"`
}

// Meta is the machine-readable header of a spec file. It rides in a leading
// comment line so the YAML body stays plain.
type Meta struct {
	ID           string `json:"id"`
	Version      int    `json:"version"`
	LastModified string `json:"last_modified,omitempty"`
}

const metaPrefix = "# @META:"

// File is a parsed spec file. Header keeps every leading comment line
// verbatim; rewrites re-render only the @META line and leave the rest
// byte-for-byte.
type File struct {
	Path    string // relative to the specs root
	Header  []string
	Meta    Meta
	HasMeta bool
	Entries []Entry
}

// ParseFile parses spec file content: an optional comment header followed by
// a YAML mapping or list of entries.
func ParseFile(path string, content []byte) (*File, error) {
	f := &File{Path: path}

	lines := strings.Split(string(content), "\n")
	body := 0
	for body < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[body]), "#") {
		line := lines[body]
		f.Header = append(f.Header, line)
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), metaPrefix); ok {
			if err := json.Unmarshal([]byte(rest), &f.Meta); err != nil {
				return nil, fmt.Errorf("parsing spec metadata: %w", err)
			}
			f.HasMeta = true
		}
		body++
	}

	rest := strings.Join(lines[body:], "\n")

	var entries []Entry
	if err := yaml.Unmarshal([]byte(rest), &entries); err != nil {
		var single Entry
		if err2 := yaml.Unmarshal([]byte(rest), &single); err2 != nil {
			return nil, fmt.Errorf("parsing spec body: %w", err)
		}
		entries = []Entry{single}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("empty spec file")
	}
	for _, e := range entries {
		if e.PagePath == "" {
			return nil, fmt.Errorf("missing page_path")
		}
	}

	f.Entries = entries
	return f, nil
}

// Render serializes the file back to bytes. A single entry is written as a
// mapping, multiple entries as a list.
func (f *File) Render() ([]byte, error) {
	var sb strings.Builder

	for _, line := range f.Header {
		if f.HasMeta && strings.HasPrefix(strings.TrimSpace(line), metaPrefix) {
			sb.WriteString(f.Meta.renderLine())
		} else {
			sb.WriteString(line)
		}
		sb.WriteString("\n")
	}

	var body any = f.Entries
	if len(f.Entries) == 1 {
		body = f.Entries[0]
	}
	data, err := yaml.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling spec: %w", err)
	}
	sb.Write(data)

	return []byte(sb.String()), nil
}

// renderLine keeps the JSON key order stable so rewrites only change the
// fields that were updated.
func (m Meta) renderLine() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `%s{"id":%q,"version":%d`, metaPrefix, m.ID, m.Version)
	if m.LastModified != "" {
		fmt.Fprintf(&sb, `,"last_modified":%q`, m.LastModified)
	}
	sb.WriteString("}")
	return sb.String()
}

// NewMeta creates metadata for a freshly generated spec.
func NewMeta() Meta {
	return Meta{
		ID:           uuid.NewString(),
		Version:      1,
		LastModified: time.Now().UTC().Format(time.RFC3339),
	}
}

// Ref locates one spec file within the index.
type Ref struct {
	Path string
	File *File
}

// Index maps a page path to the spec files covering it, ordered by path.
type Index map[string][]Ref

// Store reads and writes spec files under a root directory.
type Store struct {
	root string
}

// NewStore creates a Store over the given specs root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the specs root directory.
func (s *Store) Root() string {
	return s.root
}

// Load walks the specs root and indexes every parseable YAML file by the
// page path of its first entry. Subtrees named example are skipped, and a
// file that fails to parse is reported and skipped, never rewritten.
func (s *Store) Load() (Index, error) {
	idx := make(Index)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.Contains(d.Name(), "example") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: reading spec %s: %v\n", rel, err)
			return nil
		}
		f, err := ParseFile(rel, content)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping spec %s: %v\n", rel, err)
			return nil
		}

		page := f.Entries[0].PagePath
		idx[page] = append(idx[page], Ref{Path: rel, File: f})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking specs dir: %w", err)
	}

	for page := range idx {
		refs := idx[page]
		sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	}
	return idx, nil
}

// SaveNew writes a generated entry as a new spec file under the page's
// folder, with fresh metadata and a numeric-prefix file name that follows
// the folder's existing sequence. It returns the root-relative path.
func (s *Store) SaveNew(entry Entry) (string, error) {
	folder := pageFolderName(entry.PagePath)
	dir := filepath.Join(s.root, folder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating spec folder: %w", err)
	}

	name := fmt.Sprintf("%d_%s.yaml", s.nextIndex(dir), normalizeName(entry.Name))
	rel := filepath.ToSlash(filepath.Join(folder, name))

	f := &File{
		Path:    rel,
		Header:  []string{metaPrefix},
		Meta:    NewMeta(),
		HasMeta: true,
		Entries: []Entry{entry},
	}
	data, err := f.Render()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.root, filepath.FromSlash(rel)), data, 0644); err != nil {
		return "", fmt.Errorf("writing spec: %w", err)
	}
	return rel, nil
}

// Update rewrites an existing spec file with new content. The stable id and
// version are preserved; only last_modified and the entry body change.
func (s *Store) Update(ref Ref, entry Entry) error {
	f := ref.File
	f.Entries = []Entry{entry}
	if f.HasMeta {
		f.Meta.LastModified = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := f.Render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.root, filepath.FromSlash(ref.Path)), data, 0644); err != nil {
		return fmt.Errorf("updating spec: %w", err)
	}
	return nil
}

// Delete removes a spec file by its root-relative path.
func (s *Store) Delete(path string) error {
	if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(path))); err != nil {
		return fmt.Errorf("deleting spec %s: %w", path, err)
	}
	return nil
}

// nextIndex finds the next numeric file prefix within a folder, starting
// from 1 when no prefixed files exist.
func (s *Store) nextIndex(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 1
	}

	max := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(prefix); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// normalizeName turns a spec name into a file-name-safe slug.
func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// pageFolderName extracts the spec folder for a page path: the first
// directory after the root segment.
func pageFolderName(pagePath string) string {
	parts := strings.Split(strings.Trim(filepath.ToSlash(pagePath), "/"), "/")
	if len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}
	if len(parts) > 0 {
		parts = parts[1:]
	}
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "root"
}

// FormatContext renders existing specs as the dedup context string passed
// to the generation API.
func FormatContext(entries []Entry) string {
	var lines []string
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("%d. Test: %s. Task: %s. Steps: %s",
			i+1, e.Name, strings.ToLower(e.Task), strings.Join(e.Steps, " -> ")))
	}
	return strings.Join(lines, "\n")
}
