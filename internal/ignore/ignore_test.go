package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatcher(t *testing.T) {
	m := NewMatcher()
	m.AddPatterns([]string{
		"node_modules/",
		"dist/",
		"*.min.js",
		"/secrets.ts",
		"!dist/keep.ts",
		"# a comment",
		"",
	})

	tests := []struct {
		path string
		want bool
	}{
		{"node_modules/react/index.js", true},
		{"packages/web/node_modules/left-pad/index.js", true},
		{"dist/bundle.js", true},
		{"dist/keep.ts", false},
		{"src/vendor/lib.min.js", true},
		{"secrets.ts", true},
		{"src/secrets.ts", false},
		{"src/pages/home.tsx", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := m.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestLoadFromDir(t *testing.T) {
	dir, err := os.MkdirTemp("", "ignore-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	gitignore := "generated/\n*.snap.ts\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0644); err != nil {
		t.Fatalf("write .gitignore: %v", err)
	}

	m, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}

	if !m.Match("generated/page.tsx") {
		t.Error("expected .gitignore pattern to apply")
	}
	if !m.Match("node_modules/x/y.js") {
		t.Error("expected default patterns to apply")
	}
	if m.Match("src/pages/home.tsx") {
		t.Error("regular source files must not be ignored")
	}
}

func TestLoadFromDir_NoGitignore(t *testing.T) {
	dir, err := os.MkdirTemp("", "ignore-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	if _, err := LoadFromDir(dir); err != nil {
		t.Fatalf("missing .gitignore must not fail: %v", err)
	}
}
