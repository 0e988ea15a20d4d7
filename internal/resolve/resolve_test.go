package resolve

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("export {}\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func newProject(t *testing.T, files []string, tsconfig string) string {
	t.Helper()
	root, err := os.MkdirTemp("", "resolve-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(root) })

	for _, f := range files {
		writeFile(t, root, f)
	}
	if tsconfig != "" {
		if err := os.WriteFile(filepath.Join(root, "tsconfig.json"), []byte(tsconfig), 0644); err != nil {
			t.Fatalf("write tsconfig: %v", err)
		}
	}
	return root
}

func TestResolve(t *testing.T) {
	root := newProject(t, []string{
		"src/components/Button.tsx",
		"src/components/Card/index.ts",
		"src/lib/api.ts",
		"src/pages/home.tsx",
		"pages/about.tsx",
		"utils/format.js",
	}, `{"compilerOptions": {"paths": {"~/*": ["./src/*"], "~config": ["./src/lib/api"]}}}`)

	r := New(root)

	tests := []struct {
		name      string
		specifier string
		fromFile  string
		want      string
		ok        bool
	}{
		{"alias glob", "~/components/Button", "src/pages/home.tsx", "src/components/Button.tsx", true},
		{"alias glob from other file", "~/components/Button", "pages/about.tsx", "src/components/Button.tsx", true},
		{"alias exact", "~config", "src/pages/home.tsx", "src/lib/api.ts", true},
		{"alias no target", "~/missing/thing", "src/pages/home.tsx", "", false},
		{"relative sibling", "../components/Button", "src/pages/home.tsx", "src/components/Button.tsx", true},
		{"relative index file", "../components/Card", "src/pages/home.tsx", "src/components/Card/index.ts", true},
		{"root absolute", "/utils/format", "src/pages/home.tsx", "utils/format.js", true},
		{"bare from root", "utils/format", "pages/about.tsx", "utils/format.js", true},
		{"bare from src", "lib/api", "pages/about.tsx", "src/lib/api.ts", true},
		{"bare missing", "lib/nothing", "pages/about.tsx", "", false},
		{"explicit extension", "./format.js", "utils/format.js", "utils/format.js", true},
		{"explicit extension missing", "./format.css", "utils/format.js", "", false},
		{"escapes root", "../../etc/passwd", "pages/about.tsx", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.specifier, tt.fromFile)
			if ok != tt.ok {
				t.Fatalf("Resolve(%q, %q) ok = %v, want %v", tt.specifier, tt.fromFile, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.specifier, tt.fromFile, got, tt.want)
			}
		})
	}
}

func TestResolveNoTsconfig(t *testing.T) {
	root := newProject(t, []string{"src/lib/api.ts"}, "")
	r := New(root)

	if _, ok := r.Resolve("~/lib/api", "src/lib/api.ts"); ok {
		t.Error("expected alias specifier to fail without tsconfig")
	}
	if got, ok := r.Resolve("lib/api", "src/lib/api.ts"); !ok || got != "src/lib/api.ts" {
		t.Errorf("bare resolution = %q, %v", got, ok)
	}
}

func TestResolveInvalidTsconfig(t *testing.T) {
	root := newProject(t, []string{"src/lib/api.ts"}, "{not json")
	r := New(root)

	if len(r.aliases) != 0 {
		t.Errorf("expected no aliases, got %d", len(r.aliases))
	}
}

func TestIsExternal(t *testing.T) {
	tests := []struct {
		specifier string
		want      bool
	}{
		{"react", true},
		{"next/router", true},
		{"lodash/debounce", true},
		{"@scope/pkg", true},
		{"@scope/pkg/sub", true},
		{"uuid", true},
		{"./local", false},
		{"../local", false},
		{"/src/lib/api", false},
		{"components/Button", false},
	}

	for _, tt := range tests {
		t.Run(tt.specifier, func(t *testing.T) {
			if got := IsExternal(tt.specifier); got != tt.want {
				t.Errorf("IsExternal(%q) = %v, want %v", tt.specifier, got, tt.want)
			}
		})
	}
}
