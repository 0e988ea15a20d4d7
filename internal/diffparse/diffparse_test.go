package diffparse

import (
	"strings"
	"testing"
)

const sampleDiff = `diff --git a/src/pages/home.tsx b/src/pages/home.tsx
index abc1234..def5678 100644
--- a/src/pages/home.tsx
+++ b/src/pages/home.tsx
@@ -10,7 +10,8 @@ export default function Home() {
 const a = 1
-const b = 2
+const b = 3
+const c = 4
 const d = 5
@@ -30,3 +31,3 @@ function footer() {
-  return old
+  return new
diff --git a/src/lib/api.ts b/src/lib/api.ts
index 1111111..2222222 100644
--- a/src/lib/api.ts
+++ b/src/lib/api.ts
@@ -1,2 +1,2 @@
-export const url = "a"
+export const url = "b"
`

func TestParse(t *testing.T) {
	files := Parse(sampleDiff)

	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	first := files[0]
	if first.OldPath != "src/pages/home.tsx" || first.NewPath != "src/pages/home.tsx" {
		t.Errorf("paths = %q, %q", first.OldPath, first.NewPath)
	}
	if first.OldHash != "abc1234" || first.NewHash != "def5678" {
		t.Errorf("hashes = %q, %q", first.OldHash, first.NewHash)
	}
	if len(first.Hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(first.Hunks))
	}

	h := first.Hunks[0]
	if h.OldStart != 10 || h.OldCount != 7 || h.NewStart != 10 || h.NewCount != 8 {
		t.Errorf("hunk header = %+v", h)
	}
	if len(h.Added) != 2 || h.Added[0] != "const b = 3" {
		t.Errorf("added = %v", h.Added)
	}
	if len(h.Removed) != 1 || h.Removed[0] != "const b = 2" {
		t.Errorf("removed = %v", h.Removed)
	}
	if len(h.Context) != 2 {
		t.Errorf("context = %v", h.Context)
	}

	second := files[1]
	if second.OldPath != "src/lib/api.ts" {
		t.Errorf("second file = %q", second.OldPath)
	}
	if len(second.Hunks) != 1 {
		t.Errorf("second hunks = %d", len(second.Hunks))
	}
}

func TestParse_NewAndDeletedFiles(t *testing.T) {
	diff := `diff --git a/src/pages/new.tsx b/src/pages/new.tsx
new file mode 100644
index 0000000..abc1234
--- /dev/null
+++ b/src/pages/new.tsx
@@ -0,0 +1,1 @@
+export default function New() {}
diff --git a/src/pages/old.tsx b/src/pages/old.tsx
deleted file mode 100644
index def5678..0000000
--- a/src/pages/old.tsx
+++ /dev/null
@@ -1,1 +0,0 @@
-export default function Old() {}
`

	files := Parse(diff)
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	if !files[0].IsNew || files[0].Mode != "100644" {
		t.Errorf("first file = %+v", files[0])
	}
	if !files[1].IsDeleted {
		t.Errorf("second file = %+v", files[1])
	}
	if len(files[0].Hunks) != 1 || files[0].Hunks[0].Added[0] != "export default function New() {}" {
		t.Errorf("new file hunks = %+v", files[0].Hunks)
	}
}

func TestParse_SingleLineHunkHeader(t *testing.T) {
	diff := `diff --git a/a.ts b/a.ts
index aaa..bbb 100644
--- a/a.ts
+++ b/a.ts
@@ -5 +5 @@
-old
+new
`

	files := Parse(diff)
	if len(files) != 1 || len(files[0].Hunks) != 1 {
		t.Fatalf("files = %+v", files)
	}
	h := files[0].Hunks[0]
	if h.OldCount != 1 || h.NewCount != 1 {
		t.Errorf("counts default = %+v", h)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	if files := Parse(""); len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestFormatFile(t *testing.T) {
	files := Parse(sampleDiff)
	out := FormatFile(files[0])

	for _, want := range []string{
		"File: src/pages/home.tsx",
		"Old version: abc1234",
		"Change #1:",
		"Location: Lines 10-16 -> Lines 10-17",
		"+ const b = 3",
		"- const b = 2",
		"Change #2:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if strings.Contains(out, "src/lib/api.ts") {
		t.Error("single-file format must not include other files")
	}
}

func TestFormat_Separators(t *testing.T) {
	out := Format(Parse(sampleDiff))

	if got := strings.Count(out, strings.Repeat("=", 60)); got != 2 {
		t.Errorf("expected 2 separators, got %d", got)
	}
	if !strings.Contains(out, "src/lib/api.ts") {
		t.Error("expected both files in combined output")
	}
}
