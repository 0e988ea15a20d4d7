package limits

import (
	"fmt"
	"testing"

	"specsync/internal/specs"
)

func file(path string, entries int) TestFile {
	tf := TestFile{Path: path}
	for i := 0; i < entries; i++ {
		tf.Entries = append(tf.Entries, specs.Entry{Name: fmt.Sprintf("t%d", i)})
	}
	return tf
}

func TestApplyTestLimit_Proportional(t *testing.T) {
	var files []TestFile
	for _, tc := range []struct {
		folder string
		count  int
	}{
		{"auth", 5}, {"checkout", 3}, {"profile", 1},
	} {
		for i := 0; i < tc.count; i++ {
			files = append(files, file(fmt.Sprintf("%s/%c.yaml", tc.folder, 'a'+i), 1))
		}
	}

	max := 5
	selected, dist := ApplyTestLimit(files, &max)

	if len(selected) != 5 {
		t.Fatalf("selected %d files, want 5", len(selected))
	}
	want := map[string]int{"auth": 2, "checkout": 2, "profile": 1}
	for folder, n := range want {
		if dist[folder] != n {
			t.Errorf("distribution[%s] = %d, want %d", folder, dist[folder], n)
		}
	}
}

func TestApplyTestLimit_NoLimit(t *testing.T) {
	files := []TestFile{file("auth/a.yaml", 1), file("auth/b.yaml", 1)}

	selected, _ := ApplyTestLimit(files, nil)
	if len(selected) != 2 {
		t.Errorf("nil limit must keep everything, got %d", len(selected))
	}
}

func TestApplyTestLimit_UnderLimit(t *testing.T) {
	files := []TestFile{file("auth/a.yaml", 2), file("checkout/b.yaml", 3)}

	max := 10
	selected, dist := ApplyTestLimit(files, &max)
	if len(selected) != 2 || len(dist) != 0 {
		t.Errorf("under the limit nothing should be trimmed: %d files, dist %v", len(selected), dist)
	}
}

func TestApplyTestLimit_MoreFoldersThanLimit(t *testing.T) {
	files := []TestFile{
		file("auth/a.yaml", 1),
		file("checkout/a.yaml", 1),
		file("profile/a.yaml", 1),
		file("settings/a.yaml", 1),
	}

	max := 2
	selected, dist := ApplyTestLimit(files, &max)

	if len(selected) != 2 {
		t.Fatalf("selected %d files, want 2", len(selected))
	}
	if dist["auth"] != 1 || dist["checkout"] != 1 {
		t.Errorf("distribution = %v, want one each from auth and checkout", dist)
	}
}

func TestApplyTestLimit_SmallFolderCapped(t *testing.T) {
	files := []TestFile{
		file("auth/a.yaml", 1),
		file("auth/b.yaml", 1),
		file("auth/c.yaml", 1),
		file("auth/d.yaml", 1),
		file("auth/e.yaml", 1),
		file("profile/a.yaml", 1),
	}

	max := 4
	selected, dist := ApplyTestLimit(files, &max)

	if dist["profile"] > 1 {
		t.Errorf("profile has one file but got %d", dist["profile"])
	}
	if len(selected) > 4 {
		t.Errorf("selected %d files, want at most 4", len(selected))
	}
}

func TestApplyTestLimit_CountsEntriesNotFiles(t *testing.T) {
	// Two files but sixteen entries: the entry count, not the file count,
	// decides whether selection kicks in.
	files := []TestFile{file("auth/a.yaml", 8), file("checkout/b.yaml", 8)}

	max := 10
	_, dist := ApplyTestLimit(files, &max)
	if len(dist) == 0 {
		t.Error("16 entries over a limit of 10 must trigger selection")
	}
}

func TestApplyTestLimit_ZeroLimit(t *testing.T) {
	files := []TestFile{file("auth/a.yaml", 1), file("auth/b.yaml", 1)}

	max := 0
	selected, _ := ApplyTestLimit(files, &max)
	if len(selected) != 0 {
		t.Errorf("zero limit must select nothing, got %d", len(selected))
	}
}

func TestApplyAgentLimit_StrictPriority(t *testing.T) {
	var assignments []Assignment
	for i := 0; i < 4; i++ {
		assignments = append(assignments, Assignment{Page: "/a", Agent: "UI Crashers"})
	}
	for i := 0; i < 4; i++ {
		assignments = append(assignments, Assignment{Page: "/b", Agent: "From Destroyer"})
	}

	max := 6
	selected, dist := ApplyAgentLimit(assignments, &max)

	if len(selected) != 6 {
		t.Fatalf("selected %d assignments, want 6", len(selected))
	}
	if dist["UI Crashers"] != 4 || dist["From Destroyer"] != 2 {
		t.Errorf("distribution = %v, want UI Crashers 4 and From Destroyer 2", dist)
	}
	for i := 0; i < 4; i++ {
		if selected[i].Agent != "UI Crashers" {
			t.Fatalf("assignment %d = %q, every UI Crashers must come first", i, selected[i].Agent)
		}
	}
}

func TestApplyAgentLimit_UnknownAgentsLast(t *testing.T) {
	assignments := []Assignment{
		{Page: "/a", Agent: "mystery agent"},
		{Page: "/a", Agent: "From Destroyer"},
		{Page: "/b", Agent: "UI Crashers"},
	}

	max := 2
	selected, _ := ApplyAgentLimit(assignments, &max)

	if len(selected) != 2 {
		t.Fatalf("selected %d, want 2", len(selected))
	}
	if selected[0].Agent != "UI Crashers" || selected[1].Agent != "From Destroyer" {
		t.Errorf("selected = %+v, unknown agent must be dropped first", selected)
	}
}

func TestApplyAgentLimit_NoLimit(t *testing.T) {
	assignments := []Assignment{{Agent: "x"}, {Agent: "y"}}

	selected, _ := ApplyAgentLimit(assignments, nil)
	if len(selected) != 2 {
		t.Errorf("nil limit must keep everything, got %d", len(selected))
	}
}

func TestAgentClass(t *testing.T) {
	tests := []struct {
		agent string
		want  string
	}{
		{"UI Crashers", "UI Crashers"},
		{"ui_crasher_v2", "UI Crashers"},
		{"From Destroyer", "From Destroyer"},
		{"form destroyer", "From Destroyer"},
		{"something else", "Other"},
	}
	for _, tt := range tests {
		if got := AgentClass(tt.agent); got != tt.want {
			t.Errorf("AgentClass(%q) = %q, want %q", tt.agent, got, tt.want)
		}
	}
}
