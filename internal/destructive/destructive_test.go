package destructive

import (
	"errors"
	"testing"

	"specsync/internal/remote"
)

type stubProvider struct {
	got    []remote.PageDiff
	answer []remote.PageAgents
	fail   bool
}

func (p *stubProvider) AgentAssignments(pages []remote.PageDiff) ([]remote.PageAgents, error) {
	if p.fail {
		return nil, errors.New("service down")
	}
	p.got = pages
	return p.answer, nil
}

func TestAssign_ExpandsPerAgent(t *testing.T) {
	provider := &stubProvider{answer: []remote.PageAgents{
		{Page: "pages/checkout.tsx", Agents: []string{"UI Crashers", "From Destroyer"}},
		{Page: "pages/login.tsx", Agents: []string{"UI Crashers"}},
	}}

	perPage := map[string][]string{
		"pages/checkout.tsx": {"checkout block"},
		"pages/login.tsx":    {"login block"},
	}

	assignments, err := Assign(provider, perPage)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if len(assignments) != 3 {
		t.Fatalf("assignments = %d, want 3", len(assignments))
	}
	if assignments[0].Page != "pages/checkout.tsx" || assignments[0].Agent != "UI Crashers" {
		t.Errorf("assignments[0] = %+v", assignments[0])
	}
	if assignments[0].Diff != "checkout block" {
		t.Errorf("diff not carried through: %q", assignments[0].Diff)
	}

	// Request order is sorted for stable retries.
	if len(provider.got) != 2 || provider.got[0].Page != "pages/checkout.tsx" {
		t.Errorf("request = %+v", provider.got)
	}
}

func TestAssign_ProviderFailure(t *testing.T) {
	provider := &stubProvider{fail: true}

	_, err := Assign(provider, map[string][]string{"pages/a.tsx": {"block"}})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestAssign_JoinsMultipleBlocks(t *testing.T) {
	provider := &stubProvider{answer: []remote.PageAgents{
		{Page: "pages/a.tsx", Agents: []string{"UI Crashers"}},
	}}

	perPage := map[string][]string{
		"pages/a.tsx": {"first block", "second block"},
	}

	assignments, err := Assign(provider, perPage)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("assignments = %d", len(assignments))
	}
	want := "first block\n==========\nsecond block"
	if assignments[0].Diff != want {
		t.Errorf("diff = %q, want %q", assignments[0].Diff, want)
	}
}
