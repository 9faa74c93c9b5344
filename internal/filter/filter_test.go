package filter

import "testing"

func TestSanitizeTermRejectsInjection(t *testing.T) {
	_, ok := SanitizeTerm("' or '1'='1")
	if ok {
		t.Fatalf("expected injection term to be rejected")
	}
}

func TestExactTermClauseInjectionNeutralized(t *testing.T) {
	c := ExactTermClause("' or '1'='1", []string{"content", "function_name"})
	if Render(c) != "(1 eq 0)" {
		t.Fatalf("expected no-match sentinel, got %q", Render(c))
	}
}

func TestExactTermClauseCleanTerm(t *testing.T) {
	c := ExactTermClause("authenticate", []string{"content", "docstring"})
	got := Render(c)
	want := "(search.ismatch('authenticate', 'content')) or (search.ismatch('authenticate', 'docstring'))"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEqEscapesQuotes(t *testing.T) {
	c := Eq("repository", "o'brien/repo")
	if Render(c) != "repository eq 'o''brien/repo'" {
		t.Fatalf("got %q", Render(c))
	}
}

func TestRepositoryGeneralPathExclusion(t *testing.T) {
	m := NewManager([]string{"venv/", ".venv/"})

	for _, repo := range []string{"mcprag", "some-other-repo"} {
		rendered := Render(m.Repository(repo))
		if !contains(rendered, "not (search.ismatch('venv/', 'file_path'))") {
			t.Fatalf("repository %q: expected general venv exclusion, got %q", repo, rendered)
		}
	}
}

func TestRepositoryOwnerSlashRepoUsesExactMatch(t *testing.T) {
	m := NewManager(nil)
	rendered := Render(m.Repository("henryperkins/mcprag"))
	if rendered != "repository eq 'henryperkins/mcprag'" {
		t.Fatalf("got %q", rendered)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
