package cachefile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNeedsReindexDetectsUnchangedAndChangedFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Load(dir); err != nil {
		t.Fatal(err)
	}

	filePath := filepath.Join(dir, "a.py")
	if err := os.WriteFile(filePath, []byte("def a(): pass"), 0o644); err != nil {
		t.Fatal(err)
	}

	needs, err := m.NeedsReindex(filePath)
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Fatalf("expected new file to need reindex")
	}

	if err := m.Update(filePath, 1); err != nil {
		t.Fatal(err)
	}

	needs, err = m.NeedsReindex(filePath)
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Fatalf("expected unchanged file to not need reindex")
	}

	if err := os.WriteFile(filePath, []byte("def a(): return 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	needs, err = m.NeedsReindex(filePath)
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Fatalf("expected modified file to need reindex")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cacheDir := t.TempDir()
	repoDir := t.TempDir()
	filePath := filepath.Join(repoDir, "a.py")
	if err := os.WriteFile(filePath, []byte("x = 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	m1, err := NewManager(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := m1.Load(repoDir); err != nil {
		t.Fatal(err)
	}
	if err := m1.Update(filePath, 3); err != nil {
		t.Fatal(err)
	}
	if err := m1.Save(); err != nil {
		t.Fatal(err)
	}

	m2, err := NewManager(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := m2.Load(repoDir); err != nil {
		t.Fatal(err)
	}
	needs, err := m2.NeedsReindex(filePath)
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Fatalf("expected reloaded cache to recognize unchanged file")
	}
	if stats := m2.Stats(); stats.TotalFiles != 1 || stats.TotalChunks != 3 {
		t.Fatalf("unexpected stats after reload: %+v", stats)
	}
}

func TestClearResetsCache(t *testing.T) {
	cacheDir := t.TempDir()
	repoDir := t.TempDir()
	filePath := filepath.Join(repoDir, "a.py")
	os.WriteFile(filePath, []byte("x = 1"), 0o644)

	m, err := NewManager(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	m.Load(repoDir)
	m.Update(filePath, 2)
	m.Save()

	if err := m.Clear(repoDir); err != nil {
		t.Fatal(err)
	}
	if stats := m.Stats(); stats.TotalFiles != 0 {
		t.Fatalf("expected empty cache after Clear, got %+v", stats)
	}
}
