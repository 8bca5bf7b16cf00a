package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestListCatalogs(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.cat", "a.JSON", "notes.md", ".partial.cat", "night2/c.fits", ".git/d.cat"} {
		path := filepath.Join(root, name)
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	got, err := ListCatalogs(root, CatalogExts)
	if err != nil {
		t.Fatalf("ListCatalogs: %v", err)
	}
	want := []string{
		filepath.Join(root, "a.JSON"),
		filepath.Join(root, "b.cat"),
		filepath.Join(root, "night2", "c.fits"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected catalogs (-want +got):\n%s", diff)
	}
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "default.sex")
	if err := os.WriteFile(present, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := FirstExisting(filepath.Join(dir, "missing.sex"), present); got != present {
		t.Fatalf("expected %s, got %s", present, got)
	}
	if got := FirstExisting(filepath.Join(dir, "missing.sex")); got != "" {
		t.Fatalf("expected empty path, got %s", got)
	}
}
