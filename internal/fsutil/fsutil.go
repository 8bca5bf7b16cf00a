package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CatalogExts are the extensions a catalog loader understands.
var CatalogExts = []string{".cat", ".txt", ".asc", ".json", ".yaml", ".yml", ".db", ".sqlite", ".sqlite3", ".fits", ".fit", ".fts"}

// ListCatalogs returns the files under root whose extension is in exts,
// sorted. Hidden files and directories are skipped.
func ListCatalogs(root string, exts []string) ([]string, error) {
	want := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = struct{}{}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := want[strings.ToLower(filepath.Ext(d.Name()))]; ok {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// IsHidden reports whether the last element of path starts with a dot.
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// FirstExisting returns the first path that exists.
func FirstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
