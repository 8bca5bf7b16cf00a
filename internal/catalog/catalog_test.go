package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shiftstore/internal/config"
	"shiftstore/internal/shiftstore"

	"github.com/google/go-cmp/cmp"
)

const headCatalog = `#   1 NUMBER                 Running object number
#   2 X_IMAGE                Object position along x                                    [pixel]
#   3 Y_IMAGE                Object position along y                                    [pixel]
#   4 MAG_BEST               Best of MAG_AUTO and MAG_ISOCOR                            [mag]
#   5 FLAGS                  Extraction flags
#   6 FWHM_IMAGE             FWHM assuming a gaussian core                              [pixel]
      1    100.250    200.000  -9.1000   0     3.10
      2    110.000    200.500  -8.2000   2     2.90
      3    120.500    199.800  -9.5000   0     3.40
`

func TestReadASCIIWithHeader(t *testing.T) {
	sources, err := ReadASCII(strings.NewReader(headCatalog))
	if err != nil {
		t.Fatalf("ReadASCII: %v", err)
	}
	want := []shiftstore.Source{
		{ID: 1, X: 100.25, Y: 200, Mag: -9.1, FWHM: 3.1},
		{ID: 2, X: 110, Y: 200.5, Mag: -8.2, FWHM: 2.9, Flags: 2},
		{ID: 3, X: 120.5, Y: 199.8, Mag: -9.5, FWHM: 3.4},
	}
	if diff := cmp.Diff(want, sources); diff != "" {
		t.Fatalf("unexpected sources (-want +got):\n%s", diff)
	}
}

func TestReadASCIIHeaderless(t *testing.T) {
	body := "7 10.5 20.5 14.2 0 0.98 2.5 1.3 1.2 1\n"
	sources, err := ReadASCII(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ReadASCII: %v", err)
	}
	want := []shiftstore.Source{{ID: 7, X: 10.5, Y: 20.5, Mag: 14.2, ClassStar: 0.98, FWHM: 2.5, A: 1.3, B: 1.2, Ext: 1}}
	if diff := cmp.Diff(want, sources); diff != "" {
		t.Fatalf("unexpected sources (-want +got):\n%s", diff)
	}
}

func TestReadASCIIErrors(t *testing.T) {
	cases := map[string]string{
		"short row":   "#   1 NUMBER\n#   2 X_IMAGE\n#   3 Y_IMAGE\n#   4 MAG_BEST\n1 2 3\n",
		"bad number":  "1 2 x 4 0 0 1 1 1 1\n",
		"missing mag": "#   1 NUMBER\n#   2 X_IMAGE\n#   3 Y_IMAGE\n1 2 3\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadASCII(strings.NewReader(body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoaderFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"list.json": `[{"id": 2, "x": 1, "y": 1, "mag": 15, "fwhm": 3}, {"id": 1, "x": 2, "y": 1, "mag": 12, "fwhm": 2}]`,
		"doc.json":  `{"image": "f.fits", "sources": [{"id": 2, "x": 1, "y": 1, "mag": 15, "fwhm": 3}, {"id": 1, "x": 2, "y": 1, "mag": 12, "fwhm": 2}]}`,
		"list.yaml": "- {id: 2, x: 1, y: 1, mag: 15, fwhm: 3}\n- {id: 1, x: 2, y: 1, mag: 12, fwhm: 2}\n",
		"doc.yml":   "image: f.fits\nsources:\n  - {id: 2, x: 1, y: 1, mag: 15, fwhm: 3}\n  - {id: 1, x: 2, y: 1, mag: 12, fwhm: 2}\n",
	}
	want := []shiftstore.Source{
		{ID: 1, X: 2, Y: 1, Mag: 12, FWHM: 2},
		{ID: 2, X: 1, Y: 1, Mag: 15, FWHM: 3},
	}

	l := &Loader{}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := l.Load(context.Background(), path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("unexpected sources (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoaderRejectsDuplicatesAndUnknownFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.json")
	if err := os.WriteFile(path, []byte(`[{"id": 1, "mag": 1}, {"id": 1, "mag": 2}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := &Loader{}
	if _, err := l.Load(context.Background(), path); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
	if _, err := l.Load(context.Background(), filepath.Join(dir, "x.png")); err == nil {
		t.Fatalf("expected unknown format error")
	}
	if _, err := l.Load(context.Background(), filepath.Join(dir, "x.fits")); err == nil {
		t.Fatalf("expected error without detector")
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	in := []shiftstore.Source{{ID: 4, X: 1.5, Y: 2.5, Mag: 11, FWHM: 2.2, Flags: 1}}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	out, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("unexpected sources (-want +got):\n%s", diff)
	}
}

func TestReadSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stmts := []string{
		`CREATE TABLE sources (id INTEGER PRIMARY KEY, x REAL, y REAL, mag REAL, fwhm REAL, flags INTEGER);`,
		`INSERT INTO sources VALUES (1, 100, 200, 15, 3.2, 0), (2, 110, 200, 14, NULL, 4);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	db.Close()

	l := &Loader{}
	got, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []shiftstore.Source{
		{ID: 2, X: 110, Y: 200, Mag: 14, Flags: 4},
		{ID: 1, X: 100, Y: 200, Mag: 15, FWHM: 3.2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected sources (-want +got):\n%s", diff)
	}

	if _, err := ReadSQLite(context.Background(), path, "sources; DROP TABLE sources"); err == nil {
		t.Fatalf("expected invalid table name error")
	}
}

func TestExtractorRunsDetector(t *testing.T) {
	binDir := t.TempDir()
	createFakeSExtractor(t, binDir)
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	ex := NewExtractor(config.Detector{Binary: "sextractor"}, t.TempDir())
	if !ex.IsAvailable() {
		t.Fatalf("expected fake detector on PATH")
	}
	l := &Loader{Extractor: ex}
	got, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "frame.fits"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 || got[0].ID != 3 {
		t.Fatalf("expected 3 sources with id 3 brightest, got %+v", got)
	}

	failing := &Extractor{Binary: "does-not-exist-sextractor"}
	if _, err := failing.Extract(context.Background(), "frame.fits"); err == nil {
		t.Fatalf("expected error for missing detector")
	}
}

// createFakeSExtractor writes a stand-in detector that copies a fixed catalog
// to the -CATALOG_NAME argument.
func createFakeSExtractor(t *testing.T, dir string) {
	t.Helper()
	catalog := filepath.Join(dir, "fixture.cat")
	if err := os.WriteFile(catalog, []byte(headCatalog), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	script := `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-CATALOG_NAME" ]; then
    out="$2"
  fi
  shift
done
cp "` + catalog + `" "$out"
`
	if err := os.WriteFile(filepath.Join(dir, "sextractor"), []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake sextractor: %v", err)
	}
}
