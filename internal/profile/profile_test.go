package profile

import (
	"os"
	"path/filepath"
	"testing"

	"shiftstore/internal/config"

	"github.com/google/go-cmp/cmp"
)

const nightly = `
name = "nightly"
description = "five step pattern"
shifts = [30.0, 30.0, 30.0, 30.0]
horizontal = false
partial_len = 4
sequences = 10
min_contributors = 5
focuser_positions = [-200.0, -100.0, 0.0, 100.0, 200.0]
`

func TestLoadAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nightly.toml")
	if err := os.WriteFile(path, []byte(nightly), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Resolve(dir, "nightly")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	f := config.Focus{Shifts: []float64{1}, Horizontal: true, WindowTolerance: 5, PositionTolerance: 5, Sequences: 15, MinContributors: 7}
	p.Apply(&f)

	want := config.Focus{
		Shifts:            []float64{30, 30, 30, 30},
		Horizontal:        false,
		WindowTolerance:   5,
		PositionTolerance: 5,
		PartialLen:        4,
		Sequences:         10,
		MinContributors:   5,
		FocuserPositions:  []float64{-200, -100, 0, 100, 200},
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Fatalf("unexpected focus (-want +got):\n%s", diff)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("expected valid focus, got %v", err)
	}
}

func TestApplyDropsStaleFocuserPositions(t *testing.T) {
	f := config.Focus{Shifts: []float64{1, 1}, FocuserPositions: []float64{1, 2, 3}}
	(&Profile{Shifts: []float64{5, 5, 5}}).Apply(&f)
	if f.FocuserPositions != nil {
		t.Fatalf("expected focuser positions reset, got %v", f.FocuserPositions)
	}
}

func TestSaveListAndDefaultName(t *testing.T) {
	dir := t.TempDir()
	f := config.Focus{Shifts: []float64{10, 10}, Horizontal: true, WindowTolerance: 4, PositionTolerance: 6, Sequences: 3, MinContributors: 2}

	if err := Save(filepath.Join(dir, "wide.toml"), FromFocus("wide", f)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "anon.toml"), []byte("shifts = [1.0]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	names, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"anon", "wide"}, names); diff != "" {
		t.Fatalf("unexpected names (-want +got):\n%s", diff)
	}

	anon, err := Resolve(dir, filepath.Join(dir, "anon.toml"))
	if err != nil {
		t.Fatalf("Resolve by path: %v", err)
	}
	if anon.Name != "anon" || anon.Horizontal != nil {
		t.Fatalf("unexpected anon profile %+v", anon)
	}

	wide, err := Resolve(dir, "wide")
	if err != nil {
		t.Fatalf("Resolve by name: %v", err)
	}
	var got config.Focus
	wide.Apply(&got)
	if diff := cmp.Diff(f, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestListMissingDir(t *testing.T) {
	names, err := List(filepath.Join(t.TempDir(), "none"))
	if err != nil || len(names) != 0 {
		t.Fatalf("expected empty list, got %v %v", names, err)
	}
	if _, err := Resolve(t.TempDir(), "missing"); err == nil {
		t.Fatalf("expected error for missing profile")
	}
}
