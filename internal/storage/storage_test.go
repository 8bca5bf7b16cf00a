package storage

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"shiftstore/internal/shiftstore"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordRunQueued(RunRecord{ID: "run-1", JobType: "focus", Status: "queued", CatalogPath: "a.cat", OptionsJSON: `{"strict":false}`, Target: 15}); err != nil {
		t.Fatalf("RecordRunQueued: %v", err)
	}
	if err := s.RecordRunStart("run-1"); err != nil {
		t.Fatalf("RecordRunStart: %v", err)
	}
	if err := s.RecordRunResult("run-1", "shortfall", 3, map[string]any{"sequences": 3}, "only 3 sequences found, 15 required"); err != nil {
		t.Fatalf("RecordRunResult: %v", err)
	}

	rec, err := s.Run("run-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != "shortfall" || rec.Sequences != 3 || rec.Target != 15 || rec.CatalogPath != "a.cat" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.StartedAt == nil || rec.CompletedAt == nil {
		t.Fatalf("expected start and completion times, got %+v", rec)
	}
	if rec.Error == "" {
		t.Fatalf("expected error message stored")
	}

	meta, err := s.RunMeta("run-1")
	if err != nil {
		t.Fatalf("RunMeta: %v", err)
	}
	if meta["sequences"] != float64(3) {
		t.Fatalf("unexpected meta %v", meta)
	}

	if _, err := s.Run("missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.RecordRunQueued(RunRecord{ID: id, JobType: "focus", Status: "queued"}); err != nil {
			t.Fatalf("RecordRunQueued: %v", err)
		}
	}
	recs, err := s.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"c", "b"}, ids); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestSequencesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	anchor := shiftstore.Source{ID: 1, X: 100, Y: 40, Mag: -9, FWHM: 3}
	seqs := []shiftstore.Sequence{{
		Anchor:     anchor,
		AnchorSlot: 0,
		Elements: []shiftstore.Element{
			shiftstore.Present{Source: anchor},
			shiftstore.Absent{X: 112, Y: 40},
			shiftstore.Present{Source: shiftstore.Source{ID: 5, X: 132, Y: 41, Mag: -8.5, FWHM: 2.5}},
		},
	}}

	if err := s.RecordSequences("run-1", seqs); err != nil {
		t.Fatalf("RecordSequences: %v", err)
	}
	// re-recording replaces
	if err := s.RecordSequences("run-1", seqs); err != nil {
		t.Fatalf("RecordSequences again: %v", err)
	}

	got, err := s.RunSequences("run-1")
	if err != nil {
		t.Fatalf("RunSequences: %v", err)
	}
	want := []SequenceRecord{{
		Index:        0,
		AnchorID:     1,
		AnchorSlot:   0,
		Placeholders: 1,
		Members: []MemberRecord{
			{Slot: 0, SourceID: 1, X: 100, Y: 40, Mag: -9, FWHM: 3, Present: true},
			{Slot: 1, X: 112, Y: 40},
			{Slot: 2, SourceID: 5, X: 132, Y: 41, Mag: -8.5, FWHM: 2.5, Present: true},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected sequences (-want +got):\n%s", diff)
	}
}

func TestFitInputIncludesDropped(t *testing.T) {
	s := newTestStore(t)
	positions := []float64{1000, 1100, 1200}
	in := shiftstore.FitInput{
		Positions:    []float64{1000, 1200},
		Widths:       []float64{5.5, 2.25},
		Contributors: []int{4, 4},
		Dropped:      []shiftstore.DroppedPosition{{Slot: 1, Position: 1100, Contributors: 2}},
	}
	if err := s.RecordFitInput("run-1", in, positions); err != nil {
		t.Fatalf("RecordFitInput: %v", err)
	}
	got, err := s.FitInput("run-1")
	if err != nil {
		t.Fatalf("FitInput: %v", err)
	}
	want := []FitPoint{
		{Slot: 0, Position: 1000, Width: 5.5, Contributors: 4},
		{Slot: 1, Position: 1100, Contributors: 2, Dropped: true},
		{Slot: 2, Position: 1200, Width: 2.25, Contributors: 4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected fit points (-want +got):\n%s", diff)
	}

	short := shiftstore.FitInput{Widths: []float64{1}, Contributors: []int{1}}
	if err := s.RecordFitInput("run-2", short, positions); err == nil {
		t.Fatalf("expected error for mismatched fit input")
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	if err := s.RecordRunQueued(RunRecord{ID: "x"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := s.RecordSequences("x", nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, err := s.RecentRuns(1); err == nil {
		t.Fatalf("expected error from nil store query")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("expected nil close, got %v", err)
	}
}
