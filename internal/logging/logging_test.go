package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shiftstore/internal/config"
	"shiftstore/internal/shiftstore"
)

func TestTraditionalHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraditionalHandler(&buf, slog.LevelInfo)).With("run", "r1")

	logger.Debug("hidden")
	logger.Warn("few sequences", "found", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug record filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] few sequences [run=r1 found=3]") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestObserverWritesDebugRecords(t *testing.T) {
	var buf bytes.Buffer
	obs := NewObserver(NewWriter(&buf, "debug", "text"))

	anchor := shiftstore.Source{ID: 7, X: 1, Y: 2, Mag: 12}
	obs.AnchorExamined(anchor, []shiftstore.Source{anchor})
	obs.SequenceAccepted(shiftstore.Sequence{
		Anchor:   anchor,
		Elements: []shiftstore.Element{shiftstore.Present{Source: anchor}, shiftstore.Absent{X: 3, Y: 2}},
	})
	obs.SequenceRejected(anchor, errors.New("no sequence found"))

	out := buf.String()
	for _, want := range []string{"examining anchor", "sequence accepted", "placeholders=1", "sequence rejected"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output %q", want, out)
		}
	}
}

func TestSetupCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Logging: config.Logging{Level: "debug", Format: "text", FileOutput: true, LogDir: dir}}

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	if _, err := Setup(cfg); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "shiftstore-*.log"))
	if len(matches) == 0 {
		t.Fatalf("expected dated log file in %s", dir)
	}
	if _, err := os.Lstat(filepath.Join(dir, "shiftstore-current.log")); err != nil {
		t.Fatalf("expected current log symlink: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
