package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SHIFTSTORE_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"ParallelJobs", cfg.Processing.ParallelJobs, 4},
		{"LogLevel", cfg.Logging.Level, "info"},
		{"Horizontal", cfg.Focus.Horizontal, true},
		{"WindowTolerance", cfg.Focus.WindowTolerance, 5.0},
		{"PositionTolerance", cfg.Focus.PositionTolerance, 5.0},
		{"PartialLen", cfg.Focus.PartialLen, 0},
		{"Sequences", cfg.Focus.Sequences, 15},
		{"MinContributors", cfg.Focus.MinContributors, 7},
		{"DetectorBinary", cfg.Detector.Binary, "/usr/bin/sextractor"},
		{"ServerAddr", cfg.Server.Addr, ":8080"},
		{"File", cfg.File, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
	if len(cfg.Detector.Params) != 10 {
		t.Fatalf("expected 10 default detector params, got %v", cfg.Detector.Params)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
  "focus": {"shifts": [20, 20, 20], "horizontal": false, "partial_len": 3, "focuser_positions": [100, 200, 300, 400]},
  "logging": {"level": "debug"}
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.File != path {
		t.Fatalf("expected file %s, got %s", path, cfg.File)
	}
	if diff := cmp.Diff([]float64{20, 20, 20}, cfg.Focus.Shifts); diff != "" {
		t.Fatalf("unexpected shifts (-want +got):\n%s", diff)
	}
	if cfg.Focus.Horizontal {
		t.Fatalf("expected vertical trails from file")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Focus.Sequences != 15 {
		t.Fatalf("expected default sequences retained, got %d", cfg.Focus.Sequences)
	}
	if err := cfg.Focus.Validate(); err != nil {
		t.Fatalf("expected valid focus section, got %v", err)
	}

	p := cfg.Focus.Params()
	if p.Axes.Horizontal || p.PartialLen != 3 || p.TargetLen() != 4 {
		t.Fatalf("unexpected params %+v", p)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SHIFTSTORE_FOCUS_PARTIAL_LEN", "2")
	t.Setenv("SHIFTSTORE_FOCUS_SHIFTS", "10,15")
	t.Setenv("SHIFTSTORE_SERVER_ADDR", "127.0.0.1:9999")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Focus.PartialLen != 2 {
		t.Fatalf("expected partial len 2, got %d", cfg.Focus.PartialLen)
	}
	if diff := cmp.Diff([]float64{10, 15}, cfg.Focus.Shifts); diff != "" {
		t.Fatalf("unexpected shifts (-want +got):\n%s", diff)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Fatalf("expected server addr override, got %s", cfg.Server.Addr)
	}
}

func TestFocusPositions(t *testing.T) {
	f := Focus{Shifts: []float64{5, 5}}
	pos, err := f.Positions()
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if diff := cmp.Diff([]float64{0, 1, 2}, pos); diff != "" {
		t.Fatalf("unexpected default positions (-want +got):\n%s", diff)
	}

	f.FocuserPositions = []float64{1, 2}
	if _, err := f.Positions(); err == nil {
		t.Fatalf("expected error for mismatched focuser positions")
	}
	if err := f.Validate(); err == nil {
		t.Fatalf("expected Validate to report mismatched focuser positions")
	}
	if err := (Focus{}).Validate(); err == nil {
		t.Fatalf("expected Validate to reject an empty shift pattern")
	}
}

func TestExpandUser(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandUser("~/x/y.json")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got != filepath.Join(home, "x", "y.json") {
		t.Fatalf("unexpected expansion %s", got)
	}
	if got, _ := ExpandUser("/abs"); got != "/abs" {
		t.Fatalf("expected absolute path untouched, got %s", got)
	}
}
