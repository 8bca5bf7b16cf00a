package catalog

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"shiftstore/internal/config"
	"shiftstore/internal/fsutil"
	"shiftstore/internal/shiftstore"
)

// Extractor runs SExtractor on a FITS image and reads back its ASCII_HEAD
// catalog. Source detection itself happens in the external binary.
type Extractor struct {
	Binary   string
	Config   string
	StarNNW  string
	Params   []string
	TempDir  string
	KeepTemp bool
}

// NewExtractor builds an extractor from the detector section of the config.
func NewExtractor(cfg config.Detector, tempDir string) *Extractor {
	params := cfg.Params
	if len(params) == 0 {
		params = DefaultColumns
	}
	return &Extractor{
		Binary:   cfg.Binary,
		Config:   locateShared(cfg.Config),
		StarNNW:  locateShared(cfg.StarNNW),
		Params:   params,
		TempDir:  tempDir,
		KeepTemp: cfg.KeepTemp,
	}
}

// locateShared falls back to the same file name under the share directories of
// both the sextractor and source-extractor packages.
func locateShared(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	if found := fsutil.FirstExisting(path,
		filepath.Join("/usr/share/source-extractor", base),
		filepath.Join("/usr/share/sextractor", base),
	); found != "" {
		return found
	}
	return path
}

// IsAvailable checks that the detector binary can be executed.
func (e *Extractor) IsAvailable() bool {
	_, err := exec.LookPath(e.Binary)
	return err == nil
}

// Extract runs the detector on image.
func (e *Extractor) Extract(ctx context.Context, image string) ([]shiftstore.Source, error) {
	bin, err := exec.LookPath(e.Binary)
	if err != nil {
		return nil, fmt.Errorf("detector %s not found: %w", e.Binary, err)
	}

	workDir, err := os.MkdirTemp(e.TempDir, "shiftstore-sex-")
	if err != nil {
		return nil, fmt.Errorf("create detector work dir: %w", err)
	}
	if !e.KeepTemp {
		defer os.RemoveAll(workDir)
	}

	paramFile := filepath.Join(workDir, "shiftstore.param")
	if err := os.WriteFile(paramFile, []byte(strings.Join(e.Params, "\n")+"\n"), 0o644); err != nil {
		return nil, err
	}
	catFile := filepath.Join(workDir, "shiftstore.cat")

	args := []string{image}
	if e.Config != "" {
		args = append(args, "-c", e.Config)
	}
	args = append(args,
		"-PARAMETERS_NAME", paramFile,
		"-CATALOG_TYPE", "ASCII_HEAD",
		"-CATALOG_NAME", catFile,
	)
	if e.StarNNW != "" {
		args = append(args, "-STARNNW_NAME", e.StarNNW)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("detector failed: %v: %s", err, strings.TrimSpace(string(out)))
	}

	f, err := os.Open(catFile)
	if err != nil {
		return nil, fmt.Errorf("detector produced no catalog: %w", err)
	}
	defer f.Close()
	return ReadASCII(f)
}
