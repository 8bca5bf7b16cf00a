package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shiftstore/internal/shiftstore"

	"gopkg.in/yaml.v3"
)

// Format identifies a catalog encoding.
type Format string

const (
	FormatASCII  Format = "ascii"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatSQLite Format = "sqlite"
	FormatFITS   Format = "fits"
)

// Detect guesses the format from a file extension.
func Detect(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cat", ".txt", ".asc":
		return FormatASCII, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	case ".fits", ".fit", ".fts":
		return FormatFITS, nil
	default:
		return "", fmt.Errorf("unrecognized catalog format: %s", path)
	}
}

// document is the on-disk shape of JSON and YAML catalogs. A bare list of
// sources is accepted as well.
type document struct {
	Image   string              `json:"image,omitempty" yaml:"image,omitempty"`
	Sources []shiftstore.Source `json:"sources" yaml:"sources"`
}

// Loader reads catalogs of every supported format. FITS images go through the
// external detector.
type Loader struct {
	Extractor *Extractor
	Table     string
}

// Load reads path and returns its sources sorted brightest first.
func (l *Loader) Load(ctx context.Context, path string) ([]shiftstore.Source, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}

	var sources []shiftstore.Source
	switch format {
	case FormatASCII:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sources, err = ReadASCII(f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case FormatJSON:
		sources, err = ReadJSON(path)
	case FormatYAML:
		sources, err = ReadYAML(path)
	case FormatSQLite:
		sources, err = ReadSQLite(ctx, path, l.Table)
	case FormatFITS:
		if l.Extractor == nil {
			return nil, fmt.Errorf("no detector configured for %s", path)
		}
		sources, err = l.Extractor.Extract(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	if err := checkUnique(sources); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	shiftstore.SortByMagnitude(sources)
	return sources, nil
}

// ReadJSON reads a JSON catalog.
func ReadJSON(path string) ([]shiftstore.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var sources []shiftstore.Source
		if err := json.Unmarshal(data, &sources); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return sources, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc.Sources, nil
}

// ReadYAML reads a YAML catalog.
func ReadYAML(path string) ([]shiftstore.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var sources []shiftstore.Source
		if err := node.Decode(&sources); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return sources, nil
	}
	var doc document
	if err := node.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc.Sources, nil
}

// WriteJSON stores sources as a JSON catalog.
func WriteJSON(path string, sources []shiftstore.Source) error {
	data, err := json.MarshalIndent(document{Sources: sources}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func checkUnique(sources []shiftstore.Source) error {
	seen := make(map[int]struct{}, len(sources))
	for _, s := range sources {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate source id %d", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}
