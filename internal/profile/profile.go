package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"shiftstore/internal/config"

	toml "github.com/pelletier/go-toml/v2"
)

// Profile is a named shift pattern with the focus settings that go with it.
// Zero values leave the corresponding config setting untouched.
type Profile struct {
	Name              string    `toml:"name"`
	Description       string    `toml:"description,omitempty"`
	Shifts            []float64 `toml:"shifts"`
	Horizontal        *bool     `toml:"horizontal,omitempty"`
	WindowTolerance   float64   `toml:"window_tolerance,omitempty"`
	PositionTolerance float64   `toml:"position_tolerance,omitempty"`
	PartialLen        int       `toml:"partial_len,omitempty"`
	Sequences         int       `toml:"sequences,omitempty"`
	MinContributors   int       `toml:"min_contributors,omitempty"`
	FocuserPositions  []float64 `toml:"focuser_positions,omitempty"`
}

// Load reads a profile from path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &p, nil
}

// Save writes the profile to path, creating parent directories as needed.
func Save(path string, p *Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}
	return nil
}

// Resolve finds a profile by path, or by name inside dir.
func Resolve(dir, nameOrPath string) (*Profile, error) {
	if strings.ContainsRune(nameOrPath, os.PathSeparator) || filepath.Ext(nameOrPath) == ".toml" {
		return Load(nameOrPath)
	}
	expanded, err := config.ExpandUser(dir)
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(expanded, nameOrPath+".toml"))
}

// List returns the names of profiles stored in dir, sorted.
func List(dir string) ([]string, error) {
	expanded, err := config.ExpandUser(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(expanded)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".toml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".toml"))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Apply overlays the profile onto a focus section.
func (p *Profile) Apply(f *config.Focus) {
	if len(p.Shifts) > 0 {
		f.Shifts = append([]float64(nil), p.Shifts...)
		// labels sized for a different pattern no longer fit
		if len(f.FocuserPositions) != len(p.Shifts)+1 {
			f.FocuserPositions = nil
		}
	}
	if p.Horizontal != nil {
		f.Horizontal = *p.Horizontal
	}
	if p.WindowTolerance > 0 {
		f.WindowTolerance = p.WindowTolerance
	}
	if p.PositionTolerance > 0 {
		f.PositionTolerance = p.PositionTolerance
	}
	if p.PartialLen > 0 {
		f.PartialLen = p.PartialLen
	}
	if p.Sequences > 0 {
		f.Sequences = p.Sequences
	}
	if p.MinContributors > 0 {
		f.MinContributors = p.MinContributors
	}
	if len(p.FocuserPositions) > 0 {
		f.FocuserPositions = append([]float64(nil), p.FocuserPositions...)
	}
}

// FromFocus captures a focus section as a profile.
func FromFocus(name string, f config.Focus) *Profile {
	horizontal := f.Horizontal
	return &Profile{
		Name:              name,
		Shifts:            append([]float64(nil), f.Shifts...),
		Horizontal:        &horizontal,
		WindowTolerance:   f.WindowTolerance,
		PositionTolerance: f.PositionTolerance,
		PartialLen:        f.PartialLen,
		Sequences:         f.Sequences,
		MinContributors:   f.MinContributors,
		FocuserPositions:  append([]float64(nil), f.FocuserPositions...),
	}
}
