package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shiftstore/internal/shiftstore"

	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "~/.config/shiftstore/config.json"
	defaultParallel   = 4
	envPrefix         = "SHIFTSTORE"
)

// Config holds user-editable settings for focusing runs.
type Config struct {
	Processing Processing `mapstructure:"processing" json:"processing"`
	Logging    Logging    `mapstructure:"logging" json:"logging"`
	Paths      Paths      `mapstructure:"paths" json:"paths"`
	Focus      Focus      `mapstructure:"focus" json:"focus"`
	Detector   Detector   `mapstructure:"detector" json:"detector"`
	Server     Server     `mapstructure:"server" json:"server"`
	Watch      Watch      `mapstructure:"watch" json:"watch"`

	// File is the config file that was read, empty when only defaults apply.
	File string `mapstructure:"-" json:"-"`
}

// Processing captures execution preferences.
type Processing struct {
	ParallelJobs int    `mapstructure:"parallel_jobs" json:"parallel_jobs"`
	TempDir      string `mapstructure:"temp_dir" json:"temp_dir"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `mapstructure:"level" json:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" json:"format"`           // text, json
	FileOutput bool   `mapstructure:"file_output" json:"file_output"` // Enable file logging
	LogDir     string `mapstructure:"log_dir" json:"log_dir"`         // Directory for log files
}

// Paths configures default input locations and the run database.
type Paths struct {
	DefaultInput string `mapstructure:"default_input" json:"default_input"`
	DatabasePath string `mapstructure:"database_path" json:"database_path"`
	ProfileDir   string `mapstructure:"profile_dir" json:"profile_dir"`
}

// Focus configures sequence matching and aggregation.
type Focus struct {
	Shifts            []float64 `mapstructure:"shifts" json:"shifts"`
	Horizontal        bool      `mapstructure:"horizontal" json:"horizontal"`
	WindowTolerance   float64   `mapstructure:"window_tolerance" json:"window_tolerance"`
	PositionTolerance float64   `mapstructure:"position_tolerance" json:"position_tolerance"`
	PartialLen        int       `mapstructure:"partial_len" json:"partial_len"` // 0 disables partial matching
	Sequences         int       `mapstructure:"sequences" json:"sequences"`     // target sequence count
	MinContributors   int       `mapstructure:"min_contributors" json:"min_contributors"`
	FocuserPositions  []float64 `mapstructure:"focuser_positions" json:"focuser_positions"`
	Strict            bool      `mapstructure:"strict" json:"strict"` // treat a shortfall as failure
}

// Detector configures the external SExtractor run used for FITS inputs.
type Detector struct {
	Binary   string   `mapstructure:"binary" json:"binary"`
	Config   string   `mapstructure:"config" json:"config"`
	StarNNW  string   `mapstructure:"starnnw" json:"starnnw"`
	Params   []string `mapstructure:"params" json:"params"`
	KeepTemp bool     `mapstructure:"keep_temp" json:"keep_temp"`
}

// Server configures the HTTP and gRPC listeners.
type Server struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	GRPCAddr string `mapstructure:"grpc_addr" json:"grpc_addr"`
}

// Watch configures directory monitoring for new catalogs.
type Watch struct {
	Dirs       []string `mapstructure:"dirs" json:"dirs"`
	Extensions []string `mapstructure:"extensions" json:"extensions"`
}

// Params converts the focus section into matcher parameters.
func (f Focus) Params() shiftstore.Params {
	return shiftstore.Params{
		Shifts:            append([]float64(nil), f.Shifts...),
		Axes:              shiftstore.Axes{Horizontal: f.Horizontal},
		WindowTolerance:   f.WindowTolerance,
		PositionTolerance: f.PositionTolerance,
		PartialLen:        f.PartialLen,
	}
}

// Positions returns the focuser label for every pattern slot.
func (f Focus) Positions() ([]float64, error) {
	n := len(f.Shifts) + 1
	if len(f.FocuserPositions) == 0 {
		return shiftstore.DefaultPositions(n), nil
	}
	if len(f.FocuserPositions) != n {
		return nil, fmt.Errorf("%d focuser positions given for a pattern of %d slots", len(f.FocuserPositions), n)
	}
	return append([]float64(nil), f.FocuserPositions...), nil
}

// Validate checks the focus section is usable for a run.
func (f Focus) Validate() error {
	if err := f.Params().Validate(); err != nil {
		return err
	}
	if f.MinContributors < 0 {
		return fmt.Errorf("min contributors %d is negative", f.MinContributors)
	}
	_, err := f.Positions()
	return err
}

// Load reads configuration from $SHIFTSTORE_CONFIG or the default location,
// falling back to defaults when no file exists.
func Load() (*Config, error) {
	configPath := os.Getenv(envPrefix + "_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	return LoadFrom(configPath)
}

// LoadFrom reads configuration from path. SHIFTSTORE_* environment variables
// override file values, e.g. SHIFTSTORE_FOCUS_PARTIAL_LEN.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	expanded, err := expandUser(path)
	if err != nil {
		return nil, err
	}

	file := ""
	if _, err := os.Stat(expanded); err == nil {
		v.SetConfigFile(expanded)
		if filepath.Ext(expanded) == "" {
			v.SetConfigType("json")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", expanded, err)
		}
		file = expanded
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = file
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("processing.parallel_jobs", defaultParallel)
	v.SetDefault("processing.temp_dir", os.TempDir())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file_output", false)
	v.SetDefault("logging.log_dir", "./logs")

	v.SetDefault("paths.default_input", ".")
	v.SetDefault("paths.database_path", filepath.Join(os.TempDir(), "shiftstore.db"))
	v.SetDefault("paths.profile_dir", "~/.config/shiftstore/profiles")

	v.SetDefault("focus.shifts", []float64{})
	v.SetDefault("focus.horizontal", true)
	v.SetDefault("focus.window_tolerance", shiftstore.DefaultWindowTolerance)
	v.SetDefault("focus.position_tolerance", shiftstore.DefaultPositionTolerance)
	v.SetDefault("focus.partial_len", 0)
	v.SetDefault("focus.sequences", 15)
	v.SetDefault("focus.min_contributors", 7)
	v.SetDefault("focus.focuser_positions", []float64{})
	v.SetDefault("focus.strict", false)

	v.SetDefault("detector.binary", "/usr/bin/sextractor")
	v.SetDefault("detector.config", "/usr/share/sextractor/default.sex")
	v.SetDefault("detector.starnnw", "/usr/share/sextractor/default.nnw")
	v.SetDefault("detector.params", []string{
		"NUMBER", "X_IMAGE", "Y_IMAGE", "MAG_BEST", "FLAGS",
		"CLASS_STAR", "FWHM_IMAGE", "A_IMAGE", "B_IMAGE", "EXT_NUMBER",
	})
	v.SetDefault("detector.keep_temp", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")

	v.SetDefault("watch.dirs", []string{})
	v.SetDefault("watch.extensions", []string{".cat", ".json", ".yaml", ".yml", ".db", ".fits", ".fit", ".fts"})
}

// ExpandUser resolves a leading ~ to the current user's home directory.
func ExpandUser(path string) (string, error) { return expandUser(path) }

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
