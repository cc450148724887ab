package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors the persistent subset of Config. Per-run inputs
// (window, output path) stay on the command line; the file carries site
// preferences like roots and cache location. Durations are strings to keep
// the TOML readable.
type FileConfig struct {
	Roots        []string `toml:"roots"`
	BatchSize    int      `toml:"batch_size"`
	SlackMinutes int      `toml:"slack_minutes"`
	TempDir      string   `toml:"temp_dir"`
	Workers      string   `toml:"workers"`
	OutFormat    string   `toml:"out_format"`
	CachePath    string   `toml:"cache"`
	NoCache      *bool    `toml:"no_cache"`
	Settle       string   `toml:"settle"`
	LogFile      string   `toml:"log_file"`
	Verbose      *bool    `toml:"verbose"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.pcappull/config.toml when the home
// directory is resolvable, else empty.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".pcappull", "config.toml")
	}
	return ""
}

// ApplyFileConfig layers file values under explicitly set flags.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setStrings("root", fc.Roots, &cfg.Roots)
	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt("slack-min", fc.SlackMinutes, &cfg.SlackMinutes)
	s.setString("tmpdir", fc.TempDir, &cfg.TempDir)
	s.setString("workers", fc.Workers, &cfg.Workers)
	s.setString("out-format", fc.OutFormat, &cfg.OutFormat)
	s.setString("cache", fc.CachePath, &cfg.CachePath)
	s.setBool("no-cache", fc.NoCache, &cfg.NoCache)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)
	s.setBool("verbose", fc.Verbose, &cfg.Verbose)

	return s.setDuration("settle", fc.Settle, &cfg.Settle)
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
