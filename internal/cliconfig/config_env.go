package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
)

// ApplyEnvConfig layers PCAPPULL_* environment variables under explicitly
// set flags. Environment overrides the file but loses to flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	if v := os.Getenv("PCAPPULL_ROOTS"); v != "" && !changed["root"] {
		cfg.Roots = splitPathList(v)
	}

	if err := s.setIntFromString("batch-size", os.Getenv("PCAPPULL_BATCH_SIZE"), &cfg.BatchSize); err != nil {
		return err
	}
	if err := s.setIntFromString("slack-min", os.Getenv("PCAPPULL_SLACK_MINUTES"), &cfg.SlackMinutes); err != nil {
		return err
	}

	s.setString("tmpdir", os.Getenv("PCAPPULL_TMPDIR"), &cfg.TempDir)
	s.setString("workers", os.Getenv("PCAPPULL_WORKERS"), &cfg.Workers)
	s.setString("out-format", os.Getenv("PCAPPULL_OUT_FORMAT"), &cfg.OutFormat)
	s.setString("cache", os.Getenv("PCAPPULL_CACHE"), &cfg.CachePath)
	s.setBoolFromString("no-cache", os.Getenv("PCAPPULL_NO_CACHE"), &cfg.NoCache)
	s.setString("log-file", os.Getenv("PCAPPULL_LOG_FILE"), &cfg.LogFile)
	s.setBoolFromString("verbose", os.Getenv("PCAPPULL_VERBOSE"), &cfg.Verbose)

	return s.setDuration("settle", os.Getenv("PCAPPULL_SETTLE"), &cfg.Settle)
}

// splitPathList splits an OS path-list value (colon or semicolon separated)
// into cleaned, non-empty entries.
func splitPathList(v string) []string {
	var roots []string
	for _, p := range strings.Split(v, string(os.PathListSeparator)) {
		p = strings.TrimSpace(p)
		if p != "" {
			roots = append(roots, filepath.Clean(p))
		}
	}
	return roots
}
