// Package cliconfig holds the CLI-facing configuration: defaults, TOML
// file and environment layering with flag precedence, and window
// validation. Precedence is flags > environment > file > defaults.
package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/talonsec/pcappull/internal/domain"
	"github.com/talonsec/pcappull/internal/probe"
)

// Output container formats accepted by --out-format.
const (
	FormatPcap   = "pcap"
	FormatPcapng = "pcapng"
)

// Config holds one run's configuration. Window is derived during Validate
// and immutable afterwards.
type Config struct {
	Roots []string

	// Raw window inputs. Start plus exactly one of Minutes or End.
	Start   string
	Minutes int
	End     string

	OutPath      string
	BatchSize    int
	SlackMinutes int
	TempDir      string

	PreciseFilter bool
	Workers       string

	DisplayFilter string
	OutFormat     string
	Gzip          bool
	TrimPerBatch  bool

	DryRun    bool
	ListOut   string
	Summary   bool
	ReportOut string

	CachePath  string
	NoCache    bool
	ClearCache bool

	Settle  time.Duration
	Verbose bool
	LogFile string

	// Window is built from Start/Minutes/End by Validate.
	Window domain.Window
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		BatchSize:    500,
		SlackMinutes: 120,
		Workers:      "auto",
		OutFormat:    FormatPcapng,
		CachePath:    "auto",
	}
}

// Validate checks the configuration, builds the window, and rejects
// conflicting options before any external process or cache I/O happens.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("%w: at least one --root is required", domain.ErrInvalidConfig)
	}
	if c.Start == "" {
		return fmt.Errorf("%w: --start is required", domain.ErrInvalidConfig)
	}

	win, err := BuildWindow(c.Start, c.Minutes, c.End)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	c.Window = win

	// A dry run ignores --out rather than rejecting it, so users can flip
	// --dry-run on and off without editing the rest of the command line.
	if !c.DryRun && c.OutPath == "" {
		return fmt.Errorf("%w: --out is required unless --dry-run is set", domain.ErrInvalidConfig)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: --batch-size must be at least 1", domain.ErrInvalidConfig)
	}
	if c.SlackMinutes < 0 {
		return fmt.Errorf("%w: --slack-min must not be negative", domain.ErrInvalidConfig)
	}
	if c.OutFormat != FormatPcap && c.OutFormat != FormatPcapng {
		return fmt.Errorf("%w: --out-format must be %s or %s", domain.ErrInvalidConfig, FormatPcap, FormatPcapng)
	}
	if _, err := probe.ParseWorkers(c.Workers, 0); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	if c.NoCache && c.ClearCache {
		return fmt.Errorf("%w: --no-cache and --clear-cache are mutually exclusive", domain.ErrInvalidConfig)
	}
	if c.Settle < 0 {
		return fmt.Errorf("%w: --settle must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// Slack returns the prefilter slack as a duration.
func (c *Config) Slack() time.Duration {
	return time.Duration(c.SlackMinutes) * time.Minute
}

// NeedsProbe reports whether the run must probe packet times: an explicit
// precise filter, or report/summary output that includes them.
func (c *Config) NeedsProbe() bool {
	return c.PreciseFilter || c.ReportOut != "" || c.Summary
}

// configSetter applies layered configuration values while respecting flags
// the user set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i > 0 {
		*dst = i
	}
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
		*dst = b
	}
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}
