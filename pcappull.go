// Package pcappull selects capture files overlapping a time window from
// rolling capture directories and merges them into one trimmed output.
//
// Example usage:
//
//	cfg := pcappull.DefaultConfig()
//	cfg.Roots = []string{"/data/captures"}
//	cfg.Start = "2025-08-01 10:00:00"
//	cfg.Minutes = 15
//	cfg.OutPath = "pull.pcapng"
//	res, err := pcappull.Run(context.Background(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.OutputPath)
package pcappull

import (
	"context"

	"github.com/talonsec/pcappull/internal/app"
	"github.com/talonsec/pcappull/internal/cliconfig"
	"github.com/talonsec/pcappull/internal/logging"
	"github.com/talonsec/pcappull/internal/toolkit"
)

// Config holds the configuration for one pull.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// RunResult reports the outcome of a pull: the written artifact or the
// dry-run figures, plus collected non-fatal warnings and probe failures.
type RunResult = app.RunResult

// DefaultConfig returns a Config with sensible default values. At minimum
// set Roots, Start, and Minutes or End, and OutPath unless DryRun.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Run validates cfg, resolves the required Wireshark CLI tools, and
// executes the pull. It blocks until the run completes or ctx is
// cancelled; the temp workspace is cleaned up on every path.
func Run(ctx context.Context, cfg Config) (RunResult, error) {
	log := logging.New(cfg.Verbose, cfg.LogFile)

	if err := cfg.Validate(); err != nil {
		return RunResult{}, err
	}
	tk, err := toolkit.New(toolkit.Needs{
		Merge:   !cfg.DryRun,
		Probe:   cfg.NeedsProbe(),
		Display: cfg.DisplayFilter != "" && !cfg.DryRun,
	}, log)
	if err != nil {
		return RunResult{}, err
	}
	return app.Run(ctx, cfg, tk, log)
}
