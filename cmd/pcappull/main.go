package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/talonsec/pcappull/internal/app"
	"github.com/talonsec/pcappull/internal/cliconfig"
	"github.com/talonsec/pcappull/internal/domain"
	"github.com/talonsec/pcappull/internal/logging"
	"github.com/talonsec/pcappull/internal/toolkit"
)

const helpDescription = `
Select capture files by date/time from rolling capture directories and
merge them into a single trimmed output file.

Highlights:
  - Fast mtime prefilter with slack, optional precise packet-time filter.
  - Probe results cached per file identity, so repeat pulls stay cheap.
  - Batched merges keep argv length and temp-disk usage bounded.
  - Requires the Wireshark CLI tools (mergecap, editcap, capinfos, tshark).
`

var exampleUsage = strings.TrimSpace(`
  pcappull --root /data/captures --start "2025-08-01 10:00:00" --minutes 15 --out pull.pcapng
  pcappull --root /data/a --root /data/b --start "2025-08-01 10:00:00" --end "2025-08-01 10:15:00" \
      --precise-filter --display-filter "sip || rtp" --gzip --out pull.pcapng
  pcappull --root /data/captures --start "2025-08-01 10:00:00" --minutes 15 --dry-run --summary
`)

// Exit codes, kept distinct so scripts can tell selection problems from
// tool failures.
const (
	exitOK       = 0
	exitConfig   = 2
	exitNoMatch  = 3
	exitPipeline = 11
	exitOther    = 10
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// newRootCmd builds the root command. Cobra's own error printing is
// silenced: main reports the error once, with the exit code attached.
func newRootCmd() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "pcappull",
		Short:         "Pull a time window out of rolling packet-capture directories",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}
			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			log := logging.New(cfg.Verbose, cfg.LogFile)

			tk, err := toolkit.New(toolkit.Needs{
				Merge:   !cfg.DryRun,
				Probe:   cfg.NeedsProbe(),
				Display: cfg.DisplayFilter != "" && !cfg.DryRun,
			}, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := app.Run(ctx, cfg, tk, log)
			if err != nil {
				return err
			}

			if res.DryRun {
				printDryRun(cmd, cfg, res)
			}
			return nil
		},
	}

	fl := root.Flags()
	fl.StringArrayVar(&cfg.Roots, "root", nil, "root directory to search recursively (repeatable)")
	fl.StringVar(&cfg.Start, "start", "", "window start, 'YYYY-MM-DD HH:MM:SS' local time")
	fl.IntVar(&cfg.Minutes, "minutes", 0, "window duration in minutes (1-1440), clamped to end of day")
	fl.StringVar(&cfg.End, "end", "", "window end (same calendar day as start)")
	fl.StringVar(&cfg.OutPath, "out", "", "output capture path (required unless --dry-run)")
	fl.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "files per merge invocation")
	fl.IntVar(&cfg.SlackMinutes, "slack-min", cfg.SlackMinutes, "extra minutes around the window for the mtime prefilter")
	fl.StringVar(&cfg.TempDir, "tmpdir", "", "parent directory for the temp workspace")
	fl.BoolVar(&cfg.PreciseFilter, "precise-filter", false, "probe packet times and drop files outside the window")
	fl.StringVar(&cfg.Workers, "workers", cfg.Workers, "probe workers: 'auto' or an integer")
	fl.StringVar(&cfg.DisplayFilter, "display-filter", "", "Wireshark display filter applied after trimming")
	fl.StringVar(&cfg.OutFormat, "out-format", cfg.OutFormat, "final capture format: pcap or pcapng")
	fl.BoolVar(&cfg.Gzip, "gzip", false, "gzip-compress the final output")
	fl.BoolVar(&cfg.TrimPerBatch, "trim-per-batch", false, "trim each merge batch before combining (smaller temp footprint)")
	fl.BoolVar(&cfg.DryRun, "dry-run", false, "preview survivors without merging")
	fl.StringVar(&cfg.ListOut, "list-out", "", "with --dry-run, write survivor paths to FILE (.txt or .csv)")
	fl.BoolVar(&cfg.Summary, "summary", false, "report min/max packet times across survivors")
	fl.StringVar(&cfg.ReportOut, "report", "", "write a per-survivor CSV report (forces probing)")
	fl.StringVar(&cfg.CachePath, "cache", cfg.CachePath, "probe-metadata cache path, or 'auto'")
	fl.BoolVar(&cfg.NoCache, "no-cache", false, "disable the probe-metadata cache")
	fl.BoolVar(&cfg.ClearCache, "clear-cache", false, "clear the probe-metadata cache before running")
	fl.DurationVar(&cfg.Settle, "settle", 0, "wait for capture directories to go quiet for this long before merging")
	fl.BoolVar(&cfg.Verbose, "verbose", false, "enable debug logging")
	fl.StringVar(&cfg.LogFile, "log-file", "", "also log to this file (rotated)")
	fl.StringVar(&cfgPath, "config", "", "config file (default ~/.pcappull/config.toml)")

	return root
}

func printDryRun(cmd *cobra.Command, cfg cliconfig.Config, res app.RunResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scanned %d candidate(s), %d survivor(s), %d probe failure(s)\n",
		res.Scanned, res.Survived, len(res.Failures))
	if cfg.Summary {
		if res.SummaryComputed {
			fmt.Fprintf(out, "packet times: first=%s last=%s\n",
				res.Summary.First.Format("2006-01-02 15:04:05.000000Z"),
				res.Summary.Last.Format("2006-01-02 15:04:05.000000Z"))
		} else {
			fmt.Fprintln(out, "packet times: not computed (no probed survivors)")
		}
	}
}

func exitCode(err error) int {
	var stage *domain.StageError
	var tool *domain.ToolError
	switch {
	case errors.Is(err, domain.ErrInvalidConfig):
		return exitConfig
	case errors.Is(err, domain.ErrNoSurvivors):
		return exitNoMatch
	case errors.As(err, &stage), errors.As(err, &tool):
		return exitPipeline
	default:
		return exitOther
	}
}
