// Package app ties the selection stages and the pipeline together behind
// the single run operation the CLI consumes.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/talonsec/pcappull/internal/cliconfig"
	"github.com/talonsec/pcappull/internal/domain"
	"github.com/talonsec/pcappull/internal/metacache"
	"github.com/talonsec/pcappull/internal/pipeline"
	"github.com/talonsec/pcappull/internal/probe"
	"github.com/talonsec/pcappull/internal/report"
	"github.com/talonsec/pcappull/internal/scan"
	"github.com/talonsec/pcappull/internal/toolkit"
)

// RunResult reports the outcome of one run: either a written artifact or
// dry-run output, plus the non-fatal problems collected along the way.
type RunResult struct {
	// Scanned is the candidate count after the mtime prefilter.
	Scanned int

	// Survived is the count after all active selection stages.
	Survived int

	// OutputPath is the written artifact; empty for dry runs.
	OutputPath string

	DryRun bool

	// Summary is the min-first/max-last packet range across survivors.
	// SummaryComputed is false when packet times were never probed; the
	// caller must report that explicitly rather than omit it.
	Summary         domain.TimeRange
	SummaryComputed bool

	Failures []domain.ProbeFailure
	Warnings []domain.ScanWarning
}

// autoTrimWindow is the window length above which each merge batch is
// trimmed before combining, even without --trim-per-batch. Long windows
// over chatty captures otherwise pile up huge untrimmed intermediates.
const autoTrimWindow = time.Hour

// Run executes one pull. The toolkit is injected so tests can substitute a
// fake; cmd/pcappull passes the Wireshark adapter.
func Run(ctx context.Context, cfg cliconfig.Config, tk toolkit.Toolkit, log zerolog.Logger) (RunResult, error) {
	var res RunResult
	if err := cfg.Validate(); err != nil {
		return res, err
	}
	res.DryRun = cfg.DryRun

	cache := openCache(&cfg, log)
	defer func() {
		if err := cache.Flush(); err != nil {
			log.Warn().Err(err).Msg("cache flush failed")
		}
	}()

	candidates, warnings, err := scan.Candidates(cfg.Roots, cfg.Window, cfg.Slack())
	if err != nil {
		return res, err
	}
	res.Warnings = warnings
	res.Scanned = len(candidates)
	for _, w := range warnings {
		log.Warn().Str("path", w.Path).Err(w.Err).Msg("scan warning")
	}
	log.Info().
		Int("candidates", len(candidates)).
		Time("window_start", cfg.Window.Start).
		Time("window_end", cfg.Window.End).
		Msg("prefilter complete")

	if cfg.Settle > 0 {
		log.Info().Dur("quiet", cfg.Settle).Msg("waiting for capture directories to settle")
		if err := scan.Settle(ctx, candidates, cfg.Settle); err != nil {
			return res, err
		}
	}

	rows := make([]report.Row, 0, len(candidates))
	var survivorPaths []string

	switch {
	case cfg.PreciseFilter:
		workers, err := probeWorkers(cfg, len(candidates))
		if err != nil {
			return res, err
		}
		log.Info().Int("workers", workers).Int("files", len(candidates)).Msg("precise filter")

		probed, failures := probe.Filter(ctx, candidates, cfg.Window, workers, tk, cache, log)
		res.Failures = failures
		for _, f := range failures {
			log.Warn().Str("path", f.Path).Err(f.Err).Msg("probe failed, file excluded")
		}
		flushCache(cache, log)
		for _, p := range probed {
			r := p.Range
			rows = append(rows, report.Row{Ref: p.Ref, Range: &r})
			survivorPaths = append(survivorPaths, p.Ref.Path)
		}

	case cfg.NeedsProbe():
		// Report and summary output wants packet times, but only the
		// precise filter narrows the set: a file capinfos cannot parse is
		// still merged, its report columns just stay empty.
		workers, err := probeWorkers(cfg, len(candidates))
		if err != nil {
			return res, err
		}
		log.Info().Int("workers", workers).Int("files", len(candidates)).Msg("probing packet times")

		probed, failures := probe.Collect(ctx, candidates, workers, tk, cache, log)
		res.Failures = failures
		for _, f := range failures {
			log.Warn().Str("path", f.Path).Err(f.Err).Msg("probe failed, packet times unknown")
		}
		flushCache(cache, log)
		ranges := make(map[string]domain.TimeRange, len(probed))
		for _, p := range probed {
			ranges[p.Ref.Path] = p.Range
		}
		for _, ref := range candidates {
			row := report.Row{Ref: ref}
			if r, ok := ranges[ref.Path]; ok {
				row.Range = &r
			}
			rows = append(rows, row)
			survivorPaths = append(survivorPaths, ref.Path)
		}

	default:
		for _, ref := range candidates {
			rows = append(rows, report.Row{Ref: ref})
			survivorPaths = append(survivorPaths, ref.Path)
		}
	}
	res.Survived = len(survivorPaths)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.Summary, res.SummaryComputed = report.Summarize(rows)

	if cfg.ReportOut != "" {
		if err := report.WriteCSV(rows, cfg.ReportOut); err != nil {
			return res, fmt.Errorf("write report: %w", err)
		}
		log.Info().Str("path", cfg.ReportOut).Int("rows", len(rows)).Msg("report written")
	}

	if cfg.DryRun {
		if cfg.ListOut != "" {
			if err := report.WriteList(rows, cfg.ListOut); err != nil {
				return res, fmt.Errorf("write survivor list: %w", err)
			}
			log.Info().Str("path", cfg.ListOut).Msg("survivor list written")
		}
		return res, nil
	}

	out, err := pipeline.Run(ctx, survivorPaths, pipeline.Options{
		Window:        cfg.Window,
		OutPath:       cfg.OutPath,
		TempParent:    cfg.TempDir,
		BatchSize:     cfg.BatchSize,
		Format:        cfg.OutFormat,
		DisplayFilter: cfg.DisplayFilter,
		Gzip:          cfg.Gzip,
		TrimPerBatch:  cfg.TrimPerBatch || cfg.Window.Duration() > autoTrimWindow,
	}, tk, log)
	if err != nil {
		return res, err
	}
	res.OutputPath = out
	log.Info().Str("path", out).Int("survivors", res.Survived).Msg("output written")
	return res, nil
}

func probeWorkers(cfg cliconfig.Config, totalFiles int) (int, error) {
	workers, err := probe.ParseWorkers(cfg.Workers, totalFiles)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return workers, nil
}

// flushCache persists what was probed so far even if a later stage fails.
func flushCache(cache metacache.Store, log zerolog.Logger) {
	if err := cache.Flush(); err != nil {
		log.Warn().Err(err).Msg("cache flush failed, continuing without cache writes")
	}
}

// openCache resolves and opens the metadata cache per configuration. Any
// problem degrades to a no-op cache: caching is an optimization, never a
// reason to fail the run.
func openCache(cfg *cliconfig.Config, log zerolog.Logger) metacache.Store {
	if cfg.NoCache {
		return metacache.Nop{}
	}
	path := cfg.CachePath
	if path == "" || path == "auto" {
		p, err := metacache.DefaultPath()
		if err != nil {
			log.Warn().Err(err).Msg("no user cache dir, caching disabled")
			return metacache.Nop{}
		}
		path = p
	}
	store, clean := metacache.Open(path)
	if !clean {
		log.Warn().Str("path", path).Msg("cache unreadable, starting empty")
	}
	if cfg.ClearCache {
		if err := store.Clear(); err != nil {
			log.Warn().Err(err).Msg("cache clear failed")
		} else {
			log.Info().Str("path", path).Msg("cache cleared")
		}
	}
	return store
}
