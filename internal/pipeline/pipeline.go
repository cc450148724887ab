// Package pipeline turns a sorted survivor list into the final capture
// artifact: batched merges, an exact window trim, an optional display
// filter, and the output write, all inside a temp workspace that is
// removed on every exit path.
package pipeline

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/talonsec/pcappull/internal/domain"
	"github.com/talonsec/pcappull/internal/toolkit"
)

// Stage names surfaced in StageError.
const (
	StageMerge   = "merge"
	StageCombine = "combine"
	StageTrim    = "trim"
	StageFilter  = "display-filter"
	StageOutput  = "output"
)

// Options configures one pipeline run.
type Options struct {
	Window domain.Window

	// OutPath is the final artifact location. The file appears there only
	// on success, via rename inside the destination directory.
	OutPath string

	// TempParent hosts the run's workspace; empty means the system temp
	// directory. Large pulls need a parent on a big volume.
	TempParent string

	// BatchSize bounds how many files one external merge invocation may
	// name, keeping argv length and merge memory in check.
	BatchSize int

	// Format is the output container format, "pcap" or "pcapng".
	Format string

	// DisplayFilter, when set, narrows the trimmed capture with a
	// Wireshark display filter as a post-trim pass.
	DisplayFilter string

	// Gzip compresses the final artifact as a last, non-reversible step.
	Gzip bool

	// TrimPerBatch trims each batch to the window before combining,
	// bounding peak workspace size for long windows over chatty captures.
	TrimPerBatch bool
}

// Run executes the pipeline over the survivor paths and returns the path
// of the written artifact. Any stage failure aborts the remaining stages
// and is reported as a *domain.StageError; the workspace is removed
// regardless of outcome.
func Run(ctx context.Context, files []string, opts Options, tk toolkit.Toolkit, log zerolog.Logger) (string, error) {
	if len(files) == 0 {
		return "", domain.ErrNoSurvivors
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutPath), 0o755); err != nil {
		return "", &domain.StageError{Stage: StageOutput, Err: err}
	}

	ws, err := os.MkdirTemp(opts.TempParent, "pcappull-")
	if err != nil {
		return "", &domain.StageError{Stage: StageMerge, Err: fmt.Errorf("create workspace: %w", err)}
	}
	defer os.RemoveAll(ws)

	merged, err := mergeAll(ctx, files, opts, ws, tk, log)
	if err != nil {
		return "", err
	}

	trimmed := filepath.Join(ws, "trimmed."+opts.Format)
	if err := tk.Trim(ctx, merged, opts.Window, opts.Format, trimmed); err != nil {
		return "", &domain.StageError{Stage: StageTrim, Err: err}
	}
	log.Debug().Str("file", trimmed).Msg("trimmed to window")

	final := trimmed
	if opts.DisplayFilter != "" {
		filtered := filepath.Join(ws, "final."+opts.Format)
		if err := tk.ApplyFilter(ctx, trimmed, opts.DisplayFilter, opts.Format, filtered); err != nil {
			return "", &domain.StageError{Stage: StageFilter, Err: err}
		}
		final = filtered
	}

	out, err := writeArtifact(final, opts.OutPath, opts.Gzip)
	if err != nil {
		return "", &domain.StageError{Stage: StageOutput, Err: err}
	}
	return out, nil
}

// mergeAll merges the survivors in batches of at most BatchSize, then
// combines the intermediates in further bounded rounds until one file
// remains. No external invocation ever names more than BatchSize inputs.
func mergeAll(ctx context.Context, files []string, opts Options, ws string, tk toolkit.Toolkit, log zerolog.Logger) (string, error) {
	batches := partition(files, opts.BatchSize)
	log.Info().Int("files", len(files)).Int("batches", len(batches)).Msg("merging survivors")

	intermediates := make([]string, 0, len(batches))
	for i, batch := range batches {
		out := filepath.Join(ws, fmt.Sprintf("batch_%05d.pcapng", i+1))
		if err := tk.Merge(ctx, batch, out); err != nil {
			return "", &domain.StageError{Stage: StageMerge, Err: err}
		}
		if opts.TrimPerBatch {
			trimmed := filepath.Join(ws, fmt.Sprintf("batch_%05d_trim.pcapng", i+1))
			if err := tk.Trim(ctx, out, opts.Window, "pcapng", trimmed); err != nil {
				return "", &domain.StageError{Stage: StageTrim, Err: err}
			}
			os.Remove(out)
			out = trimmed
		}
		intermediates = append(intermediates, out)
	}

	for round := 1; len(intermediates) > 1; round++ {
		groups := partition(intermediates, opts.BatchSize)
		next := make([]string, 0, len(groups))
		for i, group := range groups {
			if len(group) == 1 {
				next = append(next, group[0])
				continue
			}
			out := filepath.Join(ws, fmt.Sprintf("combine_r%d_%05d.pcapng", round, i+1))
			if err := tk.Merge(ctx, group, out); err != nil {
				return "", &domain.StageError{Stage: StageCombine, Err: err}
			}
			for _, g := range group {
				os.Remove(g)
			}
			next = append(next, out)
		}
		intermediates = next
	}
	return intermediates[0], nil
}

// partition splits items into ordered groups of at most size.
func partition(items []string, size int) [][]string {
	var groups [][]string
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		groups = append(groups, items[:n])
		items = items[n:]
	}
	return groups
}

// writeArtifact moves the finished capture into place. The content is
// staged next to the destination and renamed so a failure never leaves a
// partial artifact at outPath.
func writeArtifact(src, outPath string, gzipOut bool) (string, error) {
	if gzipOut && !strings.HasSuffix(outPath, ".gz") {
		outPath += ".gz"
	}

	staging, err := os.CreateTemp(filepath.Dir(outPath), ".pcappull-out-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(staging.Name())

	if err := func() error {
		defer staging.Close()
		in, err := os.Open(src)
		if err != nil {
			return err
		}
		defer in.Close()
		if gzipOut {
			zw := gzip.NewWriter(staging)
			if _, err := io.Copy(zw, in); err != nil {
				return err
			}
			return zw.Close()
		}
		_, err = io.Copy(staging, in)
		return err
	}(); err != nil {
		return "", err
	}

	if err := os.Rename(staging.Name(), outPath); err != nil {
		return "", err
	}
	return outPath, nil
}
