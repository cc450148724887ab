// Package probe reads the real first/last packet times of candidate
// capture files with bounded concurrency, consulting and populating the
// metadata cache. Collect only gathers packet times; Filter additionally
// applies the window overlap predicate.
package probe

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/talonsec/pcappull/internal/domain"
	"github.com/talonsec/pcappull/internal/metacache"
	"github.com/talonsec/pcappull/internal/toolkit"
)

// debugSampleLimit bounds how many parsed probe results are logged at
// debug level; large sets would otherwise flood the log.
const debugSampleLimit = 10

// result is the per-candidate slot a worker fills. Workers never share
// mutable collections: each writes only its own index.
type result struct {
	r   domain.TimeRange
	err error
}

// Filter probes the candidates and keeps those whose packet-time range
// overlaps win, boundaries inclusive. Survivors come back in the original
// candidate order regardless of probe completion order. Per-file probe
// failures are collected, never fatal for the rest of the set.
func Filter(
	ctx context.Context,
	candidates []domain.FileRef,
	win domain.Window,
	workers int,
	tk toolkit.Toolkit,
	cache metacache.Store,
	log zerolog.Logger,
) ([]domain.Probed, []domain.ProbeFailure) {
	probed, failures := Collect(ctx, candidates, workers, tk, cache, log)
	var survivors []domain.Probed
	for _, p := range probed {
		if win.Overlaps(p.Range) {
			survivors = append(survivors, p)
		}
	}
	return survivors, failures
}

// Collect probes every candidate for its packet-time range without
// narrowing the set: report and summary output wants packet times for all
// candidates, not just the in-window ones. Results come back in candidate
// order.
//
// Cancellation stops dispatching new probes; candidates never probed are
// not reported as failures.
func Collect(
	ctx context.Context,
	candidates []domain.FileRef,
	workers int,
	tk toolkit.Toolkit,
	cache metacache.Store,
	log zerolog.Logger,
) ([]domain.Probed, []domain.ProbeFailure) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	results := make([]result, len(candidates))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i].r, results[i].err = bounds(ctx, candidates[i], tk, cache)
			}
		}()
	}

	dispatched := make([]bool, len(candidates))
dispatch:
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
			dispatched[i] = true
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	// Reassemble in candidate order.
	var probed []domain.Probed
	var failures []domain.ProbeFailure
	logged := 0
	for i, ref := range candidates {
		if !dispatched[i] {
			continue
		}
		res := results[i]
		if res.err != nil {
			failures = append(failures, domain.ProbeFailure{Path: ref.Path, Err: res.err})
			continue
		}
		if logged < debugSampleLimit {
			log.Debug().
				Str("file", ref.Path).
				Time("first", res.r.First).
				Time("last", res.r.Last).
				Msg("probed packet times")
			logged++
		}
		probed = append(probed, domain.Probed{Ref: ref, Range: res.r})
	}
	return probed, failures
}

// bounds returns the packet-time range for ref, from the cache when the
// identity matches, otherwise by probing and back-filling the cache.
func bounds(ctx context.Context, ref domain.FileRef, tk toolkit.Toolkit, cache metacache.Store) (domain.TimeRange, error) {
	if r, ok := cache.Lookup(ref); ok {
		return r, nil
	}
	r, err := tk.ProbeMetadata(ctx, ref.Path)
	if err != nil {
		return domain.TimeRange{}, err
	}
	cache.Put(ref, r)
	return r, nil
}
