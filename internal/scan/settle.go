package scan

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/talonsec/pcappull/internal/domain"
)

// settleMaxWait bounds how long Settle will wait for a noisy capture
// directory to go quiet.
const settleMaxWait = 5 * time.Minute

// Settle waits until the directories holding the candidate files have seen
// no write or create activity for the quiet duration. Rolling capture
// setups flush files late; merging a file mid-write produces a truncated
// batch, so callers with --settle pause here before the pipeline starts.
//
// Watch failures are non-fatal: when the watcher cannot be set up the wait
// is skipped and the run proceeds.
func Settle(ctx context.Context, refs []domain.FileRef, quiet time.Duration) error {
	if quiet <= 0 || len(refs) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range parentDirs(refs) {
		if err := watcher.Add(dir); err == nil {
			watched++
		}
	}
	if watched == 0 {
		return nil
	}

	deadline := time.NewTimer(settleMaxWait)
	defer deadline.Stop()
	quietTimer := time.NewTimer(quiet)
	defer quietTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-quietTimer.C:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if !quietTimer.Stop() {
					select {
					case <-quietTimer.C:
					default:
					}
				}
				quietTimer.Reset(quiet)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// parentDirs returns the sorted unique parent directories of the refs.
func parentDirs(refs []domain.FileRef) []string {
	seen := make(map[string]bool, len(refs))
	var dirs []string
	for _, r := range refs {
		d := filepath.Dir(r.Path)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	return dirs
}
