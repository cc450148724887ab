// Package metacache persists probed packet-time ranges between runs so
// repeated precise filtering over the same capture set stays cheap. The
// store is keyed by file identity (path, size, mtime); any identity change
// makes the entry invisible until it is overwritten.
package metacache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/talonsec/pcappull/internal/domain"
)

// Store is the lookup/store surface the precise filter consumes. The cache
// is an optimization, never a source of truth: implementations must degrade
// to misses rather than fail a run.
type Store interface {
	// Lookup returns the cached range for ref, or ok=false on a miss or
	// identity mismatch.
	Lookup(ref domain.FileRef) (domain.TimeRange, bool)

	// Put records the probed range for ref.
	Put(ref domain.FileRef, r domain.TimeRange)

	// Flush persists pending writes. Safe to call multiple times.
	Flush() error
}

// entry is the persisted record for one path.
type entry struct {
	Size      int64 `json:"size"`
	ModTimeNs int64 `json:"mtime_ns"`
	FirstNs   int64 `json:"first_ns"`
	LastNs    int64 `json:"last_ns"`
}

// fileDoc is the on-disk document: one JSON object keyed by path.
type fileDoc struct {
	Version int              `json:"version"`
	Entries map[string]entry `json:"entries"`
}

const docVersion = 1

// FileStore is a Store backed by a single JSON document, written atomically
// (temp file + rename) so readers never observe a half-written store.
// Lookups are served from memory; Put buffers until Flush.
type FileStore struct {
	path string

	mu      sync.RWMutex
	entries map[string]entry
	dirty   bool
}

// Open loads the store at path. A missing, corrupt, or unreadable document
// degrades to an empty cache; the returned bool reports whether existing
// contents were actually loaded.
func Open(path string) (*FileStore, bool) {
	s := &FileStore{path: path, entries: make(map[string]entry)}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, errors.Is(err, fs.ErrNotExist)
	}
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil || doc.Entries == nil {
		// Corrupt store: treat everything as a miss and rewrite on flush.
		s.dirty = true
		return s, false
	}
	s.entries = doc.Entries
	return s, true
}

// DefaultPath returns the per-user cache location.
func DefaultPath() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "pcappull", "capinfos.json"), nil
}

// Lookup returns the cached range for ref when the stored identity matches.
func (s *FileStore) Lookup(ref domain.FileRef) (domain.TimeRange, bool) {
	s.mu.RLock()
	e, ok := s.entries[ref.Path]
	s.mu.RUnlock()
	if !ok || e.Size != ref.Size || e.ModTimeNs != ref.ModTime.UnixNano() {
		return domain.TimeRange{}, false
	}
	return domain.TimeRange{
		First: time.Unix(0, e.FirstNs).UTC(),
		Last:  time.Unix(0, e.LastNs).UTC(),
	}, true
}

// Put records the probed range for ref, replacing any stale entry.
func (s *FileStore) Put(ref domain.FileRef, r domain.TimeRange) {
	s.mu.Lock()
	s.entries[ref.Path] = entry{
		Size:      ref.Size,
		ModTimeNs: ref.ModTime.UnixNano(),
		FirstNs:   r.First.UnixNano(),
		LastNs:    r.Last.UnixNano(),
	}
	s.dirty = true
	s.mu.Unlock()
}

// Flush writes the document atomically. A flush failure leaves the previous
// document intact.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(fileDoc{Version: docVersion, Entries: s.entries})
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Clear drops all entries and removes the on-disk document.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
	s.dirty = false
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Len returns the number of cached entries.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Nop is a Store that never hits and never persists; it backs --no-cache.
type Nop struct{}

func (Nop) Lookup(domain.FileRef) (domain.TimeRange, bool) { return domain.TimeRange{}, false }
func (Nop) Put(domain.FileRef, domain.TimeRange)           {}
func (Nop) Flush() error                                   { return nil }
