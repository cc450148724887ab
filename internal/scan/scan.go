// Package scan walks capture roots and prefilters candidates by filesystem
// modification time. The prefilter is deliberately coarse: slack widens the
// window to tolerate clock and flush skew, and the precise packet-time
// filter runs later.
package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/talonsec/pcappull/internal/domain"
)

// captureExts is the file-extension allow-set, lowercase.
var captureExts = map[string]bool{
	".pcap":   true,
	".pcapng": true,
	".cap":    true,
}

// IsCaptureFile reports whether the filename carries a recognized capture
// extension.
func IsCaptureFile(name string) bool {
	return captureExts[strings.ToLower(filepath.Ext(name))]
}

// Candidates walks each root recursively and returns the capture files
// whose mtime falls in [win.Start-slack, win.End+slack], sorted by path so
// batching and reports are reproducible.
//
// Unreadable entries and failed roots become warnings, never fatal for
// sibling roots. An error is returned only when every root failed, which
// distinguishes a broken scan from a legitimately empty result.
func Candidates(roots []string, win domain.Window, slack time.Duration) ([]domain.FileRef, []domain.ScanWarning, error) {
	lower := win.Start.Add(-slack)
	upper := win.End.Add(slack)

	var refs []domain.FileRef
	var warnings []domain.ScanWarning
	failedRoots := 0

	for _, root := range roots {
		rootOK := false
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				warnings = append(warnings, domain.ScanWarning{Path: path, Err: err})
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			rootOK = true
			if d.IsDir() || !IsCaptureFile(d.Name()) {
				return nil
			}
			info, ierr := d.Info()
			if ierr != nil {
				warnings = append(warnings, domain.ScanWarning{Path: path, Err: ierr})
				return nil
			}
			mt := info.ModTime()
			if mt.Before(lower) || mt.After(upper) {
				return nil
			}
			refs = append(refs, domain.FileRef{Path: path, Size: info.Size(), ModTime: mt})
			return nil
		})
		if err != nil {
			warnings = append(warnings, domain.ScanWarning{Path: root, Err: err})
			if !rootOK {
				failedRoots++
			}
		}
	}

	if failedRoots == len(roots) && len(roots) > 0 {
		return nil, warnings, fmt.Errorf("no scannable roots: %w", warnings[len(warnings)-1].Err)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, warnings, nil
}
