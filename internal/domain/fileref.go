package domain

import "time"

// FileRef identifies a candidate capture file. The (Path, Size, ModTime)
// triple is the file's identity: cached probe results are only valid while
// all three match.
type FileRef struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Probed is a FileRef together with its probed packet-time range.
type Probed struct {
	Ref   FileRef
	Range TimeRange
}
