package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the run surface. Check with errors.Is.
var (
	// ErrNoSurvivors means no capture file passed the active selection
	// stages. It is a distinguished outcome, not a pipeline failure.
	ErrNoSurvivors = errors.New("pcappull: no capture files matched the window")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("pcappull: invalid configuration")
)

// ToolError is returned when an external capture tool exits non-zero or
// produces output the adapter cannot parse. Output holds the captured
// combined stdout/stderr for diagnostics.
type ToolError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// StageError identifies which pipeline stage failed. Downstream stages are
// skipped but workspace cleanup still runs.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ProbeFailure records a per-file probe problem. It excludes the file from
// the survivor set but never aborts the filter for other files.
type ProbeFailure struct {
	Path string
	Err  error
}

func (f ProbeFailure) Error() string {
	return fmt.Sprintf("probe %s: %v", f.Path, f.Err)
}

// ScanWarning records a per-entry or per-root access problem during the
// candidate scan. Warnings are collected, never fatal for sibling roots.
type ScanWarning struct {
	Path string
	Err  error
}

func (w ScanWarning) Error() string {
	return fmt.Sprintf("scan %s: %v", w.Path, w.Err)
}
