// Package toolkit adapts the external Wireshark CLI tools (mergecap,
// editcap, capinfos, tshark) behind a narrow interface. All parsing of
// tool output lives here; orchestration code only ever sees typed results
// or a *domain.ToolError.
package toolkit

import (
	"context"

	"github.com/talonsec/pcappull/internal/domain"
)

// Toolkit is the capability set the selection and pipeline stages consume.
// Implementations run scoped external processes; tests substitute fakes.
type Toolkit interface {
	// ProbeMetadata returns the first/last packet timestamps of a capture
	// file, in UTC.
	ProbeMetadata(ctx context.Context, path string) (domain.TimeRange, error)

	// Merge merges the input captures, in order, into outPath.
	Merge(ctx context.Context, inputs []string, outPath string) error

	// Trim writes the packets of inPath whose timestamps fall inside w
	// (boundaries inclusive) to outPath in the given container format.
	Trim(ctx context.Context, inPath string, w domain.Window, format, outPath string) error

	// ApplyFilter writes the packets of inPath matching the display filter
	// expression to outPath in the given container format.
	ApplyFilter(ctx context.Context, inPath, expr, format, outPath string) error
}
