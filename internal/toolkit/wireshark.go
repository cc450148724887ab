package toolkit

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/talonsec/pcappull/internal/domain"
)

// editcapTimeLayout is the timestamp format editcap accepts for -A/-B.
// Times are given in local time, matching how the window was entered.
const editcapTimeLayout = "2006-01-02 15:04:05"

// maxToolOutput caps how much captured tool output is carried inside a
// ToolError. Tools can dump megabytes on malformed inputs.
const maxToolOutput = 4 << 10

// Wireshark runs the Wireshark CLI tools as child processes. Tool paths
// are resolved once at construction so a missing tool fails the run before
// any scanning or probing starts.
type Wireshark struct {
	mergecap string
	editcap  string
	capinfos string
	tshark   string

	log zerolog.Logger
}

// Needs declares which optional tools a run requires. mergecap and editcap
// are always required for pipeline runs; capinfos only when probing, tshark
// only when a display filter is set.
type Needs struct {
	Merge   bool
	Probe   bool
	Display bool
}

// New resolves the required tools and returns a ready adapter.
func New(needs Needs, log zerolog.Logger) (*Wireshark, error) {
	w := &Wireshark{log: log}
	var err error
	if needs.Merge {
		if w.mergecap, err = lookTool("mergecap"); err != nil {
			return nil, err
		}
		if w.editcap, err = lookTool("editcap"); err != nil {
			return nil, err
		}
	}
	if needs.Probe {
		if w.capinfos, err = lookTool("capinfos"); err != nil {
			return nil, err
		}
	}
	if needs.Display {
		if w.tshark, err = lookTool("tshark"); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// lookTool resolves a tool on PATH, falling back to the standard Wireshark
// install directories on Windows.
func lookTool(name string) (string, error) {
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	if runtime.GOOS == "windows" {
		for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)"} {
			base := os.Getenv(env)
			if base == "" {
				continue
			}
			candidate := filepath.Join(base, "Wireshark", name+".exe")
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("'%s' not found in PATH; install the Wireshark CLI tools", name)
}

// ProbeMetadata runs capinfos -a -e -S and parses the machine-readable
// epoch timestamps it prints.
func (w *Wireshark) ProbeMetadata(ctx context.Context, path string) (domain.TimeRange, error) {
	out, err := w.run(ctx, "capinfos", w.capinfos, "-a", "-e", "-S", path)
	if err != nil {
		return domain.TimeRange{}, err
	}
	r, perr := parseCapinfos(out)
	if perr != nil {
		return domain.TimeRange{}, &domain.ToolError{Tool: "capinfos", Output: clipOutput(out), Err: perr}
	}
	return r, nil
}

// Merge merges the inputs into outPath with mergecap.
func (w *Wireshark) Merge(ctx context.Context, inputs []string, outPath string) error {
	args := append([]string{"-w", outPath}, inputs...)
	_, err := w.run(ctx, "mergecap", w.mergecap, args...)
	return err
}

// Trim trims inPath to the window with editcap. editcap's -A/-B bounds are
// inclusive: packets stamped exactly at the window edges are kept.
func (w *Wireshark) Trim(ctx context.Context, inPath string, win domain.Window, format, outPath string) error {
	args := []string{
		"-A", win.Start.Format(editcapTimeLayout),
		"-B", win.End.Format(editcapTimeLayout),
	}
	if format != "" {
		args = append(args, "-F", format)
	}
	args = append(args, inPath, outPath)
	_, err := w.run(ctx, "editcap", w.editcap, args...)
	return err
}

// ApplyFilter applies a display filter with tshark.
func (w *Wireshark) ApplyFilter(ctx context.Context, inPath, expr, format, outPath string) error {
	args := []string{"-r", inPath, "-Y", expr, "-w", outPath}
	if format != "" {
		args = append(args, "-F", format)
	}
	_, err := w.run(ctx, "tshark", w.tshark, args...)
	return err
}

// run executes one tool invocation with combined output captured. The
// C locale is forced so capinfos output stays parseable regardless of the
// user's locale.
func (w *Wireshark) run(ctx context.Context, tool, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C", "LANG=C")
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	w.log.Debug().Str("tool", tool).Strs("args", args).Msg("exec")
	start := time.Now()
	err := cmd.Run()
	w.log.Debug().Str("tool", tool).Dur("took", time.Since(start)).Err(err).Msg("exec done")

	if err != nil {
		return nil, &domain.ToolError{Tool: tool, Output: clipOutput(buf.Bytes()), Err: err}
	}
	return buf.Bytes(), nil
}

// parseCapinfos extracts the first/last packet epoch timestamps from
// capinfos -S output. Older and newer capinfos label the lines differently
// (First/Last vs Earliest/Latest); both are accepted.
func parseCapinfos(out []byte) (domain.TimeRange, error) {
	var first, last time.Time
	var haveFirst, haveLast bool

	for _, line := range strings.Split(string(out), "\n") {
		low := strings.ToLower(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(low, "first packet time:"), strings.HasPrefix(low, "earliest packet time:"):
			if t, ok := parseEpochField(line); ok {
				first, haveFirst = t, true
			}
		case strings.HasPrefix(low, "last packet time:"), strings.HasPrefix(low, "latest packet time:"):
			if t, ok := parseEpochField(line); ok {
				last, haveLast = t, true
			}
		}
	}
	if !haveFirst || !haveLast {
		return domain.TimeRange{}, fmt.Errorf("no packet times in capinfos output")
	}
	return domain.TimeRange{First: first, Last: last}, nil
}

// parseEpochField parses the value after the first colon as fractional
// epoch seconds.
func parseEpochField(line string) (time.Time, bool) {
	_, val, ok := strings.Cut(line, ":")
	if !ok {
		return time.Time{}, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return time.Time{}, false
	}
	// capinfos prints microsecond precision; round the fractional part to
	// whole microseconds so float64 noise near large epochs cancels out.
	sec := int64(f)
	usec := int64(math.Round((f - float64(sec)) * 1e6))
	return time.Unix(sec, usec*1000).UTC(), true
}

func clipOutput(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxToolOutput {
		s = s[:maxToolOutput] + "... (truncated)"
	}
	return s
}
