package pipeline

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/talonsec/pcappull/internal/domain"
)

type trimCall struct {
	in, out, format string
}

// fakeTK records pipeline invocations and materializes output files so the
// artifact write stage has real bytes to move.
type fakeTK struct {
	mu      sync.Mutex
	merges  [][]string
	trims   []trimCall
	filters []string // input paths

	failMergeAt int // 1-based merge call to fail, 0 = never
	failTrim    bool
	failFilter  bool
}

func (f *fakeTK) ProbeMetadata(context.Context, string) (domain.TimeRange, error) {
	return domain.TimeRange{}, errors.New("not used")
}

func (f *fakeTK) Merge(_ context.Context, inputs []string, out string) error {
	f.mu.Lock()
	f.merges = append(f.merges, append([]string(nil), inputs...))
	n := len(f.merges)
	f.mu.Unlock()
	if f.failMergeAt != 0 && n >= f.failMergeAt {
		return &domain.ToolError{Tool: "mergecap", Err: errors.New("exit status 1")}
	}
	return os.WriteFile(out, []byte("merged\n"), 0o600)
}

func (f *fakeTK) Trim(_ context.Context, in string, _ domain.Window, format, out string) error {
	f.mu.Lock()
	f.trims = append(f.trims, trimCall{in: in, out: out, format: format})
	f.mu.Unlock()
	if f.failTrim {
		return &domain.ToolError{Tool: "editcap", Err: errors.New("exit status 1")}
	}
	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append(b, []byte("trimmed\n")...), 0o600)
}

func (f *fakeTK) ApplyFilter(_ context.Context, in, _, _, out string) error {
	f.mu.Lock()
	f.filters = append(f.filters, in)
	f.mu.Unlock()
	if f.failFilter {
		return &domain.ToolError{Tool: "tshark", Err: errors.New("exit status 2")}
	}
	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append(b, []byte("filtered\n")...), 0o600)
}

func testOpts(t *testing.T, batchSize int) Options {
	t.Helper()
	base := time.Date(2025, 8, 1, 10, 0, 0, 0, time.Local)
	return Options{
		Window:     domain.Window{Start: base, End: base.Add(15 * time.Minute)},
		OutPath:    filepath.Join(t.TempDir(), "out.pcapng"),
		TempParent: t.TempDir(),
		BatchSize:  batchSize,
		Format:     "pcapng",
	}
}

func survivorPaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("/data/cap_%05d.pcap", i)
	}
	return paths
}

func assertWorkspaceEmpty(t *testing.T, parent string) {
	t.Helper()
	entries, err := os.ReadDir(parent)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("workspace leftovers: %v", entries)
	}
}

func TestRunBatching(t *testing.T) {
	// 1200 survivors, batch size 500: three first-pass merges plus one
	// combine of the three intermediates.
	tk := &fakeTK{}
	opts := testOpts(t, 500)

	out, err := Run(context.Background(), survivorPaths(1200), opts, tk, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if out != opts.OutPath {
		t.Fatalf("out = %s, want %s", out, opts.OutPath)
	}
	if len(tk.merges) != 4 {
		t.Fatalf("merge calls = %d, want 4", len(tk.merges))
	}
	for i, m := range tk.merges {
		if len(m) > 500 {
			t.Fatalf("merge %d named %d inputs, batch bound is 500", i, len(m))
		}
	}
	if got := len(tk.merges[3]); got != 3 {
		t.Fatalf("combine pass merged %d intermediates, want 3", got)
	}
	assertWorkspaceEmpty(t, opts.TempParent)
}

func TestRunSingleBatchSkipsCombine(t *testing.T) {
	tk := &fakeTK{}
	opts := testOpts(t, 500)
	if _, err := Run(context.Background(), survivorPaths(3), opts, tk, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	if len(tk.merges) != 1 {
		t.Fatalf("merge calls = %d, want 1", len(tk.merges))
	}
	if len(tk.trims) != 1 {
		t.Fatalf("trim calls = %d, want 1", len(tk.trims))
	}
}

func TestRunMergeCountIsCeilOfBatches(t *testing.T) {
	cases := []struct {
		files, batch, firstPass int
	}{
		{1, 500, 1},
		{500, 500, 1},
		{501, 500, 2},
		{10, 3, 4},
	}
	for _, tc := range cases {
		tk := &fakeTK{}
		opts := testOpts(t, tc.batch)
		if _, err := Run(context.Background(), survivorPaths(tc.files), opts, tk, zerolog.Nop()); err != nil {
			t.Fatal(err)
		}
		firstPass := 0
		for _, m := range tk.merges {
			// First-pass merges name survivor paths; combine rounds name
			// workspace intermediates.
			if strings.HasPrefix(m[0], "/data/") {
				firstPass++
			}
		}
		if firstPass != tc.firstPass {
			t.Fatalf("files=%d batch=%d: first-pass merges = %d, want %d",
				tc.files, tc.batch, firstPass, tc.firstPass)
		}
	}
}

func TestRunNoSurvivors(t *testing.T) {
	tk := &fakeTK{}
	opts := testOpts(t, 500)
	_, err := Run(context.Background(), nil, opts, tk, zerolog.Nop())
	if !errors.Is(err, domain.ErrNoSurvivors) {
		t.Fatalf("err = %v, want ErrNoSurvivors", err)
	}
	if len(tk.merges) != 0 {
		t.Fatal("empty survivor set reached the merge stage")
	}
}

func TestRunCleanupOnStageFailure(t *testing.T) {
	tk := &fakeTK{failTrim: true}
	opts := testOpts(t, 500)

	_, err := Run(context.Background(), survivorPaths(10), opts, tk, zerolog.Nop())
	var stage *domain.StageError
	if !errors.As(err, &stage) || stage.Stage != StageTrim {
		t.Fatalf("err = %v, want trim StageError", err)
	}
	assertWorkspaceEmpty(t, opts.TempParent)
	if _, serr := os.Stat(opts.OutPath); !os.IsNotExist(serr) {
		t.Fatal("partial output left behind after failure")
	}
}

func TestRunMergeFailureNamesStage(t *testing.T) {
	tk := &fakeTK{failMergeAt: 1}
	opts := testOpts(t, 500)
	_, err := Run(context.Background(), survivorPaths(10), opts, tk, zerolog.Nop())
	var stage *domain.StageError
	if !errors.As(err, &stage) || stage.Stage != StageMerge {
		t.Fatalf("err = %v, want merge StageError", err)
	}
	var tool *domain.ToolError
	if !errors.As(err, &tool) || tool.Tool != "mergecap" {
		t.Fatalf("underlying cause lost: %v", err)
	}
	assertWorkspaceEmpty(t, opts.TempParent)
}

func TestRunDisplayFilterRunsAfterTrim(t *testing.T) {
	tk := &fakeTK{}
	opts := testOpts(t, 500)
	opts.DisplayFilter = "sip || rtp"

	out, err := Run(context.Background(), survivorPaths(2), opts, tk, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(tk.filters) != 1 {
		t.Fatalf("filter calls = %d, want 1", len(tk.filters))
	}
	if len(tk.trims) != 1 || tk.filters[0] != tk.trims[0].out {
		t.Fatalf("filter input %s is not the trim output %s", tk.filters[0], tk.trims[0].out)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(b), "filtered\n") {
		t.Fatalf("artifact content %q is not the filtered capture", b)
	}
}

func TestRunGzip(t *testing.T) {
	tk := &fakeTK{}
	opts := testOpts(t, 500)
	opts.Gzip = true

	out, err := Run(context.Background(), survivorPaths(2), opts, tk, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, ".pcapng.gz") {
		t.Fatalf("out = %s, want .pcapng.gz suffix", out)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("output is not gzip: %v", err)
	}
	b, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(b), "trimmed\n") {
		t.Fatalf("decompressed content %q", b)
	}
}

func TestRunTrimPerBatch(t *testing.T) {
	tk := &fakeTK{}
	opts := testOpts(t, 5)
	opts.TrimPerBatch = true

	if _, err := Run(context.Background(), survivorPaths(10), opts, tk, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	// Two batch trims plus the final exact trim.
	if len(tk.trims) != 3 {
		t.Fatalf("trim calls = %d, want 3", len(tk.trims))
	}
	assertWorkspaceEmpty(t, opts.TempParent)
}

func TestPartition(t *testing.T) {
	groups := partition(survivorPaths(7), 3)
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if len(groups[0]) != 3 || len(groups[1]) != 3 || len(groups[2]) != 1 {
		t.Fatalf("group sizes: %d/%d/%d", len(groups[0]), len(groups[1]), len(groups[2]))
	}
}
