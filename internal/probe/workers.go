package probe

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Worker-count bounds. "auto" aims for roughly twice the CPU count but is
// capped hard on very large sets to avoid overwhelming slow storage with
// thousands of concurrent capinfos reads.
const (
	minAutoWorkers    = 4
	maxWorkers        = 64
	autoCapSmallSet   = 32
	autoCapLargeSet   = 16
	largeSetThreshold = 2000
)

// ParseWorkers resolves a --workers value ("auto" or an integer) to a
// concrete worker count for probing totalFiles candidates.
func ParseWorkers(value string, totalFiles int) (int, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" || v == "auto" {
		w := runtime.NumCPU() * 2
		if w < minAutoWorkers {
			w = minAutoWorkers
		}
		limit := autoCapSmallSet
		if totalFiles >= largeSetThreshold {
			limit = autoCapLargeSet
		}
		if w > limit {
			w = limit
		}
		return w, nil
	}
	w, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid workers value %q: use 'auto' or an integer", value)
	}
	if w < 1 {
		w = 1
	}
	if w > maxWorkers {
		w = maxWorkers
	}
	return w, nil
}
