package cliconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/talonsec/pcappull/internal/domain"
)

// Accepted window timestamp layouts, tried in order. A trailing Z marks
// UTC and is converted to local time, matching how mtimes and editcap
// bounds are interpreted.
var windowLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
}

const maxWindowMinutes = 1440

// ParseWindowTime parses a user-supplied window timestamp. The T date/time
// separator is accepted alongside a space.
func ParseWindowTime(s string) (time.Time, error) {
	s = strings.Replace(strings.TrimSpace(s), "T", " ", 1)

	utc := false
	if strings.HasSuffix(s, "Z") {
		utc = true
		s = strings.TrimSuffix(s, "Z")
	}
	for _, layout := range windowLayouts {
		loc := time.Local
		if utc {
			loc = time.UTC
		}
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			if utc {
				t = t.In(time.Local)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q: use 'YYYY-MM-DD HH:MM:SS'", s)
}

// BuildWindow constructs the run window from a start time plus exactly one
// of a minute duration or an end time. The window must stay within one
// calendar day; a duration that would cross midnight is clamped to the end
// of the start day.
//
// The same-day constraint is domain policy carried over from rolling
// capture retention, not a technical limit.
func BuildWindow(startStr string, minutes int, endStr string) (domain.Window, error) {
	if (minutes == 0) == (endStr == "") {
		return domain.Window{}, fmt.Errorf("provide either --minutes or --end, not both")
	}

	start, err := ParseWindowTime(startStr)
	if err != nil {
		return domain.Window{}, err
	}

	var end time.Time
	if endStr != "" {
		end, err = ParseWindowTime(endStr)
		if err != nil {
			return domain.Window{}, err
		}
		if !sameDay(start, end) {
			return domain.Window{}, fmt.Errorf("window crosses midnight: choose a window within a single calendar day")
		}
	} else {
		if minutes < 1 || minutes > maxWindowMinutes {
			return domain.Window{}, fmt.Errorf("--minutes must be between 1 and %d", maxWindowMinutes)
		}
		end = start.Add(time.Duration(minutes) * time.Minute)
		if !sameDay(start, end) {
			end = endOfDay(start)
		}
	}

	if !end.After(start) {
		return domain.Window{}, fmt.Errorf("window end must be after start")
	}
	return domain.Window{Start: start, End: end}, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
