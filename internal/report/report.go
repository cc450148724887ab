// Package report renders dry-run and survivor information: plain or CSV
// survivor lists, a min/max packet-time summary, and a per-file CSV
// report. Nothing here touches the merge pipeline or its workspace.
package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/talonsec/pcappull/internal/domain"
)

// Row is one survivor in a report. Range is nil when precise filtering was
// not requested, and the packet-time columns stay empty.
type Row struct {
	Ref   domain.FileRef
	Range *domain.TimeRange
}

// Summarize returns the minimum first-packet and maximum last-packet time
// across the probed rows, in UTC. ok is false when no row carries packet
// times; callers must report that as "not computed", not omit it.
func Summarize(rows []Row) (domain.TimeRange, bool) {
	var sum domain.TimeRange
	found := false
	for _, row := range rows {
		if row.Range == nil {
			continue
		}
		if !found {
			sum = *row.Range
			found = true
			continue
		}
		if row.Range.First.Before(sum.First) {
			sum.First = row.Range.First
		}
		if row.Range.Last.After(sum.Last) {
			sum.Last = row.Range.Last
		}
	}
	if !found {
		return domain.TimeRange{}, false
	}
	sum.First = sum.First.UTC()
	sum.Last = sum.Last.UTC()
	return sum, true
}

// WriteList writes the survivor paths to outPath, one per line. A .csv
// destination gets a single "path" column with a header.
func WriteList(rows []Row, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(outPath), ".csv") {
		w := csv.NewWriter(f)
		if err := w.Write([]string{"path"}); err != nil {
			return err
		}
		for _, row := range rows {
			if err := w.Write([]string{row.Ref.Path}); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	}

	for _, row := range rows {
		if _, err := f.WriteString(row.Ref.Path + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes one row per survivor with columns
// path,size,modified,first,last. Packet-time columns are left empty for
// rows without probed data.
func WriteCSV(rows []Row, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"path", "size", "modified", "first", "last"}); err != nil {
		return err
	}
	for _, row := range rows {
		first, last := "", ""
		if row.Range != nil {
			first = row.Range.First.UTC().Format(time.RFC3339Nano)
			last = row.Range.Last.UTC().Format(time.RFC3339Nano)
		}
		rec := []string{
			row.Ref.Path,
			strconv.FormatInt(row.Ref.Size, 10),
			row.Ref.ModTime.Format(time.RFC3339),
			first,
			last,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
