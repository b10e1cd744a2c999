// Package stats computes aggregate per-root counts and sizes from a
// live Index, the way the original rollup pipeline accumulated
// per-directory totals, minus the directory hierarchy the original
// pipeline rolled up through: the Index only ever holds files, so a
// root's stats are a flat reduction over every entry it owns.
package stats

import (
	"github.com/kchojnowski/locatefs/internal/entry"
	"github.com/kchojnowski/locatefs/internal/index"
)

// RootStats is the aggregate view of every entry registered under one
// root.
type RootStats struct {
	Root      string
	FileCount int64
	TotalSize uint64
}

// ProgressFunc reports accumulation progress. total is the Index's
// live row count at the time the scan started, not the number of rows
// that will ultimately belong to root.
type ProgressFunc func(done, total int64)

// progressInterval mirrors the rollup builder's throttling: report no
// more often than every 2048 rows.
const progressInterval = 2048

// Compute reduces every live entry under root into a RootStats. It
// blocks until the underlying query completes.
func Compute(ix *index.Index, root string, progress ProgressFunc) RootStats {
	result := RootStats{Root: root}
	total := int64(ix.Len())
	var seen int64

	done := make(chan struct{})
	ix.Query("", index.Substring, func(_ uint64, e entry.Entry) {
		seen++
		if e.Parent == root {
			result.FileCount++
			result.TotalSize += e.Size
		}
		if progress != nil && seen%progressInterval == 0 {
			progress(seen, total)
		}
	}, func() {
		close(done)
	})
	<-done

	if progress != nil {
		progress(total, total)
	}
	return result
}
