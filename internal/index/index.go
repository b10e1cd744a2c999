// Package index holds the in-memory, concurrently-accessed table of
// file entries at the heart of the locator. It replaces what the
// original implementation did with an in-process SQLite table and a
// custom regexp() SQL function: a plain append-only slice, a pair of
// secondary lookup maps, and a straight predicate call for matching.
package index

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kchojnowski/locatefs/internal/entry"
)

// Mode selects how a query's pattern is evaluated against entry names.
type Mode int

const (
	// Substring matches entries whose name contains pattern.
	Substring Mode = iota
	// Regex matches entries whose name matches pattern as a regular
	// expression. A pattern that fails to compile yields zero rows
	// rather than an error.
	Regex
)

// ErrCapacity is returned by Insert/InsertMany on internal allocation
// failure. It is not expected to occur in practice.
var ErrCapacity = errors.New("index: capacity exceeded")

// maxEntries bounds the table so a pathological caller cannot exhaust
// memory through a single runaway insert; this is the only source of
// ErrCapacity.
const maxEntries = 1 << 30

// row is one slot in the entries table. A tombstoned row has been
// logically deleted but keeps its slot until the next compaction so
// that row indices referenced from the secondary maps stay valid.
type row struct {
	entry      entry.Entry
	tombstoned bool
}

// Index is a thread-safe, insertion-ordered table of file entries.
type Index struct {
	log zerolog.Logger

	mu      sync.RWMutex
	rows    []row
	byKey   map[entry.Key]int            // entry.Key -> row index, for removeOne
	byRoot  map[string]map[int]struct{}  // parent -> set of row indices
	live    int                          // count of non-tombstoned rows, for compaction heuristics
	tombs   int

	seq      atomic.Uint64
	queryMu  sync.Mutex // serializes Query/CancelQuery against each other
	current  *queryRun
}

// queryRun tracks one in-flight (or just-finished) query.
type queryRun struct {
	seq       uint64
	cancelled atomic.Bool
	done      chan struct{}
}

// New creates an empty Index.
func New(log zerolog.Logger) *Index {
	return &Index{
		log:    log.With().Str("component", "index").Logger(),
		byKey:  make(map[entry.Key]int),
		byRoot: make(map[string]map[int]struct{}),
	}
}

// Insert appends one entry. It is idempotent on (name, path): a
// duplicate key replaces the row in place rather than adding a second
// visible entry, satisfying I4.
func (ix *Index) Insert(e entry.Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.insertLocked(e)
}

// InsertMany appends a batch of entries as a single atomic step: a
// concurrent query sees either none of the new rows or all of them,
// and one started after the call returns sees all of them. Internally
// this is just "hold the write lock for the whole batch" since the
// table is in-memory. A batch that would not fit under maxEntries is
// rejected whole with ErrCapacity before any row is added, so no
// partial batch is ever left behind.
func (ix *Index) InsertMany(entries []entry.Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if len(ix.rows)+len(entries) > maxEntries {
		return ErrCapacity
	}
	for _, e := range entries {
		if err := ix.insertLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) insertLocked(e entry.Entry) error {
	if len(ix.rows) >= maxEntries {
		return ErrCapacity
	}
	key := e.Key()
	if i, ok := ix.byKey[key]; ok && !ix.rows[i].tombstoned {
		old := ix.rows[i].entry
		ix.rows[i].entry = e
		if old.Parent != e.Parent {
			ix.removeFromRootLocked(old.Parent, i)
			ix.addToRootLocked(e.Parent, i)
		}
		return nil
	}

	idx := len(ix.rows)
	ix.rows = append(ix.rows, row{entry: e})
	ix.byKey[key] = idx
	ix.addToRootLocked(e.Parent, idx)
	ix.live++
	ix.maybeCompactLocked()
	return nil
}

func (ix *Index) addToRootLocked(parent string, idx int) {
	set, ok := ix.byRoot[parent]
	if !ok {
		set = make(map[int]struct{})
		ix.byRoot[parent] = set
	}
	set[idx] = struct{}{}
}

func (ix *Index) removeFromRootLocked(parent string, idx int) {
	if set, ok := ix.byRoot[parent]; ok {
		delete(set, idx)
		if len(set) == 0 {
			delete(ix.byRoot, parent)
		}
	}
}

// RemoveOne deletes every entry with matching (name, path). Zero or
// one row matches in practice; deletion is idempotent.
func (ix *Index) RemoveOne(name, path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	key := entry.Key{Name: name, Path: path}
	i, ok := ix.byKey[key]
	if !ok || ix.rows[i].tombstoned {
		return nil
	}
	ix.tombstoneLocked(i)
	delete(ix.byKey, key)
	return nil
}

// RemoveByRoot deletes every entry whose parent equals the given root.
func (ix *Index) RemoveByRoot(parent string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	set := ix.byRoot[parent]
	for i := range set {
		if ix.rows[i].tombstoned {
			continue
		}
		delete(ix.byKey, ix.rows[i].entry.Key())
		ix.tombstoneLocked(i)
	}
	delete(ix.byRoot, parent)
	return nil
}

// RemoveByPath deletes every entry whose directory path equals or is
// rooted under the given path.
func (ix *Index) RemoveByPath(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range ix.rows {
		if ix.rows[i].tombstoned {
			continue
		}
		p := ix.rows[i].entry.Path
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(ix.byKey, ix.rows[i].entry.Key())
			ix.removeFromRootLocked(ix.rows[i].entry.Parent, i)
			ix.tombstoneLocked(i)
		}
	}
	return nil
}

func (ix *Index) tombstoneLocked(i int) {
	ix.rows[i].tombstoned = true
	ix.rows[i].entry = entry.Entry{}
	ix.live--
	ix.tombs++
}

// maybeCompactLocked rebuilds the table once tombstones dominate it,
// bounding the amount of dead weight a long-lived watcher session
// accumulates. Caller holds mu.
func (ix *Index) maybeCompactLocked() {
	if len(ix.rows) < 4096 || ix.tombs*2 < len(ix.rows) {
		return
	}
	fresh := make([]row, 0, ix.live)
	byKey := make(map[entry.Key]int, ix.live)
	byRoot := make(map[string]map[int]struct{})
	for _, r := range ix.rows {
		if r.tombstoned {
			continue
		}
		idx := len(fresh)
		fresh = append(fresh, r)
		byKey[r.entry.Key()] = idx
		set, ok := byRoot[r.entry.Parent]
		if !ok {
			set = make(map[int]struct{})
			byRoot[r.entry.Parent] = set
		}
		set[idx] = struct{}{}
	}
	ix.rows = fresh
	ix.byKey = byKey
	ix.byRoot = byRoot
	ix.tombs = 0
	ix.log.Debug().Int("rows", len(fresh)).Msg("compacted index")
}

// Len reports the number of live entries. Intended for tests and
// diagnostics, not part of the core query surface.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.live
}

// Query starts a streaming scan and returns its sequence number. It
// first cancels and joins any in-flight query (only one runs at a
// time), then spawns a new search goroutine that copies the table
// under one short read lock and scans that copy, so writers are not
// blocked for the duration of a scan.
//
// onRow is invoked for each match with the query's sequence number;
// onDone is invoked exactly once, whether the scan completed or was
// cancelled. Both may be invoked from the query goroutine; callers
// that need another thread must marshal there themselves.
func (ix *Index) Query(pattern string, mode Mode, onRow func(seq uint64, e entry.Entry), onDone func()) uint64 {
	ix.queryMu.Lock()
	defer ix.queryMu.Unlock()

	ix.cancelCurrentLocked()

	seq := ix.seq.Add(1)
	run := &queryRun{seq: seq, done: make(chan struct{})}
	ix.current = run

	matcher, ok := ix.compileMatcher(pattern, mode)
	go ix.runQuery(run, matcher, ok, onRow, onDone)
	return seq
}

// CancelQuery requests any in-flight query to terminate at the next
// row boundary and blocks until it has done so.
func (ix *Index) CancelQuery() {
	ix.queryMu.Lock()
	defer ix.queryMu.Unlock()
	ix.cancelCurrentLocked()
}

func (ix *Index) cancelCurrentLocked() {
	run := ix.current
	if run == nil {
		return
	}
	run.cancelled.Store(true)
	<-run.done
}

func (ix *Index) compileMatcher(pattern string, mode Mode) (func(string) bool, bool) {
	switch mode {
	case Regex:
		re, err := regexp.Compile(pattern)
		if err != nil {
			ix.log.Debug().Err(err).Str("pattern", pattern).Msg("malformed regex, query yields no rows")
			return nil, false
		}
		return re.MatchString, true
	default:
		return func(name string) bool { return strings.Contains(name, pattern) }, true
	}
}

func (ix *Index) runQuery(run *queryRun, matcher func(string) bool, ok bool, onRow func(uint64, entry.Entry), onDone func()) {
	defer close(run.done)
	defer onDone()

	if !ok {
		return
	}

	// Snapshot the table once under a single read lock rather than
	// re-acquiring mu per row: a concurrent maybeCompactLocked rebuilds
	// ix.rows into a shorter, re-indexed slice, and continuing a
	// per-row lock/unlock loop at a stale integer index into that new
	// slice can skip or re-deliver rows. Copying the rows up front
	// means the scan only ever reads its own snapshot.
	ix.mu.RLock()
	snapshot := make([]row, len(ix.rows))
	copy(snapshot, ix.rows)
	ix.mu.RUnlock()

	for _, r := range snapshot {
		if run.cancelled.Load() {
			return
		}
		if r.tombstoned {
			continue
		}
		if matcher(r.entry.Name) {
			onRow(run.seq, r.entry)
		}
	}
}
