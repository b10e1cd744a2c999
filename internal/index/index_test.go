package index

import (
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kchojnowski/locatefs/internal/entry"
)

func newTestIndex() *Index {
	return New(zerolog.Nop())
}

func collect(ix *Index, pattern string, mode Mode) ([]entry.Entry, uint64) {
	var mu sync.Mutex
	var got []entry.Entry
	doneCh := make(chan struct{})
	seq := ix.Query(pattern, mode, func(_ uint64, e entry.Entry) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}, func() {
		close(doneCh)
	})
	<-doneCh
	return got, seq
}

func TestInsertAndSubstringQuery(t *testing.T) {
	ix := newTestIndex()
	if err := ix.InsertMany([]entry.Entry{
		{Name: "x.txt", Path: "/root/a", Parent: "/root"},
		{Name: "y.txt", Path: "/root/a/b", Parent: "/root"},
		{Name: "z.log", Path: "/root/a/b", Parent: "/root"},
	}); err != nil {
		t.Fatalf("insert many: %v", err)
	}

	got, _ := collect(ix, "y", Substring)
	if len(got) != 1 || got[0].Name != "y.txt" || got[0].Path != "/root/a/b" || got[0].Parent != "/root" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestEmptyPatternMatchesEverything(t *testing.T) {
	ix := newTestIndex()
	ix.Insert(entry.Entry{Name: "a", Path: "/r", Parent: "/r"})
	ix.Insert(entry.Entry{Name: "b", Path: "/r", Parent: "/r"})

	got, _ := collect(ix, "", Substring)
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
}

func TestMalformedRegexYieldsNoRows(t *testing.T) {
	ix := newTestIndex()
	ix.Insert(entry.Entry{Name: "a", Path: "/r", Parent: "/r"})

	got, _ := collect(ix, "(unterminated", Regex)
	if len(got) != 0 {
		t.Fatalf("expected zero rows, got %d", len(got))
	}
}

func TestRegexFullMatch(t *testing.T) {
	ix := newTestIndex()
	ix.Insert(entry.Entry{Name: "report_2024.csv", Path: "/r", Parent: "/r"})
	ix.Insert(entry.Entry{Name: "notes.txt", Path: "/r", Parent: "/r"})

	got, _ := collect(ix, `report_\d+\.csv`, Regex)
	if len(got) != 1 || got[0].Name != "report_2024.csv" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestInsertThenRemoveOneLeavesIndexUnchanged(t *testing.T) {
	ix := newTestIndex()
	before := ix.Len()

	e := entry.Entry{Name: "tmp", Path: "/r", Parent: "/r"}
	if err := ix.Insert(e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := ix.RemoveOne(e.Name, e.Path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if after := ix.Len(); after != before {
		t.Fatalf("expected len %d, got %d", before, after)
	}
}

func TestRemoveByRootPurgesOnlyThatRoot(t *testing.T) {
	ix := newTestIndex()
	ix.InsertMany([]entry.Entry{
		{Name: "a", Path: "/r1", Parent: "/r1"},
		{Name: "b", Path: "/r1/sub", Parent: "/r1"},
		{Name: "c", Path: "/r2", Parent: "/r2"},
	})

	if err := ix.RemoveByRoot("/r1"); err != nil {
		t.Fatalf("remove by root: %v", err)
	}

	got, _ := collect(ix, "", Substring)
	for _, e := range got {
		if e.Parent == "/r1" {
			t.Fatalf("expected no rows with parent /r1, found %+v", e)
		}
	}
	if len(got) != 1 || got[0].Name != "c" {
		t.Fatalf("unexpected surviving rows: %+v", got)
	}
}

func TestRemoveByPathPurgesDescendants(t *testing.T) {
	ix := newTestIndex()
	ix.InsertMany([]entry.Entry{
		{Name: "a", Path: "/r/dir", Parent: "/r"},
		{Name: "b", Path: "/r/dir/sub", Parent: "/r"},
		{Name: "c", Path: "/r/other", Parent: "/r"},
	})

	if err := ix.RemoveByPath("/r/dir"); err != nil {
		t.Fatalf("remove by path: %v", err)
	}

	got, _ := collect(ix, "", Substring)
	if len(got) != 1 || got[0].Name != "c" {
		t.Fatalf("unexpected surviving rows: %+v", got)
	}
}

func TestRoundTripAddRemoveAddMatchesSingleInsert(t *testing.T) {
	fresh := newTestIndex()
	fresh.InsertMany([]entry.Entry{
		{Name: "x", Path: "/r/a", Parent: "/r"},
		{Name: "y", Path: "/r/b", Parent: "/r"},
	})

	roundTripped := newTestIndex()
	roundTripped.InsertMany([]entry.Entry{
		{Name: "x", Path: "/r/a", Parent: "/r"},
		{Name: "y", Path: "/r/b", Parent: "/r"},
	})
	roundTripped.RemoveByRoot("/r")
	roundTripped.InsertMany([]entry.Entry{
		{Name: "x", Path: "/r/a", Parent: "/r"},
		{Name: "y", Path: "/r/b", Parent: "/r"},
	})

	a, _ := collect(fresh, "", Substring)
	b, _ := collect(roundTripped, "", Substring)
	sort.Slice(a, func(i, j int) bool { return a[i].Name < a[j].Name })
	sort.Slice(b, func(i, j int) bool { return b[i].Name < b[j].Name })
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("entry %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestBackToBackQueriesDeliverFirstDoneBeforeSecondRow(t *testing.T) {
	ix := newTestIndex()
	entries := make([]entry.Entry, 0, 10000)
	for i := 0; i < 10000; i++ {
		entries = append(entries, entry.Entry{Name: "aaa", Path: "/r", Parent: "/r"})
	}
	ix.InsertMany(entries)

	var mu sync.Mutex
	var order []string

	firstDone := make(chan struct{})
	ix.Query("a", Substring, func(_ uint64, _ entry.Entry) {
		mu.Lock()
		order = append(order, "row1")
		mu.Unlock()
	}, func() {
		mu.Lock()
		order = append(order, "done1")
		mu.Unlock()
		close(firstDone)
	})

	secondDone := make(chan struct{})
	ix.Query("a", Substring, func(_ uint64, _ entry.Entry) {
		mu.Lock()
		order = append(order, "row2")
		mu.Unlock()
	}, func() {
		close(secondDone)
	})
	<-secondDone
	<-firstDone

	mu.Lock()
	defer mu.Unlock()
	sawDone1 := false
	for _, ev := range order {
		if ev == "done1" {
			sawDone1 = true
		}
		if ev == "row2" && !sawDone1 {
			t.Fatalf("second query delivered a row before first query's onDone: %v", order)
		}
	}
}

func TestMultibyteNameMatchesBytePrefix(t *testing.T) {
	ix := newTestIndex()
	ix.Insert(entry.Entry{Name: "café.txt", Path: "/r", Parent: "/r"})

	got, _ := collect(ix, "caf", Substring)
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
}

func TestDuplicateInsertIsIdempotent(t *testing.T) {
	ix := newTestIndex()
	e := entry.Entry{Name: "dup", Path: "/r", Parent: "/r", Size: 1}
	ix.Insert(e)
	e.Size = 2
	ix.Insert(e)

	got, _ := collect(ix, "dup", Substring)
	if len(got) != 1 {
		t.Fatalf("expected exactly one row for duplicate key, got %d", len(got))
	}
	if got[0].Size != 2 {
		t.Fatalf("expected latest insert to win, got size %d", got[0].Size)
	}
}
