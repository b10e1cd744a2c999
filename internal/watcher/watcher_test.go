package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kchojnowski/locatefs/internal/entry"
)

// fakeIndex records the mutations the Watcher applies, without the
// concurrency machinery of the real Index (tested on its own).
type fakeIndex struct {
	mu      sync.Mutex
	entries map[entry.Key]entry.Entry
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: make(map[entry.Key]entry.Entry)}
}

func (f *fakeIndex) Insert(e entry.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.Key()] = e
	return nil
}

func (f *fakeIndex) InsertMany(entries []entry.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		f.entries[e.Key()] = e
	}
	return nil
}

func (f *fakeIndex) RemoveOne(name, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, entry.Key{Name: name, Path: path})
	return nil
}

func (f *fakeIndex) RemoveByPath(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, e := range f.entries {
		if e.Path == path || len(e.Path) > len(path) && e.Path[:len(path)+1] == path+"/" {
			delete(f.entries, k)
		}
	}
	return nil
}

func (f *fakeIndex) has(name, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[entry.Key{Name: name, Path: path}]
	return ok
}

func (f *fakeIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not satisfied within %s", timeout)
}

func TestWatcherObservesCreate(t *testing.T) {
	root := t.TempDir()
	idx := newFakeIndex()
	w := New(zerolog.Nop(), idx, DefaultOptions())
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()
	if err := w.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "new.md"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	waitFor(t, time.Second, func() bool { return idx.has("new.md", root) })
}

func TestWatcherObservesDelete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "old.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	idx := newFakeIndex()
	idx.Insert(entry.Entry{Name: "old.txt", Path: root, Parent: root})

	w := New(zerolog.Nop(), idx, DefaultOptions())
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()
	if err := w.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	waitFor(t, time.Second, func() bool { return !idx.has("old.txt", root) })
}

func TestWatcherObservesDirectoryMoveIn(t *testing.T) {
	root := t.TempDir()
	external := t.TempDir()
	if err := os.WriteFile(filepath.Join(external, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(external, "b.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	idx := newFakeIndex()
	w := New(zerolog.Nop(), idx, DefaultOptions())
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()
	if err := w.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}

	dest := filepath.Join(root, "moved")
	if err := os.Rename(external, dest); err != nil {
		t.Fatalf("rename: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return idx.has("a.txt", dest) && idx.has("b.txt", dest)
	})
}

func TestWatchIsIdempotent(t *testing.T) {
	root := t.TempDir()
	idx := newFakeIndex()
	w := New(zerolog.Nop(), idx, DefaultOptions())
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if err := w.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := w.Watch(root); err != nil {
		t.Fatalf("repeated watch should be a no-op, got: %v", err)
	}
}

func TestUnwatchStopsFurtherDelivery(t *testing.T) {
	root := t.TempDir()
	idx := newFakeIndex()
	w := New(zerolog.Nop(), idx, DefaultOptions())
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()
	if err := w.Watch(root); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := w.Unwatch(root); err != nil {
		t.Fatalf("unwatch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "after.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if idx.has("after.txt", root) {
		t.Fatalf("expected no index update after unwatch")
	}
}
