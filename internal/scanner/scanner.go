// Package scanner owns the user's root paths and performs bulk
// recursive enumeration into the Index.
package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kchojnowski/locatefs/internal/entry"
)

// AddResult is the outcome of addRoot.
type AddResult int

const (
	Ok AddResult = iota
	DoesNotExist
	NotDirectory
	AlreadyAdded
	ParentAlreadyAdded
)

func (r AddResult) String() string {
	switch r {
	case Ok:
		return "ok"
	case DoesNotExist:
		return "does not exist"
	case NotDirectory:
		return "not a directory"
	case AlreadyAdded:
		return "already added"
	case ParentAlreadyAdded:
		return "parent already added"
	default:
		return "unknown"
	}
}

// Inserter is the capability the Scanner needs from the Index. Holding
// only this narrow interface (rather than a pointer back into the full
// Index) means the Scanner never outlives, and never depends on, the
// rest of the Index API.
type Inserter interface {
	InsertMany(entries []entry.Entry) error
	RemoveByRoot(parent string) error
}

// Scanner owns the ordered list of roots and drives a dispatcher plus
// one walk goroutine per actively-walked root.
type Scanner struct {
	log   zerolog.Logger
	index Inserter
	opts  Options

	mu      sync.Mutex
	cond    *sync.Cond
	roots   []string
	queued  map[string]bool
	queue   []string
	running bool
	walking map[string]bool

	wg sync.WaitGroup
}

// New creates a Scanner bound to the given Index capability.
func New(log zerolog.Logger, index Inserter, opts Options) *Scanner {
	s := &Scanner{
		log:     log.With().Str("component", "scanner").Logger(),
		index:   index,
		opts:    opts,
		queued:  make(map[string]bool),
		walking: make(map[string]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// AddRoot validates and registers a new root. If the scanner is
// running, the path is enqueued for immediate walking.
func (s *Scanner) AddRoot(path string) AddResult {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return DoesNotExist
	}
	if !info.IsDir() {
		return NotDirectory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.roots {
		if r == path {
			return AlreadyAdded
		}
		if s.opts.RejectNestedRoots && (isAncestor(r, path) || isAncestor(path, r)) {
			return ParentAlreadyAdded
		}
	}

	s.roots = append(s.roots, path)
	if s.running {
		s.enqueueLocked(path)
	}
	return Ok
}

// RemoveRoot unregisters a root, dequeues it if still pending, and
// purges its entries from the Index. An in-flight walk for that root
// detects the removal and aborts at the next directory boundary.
func (s *Scanner) RemoveRoot(path string) bool {
	path = filepath.Clean(path)

	s.mu.Lock()
	found := false
	for i, r := range s.roots {
		if r == path {
			s.roots = append(s.roots[:i], s.roots[i+1:]...)
			found = true
			break
		}
	}
	if found {
		delete(s.queued, path)
		newQueue := s.queue[:0]
		for _, p := range s.queue {
			if p != path {
				newQueue = append(newQueue, p)
			}
		}
		s.queue = newQueue
	}
	s.mu.Unlock()

	if !found {
		return false
	}
	if err := s.index.RemoveByRoot(path); err != nil {
		s.log.Debug().Err(err).Str("root", path).Msg("remove by root failed")
		return false
	}
	return true
}

// Paths returns a snapshot of the current roots.
func (s *Scanner) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out
}

// Start is idempotent: it marks the scanner running, enqueues every
// known root, and launches the dispatcher worker.
func (s *Scanner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	for _, r := range s.roots {
		s.enqueueLocked(r)
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatch()
}

// Stop marks the scanner not-running, wakes the dispatcher, and joins
// it and every spawned walk worker.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scanner) enqueueLocked(path string) {
	if s.queued[path] {
		return
	}
	s.queued[path] = true
	s.queue = append(s.queue, path)
	s.cond.Signal()
}

// dispatch waits for work or the stop flag, draining the queue and
// spawning one walk worker per path each time it wakes.
func (s *Scanner) dispatch() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && s.running {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && !s.running {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		for _, p := range batch {
			delete(s.queued, p)
			s.walking[p] = true
		}
		s.mu.Unlock()

		for _, root := range batch {
			s.wg.Add(1)
			go func(root string) {
				defer s.wg.Done()
				defer s.markDoneWalking(root)
				w := newWalker(s.log, s.index, s.opts, root, s.isRunning, s.isRegistered)
				w.run()
			}(root)
		}
	}
}

func (s *Scanner) markDoneWalking(root string) {
	s.mu.Lock()
	delete(s.walking, root)
	s.mu.Unlock()
}

func (s *Scanner) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Idle reports whether the dispatcher queue is empty and no root is
// currently being walked. Callers that need a point-in-time "bulk
// enumeration has settled" signal, such as a one-shot CLI command,
// poll this rather than being notified of completion.
func (s *Scanner) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0 && len(s.walking) == 0
}

func (s *Scanner) isRegistered(root string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roots {
		if r == root {
			return true
		}
	}
	return false
}

func isAncestor(ancestor, path string) bool {
	if ancestor == path {
		return false
	}
	return strings.HasPrefix(path, ancestor+string(filepath.Separator))
}
