// Package orchestrator is the thin driver exposed to external UIs and
// CLIs: it wires root paths into the Scanner and Watcher, exposes the
// query entry point, and drives graceful shutdown.
package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kchojnowski/locatefs/internal/entry"
	"github.com/kchojnowski/locatefs/internal/index"
	"github.com/kchojnowski/locatefs/internal/scanner"
	"github.com/kchojnowski/locatefs/internal/watcher"
)

// DefaultDebounce is the keystroke-driven-search debounce window.
const DefaultDebounce = 200 * time.Millisecond

// Options configures the Orchestrator and the components it owns.
type Options struct {
	Scanner  scanner.Options
	Watcher  watcher.Options
	Debounce time.Duration
}

// DefaultOptions returns the spec-mandated defaults for every owned
// component.
func DefaultOptions() Options {
	return Options{
		Scanner:  scanner.DefaultOptions(),
		Watcher:  watcher.DefaultOptions(),
		Debounce: DefaultDebounce,
	}
}

// Orchestrator constructs and owns the Index, Scanner, and Watcher,
// and is the only entry point external callers use.
type Orchestrator struct {
	log zerolog.Logger

	Index   *index.Index
	scanner *scanner.Scanner
	watcher *watcher.Watcher

	debounce time.Duration

	mu      sync.Mutex
	started bool
	pending *time.Timer
}

// New constructs the Index, Scanner, and Watcher in that order, wiring
// each producer to the Index through the narrow capability interface
// it actually needs.
func New(log zerolog.Logger, opts Options) *Orchestrator {
	idx := index.New(log)
	s := scanner.New(log, idx, opts.Scanner)
	w := watcher.New(log, idx, opts.Watcher)
	return &Orchestrator{
		log:      log.With().Str("component", "orchestrator").Logger(),
		Index:    idx,
		scanner:  s,
		watcher:  w,
		debounce: opts.Debounce,
	}
}

// AddRoot validates and registers path with both the Scanner and the
// Watcher. If the Scanner accepts the root but the Watcher fails to
// register it, the root is rolled back out of the Scanner so the two
// never disagree about what is registered.
func (o *Orchestrator) AddRoot(path string) (scanner.AddResult, error) {
	res := o.scanner.AddRoot(path)
	if res != scanner.Ok {
		return res, nil
	}

	o.mu.Lock()
	started := o.started
	o.mu.Unlock()
	if !started {
		return res, nil
	}

	if err := o.watcher.Watch(path); err != nil {
		o.scanner.RemoveRoot(path)
		return res, fmt.Errorf("orchestrator: watcher registration failed, root rolled back: %w", err)
	}
	return res, nil
}

// RemoveRoot unregisters path from both the Scanner and the Watcher.
func (o *Orchestrator) RemoveRoot(path string) bool {
	ok := o.scanner.RemoveRoot(path)
	if err := o.watcher.Unwatch(path); err != nil {
		o.log.Debug().Err(err).Str("root", path).Msg("unwatch failed")
	}
	return ok
}

// Paths returns a snapshot of the currently registered roots.
func (o *Orchestrator) Paths() []string {
	return o.scanner.Paths()
}

// Idle reports whether the Scanner's bulk enumeration has settled:
// its dispatch queue is empty and no root is currently being walked.
func (o *Orchestrator) Idle() bool {
	return o.scanner.Idle()
}

// Start opens the Watcher's notification object, extends it over
// every already-registered root, and starts the Scanner's dispatcher.
// A root the Watcher fails to register is rolled back out of the
// Scanner, as in AddRoot. A failure to open the notification object is a fatal initialization
// error: callers are expected to terminate the process on it.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.mu.Unlock()

	if err := o.watcher.Start(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	for _, p := range o.scanner.Paths() {
		if err := o.watcher.Watch(p); err != nil {
			o.log.Debug().Err(err).Str("root", p).Msg("failed to watch pre-registered root, root rolled back")
			o.scanner.RemoveRoot(p)
		}
	}
	o.scanner.Start()
	return nil
}

// Stop tears everything down in reverse construction order: Watcher,
// then Scanner. The Index itself owns no external resources and needs
// no explicit shutdown.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.pending != nil {
		o.pending.Stop()
		o.pending = nil
	}
	o.mu.Unlock()

	o.watcher.Stop()
	o.scanner.Stop()
}

// Query delegates to the Index. When debounce is true, the actual
// query is deferred by the configured debounce window and superseded
// entirely by any later debounced call that arrives first — this is
// the hook a keystroke-driven UI uses so that typing doesn't spawn and
// immediately cancel a query per keystroke.
func (o *Orchestrator) Query(pattern string, mode index.Mode, onRow func(seq uint64, e entry.Entry), onDone func(), debounce bool) {
	if !debounce {
		o.Index.Query(pattern, mode, onRow, onDone)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending != nil {
		o.pending.Stop()
	}
	o.pending = time.AfterFunc(o.debounce, func() {
		o.Index.Query(pattern, mode, onRow, onDone)
	})
}

// CancelQuery cancels any in-flight query and any pending debounced
// query that has not yet fired.
func (o *Orchestrator) CancelQuery() {
	o.mu.Lock()
	if o.pending != nil {
		o.pending.Stop()
		o.pending = nil
	}
	o.mu.Unlock()
	o.Index.CancelQuery()
}
