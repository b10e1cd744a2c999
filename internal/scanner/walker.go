package scanner

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kchojnowski/locatefs/internal/entry"
	"github.com/kchojnowski/locatefs/internal/ignore"
)

// walker performs one root's recursive traversal. Non-directory
// entries are examined with os.Stat, not os.Lstat, so a symlink to a
// regular file is indexed as that file; a symlink to a directory is
// not descended into. Permission errors on individual entries are
// skipped rather than aborting the walk.
type walker struct {
	log        zerolog.Logger
	index      Inserter
	opts       Options
	root       string
	isRunning  func() bool
	registered func(string) bool

	matcher ignore.Matcher
	batch   []entry.Entry
}

func newWalker(log zerolog.Logger, index Inserter, opts Options, root string, isRunning func() bool, registered func(string) bool) *walker {
	return &walker{
		log:        log.With().Str("root", root).Logger(),
		index:      index,
		opts:       opts,
		root:       root,
		isRunning:  isRunning,
		registered: registered,
		matcher:    ignore.None,
		batch:      make([]entry.Entry, 0, opts.BatchSize),
	}
}

func (w *walker) run() {
	if w.opts.RespectIgnoreFiles {
		if m, err := ignore.Load(w.root); err != nil {
			w.log.Debug().Err(err).Msg("failed to load ignore file")
		} else {
			w.matcher = m
		}
	}

	stack := []string{w.root}
	for len(stack) > 0 {
		if !w.isRunning() || !w.registered(w.root) {
			w.flush()
			return
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := os.ReadDir(dir)
		if err != nil {
			w.log.Debug().Err(err).Str("dir", dir).Msg("readdir failed, skipping")
			continue
		}

		for _, de := range children {
			childPath := filepath.Join(dir, de.Name())
			rel := ignore.RelPath(w.root, childPath)
			if w.matcher.Match(rel) {
				continue
			}

			if de.IsDir() {
				stack = append(stack, childPath)
				continue
			}

			info, err := os.Stat(childPath)
			if err != nil {
				if os.IsPermission(err) {
					continue
				}
				w.log.Debug().Err(err).Str("path", childPath).Msg("stat failed, inserting with defaults")
				w.append(entry.Entry{
					Name:   de.Name(),
					Path:   dir,
					Parent: w.root,
				})
				continue
			}
			if !info.Mode().IsRegular() {
				continue
			}

			w.append(entry.Entry{
				Name:   de.Name(),
				Path:   dir,
				Parent: w.root,
				Size:   uint64(info.Size()),
				Perms:  entry.PermFromFileMode(info.Mode()),
			})
		}
	}

	w.flush()
}

func (w *walker) append(e entry.Entry) {
	w.batch = append(w.batch, e)
	if len(w.batch) >= w.opts.BatchSize {
		w.flush()
	}
}

func (w *walker) flush() {
	if len(w.batch) == 0 {
		return
	}
	if err := w.index.InsertMany(w.batch); err != nil {
		w.log.Debug().Err(err).Int("count", len(w.batch)).Msg("batch insert failed")
	}
	w.batch = w.batch[:0]
}
