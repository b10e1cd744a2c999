// Package ignore wraps .locatefsignore files (gitignore syntax) so the
// Scanner and Watcher can skip paths under a root without either of
// them knowing the pattern syntax themselves.
package ignore

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName is the ignore file a root may carry at its top level.
const FileName = ".locatefsignore"

// Matcher reports whether a path relative to a root should be skipped.
type Matcher interface {
	Match(relPath string) bool
}

type noop struct{}

func (noop) Match(string) bool { return false }

// None is a Matcher that never excludes anything.
var None Matcher = noop{}

type gitignoreMatcher struct {
	gi *gitignore.GitIgnore
}

func (m gitignoreMatcher) Match(relPath string) bool {
	return m.gi.MatchesPath(filepath.ToSlash(relPath))
}

// Load reads root/.locatefsignore if present and returns a Matcher for
// it. A missing file is not an error: it yields None.
func Load(root string) (Matcher, error) {
	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return None, nil
		}
		return None, err
	}
	gi, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return None, err
	}
	return gitignoreMatcher{gi: gi}, nil
}

// RelPath returns path relative to root using forward slashes, for
// passing to Matcher.Match. It returns path unchanged if it cannot be
// made relative.
func RelPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
