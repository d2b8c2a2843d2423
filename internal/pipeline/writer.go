package pipeline

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

// Change is what writing an output did (or, in a dry run, would do).
type Change int

const (
	Unchanged Change = iota
	Created
	Updated
	Removed
)

func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("Change(%d)", int(c))
}

// FileChange records one output path and what happened to it.
type FileChange struct {
	Path   string
	Change Change
	// Hash is the sha256 of the new content, hex encoded. Empty for
	// removals.
	Hash string
}

// Writer writes generated files only when their content differs from what
// is on disk, so untouched outputs keep their modification time.
type Writer struct {
	// DryRun computes changes without touching the filesystem.
	DryRun  bool
	changes []FileChange
}

func hashOf(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// Write stores content at path unless the file already holds it.
func (w *Writer) Write(path string, content []byte) (Change, error) {
	hash := hashOf(content)
	change := Created
	existing, err := os.ReadFile(path)
	switch {
	case err == nil && bytes.Equal(existing, content):
		change = Unchanged
	case err == nil:
		change = Updated
	case !errors.Is(err, fs.ErrNotExist):
		return 0, bgerr.IO(bgerr.StageEmit, path, err)
	}
	w.changes = append(w.changes, FileChange{Path: path, Change: change, Hash: hash})
	if change == Unchanged || w.DryRun {
		return change, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, bgerr.IO(bgerr.StageEmit, filepath.Dir(path), err)
	}
	// Write to a sibling and rename so readers never see a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return 0, bgerr.IO(bgerr.StageEmit, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, bgerr.IO(bgerr.StageEmit, path, err)
	}
	return change, nil
}

// Prune removes files under dir that end in suffix and were not written
// by this Writer. A missing dir is not an error.
func (w *Writer) Prune(dir, suffix string) error {
	keep := make(map[string]bool, len(w.changes))
	for _, c := range w.changes {
		keep[filepath.Clean(c.Path)] = true
	}

	var stale []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, suffix) && !keep[filepath.Clean(path)] {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return bgerr.IO(bgerr.StageEmit, dir, err)
	}

	sort.Strings(stale)
	for _, path := range stale {
		w.changes = append(w.changes, FileChange{Path: path, Change: Removed})
		if w.DryRun {
			continue
		}
		if err := os.Remove(path); err != nil {
			return bgerr.IO(bgerr.StageEmit, path, err)
		}
	}
	return nil
}

// Changes lists every path handled so far, in the order handled.
func (w *Writer) Changes() []FileChange {
	return w.changes
}

// Dirty reports whether any output was or would be modified.
func (w *Writer) Dirty() bool {
	for _, c := range w.changes {
		if c.Change != Unchanged {
			return true
		}
	}
	return false
}
