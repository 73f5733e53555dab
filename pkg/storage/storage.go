// Package storage covers the disk side of the bot: listing library
// entries, guarded recursive deletion, and mount usage figures.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tinyland-inc/torrentclaw/pkg/logger"
)

// ErrOutsideRoot is returned when a delete target escapes its library
// root. A candidate reference carrying such a path is either a
// misconfiguration or an attempted traversal; it is never acted on.
var ErrOutsideRoot = errors.New("path escapes the configured library root")

// Entry is one file or directory directly under a library root.
type Entry struct {
	Path      string
	Name      string
	IsDir     bool
	SizeBytes int64
}

// ListEntries lists the immediate children of root, skipping hidden
// files, sorted by name.
func ListEntries(root string) ([]Entry, error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), ".") {
			continue
		}
		e := Entry{
			Path:  filepath.Join(root, d.Name()),
			Name:  d.Name(),
			IsDir: d.IsDir(),
		}
		if info, err := d.Info(); err == nil && !d.IsDir() {
			e.SizeBytes = info.Size()
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Delete recursively removes path. The path must be strictly contained
// under root; the root itself is not deletable.
func Delete(path, root string) error {
	if err := checkContained(path, root); err != nil {
		logger.WarnCF("storage", "delete rejected", map[string]any{
			"path": path,
			"root": root,
		})
		return err
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}

	logger.InfoCF("storage", "deleted", map[string]any{"path": path})
	return nil
}

// checkContained resolves both paths and requires target to be a proper
// descendant of root, defeating ".." traversal in candidate references.
func checkContained(target, root string) error {
	if root == "" {
		return ErrOutsideRoot
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil {
		return ErrOutsideRoot
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrOutsideRoot
	}
	return nil
}
