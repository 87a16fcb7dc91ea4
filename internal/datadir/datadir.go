// Package datadir manages the on-disk data directory: the current
// mirror tree, kept snapshots of past transfers, and the run lock.
package datadir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

const (
	// CurrentDir holds the mirror tree of the transfer in progress.
	CurrentDir = "current"

	// keepDir holds snapshots of completed transfers.
	keepDir = "data"

	lockFile = "data.lock"

	snapshotLayout = "20060102T150405"
)

// ErrLocked indicates another transfer is running against the same
// data directory.
var ErrLocked = errors.New("data directory is locked by another transfer")

// Current returns the path to the current mirror tree.
func Current(root string) string {
	return filepath.Join(root, CurrentDir)
}

// Create initializes the data directory layout, resetting any
// existing current tree.
func Create(root string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, keepDir), 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	return Reset(root)
}

// Reset clears and recreates the current mirror tree. Every run starts
// from a fresh tree; re-running against a populated one is undefined.
func Reset(root string) error {
	current := Current(root)

	info, err := os.Lstat(current)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		if err := os.Remove(current); err != nil {
			return fmt.Errorf("removing current symlink: %w", err)
		}
	case err == nil:
		if err := os.RemoveAll(current); err != nil {
			return fmt.Errorf("clearing current directory: %w", err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("inspecting current directory: %w", err)
	}

	if err := os.Mkdir(current, 0755); err != nil {
		return fmt.Errorf("creating current directory: %w", err)
	}
	return nil
}

// Snapshot moves the current mirror tree into the snapshot directory,
// prunes the oldest snapshots beyond keepMax (0 keeps all), and
// recreates an empty current tree. It returns the snapshot path.
func Snapshot(root string, keepMax int) (string, error) {
	stamp := time.Now().Format(snapshotLayout)
	dest := filepath.Join(root, keepDir, stamp)

	if err := os.Rename(Current(root), dest); err != nil {
		return "", fmt.Errorf("snapshotting transfer: %w", err)
	}
	if err := os.Mkdir(Current(root), 0755); err != nil {
		return "", fmt.Errorf("recreating current directory: %w", err)
	}

	if keepMax > 0 {
		if err := prune(root, keepMax); err != nil {
			return "", err
		}
	}
	return dest, nil
}

// prune removes the oldest snapshots until at most keepMax remain.
// Snapshot names are timestamps, so lexical order is age order.
func prune(root string, keepMax int) error {
	entries, err := os.ReadDir(filepath.Join(root, keepDir))
	if err != nil {
		return fmt.Errorf("listing snapshots: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for len(names) > keepMax {
		victim := filepath.Join(root, keepDir, names[0])
		if err := os.RemoveAll(victim); err != nil {
			return fmt.Errorf("pruning snapshot %s: %w", names[0], err)
		}
		names = names[1:]
	}
	return nil
}

// Lock acquires the data directory's run lock. It fails immediately
// with ErrLocked if another process holds it. The caller must Unlock.
func Lock(root string) (*flock.Flock, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	lock := flock.New(filepath.Join(root, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring data directory lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock, nil
}
