// Package walker implements the fallback acquisition strategy (spec
// §4.3): a recursive directory traversal that emits entries in
// cooperative, cancellable batches when the Volume Reader is
// unavailable or unsupported.
package walker

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/wizmini/wizmini/internal/logger"
)

var l = logger.DefaultLogger.NewFacility("walker", "recursive directory traversal")

// Entry is the subset of the Path Store's data model the Walker can
// populate; it never sets a change reference (spec §4.3).
type Entry struct {
	Path    string
	Size    uint64
	MtimeMs int64
}

// Config tunes one Walk call.
type Config struct {
	// Root is the directory to traverse.
	Root string
	// BatchSize bounds how many entries accumulate before OnBatch is
	// invoked, the Walker's suspension/cancellation granularity
	// (spec §4.3, §5).
	BatchSize int
	// OnBatch is called with each full (or final partial) batch. An
	// error return aborts the walk.
	OnBatch func([]Entry) error
}

// Walk traverses cfg.Root, calling cfg.OnBatch as entries accumulate,
// and checking ctx for cancellation between directory entries. Per
// path enumeration errors are logged and counted as
// RecoverableAcquisition (spec §7): traversal continues rather than
// aborting. Reparse points (symlinked directories) that resolve
// outside cfg.Root are skipped so the walk cannot leave the scope or
// loop forever.
func Walk(ctx context.Context, cfg Config) error {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return err
	}

	var batch []Entry
	var recoverable int

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := cfg.OnBatch(batch)
		batch = batch[:0]
		return err
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			recoverable++
			l.Debugf("recoverable acquisition error at %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && isReparsePointLeavingScope(path, root) {
				l.Debugf("skipping reparse point leaving scope: %s", path)
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			recoverable++
			l.Debugf("recoverable acquisition error stat-ing %s: %v", path, err)
			return nil
		}

		batch = append(batch, Entry{
			Path:    path,
			Size:    uint64(info.Size()),
			MtimeMs: info.ModTime().UnixMilli(),
		})
		if len(batch) >= cfg.BatchSize {
			return flush()
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	if err := flush(); err != nil {
		return err
	}
	if recoverable > 0 {
		l.Infof("walk of %s completed with %d recoverable errors", root, recoverable)
	}
	return nil
}

// isReparsePointLeavingScope reports whether path is a symlink (the
// portable analogue of a Windows reparse point) whose target resolves
// outside root.
func isReparsePointLeavingScope(path, root string) bool {
	fi, err := os.Lstat(path)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return false
	}
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return true
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
