//go:build !windows

package volume

import (
	"context"
	"fmt"
	"runtime"

	"github.com/wizmini/wizmini/internal/wizerr"
)

// stubReader is the Volume Reader on platforms with no supported
// file-reference table. It always reports JournalUnavailable so the
// Index Coordinator falls back to the Walker and marks the scope as
// having no live updates available (spec §4.4).
type stubReader struct{}

func newReader() Reader { return stubReader{} }

func (stubReader) Enumerate(ctx context.Context, cfg Config, refs *RefIndex) (Checkpoint, error) {
	l.Debugf("volume reader unavailable on %s, scope %s falls back to the walker", runtime.GOOS, cfg.Root)
	return Checkpoint{}, wizerr.New(wizerr.JournalUnavailable, "volume.Enumerate",
		fmt.Errorf("no file-reference table support on %s", runtime.GOOS))
}
