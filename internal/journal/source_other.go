//go:build !windows

package journal

import (
	"github.com/wizmini/wizmini/internal/volume"
)

// NewSource always returns the poll-mode Source on platforms with no
// raw change-journal access; cp seeds its synthetic sequence counter
// so a resumed checkpoint continues rather than restarting at 1.
func NewSource(root string, cp volume.Checkpoint, refs *volume.RefIndex) (Source, error) {
	return newPollSource(root, cp, refs)
}
