// Package journal implements the Change Journal Replayer (spec
// §4.5): it consumes change-journal records from a checkpoint and
// translates them into Path Store operations, bridging the gap
// between a cold acquisition (Walker or Volume Reader) and a live,
// continuously-updated index.
package journal

import (
	"context"

	"github.com/wizmini/wizmini/internal/logger"
)

var l = logger.DefaultLogger.NewFacility("journal", "change journal replay")

// Reason is the event mask one journal record carries (spec §4.5).
type Reason uint32

const (
	Created Reason = 1 << iota
	Modified
	RenamedOld
	RenamedNew
	Deleted
)

// Record is one change-journal entry, already demultiplexed from
// whatever wire format the Source uses.
type Record struct {
	FileRef       uint64
	ParentFileRef uint64
	Name          string
	Reason        Reason
	Seq           uint64
	EventTimeMs   int64
}

// Source produces batches of change-journal records. A raw
// FSCTL_READ_USN_JOURNAL source and a notify-based poll-mode source
// both implement it (spec §4.5, §6 watch_status modes).
type Source interface {
	// Next blocks until at least one record is ready or ctx is
	// done. Returning wizerr.JournalInvalidated signals the journal
	// wrapped or was reset and a full re-acquisition is required.
	Next(ctx context.Context) ([]Record, error)
	// Mode reports "journal" or "poll" for watch_status (spec §6).
	Mode() string
	Close() error
}
