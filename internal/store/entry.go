package store

import "strings"

// EntryID is the position of an Entry within a Store's entries
// sequence, stable for the lifetime of the Store (spec §3). It is
// invalidated only by a snapshot reload or a full rebuild, never by
// delta application.
type EntryID int

// Entry is the atomic indexed record (spec §3). The filename
// component is derived on demand from Path rather than stored, an
// explicit memory-density decision.
type Entry struct {
	Path string
	Size uint64
	// MtimeMs is the last-modification time as Unix milliseconds; 0
	// if unknown.
	MtimeMs int64
	// ChangeRef is the change-journal sequence number at which this
	// entry was last touched, used for /latest filtering. 0 means
	// no change journal has ever touched this entry.
	ChangeRef uint64
}

// HasChangeRef reports whether the Change Journal Replayer has ever
// set a sequence number on this entry.
func (e Entry) HasChangeRef() bool { return e.ChangeRef != 0 }

// Name returns the filename component of e.Path, the part after the
// last path separator ('/' or '\', to stay OS-native-string agnostic
// regardless of which platform produced the path).
func (e Entry) Name() string {
	return baseName(e.Path)
}

func baseName(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return path
	}
	return path[i+1:]
}

// approxBytes estimates this entry's contribution to bytes_estimate
// (spec §3): the path string dominates, plus a fixed struct overhead.
func (e Entry) approxBytes() int64 {
	return int64(len(e.Path)) + 48
}
