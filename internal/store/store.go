// Package store implements the Path Store (spec §3, §4.1): the
// in-memory container of indexed entries plus the accelerator maps
// that make exact and short-prefix filename lookups fast.
//
// The entries slice is guarded by a short-held RWMutex (spec §5's
// "reader-writer lock held for short critical sections" option); the
// accelerator maps use puzpuzpuz/xsync's lock-free MapOf so
// concurrent readers never block the single writer goroutine, mirror
// ing the concurrent index structures syncthing's modern lib/db
// layer builds on the same library.
package store

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/wizmini/wizmini/internal/logger"
)

var l = logger.DefaultLogger.NewFacility("store", "in-memory path index")

func init() {
	l.SetDebug("store", false)
}

type slot struct {
	entry Entry
	alive bool
}

// DeltaCounts are the three counters surfaced on the status line
// (spec §3).
type DeltaCounts struct {
	Added   int64
	Updated int64
	Deleted int64
}

// Store is the Path Store for one active scope. It is mutated from
// exactly one thread (the Index Coordinator); every other consumer
// reads through a ReadHandle (spec §5).
type Store struct {
	prefixLen int

	mu      sync.RWMutex
	entries []slot
	free    []EntryID // reusable slot indices, owned by the writer

	exactByName  *xsync.MapOf[string, idSet]
	prefixByName *xsync.MapOf[string, idSet]

	changesMu     sync.RWMutex
	recentChanges []recentChange
	recentCap     int

	added   atomic.Int64
	updated atomic.Int64
	deleted atomic.Int64

	bytesEstimate atomic.Int64
}

type recentChange struct {
	id          EntryID
	eventTimeMs int64
}

// New constructs an empty Store. prefixLen is k from spec §3
// (prefix_by_name); recentCap bounds the recent_changes FIFO.
func New(prefixLen, recentCap int) *Store {
	if prefixLen < 1 {
		prefixLen = 3
	}
	if recentCap < 1 {
		recentCap = 4096
	}
	return &Store{
		prefixLen:    prefixLen,
		exactByName:  xsync.NewMapOf[string, idSet](),
		prefixByName: xsync.NewMapOf[string, idSet](),
		recentCap:    recentCap,
	}
}

// lowerASCII folds a filename for the exact/prefix accelerator maps.
// Names are NFC-normalized first so the same filename decomposed two
// different ways (e.g. precomposed vs. combining-mark é) still lands
// on one key, then case-folded, matching how the examples' own
// directory scanner checks filenames against norm.NFC before relying
// on them for identity.
func lowerASCII(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

func (s *Store) prefixKey(name string) string {
	if len(name) <= s.prefixLen {
		return name
	}
	return name[:s.prefixLen]
}

func (s *Store) addAccelerators(id EntryID, name string) {
	lower := lowerASCII(name)
	s.exactByName.Compute(lower, func(old idSet, loaded bool) (idSet, bool) {
		return old.with(id), false
	})
	key := s.prefixKey(lower)
	s.prefixByName.Compute(key, func(old idSet, loaded bool) (idSet, bool) {
		return old.with(id), false
	})
}

func (s *Store) removeAccelerators(id EntryID, name string) {
	lower := lowerASCII(name)
	s.exactByName.Compute(lower, func(old idSet, loaded bool) (idSet, bool) {
		next := old.without(id)
		return next, len(next) == 0
	})
	key := s.prefixKey(lower)
	s.prefixByName.Compute(key, func(old idSet, loaded bool) (idSet, bool) {
		next := old.without(id)
		return next, len(next) == 0
	})
}

// Insert appends a new live entry and returns its id (spec §4.1).
func (s *Store) Insert(path string, size uint64, mtimeMs int64) EntryID {
	e := Entry{Path: path, Size: size, MtimeMs: mtimeMs}

	s.mu.Lock()
	var id EntryID
	if n := len(s.free); n > 0 {
		id = s.free[n-1]
		s.free = s.free[:n-1]
		s.entries[id] = slot{entry: e, alive: true}
	} else {
		id = EntryID(len(s.entries))
		s.entries = append(s.entries, slot{entry: e, alive: true})
	}
	s.mu.Unlock()

	s.addAccelerators(id, e.Name())
	s.bytesEstimate.Add(e.approxBytes())
	s.added.Add(1)
	return id
}

// Update mutates size/mtime/changeRef in place for an entry whose
// name has not changed (spec §4.1). changeRef nil leaves the
// existing value untouched.
func (s *Store) Update(id EntryID, size uint64, mtimeMs int64, changeRef *uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) >= len(s.entries) || !s.entries[id].alive {
		return false
	}
	e := &s.entries[id].entry
	e.Size = size
	e.MtimeMs = mtimeMs
	if changeRef != nil {
		e.ChangeRef = *changeRef
	}
	s.updated.Add(1)
	return true
}

// Rename moves an entry to newPath, keeping its id but updating
// accelerator keys if the filename changed (spec §4.5).
func (s *Store) Rename(id EntryID, newPath string, changeRef *uint64, eventTimeMs int64) bool {
	s.mu.Lock()
	if int(id) >= len(s.entries) || !s.entries[id].alive {
		s.mu.Unlock()
		return false
	}
	oldName := s.entries[id].entry.Name()
	s.entries[id].entry.Path = newPath
	newName := s.entries[id].entry.Name()
	if changeRef != nil {
		s.entries[id].entry.ChangeRef = *changeRef
	}
	s.mu.Unlock()

	if oldName != newName {
		s.removeAccelerators(id, oldName)
		s.addAccelerators(id, newName)
	}
	s.updated.Add(1)
	s.recordChange(id, eventTimeMs)
	return true
}

// RemoveByPath removes the live entry at path, if any (spec §4.1).
// Its id is not reused by the accelerator maps, but is returned to
// the free list for a future Insert; tombstones are not kept.
func (s *Store) RemoveByPath(path string) (EntryID, bool) {
	name := baseName(path)
	lower := lowerASCII(name)
	candidates, _ := s.exactByName.Load(lower)

	s.mu.Lock()
	var found EntryID = -1
	for _, id := range candidates {
		if int(id) < len(s.entries) && s.entries[id].alive && s.entries[id].entry.Path == path {
			found = id
			break
		}
	}
	if found < 0 {
		s.mu.Unlock()
		return 0, false
	}
	removedBytes := s.entries[found].entry.approxBytes()
	s.entries[found] = slot{}
	s.free = append(s.free, found)
	s.mu.Unlock()

	s.removeAccelerators(found, name)
	s.bytesEstimate.Add(-removedBytes)
	s.deleted.Add(1)
	return found, true
}

func (s *Store) recordChange(id EntryID, eventTimeMs int64) {
	s.changesMu.Lock()
	defer s.changesMu.Unlock()
	s.recentChanges = append(s.recentChanges, recentChange{id: id, eventTimeMs: eventTimeMs})
	if len(s.recentChanges) > s.recentCap {
		s.recentChanges = s.recentChanges[len(s.recentChanges)-s.recentCap:]
	}
}

// RecordChange registers id in the recent_changes FIFO without
// otherwise mutating the entry; used by Insert callers that also
// want the change tracked (RemoveByPath and Update's callers decide
// whether a deletion/modification counts as a "change" for /latest).
func (s *Store) RecordChange(id EntryID, eventTimeMs int64) {
	s.recordChange(id, eventTimeMs)
}

// ClearRecentChanges empties the /latest FIFO. Called when tracking
// is disabled so that re-enabling it starts a fresh window (Open
// Question #1 decision, see DESIGN.md).
func (s *Store) ClearRecentChanges() {
	s.changesMu.Lock()
	defer s.changesMu.Unlock()
	s.recentChanges = nil
}

// RecentSince returns the ids of entries changed at or after
// sinceMs, newest-aware callers can len-limit themselves.
func (s *Store) RecentSince(sinceMs int64) []EntryID {
	s.changesMu.RLock()
	defer s.changesMu.RUnlock()
	out := make([]EntryID, 0, len(s.recentChanges))
	for _, c := range s.recentChanges {
		if c.eventTimeMs >= sinceMs {
			out = append(out, c.id)
		}
	}
	return out
}

// DeltaCounts returns the (added, updated, deleted) counters since
// the last snapshot (spec §3, §6).
func (s *Store) DeltaCounts() DeltaCounts {
	return DeltaCounts{
		Added:   s.added.Load(),
		Updated: s.updated.Load(),
		Deleted: s.deleted.Load(),
	}
}

// ResetDeltaCounts zeroes the counters. snapshot.Populate calls it
// after loading a snapshot; writing a snapshot does not reset them.
func (s *Store) ResetDeltaCounts() {
	s.added.Store(0)
	s.updated.Store(0)
	s.deleted.Store(0)
}

// MemoryEstimate returns the running byte-footprint estimate (spec
// §3, §5).
func (s *Store) MemoryEstimate() int64 {
	return s.bytesEstimate.Load()
}

// ExactMatches returns the live entry ids whose lowercased filename
// equals name exactly (fast path, spec §4.7).
func (s *Store) ExactMatches(name string) []EntryID {
	ids, _ := s.exactByName.Load(lowerASCII(name))
	return s.aliveOnly(ids)
}

// PrefixMatches returns the live entry ids whose lowercased filename
// begins with the store's configured prefix of name (fast path, spec
// §4.7).
func (s *Store) PrefixMatches(name string) []EntryID {
	lower := lowerASCII(name)
	ids, _ := s.prefixByName.Load(s.prefixKey(lower))
	return s.aliveOnly(ids)
}

// FindByPath returns the live entry id at path, if any. Used by the
// Change Journal Replayer (spec §4.5) to resolve a record against the
// store when it has no cached file-reference mapping yet, e.g. right
// after a warm start from a snapshot.
func (s *Store) FindByPath(path string) (EntryID, bool) {
	name := baseName(path)
	candidates, _ := s.exactByName.Load(lowerASCII(name))

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range candidates {
		if int(id) < len(s.entries) && s.entries[id].alive && s.entries[id].entry.Path == path {
			return id, true
		}
	}
	return 0, false
}

func (s *Store) aliveOnly(ids idSet) []EntryID {
	if len(ids) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EntryID, 0, len(ids))
	for _, id := range ids {
		if int(id) < len(s.entries) && s.entries[id].alive {
			out = append(out, id)
		}
	}
	return out
}
