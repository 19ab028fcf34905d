package store

// ReadHandle is a cheap read-only view onto a Store, safe to hold
// while the writer continues mutating (spec §4.1, §5). It captures
// the entry count at acquisition time so a full Scan has a stable
// upper bound; entries inserted afterwards may or may not be visible
// to a given Scan call, but iteration never corrupts and a concurrent
// removal never yields a torn Entry (guaranteed by Store's short
// RLock critical sections).
type ReadHandle struct {
	store *Store
	count int
}

// SnapshotView returns a ReadHandle observing the Store as of now.
func (s *Store) SnapshotView() *ReadHandle {
	s.mu.RLock()
	n := len(s.entries)
	s.mu.RUnlock()
	return &ReadHandle{store: s, count: n}
}

// Len returns the entry count observed at handle acquisition.
func (h *ReadHandle) Len() int { return h.count }

// At returns the entry at id if it was alive at the moment of the
// call. A removed or never-populated id returns (Entry{}, false).
func (h *ReadHandle) At(id EntryID) (Entry, bool) {
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	if int(id) >= len(h.store.entries) {
		return Entry{}, false
	}
	sl := h.store.entries[id]
	if !sl.alive {
		return Entry{}, false
	}
	return sl.entry, true
}

// Scan calls fn for every live entry with id in [cursor, cursor+budget)
// relative to the handle's captured length, stopping early if fn
// returns false. It returns the next cursor to resume from and
// whether the handle has been fully scanned. Each call takes the
// store's RLock only for the duration of copying its batch range, not
// for the whole scan, so the writer is never blocked for longer than
// one batch (spec §5 suspension points).
func (h *ReadHandle) Scan(cursor EntryID, budget int, fn func(EntryID, Entry) bool) (next EntryID, done bool) {
	if budget <= 0 {
		budget = 1
	}
	start := int(cursor)
	if start >= h.count {
		return cursor, true
	}
	end := start + budget
	if end > h.count {
		end = h.count
	}

	h.store.mu.RLock()
	batch := make([]slot, end-start)
	copy(batch, h.store.entries[start:end])
	h.store.mu.RUnlock()

	for i, sl := range batch {
		if !sl.alive {
			continue
		}
		if !fn(EntryID(start+i), sl.entry) {
			return EntryID(start + i + 1), false
		}
	}
	next = EntryID(end)
	done = end >= h.count
	return next, done
}

// All is a convenience wrapper used by tests and small scopes: it
// scans the whole handle in one call, ignoring the cancellation
// protocol real callers (the Search Worker) must honor.
func (h *ReadHandle) All(fn func(EntryID, Entry) bool) {
	cursor := EntryID(0)
	for {
		next, done := h.Scan(cursor, h.count+1, fn)
		if done {
			return
		}
		cursor = next
	}
}
