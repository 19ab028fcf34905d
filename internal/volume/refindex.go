package volume

import (
	"path/filepath"
	"sync"
)

// RefIndex maps a filesystem's file-reference numbers (NTFS/ReFS file
// IDs) to their last-known full path. The Volume Reader populates it
// during MFT enumeration; the Change Journal Replayer (spec §4.5)
// keeps it current afterward so that journal records, which name a
// file by reference number and carry only its parent's reference
// number, can be resolved into full paths.
type RefIndex struct {
	mu    sync.RWMutex
	byRef map[uint64]string
}

// NewRefIndex returns an empty index.
func NewRefIndex() *RefIndex {
	return &RefIndex{byRef: make(map[uint64]string)}
}

// Put records path as the current location of ref.
func (r *RefIndex) Put(ref uint64, path string) {
	r.mu.Lock()
	r.byRef[ref] = path
	r.mu.Unlock()
}

// Delete forgets ref, e.g. after a deletion record.
func (r *RefIndex) Delete(ref uint64) {
	r.mu.Lock()
	delete(r.byRef, ref)
	r.mu.Unlock()
}

// Get returns the last-known path for ref.
func (r *RefIndex) Get(ref uint64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byRef[ref]
	return p, ok
}

// Join resolves name against the last-known path of parentRef,
// falling back to the bare name when the parent is unknown (e.g. a
// journal record referencing a directory created before the reader's
// enumeration reached it).
func (r *RefIndex) Join(parentRef uint64, name string) string {
	parent, ok := r.Get(parentRef)
	if !ok {
		return name
	}
	return filepath.Join(parent, name)
}

// Len reports how many references are currently tracked.
func (r *RefIndex) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRef)
}
