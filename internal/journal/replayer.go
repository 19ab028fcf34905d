package journal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wizmini/wizmini/internal/store"
	"github.com/wizmini/wizmini/internal/volume"
	"github.com/wizmini/wizmini/internal/wizerr"
)

// pendingRenamesCapacity bounds the rename-pairing table regardless
// of configuration, matching spec §9's explicit guidance to model
// rename pairing as "a small bounded-capacity table... not unbounded
// queues."
const pendingRenamesCapacity = 4096

type pendingRename struct {
	id      store.EntryID
	oldPath string
}

// Replayer applies a Source's records to a Store, keyed by the
// RefIndex a Volume Reader (or an earlier replay pass) populated.
type Replayer struct {
	st   *store.Store
	refs *volume.RefIndex

	mu         sync.Mutex
	entryByRef map[uint64]store.EntryID
	pairing    *expirable.LRU[uint64, pendingRename]
	lastSeq    uint64

	checkpointPath string
}

// New constructs a Replayer. pairingWindow bounds how long a
// Renamed(old) record waits for its paired Renamed(new) before being
// treated as a delete (spec §4.5); checkpointPath is where the last
// applied sequence number is persisted (spec §6).
func New(st *store.Store, refs *volume.RefIndex, pairingWindow time.Duration, checkpointPath string) *Replayer {
	r := &Replayer{
		st:             st,
		refs:           refs,
		entryByRef:     make(map[uint64]store.EntryID),
		checkpointPath: checkpointPath,
	}
	r.pairing = expirable.NewLRU[uint64, pendingRename](pendingRenamesCapacity, r.onRenameTimeout, pairingWindow)
	return r
}

// onRenameTimeout is the eviction callback for unpaired renames: spec
// §4.5 says to treat them as a delete once the pairing window lapses.
func (r *Replayer) onRenameTimeout(fileRef uint64, p pendingRename) {
	r.st.RemoveByPath(p.oldPath)
	delete(r.entryByRef, fileRef)
	l.Debugf("rename pairing timed out for fileRef %d (%s), treated as delete", fileRef, p.oldPath)
}

// LastSeq returns the most recently applied sequence number.
func (r *Replayer) LastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

// SeedSeq raises the Replayer's last-applied sequence number to seq
// if it isn't already past it, used when warm-starting from a
// persisted snapshot (spec §4.2) whose LastSeq reflects state the
// Replayer has never itself applied but must treat as a floor.
func (r *Replayer) SeedSeq(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq > r.lastSeq {
		r.lastSeq = seq
	}
}

// LoadCheckpoint reads the last applied sequence number from
// checkpointPath (spec §6: "last applied journal sequence number as
// an ASCII decimal line"). A missing file yields seq 0, not an error,
// since a cold scope has nothing to resume.
func (r *Replayer) LoadCheckpoint() (uint64, error) {
	f, err := os.Open(r.checkpointPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, wizerr.New(wizerr.SnapshotCorrupt, "journal.LoadCheckpoint", fmt.Errorf("malformed checkpoint: %w", err))
	}
	r.mu.Lock()
	r.lastSeq = seq
	r.mu.Unlock()
	return seq, nil
}

// SaveCheckpoint persists the current sequence number at the low
// cadence the Index Coordinator drives (spec §4.5, §6).
func (r *Replayer) SaveCheckpoint() error {
	seq := r.LastSeq()
	tmp := r.checkpointPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(seq, 10)+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.checkpointPath)
}

// ApplyBatch applies up to len(records) store operations, checking
// ctx between each so a long batch stays cancellable (spec §4.5:
// "processes up to a batch of records, yields, and resumes").
// Records are expected already ordered by Seq.
func (r *Replayer) ApplyBatch(ctx context.Context, records []Record) error {
	for _, rec := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.applyOne(rec)
		r.mu.Lock()
		r.lastSeq = rec.Seq
		r.mu.Unlock()
	}
	return nil
}

func (r *Replayer) applyOne(rec Record) {
	switch {
	case rec.Reason&Created != 0:
		r.applyCreate(rec)
	case rec.Reason&RenamedOld != 0:
		r.applyRenameOld(rec)
	case rec.Reason&RenamedNew != 0:
		r.applyRenameNew(rec)
	case rec.Reason&Deleted != 0:
		r.applyDelete(rec)
	case rec.Reason&Modified != 0:
		r.applyModify(rec)
	}
}

func (r *Replayer) resolvePath(rec Record) string {
	return r.refs.Join(rec.ParentFileRef, rec.Name)
}

func (r *Replayer) lookup(fileRef uint64, path string) (store.EntryID, bool) {
	r.mu.Lock()
	id, ok := r.entryByRef[fileRef]
	r.mu.Unlock()
	if ok {
		return id, true
	}
	return r.st.FindByPath(path)
}

func (r *Replayer) remember(fileRef uint64, id store.EntryID) {
	r.mu.Lock()
	r.entryByRef[fileRef] = id
	r.mu.Unlock()
}

func (r *Replayer) forget(fileRef uint64) {
	r.mu.Lock()
	delete(r.entryByRef, fileRef)
	r.mu.Unlock()
}

func (r *Replayer) applyCreate(rec Record) {
	path := r.resolvePath(rec)
	ref := rec.Seq
	if id, ok := r.st.FindByPath(path); ok {
		// Replaying an already-applied Created (or a rename-new
		// whose pairing entry was already consumed by an earlier
		// pass) must not insert a second live entry at this path
		// (spec §3: "no two live entries share the same path");
		// fold it into an update-in-place instead, keeping replay
		// idempotent (spec §8).
		r.st.Update(id, 0, rec.EventTimeMs, &ref)
		r.remember(rec.FileRef, id)
		r.refs.Put(rec.FileRef, path)
		r.st.RecordChange(id, rec.EventTimeMs)
		return
	}
	id := r.st.Insert(path, 0, rec.EventTimeMs)
	r.st.Update(id, 0, rec.EventTimeMs, &ref)
	r.remember(rec.FileRef, id)
	r.refs.Put(rec.FileRef, path)
	r.st.RecordChange(id, rec.EventTimeMs)
}

func (r *Replayer) applyModify(rec Record) {
	path := r.resolvePath(rec)
	id, ok := r.lookup(rec.FileRef, path)
	if !ok {
		// spec §4.5: "Modified ... update if present, else treated
		// as Created."
		r.applyCreate(rec)
		return
	}
	ref := rec.Seq
	r.st.Update(id, 0, rec.EventTimeMs, &ref)
	r.st.RecordChange(id, rec.EventTimeMs)
}

func (r *Replayer) applyRenameOld(rec Record) {
	path := r.resolvePath(rec)
	id, ok := r.lookup(rec.FileRef, path)
	if !ok {
		return
	}
	r.pairing.Add(rec.FileRef, pendingRename{id: id, oldPath: path})
}

func (r *Replayer) applyRenameNew(rec Record) {
	p, ok := r.pairing.Get(rec.FileRef)
	if !ok {
		// No paired old-name record arrived (e.g. it predates this
		// replay window): treat the new name as a fresh create.
		r.applyCreate(rec)
		return
	}
	newPath := r.resolvePath(rec)
	ref := rec.Seq
	r.st.Rename(p.id, newPath, &ref, rec.EventTimeMs)
	// Remove also runs onRenameTimeout; the entry has already moved to
	// newPath, so its RemoveByPath(oldPath) finds nothing to delete.
	r.pairing.Remove(rec.FileRef)
	r.remember(rec.FileRef, p.id)
	r.refs.Put(rec.FileRef, newPath)
}

func (r *Replayer) applyDelete(rec Record) {
	path := r.resolvePath(rec)
	r.st.RemoveByPath(path)
	r.forget(rec.FileRef)
	r.refs.Delete(rec.FileRef)
}
