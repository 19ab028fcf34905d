// Package coordinator implements the Index Coordinator (spec §4.6):
// the single writer to a scope's Path Store. It drives the state
// machine that takes a scope from cold to live — loading a snapshot
// or running an acquisition strategy, building accelerators in
// cooperative chunks, and attaching the Change Journal Replayer — and
// is the only component that issues mutating calls to the Store.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wizmini/wizmini/internal/config"
	"github.com/wizmini/wizmini/internal/journal"
	"github.com/wizmini/wizmini/internal/logger"
	"github.com/wizmini/wizmini/internal/scope"
	"github.com/wizmini/wizmini/internal/snapshot"
	"github.com/wizmini/wizmini/internal/store"
	"github.com/wizmini/wizmini/internal/volume"
	"github.com/wizmini/wizmini/internal/walker"
	"github.com/wizmini/wizmini/internal/wizerr"
)

var l = logger.DefaultLogger.NewFacility("coordinator", "index state machine")

// Phase is one of the six states spec §4.6 names.
type Phase int

const (
	Idle Phase = iota
	LoadingSnapshot
	Acquiring
	BuildingAccelerators
	Live
	Rebuilding
)

// ProgressEvent is index_progress (spec §6).
type ProgressEvent struct {
	Phase         string
	Scanned       int
	TotalEstimate int
}

// WatchStatus is watch_status (spec §6).
type WatchStatus struct {
	Healthy bool
	Mode    string // "journal" | "poll" | "none"
}

// Coordinator owns one active scope's Store and drives it through the
// acquisition/tracking lifecycle. It is not safe for concurrent calls
// to its operation methods (activate_scope, reindex_now, ...); per
// spec §5 those are serialized through a single writer, here the
// caller's goroutine discipline rather than an internal lock.
type Coordinator struct {
	cfg config.Tuning

	mu       sync.Mutex
	phase    Phase
	scope    scope.Scope
	st       *store.Store
	refs     *volume.RefIndex
	tracking bool
	cancel   context.CancelFunc
	genID    uint64

	replayer *journal.Replayer
	source   journal.Source

	progress chan ProgressEvent
	watch    chan WatchStatus
}

// New constructs an idle Coordinator.
func New(cfg config.Tuning) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		progress: make(chan ProgressEvent, 16),
		watch:    make(chan WatchStatus, 4),
	}
}

func (c *Coordinator) String() string { return "coordinator@" + c.scope.Label() }

// Progress returns the index_progress event channel.
func (c *Coordinator) Progress() <-chan ProgressEvent { return c.progress }

// WatchStatusEvents returns the watch_status event channel.
func (c *Coordinator) WatchStatusEvents() <-chan WatchStatus { return c.watch }

// Store returns the active scope's Store, or nil if Idle. The Search
// Worker and UI read through this; only the Coordinator ever mutates
// it (spec §5).
func (c *Coordinator) Store() *store.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// DeltaCounts is the cheap delta_counts() read (spec §6).
func (c *Coordinator) DeltaCounts() store.DeltaCounts {
	if st := c.Store(); st != nil {
		return st.DeltaCounts()
	}
	return store.DeltaCounts{}
}

// MemoryEstimate is the cheap memory_estimate() read (spec §6).
func (c *Coordinator) MemoryEstimate() int64 {
	if st := c.Store(); st != nil {
		return st.MemoryEstimate()
	}
	return 0
}

func (c *Coordinator) emit(phase Phase, scanned, total int) {
	c.mu.Lock()
	c.phase = phase
	label := phaseLabel(phase, c.tracking)
	c.mu.Unlock()
	select {
	case c.progress <- ProgressEvent{Phase: label, Scanned: scanned, TotalEstimate: total}:
	default:
		l.Debugf("progress channel full, dropping %s event", label)
	}
}

func phaseLabel(p Phase, tracking bool) string {
	switch p {
	case LoadingSnapshot:
		return "reading snapshot"
	case Acquiring, Rebuilding:
		return "reading index"
	case BuildingAccelerators:
		return "finalizing index"
	case Live:
		if tracking {
			return "live updates"
		}
		return "ready"
	default:
		return ""
	}
}

// CancelCurrent interrupts Acquiring or BuildingAccelerators at the
// next batch boundary (spec §4.6).
func (c *Coordinator) CancelCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Coordinator) newJob() (context.Context, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.genID++
	return ctx, c.genID
}

func (c *Coordinator) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.genID == gen
}

func (c *Coordinator) snapshotPath() string {
	return filepath.Join(c.cfg.SnapshotDir, "snapshots", c.scope.SnapshotName()+".bin")
}

func (c *Coordinator) checkpointPath() string {
	return filepath.Join(c.cfg.SnapshotDir, "journal", fmt.Sprintf("scope-%08x.ckpt", c.scope.Hash()))
}

// ActivateScope begins Loading/Acquiring for sc (spec §6
// activate_scope). It runs synchronously in the caller's goroutine
// up through reaching Live or failing; callers that want it
// backgrounded should call it from their own goroutine and read
// Progress()/WatchStatusEvents() for status.
func (c *Coordinator) ActivateScope(sc scope.Scope) error {
	ctx, gen := c.newJob()

	c.mu.Lock()
	c.scope = sc
	c.st = store.New(c.cfg.PrefixLength, c.cfg.RecentChangesCapacity)
	c.refs = volume.NewRefIndex()
	c.tracking = false
	c.replayer = nil
	c.source = nil
	c.mu.Unlock()

	return c.acquire(ctx, gen)
}

// ReindexNow forces a rebuild of the current scope (spec §6
// reindex_now), transitioning through Rebuilding -> 3 -> 4 -> 5.
func (c *Coordinator) ReindexNow() error {
	c.mu.Lock()
	activated := c.st != nil
	c.mu.Unlock()
	if !activated {
		return wizerr.New(wizerr.Fatal, "coordinator.ReindexNow", fmt.Errorf("no active scope"))
	}
	ctx, gen := c.newJob()

	c.mu.Lock()
	c.st = store.New(c.cfg.PrefixLength, c.cfg.RecentChangesCapacity)
	c.refs = volume.NewRefIndex()
	c.replayer = nil
	c.source = nil
	c.mu.Unlock()

	c.emit(Rebuilding, 0, 0)
	return c.runAcquisition(ctx, gen)
}

func (c *Coordinator) acquire(ctx context.Context, gen uint64) error {
	c.emit(LoadingSnapshot, 0, 0)
	if loaded := c.tryLoadSnapshot(); loaded {
		if !c.isCurrent(gen) {
			return ctx.Err()
		}
		c.finishAcquisition(gen)
		return nil
	}
	return c.runAcquisition(ctx, gen)
}

func (c *Coordinator) tryLoadSnapshot() bool {
	f, err := os.Open(c.snapshotPath())
	if err != nil {
		return false
	}
	defer f.Close()

	snap, err := snapshot.Read(f)
	if err != nil {
		l.Infof("discarding unreadable snapshot for %s: %v", c.scope.Label(), err)
		return false
	}

	c.mu.Lock()
	st := c.st
	refs := c.refs
	sc := c.scope
	c.mu.Unlock()
	snapshot.Populate(st, snap)

	// Resume the Replayer from the checkpoint the snapshot carried
	// instead of leaving the scope untracked until the next
	// reindex_now (spec §4.2's whole reason for persisting LastSeq).
	roots := sc.Roots()
	if sc.UsesVolumeReader() && len(roots) == 1 {
		c.attachTracking(roots[0], volume.Checkpoint{NextUSN: int64(snap.LastSeq)}, st, refs, snap.LastSeq)
	} else {
		c.publishWatchStatus(false, "none")
	}
	return true
}

// attachTracking wires a Change Journal Source/Replayer for a single
// root, seeding the Replayer's last-applied sequence number with
// seedSeq so that after a warm start (spec §4.2) LastAppliedSeq
// reports the snapshot's checkpoint until newer records are applied.
// The Replayer does not skip records by sequence number.
func (c *Coordinator) attachTracking(root string, cp volume.Checkpoint, st *store.Store, refs *volume.RefIndex, seedSeq uint64) {
	source, err := journal.NewSource(root, cp, refs)
	if err != nil {
		c.mu.Lock()
		c.tracking = false
		c.mu.Unlock()
		c.publishWatchStatus(false, "none")
		return
	}
	replayer := journal.New(st, refs, c.cfg.RenamePairingWindow, c.checkpointPath())
	replayer.SeedSeq(seedSeq)
	c.mu.Lock()
	c.source = source
	c.replayer = replayer
	c.tracking = true
	c.mu.Unlock()
	c.publishWatchStatus(true, source.Mode())
}

// LastAppliedSeq returns the active scope's Replayer's most recently
// applied sequence number, or 0 if tracking never attached. Used to
// persist a useful checkpoint in the warm-start snapshot (spec §4.2,
// §6).
func (c *Coordinator) LastAppliedSeq() uint64 {
	c.mu.Lock()
	rep := c.replayer
	c.mu.Unlock()
	if rep == nil {
		return 0
	}
	return rep.LastSeq()
}

func (c *Coordinator) runAcquisition(ctx context.Context, gen uint64) error {
	c.emit(Acquiring, 0, 0)

	c.mu.Lock()
	st := c.st
	refs := c.refs
	sc := c.scope
	c.mu.Unlock()

	type rawEntry struct {
		path    string
		size    uint64
		mtimeMs int64
	}
	var staged []rawEntry
	var scanned int
	var checkpoint volume.Checkpoint
	var checkpointRoot string
	var haveCheckpoint bool

	onVolumeBatch := func(batch []volume.Entry) error {
		for _, e := range batch {
			staged = append(staged, rawEntry{e.Path, e.Size, e.MtimeMs})
		}
		scanned += len(batch)
		c.emit(Acquiring, scanned, 0)
		return nil
	}
	onWalkBatch := func(batch []walker.Entry) error {
		for _, e := range batch {
			staged = append(staged, rawEntry{e.Path, e.Size, e.MtimeMs})
		}
		scanned += len(batch)
		c.emit(Acquiring, scanned, 0)
		return nil
	}

	roots := sc.Roots()
	var walkRoots []string

	if sc.UsesVolumeReader() {
		// Each root is its own volume with its own journal, so the
		// Volume Reader is tried independently per root (spec §4.4):
		// one volume lacking journal support falls back to the
		// Walker for just that root rather than the whole scope.
		// Live tracking only attaches when the scope resolves to
		// exactly one root — AllVolumes spanning several real
		// volumes would otherwise need one Change Journal Source per
		// volume sharing a single RefIndex, where two volumes' file
		// reference numbers are not guaranteed distinct.
		reader := volume.New()
		for _, root := range roots {
			cp, err := reader.Enumerate(ctx, volume.Config{
				Root:      root,
				BatchSize: c.cfg.AcquisitionBatchSize,
				OnBatch:   onVolumeBatch,
			}, refs)
			if err == nil {
				if len(roots) == 1 {
					checkpoint, checkpointRoot, haveCheckpoint = cp, root, true
				}
				continue
			}
			if !wizerr.Is(err, wizerr.JournalUnavailable) {
				return err
			}
			walkRoots = append(walkRoots, root)
		}
	} else {
		walkRoots = roots
	}

	for _, root := range walkRoots {
		err := walker.Walk(ctx, walker.Config{
			Root:      root,
			BatchSize: c.cfg.AcquisitionBatchSize,
			OnBatch:   onWalkBatch,
		})
		if err != nil {
			return err
		}
	}

	if !c.isCurrent(gen) {
		return ctx.Err()
	}

	c.emit(BuildingAccelerators, 0, len(staged))
	for i, e := range staged {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		st.Insert(e.path, e.size, e.mtimeMs)
		if i%c.cfg.AcquisitionBatchSize == 0 {
			c.emit(BuildingAccelerators, i+1, len(staged))
		}
	}
	c.emit(BuildingAccelerators, len(staged), len(staged))

	if haveCheckpoint {
		c.attachTracking(checkpointRoot, checkpoint, st, refs, 0)
	} else {
		c.publishWatchStatus(false, "none")
	}

	c.finishAcquisition(gen)
	return nil
}

func (c *Coordinator) finishAcquisition(gen uint64) {
	if !c.isCurrent(gen) {
		return
	}
	c.emit(Live, 0, 0)
}

func (c *Coordinator) publishWatchStatus(healthy bool, mode string) {
	select {
	case c.watch <- WatchStatus{Healthy: healthy, Mode: mode}:
	default:
	}
}

// SetTracking attaches or detaches the Change Journal Replayer (spec
// §6 set_tracking). Detaching stops consuming new journal records but
// keeps the already-built index.
func (c *Coordinator) SetTracking(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracking = enabled && c.source != nil
	if !c.tracking {
		c.st.ClearRecentChanges()
	}
	if c.tracking {
		c.publishWatchStatus(true, c.source.Mode())
	} else {
		c.publishWatchStatus(false, "none")
	}
}

// Serve runs the Replayer pump until ctx is cancelled: pulling
// batches from the attached Source, applying them, and checkpointing
// at cfg.CheckpointInterval (spec §4.5). It implements suture.Service
// so a supervisor can own the Coordinator's background lifecycle
// alongside the Search Worker.
func (c *Coordinator) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		src, rep, tracking := c.source, c.replayer, c.tracking
		c.mu.Unlock()

		if !tracking || src == nil || rep == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.JournalPollInterval):
				continue
			}
		}

		records, err := src.Next(ctx)
		if err != nil {
			if wizerr.Is(err, wizerr.JournalInvalidated) {
				l.Infof("journal invalidated for %s, rebuilding", c.scope.Label())
				if rebuildErr := c.ReindexNow(); rebuildErr != nil {
					l.Warnln("rebuild after journal invalidation failed:", rebuildErr)
				}
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				l.Debugf("recoverable journal read error: %v", err)
				continue
			}
		}

		if len(records) > 0 {
			if err := rep.ApplyBatch(ctx, records); err != nil {
				return err
			}
		}

		select {
		case <-ticker.C:
			if err := rep.SaveCheckpoint(); err != nil {
				l.Warnln("failed to save journal checkpoint:", err)
			}
		default:
		}
	}
}
