// Package search implements the Search Worker (spec §4.7):
// single-consumer, single-in-flight matching against a Path Store
// ReadHandle, with generation-id preemption, a fast path through the
// accelerator maps, and chunked, cancellable delivery.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wizmini/wizmini/internal/logger"
	"github.com/wizmini/wizmini/internal/query"
	"github.com/wizmini/wizmini/internal/store"
)

var l = logger.DefaultLogger.NewFacility("search", "query matching worker")

// Sort is the ordering spec §4.7 allows a SearchRequest to request.
type Sort int

const (
	SortRelevance Sort = iota
	SortName
	SortPath
	SortDate
	SortSize
)

// Request is one submit_search call (spec §6).
type Request struct {
	RequestID string
	Matcher   query.Matcher
	Sort      Sort
	Limit     int
}

// Item is a SearchItem (spec §6): entry_id, display_name, full_path,
// size, mtime_ms, score.
type Item struct {
	EntryID     store.EntryID
	DisplayName string
	FullPath    string
	Size        uint64
	MtimeMs     int64
	Score       float64
}

// ChunkEvent is search_chunk (spec §6).
type ChunkEvent struct {
	RequestID string
	Items     []Item
}

// DoneEvent is search_done (spec §6); cancelled requests never emit
// one.
type DoneEvent struct {
	RequestID string
	Total     int
	TookMs    int64
}

// Worker is the Search Worker. It implements suture.Service via
// Serve(ctx), so a supervisor can own its lifecycle the same way it
// owns the Coordinator's (spec §4.7, §4.6).
type Worker struct {
	store       *store.Store
	chunkBudget int
	prefixLen   int

	chunks chan ChunkEvent
	done   chan DoneEvent

	mu         sync.Mutex
	generation uint64
	pending    Request
	hasPending bool
	wake       chan struct{}
}

// New constructs a Worker. chunkBudget bounds how many raw entries
// are examined between cooperative cancellation checks (spec §5);
// prefixLen is k, the accelerator fast-path threshold (spec §4.7,
// §9).
func New(st *store.Store, chunkBudget, prefixLen int) *Worker {
	if chunkBudget <= 0 {
		chunkBudget = 2000
	}
	return &Worker{
		store:       st,
		chunkBudget: chunkBudget,
		prefixLen:   prefixLen,
		chunks:      make(chan ChunkEvent, 8),
		done:        make(chan DoneEvent, 8),
		wake:        make(chan struct{}, 1),
	}
}

// Chunks returns the channel search_chunk events are delivered on.
func (w *Worker) Chunks() <-chan ChunkEvent { return w.chunks }

// Done returns the channel search_done events are delivered on.
func (w *Worker) Done() <-chan DoneEvent { return w.done }

// Submit installs req as the current request, preempting whatever
// search is in flight (spec §4.7: "A new request preempts the
// previous one").
func (w *Worker) Submit(req Request) {
	w.mu.Lock()
	w.generation++
	w.pending = req
	w.hasPending = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Cancel clears the pending request if it matches requestID (spec
// §6 cancel_search), producing no terminal event for it. Only a
// request that Serve has not yet picked up is cleared; a request
// already running is not cancelled and still emits search_done.
func (w *Worker) Cancel(requestID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hasPending && w.pending.RequestID == requestID {
		w.hasPending = false
		w.generation++
	}
}

// Serve runs until ctx is cancelled, processing one request at a time
// and preempting in-flight work whenever Submit installs a newer
// generation (spec §5's generation-id cancellation contract).
func (w *Worker) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.wake:
		}

		w.mu.Lock()
		req := w.pending
		has := w.hasPending
		gen := w.generation
		w.hasPending = false
		w.mu.Unlock()

		if !has {
			continue
		}
		w.run(ctx, gen, req)
	}
}

func (w *Worker) currentGeneration() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

func (w *Worker) run(ctx context.Context, gen uint64, req Request) {
	start := time.Now()
	handle := w.store.SnapshotView()

	seen := make(map[store.EntryID]bool)
	var total int

	emit := func(items []Item) bool {
		if len(items) == 0 {
			return true
		}
		sortItems(items, req.Sort, req.Matcher)
		select {
		case w.chunks <- ChunkEvent{RequestID: req.RequestID, Items: items}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	admitsLatest := func(store.EntryID) bool { return true }
	if req.Matcher.Latest != nil {
		cutoff := time.Now().Add(-req.Matcher.Latest.Window).UnixMilli()
		recent := make(map[store.EntryID]bool)
		for _, id := range w.store.RecentSince(cutoff) {
			recent[id] = true
		}
		admitsLatest = func(id store.EntryID) bool { return recent[id] }
	}

	if req.Matcher.Kind == query.Literal || req.Matcher.Kind == query.Exact || req.Matcher.Kind == query.Prefix {
		var fast []Item
		for _, id := range w.store.ExactMatches(req.Matcher.Text()) {
			if e, ok := handle.At(id); ok && admitsLatest(id) {
				fast = append(fast, toItem(id, e, req.Matcher))
				seen[id] = true
			}
		}
		if req.Matcher.AdmitsFastPath(w.prefixLen) {
			for _, id := range w.store.PrefixMatches(req.Matcher.Text()) {
				if seen[id] {
					continue
				}
				// The prefix key is only the first k bytes of the query,
				// so a hit must still satisfy the full matcher.
				if e, ok := handle.At(id); ok && admitsLatest(id) && req.Matcher.Matches(e.Name(), e.Path) {
					fast = append(fast, toItem(id, e, req.Matcher))
					seen[id] = true
				}
			}
		}
		total += len(fast)
		if !emit(capAtLimit(fast, req.Limit, &total)) {
			return
		}
		if w.currentGeneration() != gen {
			return
		}
	}

	var cursor store.EntryID
	for {
		if w.currentGeneration() != gen {
			return
		}
		if req.Limit > 0 && total >= req.Limit {
			break
		}

		var chunk []Item
		next, done := handle.Scan(cursor, w.chunkBudget, func(id store.EntryID, e store.Entry) bool {
			if seen[id] {
				return true
			}
			if !req.Matcher.Matches(e.Name(), e.Path) {
				return true
			}
			if !admitsLatest(id) {
				return true
			}
			chunk = append(chunk, toItem(id, e, req.Matcher))
			return true
		})
		cursor = next
		total += len(chunk)
		if !emit(capAtLimit(chunk, req.Limit, &total)) {
			return
		}
		if done {
			break
		}
	}

	if w.currentGeneration() != gen {
		return
	}
	select {
	case w.done <- DoneEvent{RequestID: req.RequestID, Total: total, TookMs: time.Since(start).Milliseconds()}:
	case <-ctx.Done():
	}
}

// capAtLimit trims items so *total never exceeds req.Limit (0 means
// unlimited); *total has already counted the full slice, so the trim
// subtracts back the overflow.
func capAtLimit(items []Item, limit int, total *int) []Item {
	if limit <= 0 || *total <= limit {
		return items
	}
	overflow := *total - limit
	if overflow >= len(items) {
		*total -= len(items)
		return nil
	}
	*total -= overflow
	return items[:len(items)-overflow]
}

func toItem(id store.EntryID, e store.Entry, m query.Matcher) Item {
	name := e.Name()
	return Item{
		EntryID:     id,
		DisplayName: name,
		FullPath:    e.Path,
		Size:        e.Size,
		MtimeMs:     e.MtimeMs,
		Score:       float64(m.RelevanceRank(name, e.Path)),
	}
}

func sortItems(items []Item, s Sort, m query.Matcher) {
	switch s {
	case SortName:
		sort.Slice(items, func(i, j int) bool {
			return strings.ToLower(items[i].DisplayName) < strings.ToLower(items[j].DisplayName)
		})
	case SortPath:
		sort.Slice(items, func(i, j int) bool { return items[i].FullPath < items[j].FullPath })
	case SortDate:
		sort.Slice(items, func(i, j int) bool { return items[i].MtimeMs > items[j].MtimeMs })
	case SortSize:
		sort.Slice(items, func(i, j int) bool { return items[i].Size > items[j].Size })
	default: // SortRelevance
		sort.Slice(items, func(i, j int) bool {
			a, b := items[i], items[j]
			if a.Score != b.Score {
				return a.Score < b.Score
			}
			if len(a.FullPath) != len(b.FullPath) {
				return len(a.FullPath) < len(b.FullPath)
			}
			return a.FullPath < b.FullPath
		})
	}
}
