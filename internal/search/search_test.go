package search

import (
	"context"
	"testing"
	"time"

	"github.com/wizmini/wizmini/internal/query"
	"github.com/wizmini/wizmini/internal/store"
)

func newTestStore() *store.Store {
	s := store.New(3, 100)
	s.Insert(`C:\a\readme.txt`, 10, 1)
	s.Insert(`C:\a\readme2.txt`, 20, 2)
	s.Insert(`C:\b\other\readme.txt`, 30, 3)
	s.Insert(`C:\b\notes.md`, 5, 4)
	return s
}

func runOne(t *testing.T, w *Worker, req Request) ([]Item, DoneEvent) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Serve(ctx)

	w.Submit(req)

	var items []Item
	deadline := time.After(2 * time.Second)
	for {
		select {
		case c := <-w.Chunks():
			items = append(items, c.Items...)
		case d := <-w.Done():
			return items, d
		case <-deadline:
			t.Fatal("timed out waiting for search_done")
		}
	}
}

func TestExactFastPathFindsAllMatches(t *testing.T) {
	s := newTestStore()
	w := New(s, 10, 3)
	m, _ := query.Parse("readme.txt", nil)

	items, done := runOne(t, w, Request{RequestID: "r1", Matcher: m, Sort: SortRelevance})
	if done.Total != 2 {
		t.Fatalf("Total = %d, want 2", done.Total)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
}

func TestRelevanceOrdersExactBeforeContains(t *testing.T) {
	s := newTestStore()
	s.Insert(`C:\c\has_readme_inside.txt`, 1, 1)
	w := New(s, 10, 3)
	m, _ := query.Parse("readme", nil)

	items, _ := runOne(t, w, Request{RequestID: "r2", Matcher: m, Sort: SortRelevance})
	if len(items) == 0 {
		t.Fatal("expected matches")
	}
	// exact-filename isn't possible here (no file literally named
	// "readme"), but prefix/contains ordering should still put
	// readme.txt ahead of has_readme_inside.txt.
	foundReadmeBeforeInside := false
	for _, it := range items {
		if it.DisplayName == "readme.txt" {
			foundReadmeBeforeInside = true
			break
		}
		if it.DisplayName == "has_readme_inside.txt" {
			break
		}
	}
	if !foundReadmeBeforeInside {
		t.Error("expected readme.txt to rank ahead of has_readme_inside.txt")
	}
}

func TestSubmitPreemptsInFlightSearch(t *testing.T) {
	s := newTestStore()
	w := New(s, 1, 3)
	m1, _ := query.Parse("readme", nil)
	m2, _ := query.Parse("notes", nil)

	w.Submit(Request{RequestID: "first", Matcher: m1, Sort: SortRelevance})
	w.Submit(Request{RequestID: "second", Matcher: m2, Sort: SortRelevance})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Serve(ctx)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case d := <-w.Done():
			if d.RequestID != "second" {
				t.Fatalf("expected only the second request to complete, got %q", d.RequestID)
			}
			return
		case <-w.Chunks():
		case <-deadline:
			t.Fatal("timed out")
		}
	}
}

func TestLimitCapsTotal(t *testing.T) {
	s := newTestStore()
	w := New(s, 10, 3)
	m, _ := query.Parse("*", nil)

	_, done := runOne(t, w, Request{RequestID: "r3", Matcher: m, Sort: SortName, Limit: 2})
	if done.Total != 2 {
		t.Fatalf("Total = %d, want 2 (limit)", done.Total)
	}
}
