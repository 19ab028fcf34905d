package store

import "testing"

func TestInsertAndExactMatch(t *testing.T) {
	s := New(3, 100)
	id := s.Insert(`C:\Users\alice\readme.txt`, 128, 1000)

	ids := s.ExactMatches("readme.txt")
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("ExactMatches = %v, want [%d]", ids, id)
	}
	// Case-insensitive.
	ids = s.ExactMatches("README.TXT")
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("case-insensitive ExactMatches = %v, want [%d]", ids, id)
	}
}

func TestPrefixMatch(t *testing.T) {
	s := New(3, 100)
	a := s.Insert(`/home/alice/report.pdf`, 1, 0)
	b := s.Insert(`/home/alice/notes/repository.md`, 1, 0)
	s.Insert(`/home/alice/other.txt`, 1, 0)

	ids := s.PrefixMatches("rep")
	got := map[EntryID]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if !got[a] || !got[b] || len(got) != 2 {
		t.Fatalf("PrefixMatches(rep) = %v, want {%d,%d}", ids, a, b)
	}
}

func TestRemoveByPathClearsAccelerators(t *testing.T) {
	s := New(3, 100)
	s.Insert(`/tmp/demo.txt`, 1, 0)

	id, ok := s.RemoveByPath(`/tmp/demo.txt`)
	if !ok {
		t.Fatal("RemoveByPath should find the entry")
	}
	if ids := s.ExactMatches("demo.txt"); len(ids) != 0 {
		t.Errorf("accelerator should be empty after removal, got %v", ids)
	}
	if _, ok := s.SnapshotView().At(id); ok {
		t.Error("removed entry should not be observable")
	}
	counts := s.DeltaCounts()
	if counts.Added != 1 || counts.Deleted != 1 {
		t.Errorf("DeltaCounts = %+v, want added=1 deleted=1", counts)
	}
}

func TestRemoveReusesSlotWithoutChangingOtherIDs(t *testing.T) {
	s := New(3, 100)
	_, _ = s.RemoveByPath("/nope") // no-op, exercises the not-found path
	a := s.Insert("/a", 1, 0)
	b := s.Insert("/b", 1, 0)
	s.RemoveByPath("/a")
	c := s.Insert("/c", 1, 0)

	if c != a {
		t.Errorf("free slot should be reused: c=%d, want %d", c, a)
	}
	if _, ok := s.SnapshotView().At(b); !ok {
		t.Error("unrelated entry id should remain valid after reuse")
	}
}

func TestRenameUpdatesAcceleratorsKeepsID(t *testing.T) {
	s := New(3, 100)
	id := s.Insert(`A\foo.txt`, 1, 0)

	ok := s.Rename(id, `A\bar.txt`, nil, 5000)
	if !ok {
		t.Fatal("Rename should succeed")
	}
	if ids := s.ExactMatches("foo.txt"); len(ids) != 0 {
		t.Errorf("old name should no longer match, got %v", ids)
	}
	ids := s.ExactMatches("bar.txt")
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("new name should match same id, got %v want [%d]", ids, id)
	}
}

func TestScanVisitsAllLiveEntries(t *testing.T) {
	s := New(3, 100)
	want := map[EntryID]string{}
	for i := 0; i < 250; i++ {
		p := "/dir/file" + string(rune('a'+i%26)) + string(rune(i))
		id := s.Insert(p, uint64(i), 0)
		want[id] = p
	}
	h := s.SnapshotView()
	seen := map[EntryID]bool{}
	h.All(func(id EntryID, e Entry) bool {
		if e.Path != want[id] {
			t.Errorf("entry %d path = %q, want %q", id, e.Path, want[id])
		}
		seen[id] = true
		return true
	})
	if len(seen) != len(want) {
		t.Fatalf("scanned %d entries, want %d", len(seen), len(want))
	}
}

func TestScanChunkedByBudget(t *testing.T) {
	s := New(3, 100)
	for i := 0; i < 10; i++ {
		s.Insert("/f", uint64(i), 0)
	}
	h := s.SnapshotView()
	cursor := EntryID(0)
	chunks := 0
	for {
		var n int
		next, done := h.Scan(cursor, 3, func(EntryID, Entry) bool {
			n++
			return true
		})
		chunks++
		cursor = next
		if done {
			break
		}
		if n == 0 {
			t.Fatal("chunk made no progress")
		}
	}
	if chunks < 4 {
		t.Errorf("expected at least 4 chunks of budget 3 over 10 entries, got %d", chunks)
	}
}

func TestRecentChangesWindowAndClear(t *testing.T) {
	s := New(3, 100)
	id := s.Insert("/x", 1, 0)
	s.RecordChange(id, 1000)
	s.RecordChange(id, 2000)

	if got := s.RecentSince(1500); len(got) != 1 {
		t.Errorf("RecentSince(1500) = %v, want 1 entry", got)
	}
	s.ClearRecentChanges()
	if got := s.RecentSince(0); len(got) != 0 {
		t.Errorf("RecentSince after clear = %v, want none", got)
	}
}

func TestMemoryEstimateTracksInsertsAndRemoves(t *testing.T) {
	s := New(3, 100)
	before := s.MemoryEstimate()
	s.Insert("/abc", 1, 0)
	mid := s.MemoryEstimate()
	if mid <= before {
		t.Fatalf("MemoryEstimate should grow on insert: %d -> %d", before, mid)
	}
	s.RemoveByPath("/abc")
	after := s.MemoryEstimate()
	if after != before {
		t.Errorf("MemoryEstimate should return to baseline after removal: %d != %d", after, before)
	}
}
