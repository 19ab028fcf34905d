package snapshot

import (
	"bytes"
	"testing"

	"github.com/d4l3k/messagediff"

	"github.com/wizmini/wizmini/internal/store"
)

func TestRoundTrip(t *testing.T) {
	want := []Entry{
		{Path: `C:\Users\alice\readme.txt`, Size: 128, MtimeMs: 1700000000000, ChangeRef: 42},
		{Path: `C:\Users\alice\photos\beach.jpg`, Size: 4096, MtimeMs: 1700000001000},
	}

	var buf bytes.Buffer
	if err := Write(&buf, 0xdeadbeef, 99, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.ScopeHash != 0xdeadbeef {
		t.Errorf("ScopeHash = %x, want deadbeef", got.ScopeHash)
	}
	if got.LastSeq != 99 {
		t.Errorf("LastSeq = %d, want 99", got.LastSeq)
	}
	if diff, equal := messagediff.PrettyDiff(want, got.Entries); !equal {
		t.Errorf("round-tripped entries differ:\n%s", diff)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, 1, 1, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[0] = 'X'
	if _, err := Read(bytes.NewReader(corrupted)); err == nil {
		t.Fatal("Read should reject a corrupted magic")
	}
}

func TestReadRejectsChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, 1, 1, []Entry{{Path: "/a", Size: 1}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xff
	if _, err := Read(bytes.NewReader(corrupted)); err == nil {
		t.Fatal("Read should reject a checksum mismatch")
	}
}

func TestReadRejectsShortFile(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte("short"))); err == nil {
		t.Fatal("Read should reject a too-short file")
	}
}

func TestPopulateBuildsFreshStore(t *testing.T) {
	s := store.New(3, 100)
	snap := &Snapshot{Entries: []Entry{
		{Path: "/a/one.txt", Size: 1},
		{Path: "/a/two.txt", Size: 2, ChangeRef: 7},
	}}
	Populate(s, snap)

	if ids := s.ExactMatches("one.txt"); len(ids) != 1 {
		t.Errorf("expected one.txt to be indexed, got %v", ids)
	}
	counts := s.DeltaCounts()
	if counts.Added != 0 {
		t.Errorf("Populate should reset delta counters, got %+v", counts)
	}
}
