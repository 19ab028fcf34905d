package volume

import (
	"path/filepath"
	"testing"
)

func TestRefIndexJoinAndPut(t *testing.T) {
	r := NewRefIndex()
	r.Put(1, `C:\Users\alice`)
	if got := r.Join(1, "readme.txt"); got != `C:\Users\alice`+string(filepath.Separator)+"readme.txt" {
		t.Errorf("Join = %q", got)
	}
	if got := r.Join(999, "orphan.txt"); got != "orphan.txt" {
		t.Errorf("Join with unknown parent = %q, want bare name", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	r.Delete(1)
	if _, ok := r.Get(1); ok {
		t.Error("Get should fail after Delete")
	}
}

func TestNewReaderIsUsable(t *testing.T) {
	reader := New()
	if reader == nil {
		t.Fatal("New returned nil")
	}
}

