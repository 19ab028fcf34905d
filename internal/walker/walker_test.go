package walker

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkVisitsAllFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), 4)
	writeFile(t, filepath.Join(root, "dir1", "b.txt"), 5)
	writeFile(t, filepath.Join(root, "dir1", "dir2", "c.txt"), 6)

	var got []Entry
	err := Walk(context.Background(), Config{
		Root:      root,
		BatchSize: 2,
		OnBatch: func(batch []Entry) error {
			got = append(got, batch...)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(got), got)
	}
	for _, e := range got {
		if e.Size == 0 {
			t.Errorf("entry %s has zero size", e.Path)
		}
		if e.MtimeMs == 0 {
			t.Errorf("entry %s has zero mtime", e.Path)
		}
	}
}

func TestWalkRespectsCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, filepath.Join(root, "f"+string(rune('a'+i%26))+string(rune(i)), "x.txt"), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	seen := 0
	err := Walk(ctx, Config{
		Root:      root,
		BatchSize: 1,
		OnBatch: func(batch []Entry) error {
			seen += len(batch)
			if seen >= 3 {
				cancel()
			}
			return nil
		},
	})
	if err == nil {
		t.Fatal("Walk should report the cancellation error")
	}
	if seen >= 50 {
		t.Error("Walk should have stopped early after cancellation")
	}
}

func TestWalkSkipsSymlinkLeavingScope(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs elevated privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "secret.txt"), 1)
	writeFile(t, filepath.Join(root, "inside.txt"), 1)

	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Fatal(err)
	}

	var got []Entry
	err := Walk(context.Background(), Config{
		Root:      root,
		BatchSize: 100,
		OnBatch: func(batch []Entry) error {
			got = append(got, batch...)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	for _, e := range got {
		if filepath.Base(e.Path) == "secret.txt" {
			t.Error("walk should not follow a symlinked directory leaving the scope")
		}
	}
}

func TestWalkContinuesPastPermissionError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root can read anything, so permission errors won't occur")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "visible.txt"), 1)
	blocked := filepath.Join(root, "blocked")
	writeFile(t, filepath.Join(blocked, "hidden.txt"), 1)
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(blocked, 0o755)

	var got []Entry
	err := Walk(context.Background(), Config{
		Root:      root,
		BatchSize: 100,
		OnBatch: func(batch []Entry) error {
			got = append(got, batch...)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Walk should continue past a recoverable permission error, got: %v", err)
	}
	found := false
	for _, e := range got {
		if filepath.Base(e.Path) == "visible.txt" {
			found = true
		}
	}
	if !found {
		t.Error("walk should still find entries outside the blocked directory")
	}
}
