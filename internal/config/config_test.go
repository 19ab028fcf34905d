package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	tuning, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tuning.PrefixLength != 3 {
		t.Errorf("PrefixLength = %d, want default 3", tuning.PrefixLength)
	}
}

func TestSaveLoadRoundTripsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	want := Default()
	want.PrefixLength = 5
	want.JournalPollInterval = 10 * time.Second

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.PrefixLength != 5 {
		t.Errorf("PrefixLength = %d, want 5", got.PrefixLength)
	}
	if got.JournalPollInterval != 10*time.Second {
		t.Errorf("JournalPollInterval = %v, want 10s", got.JournalPollInterval)
	}
	// Unset fields in the saved file still come back as the saved
	// value (zero overrides do not reset a written default).
	if got.RenamePairingWindow != want.RenamePairingWindow {
		t.Errorf("RenamePairingWindow = %v, want %v", got.RenamePairingWindow, want.RenamePairingWindow)
	}
}
