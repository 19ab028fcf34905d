// Package config holds the tuning knobs the rest of the engine reads
// at startup, grounded on syncthing's lib/config: a plain struct with
// defaults applied on load, passed by value to its consumers.
package config

import (
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// Tuning is the set of engine-wide constants spec.md leaves as small
// fixed values (§4.1 accelerator prefix length, §4.5 rename window,
// §9 Open Question on configurability).
type Tuning struct {
	// PrefixLength is k in spec §3's prefix_by_name accelerator.
	PrefixLength int `json:"prefixLength"`
	// RenamePairingWindow bounds how long a buffered rename-old-name
	// record waits for its paired rename-new-name (spec §4.5).
	RenamePairingWindow time.Duration `json:"renamePairingWindow"`
	// JournalPollInterval is how often the Replayer polls the change
	// journal for new records.
	JournalPollInterval time.Duration `json:"journalPollInterval"`
	// CheckpointInterval is the cadence at which the Replayer
	// persists its last-applied sequence number (spec §4.5).
	CheckpointInterval time.Duration `json:"checkpointInterval"`
	// AcquisitionBatchSize bounds how many entries the Walker or
	// Volume Reader process before yielding to a cancellation check
	// (spec §4.3, §5).
	AcquisitionBatchSize int `json:"acquisitionBatchSize"`
	// SearchChunkBudget bounds how many entries the Search Worker
	// scans between cancellation checks and chunk emissions (spec
	// §4.7).
	SearchChunkBudget int `json:"searchChunkBudget"`
	// RecentChangesCapacity bounds the recent_changes FIFO used to
	// service /latest without a full scan (spec §3).
	RecentChangesCapacity int `json:"recentChangesCapacity"`
	// SnapshotDir is the per-user application directory snapshots
	// and checkpoints are written under (spec §6).
	SnapshotDir string `json:"snapshotDir"`
}

// Default returns the tuning defaults used when no config file is
// present or a field is left zero-valued in a loaded one.
func Default() Tuning {
	return Tuning{
		PrefixLength:          3,
		RenamePairingWindow:   5 * time.Second,
		JournalPollInterval:   2 * time.Second,
		CheckpointInterval:    30 * time.Second,
		AcquisitionBatchSize:  1000,
		SearchChunkBudget:     2000,
		RecentChangesCapacity: 4096,
		SnapshotDir:           defaultSnapshotDir(),
	}
}

func defaultSnapshotDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return dir + "/wizmini"
}

// Load reads a YAML tuning document from path, applying Default()
// for any zero-valued field. A missing file is not an error; it
// yields the defaults, matching the teacher's "no config yet, use
// defaults" first-run behavior.
func Load(path string) (Tuning, error) {
	t := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return Tuning{}, err
	}
	var overrides Tuning
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return Tuning{}, err
	}
	mergeNonZero(&t, overrides)
	return t, nil
}

func mergeNonZero(t *Tuning, o Tuning) {
	if o.PrefixLength != 0 {
		t.PrefixLength = o.PrefixLength
	}
	if o.RenamePairingWindow != 0 {
		t.RenamePairingWindow = o.RenamePairingWindow
	}
	if o.JournalPollInterval != 0 {
		t.JournalPollInterval = o.JournalPollInterval
	}
	if o.CheckpointInterval != 0 {
		t.CheckpointInterval = o.CheckpointInterval
	}
	if o.AcquisitionBatchSize != 0 {
		t.AcquisitionBatchSize = o.AcquisitionBatchSize
	}
	if o.SearchChunkBudget != 0 {
		t.SearchChunkBudget = o.SearchChunkBudget
	}
	if o.RecentChangesCapacity != 0 {
		t.RecentChangesCapacity = o.RecentChangesCapacity
	}
	if o.SnapshotDir != "" {
		t.SnapshotDir = o.SnapshotDir
	}
}

// Save writes t as YAML to path.
func Save(path string, t Tuning) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
