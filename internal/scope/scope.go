// Package scope encodes a Scope as a tagged variant so that snapshot
// filenames, acquisition strategy, and status labels all dispatch on
// it uniformly (spec §9 design note).
package scope

import (
	"fmt"
	"hash/fnv"

	"github.com/wizmini/wizmini/internal/volume"
)

// Kind distinguishes the four scope variants.
type Kind int

const (
	// CurrentDir indexes a single directory tree with the Walker
	// only; no live tracking is attempted.
	CurrentDir Kind = iota
	// Volume indexes one local volume root by letter/mount point,
	// preferring the Volume Reader with Walker fallback.
	Volume
	// AllVolumes is the union of every fixed local volume.
	AllVolumes
	// Custom indexes an arbitrary directory tree chosen by the user,
	// same acquisition strategy as CurrentDir.
	Custom
)

func (k Kind) String() string {
	switch k {
	case CurrentDir:
		return "current"
	case Volume:
		return "volume"
	case AllVolumes:
		return "all"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Scope is the tagged value identifying what a Path Store covers.
type Scope struct {
	Kind Kind
	// Path holds the directory for CurrentDir/Custom.
	Path string
	// Letter holds the volume identifier for Volume (e.g. "C:").
	Letter string
}

func NewCurrentDir(path string) Scope { return Scope{Kind: CurrentDir, Path: path} }
func NewCustom(path string) Scope     { return Scope{Kind: Custom, Path: path} }
func NewVolume(letter string) Scope   { return Scope{Kind: Volume, Letter: letter} }
func NewAllVolumes() Scope            { return Scope{Kind: AllVolumes} }

// UsesVolumeReader reports whether this scope should attempt the
// Volume Reader before falling back to the Walker.
func (s Scope) UsesVolumeReader() bool {
	return s.Kind == Volume || s.Kind == AllVolumes
}

// Roots returns the filesystem roots the Walker (or, per root, the
// Volume Reader) should cover for this scope. AllVolumes resolves to
// every fixed local volume via the platform-specific enumeration in
// internal/volume (spec §4.4); a failure there is treated as "no
// volumes found" rather than propagated, since Roots has no error
// return and callers already handle an empty root list as a no-op.
func (s Scope) Roots() []string {
	switch s.Kind {
	case CurrentDir, Custom:
		return []string{s.Path}
	case Volume:
		return []string{s.Letter + `\`}
	case AllVolumes:
		roots, err := volume.ListLocalRoots()
		if err != nil {
			return nil
		}
		return roots
	default:
		return nil
	}
}

// Label returns the user-facing identifier for this scope, used for
// status lines and as input to Hash.
func (s Scope) Label() string {
	switch s.Kind {
	case CurrentDir:
		return "current:" + s.Path
	case Custom:
		return "custom:" + s.Path
	case Volume:
		return "volume:" + s.Letter
	case AllVolumes:
		return "all"
	default:
		return "unknown"
	}
}

// Hash returns a stable 32-bit hash of the scope, used to name the
// per-scope snapshot and checkpoint files (spec §6).
func (s Scope) Hash() uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s.Label()))
	return h.Sum32()
}

// SnapshotName returns the "scope-<hash>" stem used for both the
// snapshot and journal checkpoint filenames.
func (s Scope) SnapshotName() string {
	return fmt.Sprintf("scope-%08x", s.Hash())
}
