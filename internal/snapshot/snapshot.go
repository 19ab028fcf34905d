// Package snapshot implements the Snapshot Codec (spec §4.2, §6): a
// versioned binary encoding of a Path Store plus the change-journal
// checkpoint it was captured at, so a warm start can resume the
// Replayer instead of re-enumerating the volume.
//
// Layout (little-endian): spec §6's header and entries, followed by a
// CRC-32 trailer:
//
//	magic       [4]byte  "WZMN"
//	version     uint16
//	scopeHash   uint32
//	entryCount  uint64
//	lastSeq     uint64
//	entries     entryCount * entry
//	checksum    uint32 (CRC-32-IEEE of everything above)
//
// entry:
//
//	pathLen  uint32
//	path     pathLen bytes
//	size     uint64
//	mtimeMs  int64
//	changeRef uint64
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/wizmini/wizmini/internal/logger"
	"github.com/wizmini/wizmini/internal/store"
	"github.com/wizmini/wizmini/internal/wizerr"
)

var l = logger.DefaultLogger.NewFacility("snapshot", "path store binary codec")

const (
	magic          = "WZMN"
	currentVersion = uint16(1)
)

// Entry is the decoded on-disk representation of one store.Entry.
type Entry struct {
	Path      string
	Size      uint64
	MtimeMs   int64
	ChangeRef uint64
}

// Snapshot is the fully decoded payload of a snapshot file.
type Snapshot struct {
	ScopeHash  uint32
	LastSeq    uint64
	Entries    []Entry
}

// Write encodes entries to w along with scopeHash and lastSeq (spec
// §4.2's journal checkpoint).
func Write(w io.Writer, scopeHash uint32, lastSeq uint64, entries []Entry) error {
	var buf bytes.Buffer
	buf.WriteString(magic)
	_ = binary.Write(&buf, binary.LittleEndian, currentVersion)
	_ = binary.Write(&buf, binary.LittleEndian, scopeHash)
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(entries)))
	_ = binary.Write(&buf, binary.LittleEndian, lastSeq)

	for _, e := range entries {
		pathBytes := []byte(e.Path)
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pathBytes)))
		buf.Write(pathBytes)
		_ = binary.Write(&buf, binary.LittleEndian, e.Size)
		_ = binary.Write(&buf, binary.LittleEndian, e.MtimeMs)
		_ = binary.Write(&buf, binary.LittleEndian, e.ChangeRef)
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, sum)
}

// FromStore extracts the Write-ready entry list from a live store
// handle (spec §4.2's serialization path, invoked on clean shutdown
// or reindex completion).
func FromStore(h *store.ReadHandle) []Entry {
	out := make([]Entry, 0, h.Len())
	h.All(func(_ store.EntryID, e store.Entry) bool {
		out = append(out, Entry{Path: e.Path, Size: e.Size, MtimeMs: e.MtimeMs, ChangeRef: e.ChangeRef})
		return true
	})
	return out
}

// Read decodes a snapshot. Any structural problem (bad magic,
// unsupported version, short read, checksum mismatch) is reported as
// a *wizerr.Error of kind SnapshotCorrupt; per spec §4.2 the caller
// must treat this as non-fatal and fall back to full acquisition.
func Read(r io.Reader) (*Snapshot, error) {
	const op = "snapshot.Read"
	br := bufio.NewReader(r)

	raw, err := io.ReadAll(br)
	if err != nil {
		return nil, wizerr.New(wizerr.SnapshotCorrupt, op, err)
	}
	if len(raw) < len(magic)+2+4+8+8+4 {
		return nil, wizerr.New(wizerr.SnapshotCorrupt, op, fmt.Errorf("short file: %d bytes", len(raw)))
	}

	body, wantSum := raw[:len(raw)-4], binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if gotSum := crc32.ChecksumIEEE(body); gotSum != wantSum {
		return nil, wizerr.New(wizerr.SnapshotCorrupt, op, fmt.Errorf("checksum mismatch: got %x want %x", gotSum, wantSum))
	}

	buf := bytes.NewReader(body)
	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(buf, hdr); err != nil || string(hdr) != magic {
		return nil, wizerr.New(wizerr.SnapshotCorrupt, op, fmt.Errorf("bad magic %q", hdr))
	}

	var version uint16
	if err := binary.Read(buf, binary.LittleEndian, &version); err != nil {
		return nil, wizerr.New(wizerr.SnapshotCorrupt, op, err)
	}
	if version != currentVersion {
		return nil, wizerr.New(wizerr.SnapshotCorrupt, op, fmt.Errorf("version mismatch: got %d want %d", version, currentVersion))
	}

	snap := &Snapshot{}
	if err := binary.Read(buf, binary.LittleEndian, &snap.ScopeHash); err != nil {
		return nil, wizerr.New(wizerr.SnapshotCorrupt, op, err)
	}
	var count uint64
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, wizerr.New(wizerr.SnapshotCorrupt, op, err)
	}
	if err := binary.Read(buf, binary.LittleEndian, &snap.LastSeq); err != nil {
		return nil, wizerr.New(wizerr.SnapshotCorrupt, op, err)
	}

	snap.Entries = make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		var pathLen uint32
		if err := binary.Read(buf, binary.LittleEndian, &pathLen); err != nil {
			return nil, wizerr.New(wizerr.SnapshotCorrupt, op, err)
		}
		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(buf, pathBytes); err != nil {
			return nil, wizerr.New(wizerr.SnapshotCorrupt, op, err)
		}
		var e Entry
		e.Path = string(pathBytes)
		if err := binary.Read(buf, binary.LittleEndian, &e.Size); err != nil {
			return nil, wizerr.New(wizerr.SnapshotCorrupt, op, err)
		}
		if err := binary.Read(buf, binary.LittleEndian, &e.MtimeMs); err != nil {
			return nil, wizerr.New(wizerr.SnapshotCorrupt, op, err)
		}
		if err := binary.Read(buf, binary.LittleEndian, &e.ChangeRef); err != nil {
			return nil, wizerr.New(wizerr.SnapshotCorrupt, op, err)
		}
		snap.Entries = append(snap.Entries, e)
	}

	l.Debugf("decoded snapshot: %d entries, checkpoint=%d", len(snap.Entries), snap.LastSeq)
	return snap, nil
}

// Populate inserts every decoded entry into a fresh store.Store. It
// does not attempt to preserve the original entry ids: a reload
// always starts a new id sequence (spec §3: "ids are invalidated by
// snapshot reload ... ").
func Populate(s *store.Store, snap *Snapshot) {
	for _, e := range snap.Entries {
		id := s.Insert(e.Path, e.Size, e.MtimeMs)
		if e.ChangeRef != 0 {
			ref := e.ChangeRef
			s.Update(id, e.Size, e.MtimeMs, &ref)
		}
	}
	s.ResetDeltaCounts()
}
