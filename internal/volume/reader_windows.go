//go:build windows

package volume

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/wizmini/wizmini/internal/usnwire"
	"github.com/wizmini/wizmini/internal/wizerr"
)

var osStat = os.Stat

// Windows ioctl codes for MFT/USN access. See
// https://learn.microsoft.com/windows/win32/api/winioctl/ni-winioctl-fsctl_query_usn_journal
// https://learn.microsoft.com/windows/win32/api/winioctl/ni-winioctl-fsctl_enum_usn_data
const (
	fsctlQueryUSNJournal = 0x000900F4
	fsctlEnumUSNData     = 0x000900B3

	maxRecordBufferSize = 65536
)

type queryUSNJournalData struct {
	UsnJournalID    uint64
	FirstUsn        int64
	NextUsn         int64
	LowestValidUsn  int64
	MaxUsn          int64
	MaximumSize     uint64
	AllocationDelta uint64
}

type mftEnumDataV0 struct {
	StartFileReferenceNumber uint64
	LowUsn                   int64
	HighUsn                  int64
}

type windowsReader struct{}

func newReader() Reader { return windowsReader{} }

func (windowsReader) Enumerate(ctx context.Context, cfg Config, refs *RefIndex) (Checkpoint, error) {
	const op = "volume.Enumerate"
	volumePath := filepath.VolumeName(cfg.Root)
	if volumePath == "" {
		volumePath = cfg.Root
	}

	handle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(fmt.Sprintf(`\\.\%s`, volumePath)),
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return Checkpoint{}, wizerr.New(wizerr.JournalUnavailable, op, fmt.Errorf("open volume %s: %w", volumePath, err))
	}
	defer windows.CloseHandle(handle)

	var journal queryUSNJournalData
	var bytesReturned uint32
	if err := windows.DeviceIoControl(handle, fsctlQueryUSNJournal, nil, 0,
		(*byte)(unsafe.Pointer(&journal)), uint32(unsafe.Sizeof(journal)), &bytesReturned, nil); err != nil {
		return Checkpoint{}, wizerr.New(wizerr.JournalUnavailable, op, fmt.Errorf("query USN journal on %s: %w", volumePath, err))
	}

	checkpoint := Checkpoint{JournalID: journal.UsnJournalID, NextUSN: journal.NextUsn}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	batch := make([]Entry, 0, cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := cfg.OnBatch(batch)
		batch = batch[:0]
		return err
	}

	enumData := mftEnumDataV0{StartFileReferenceNumber: 0, LowUsn: 0, HighUsn: journal.NextUsn}
	buf := make([]byte, maxRecordBufferSize)

	for {
		select {
		case <-ctx.Done():
			return checkpoint, ctx.Err()
		default:
		}

		var n uint32
		err := windows.DeviceIoControl(handle, fsctlEnumUSNData,
			(*byte)(unsafe.Pointer(&enumData)), uint32(unsafe.Sizeof(enumData)),
			&buf[0], uint32(len(buf)), &n, nil)
		if err != nil {
			if err == windows.ERROR_HANDLE_EOF {
				break
			}
			l.Debugf("recoverable acquisition error enumerating MFT on %s: %v", volumePath, err)
			break
		}
		if n <= 8 {
			break
		}

		nextStart := *(*uint64)(unsafe.Pointer(&buf[0]))
		offset := uint32(8)
		for offset+8 <= n {
			rec := (*usnwire.RecordV4)(unsafe.Pointer(&buf[offset]))
			if rec.RecordLength == 0 || offset+rec.RecordLength > n {
				break
			}

			nameOff := offset + uint32(rec.FileNameOffset)
			nameLen := uint32(rec.FileNameLength)
			if nameOff+nameLen <= n && nameLen > 0 {
				nameBytes := buf[nameOff : nameOff+nameLen]
				u16 := (*[1 << 15]uint16)(unsafe.Pointer(&nameBytes[0]))[: nameLen/2 : nameLen/2]
				name := windows.UTF16ToString(u16)
				path := refs.Join(rec.ParentFileReferenceNumber, name)
				refs.Put(rec.FileReferenceNumber, path)

				if rec.FileAttributes&usnwire.FileAttributeDirectory == 0 {
					// USN_RECORD_V4 does not carry file size; stat
					// it directly rather than adding a second ioctl
					// round trip per record.
					var size uint64
					if fi, err := osStat(path); err == nil {
						size = uint64(fi.Size())
					}
					batch = append(batch, Entry{
						Path:    path,
						Size:    size,
						MtimeMs: usnwire.FiletimeToUnixMs(rec.TimeStamp),
						FileRef: rec.FileReferenceNumber,
					})
					if len(batch) >= cfg.BatchSize {
						if err := flush(); err != nil {
							return checkpoint, err
						}
					}
				}
			}

			offset += rec.RecordLength
		}

		enumData.StartFileReferenceNumber = nextStart
	}

	if err := flush(); err != nil {
		return checkpoint, err
	}
	return checkpoint, nil
}
