//go:build windows

// Package usnwire holds the NTFS/ReFS USN journal wire structures
// shared by the Volume Reader (MFT enumeration) and the Change
// Journal Replayer (live journal reads), so the two don't each define
// their own copy of the same record layout.
//
// Grounded on other_examples/7d94ea3c_fsnotify-fsnotify__backend_usn.go.go.
package usnwire

// RecordV4 mirrors USN_RECORD_V4. FileName is a variable-length
// trailer and is parsed separately by the caller.
type RecordV4 struct {
	RecordLength              uint32
	MajorVersion              uint16
	MinorVersion              uint16
	FileReferenceNumber       uint64
	ParentFileReferenceNumber uint64
	Usn                       int64
	TimeStamp                 int64
	Reason                    uint32
	SourceInfo                uint32
	SecurityID                uint32
	FileAttributes            uint32
	FileNameLength            uint16
	FileNameOffset            uint16
}

const FileAttributeDirectory = 0x10

// Reason bits, shared between MFT enumeration (attributes only carry
// Create-equivalent state) and live journal reads (which see all of
// these).
const (
	ReasonFileCreate    = 0x00000100
	ReasonFileDelete    = 0x00000200
	ReasonRenameOldName = 0x00001000
	ReasonRenameNewName = 0x00002000
	ReasonDataChange    = 0x00000001 | 0x00000002 | 0x00000004
)

// FiletimeToUnixMs converts a FILETIME-scaled timestamp (100ns ticks
// since 1601-01-01, as USN records carry) to Unix milliseconds.
func FiletimeToUnixMs(ft int64) int64 {
	const epochDiffMs = 11644473600000
	return ft/10000 - epochDiffMs
}
