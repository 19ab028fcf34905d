//go:build windows

package volume

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const driveTypeFixed = 3 // DRIVE_FIXED, per GetDriveTypeW

var (
	modkernel32       = syscall.NewLazyDLL("kernel32.dll")
	procGetDriveTypeW = modkernel32.NewProc("GetDriveTypeW")
)

// ListLocalRoots enumerates every fixed local drive letter (spec
// §4.4's scope.AllVolumes, "the union of every fixed local volume"),
// the same two-call GetLogicalDrives/GetDriveTypeW idiom Explorer and
// most backup tools use to skip removable, network, optical, and RAM
// drives.
func ListLocalRoots() ([]string, error) {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil, err
	}

	var roots []string
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		root := string(rune('A'+i)) + `:\`
		u16, err := syscall.UTF16PtrFromString(root)
		if err != nil {
			continue
		}
		ret, _, _ := procGetDriveTypeW.Call(uintptr(unsafe.Pointer(u16)))
		if uint32(ret) != driveTypeFixed {
			continue
		}
		roots = append(roots, root)
	}
	return roots, nil
}
