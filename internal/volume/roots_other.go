//go:build !windows

package volume

import (
	"bufio"
	"os"
	"strings"
)

// pseudoFilesystems lists the mount types /proc/mounts carries that
// are not fixed local storage: virtual, network, and bind-mount-style
// filesystems a volume enumeration has no business indexing.
var pseudoFilesystems = map[string]bool{
	"proc": true, "sysfs": true, "devtmpfs": true, "devpts": true,
	"tmpfs": true, "cgroup": true, "cgroup2": true, "pstore": true,
	"securityfs": true, "debugfs": true, "tracefs": true, "mqueue": true,
	"overlay": true, "squashfs": true, "autofs": true, "binfmt_misc": true,
	"nfs": true, "nfs4": true, "cifs": true, "smbfs": true, "fuse.sshfs": true,
}

// ListLocalRoots enumerates fixed local mount points from
// /proc/mounts (spec §4.4's scope.AllVolumes on platforms with no
// drive-letter concept), skipping the pseudo and network filesystems
// above. Falls back to "/" alone if /proc/mounts can't be read, since
// there is always at least a root filesystem to index.
func ListLocalRoots() ([]string, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return []string{"/"}, nil
	}
	defer f.Close()

	var roots []string
	seen := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := fields[1], fields[2]
		if pseudoFilesystems[fsType] {
			continue
		}
		if !strings.HasPrefix(mountPoint, "/") {
			continue
		}
		if seen[mountPoint] {
			continue
		}
		seen[mountPoint] = true
		roots = append(roots, mountPoint)
	}
	if len(roots) == 0 {
		return []string{"/"}, nil
	}
	return roots, nil
}
