//go:build linux || darwin

package fileid

import (
	"os"
	"syscall"
)

// FromFileInfo extracts the (device, inode) pair from an os.FileInfo's
// platform-specific Sys() value, the same syscall.Stat_t cast the
// teacher's fstesting package uses to assert on Nlink/Uid/Gid (see
// fs/fstesting/local_modifications.go). Returns Zero if Sys() is not a
// *syscall.Stat_t (e.g. a non-Unix FileInfo).
func FromFileInfo(info os.FileInfo) DeviceInode {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Zero
	}
	return DeviceInode{Device: uint64(st.Dev), Inode: st.Ino}
}
