//go:build linux

package diskspace

import "syscall"

// Free reports the bytes available to an unprivileged process on the
// filesystem containing path. ok is false when the check could not be
// performed, in which case the caller should skip the disk-space
// guard rather than fail the build on an unrelated syscall error.
func Free(path string) (bytesFree uint64, ok bool) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, false
	}
	return stat.Bavail * uint64(stat.Bsize), true
}
