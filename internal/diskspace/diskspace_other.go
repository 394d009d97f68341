//go:build !linux

package diskspace

// Free always reports ok=false outside linux: the caller treats that
// as "cannot determine, proceed without the guard."
func Free(path string) (bytesFree uint64, ok bool) {
	return 0, false
}
