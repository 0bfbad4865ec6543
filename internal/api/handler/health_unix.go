//go:build !windows

package handler

import "golang.org/x/sys/unix"

// getDiskStats returns total and available bytes for the volume holding path.
// Zeros mean the path could not be inspected.
func getDiskStats(path string) (total, free int64, usedPct float64) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, 0, 0
	}
	total = int64(fs.Blocks) * int64(fs.Bsize)
	free = int64(fs.Bavail) * int64(fs.Bsize)
	if total > 0 {
		usedPct = float64(total-free) / float64(total) * 100
	}
	return total, free, usedPct
}
