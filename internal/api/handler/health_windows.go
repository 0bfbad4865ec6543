//go:build windows

package handler

import "golang.org/x/sys/windows"

func getDiskStats(path string) (total, free int64, usedPct float64) {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, 0
	}
	var freeBytes, totalBytes, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeBytes, &totalBytes, &totalFree); err != nil {
		return 0, 0, 0
	}
	total, free = int64(totalBytes), int64(freeBytes)
	if total > 0 {
		usedPct = float64(total-free) / float64(total) * 100
	}
	return total, free, usedPct
}
