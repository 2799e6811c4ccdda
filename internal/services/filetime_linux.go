//go:build linux

package services

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// creationTime returns the birth time of path. Filesystems that do not
// record a birth time report the modification time instead.
func creationTime(path string, info os.FileInfo) (time.Time, error) {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx); err != nil {
		return time.Time{}, err
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return info.ModTime(), nil
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), nil
}
