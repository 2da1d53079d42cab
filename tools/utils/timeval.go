// License: GPLv3 Copyright: 2022, Kovid Goyal, <kovid at kovidgoyal.net>

package utils

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// NsecToTimeval rounds up to the next microsecond so that a wait is never
// shorter than requested
func NsecToTimeval(d time.Duration) unix.Timeval {
	nv := syscall.NsecToTimeval(int64(d))
	return unix.Timeval{Sec: nv.Sec, Usec: nv.Usec}
}

func NsecToTimespec(d time.Duration) unix.Timespec {
	return unix.NsecToTimespec(int64(d))
}

func TimevalToDuration(tv unix.Timeval) time.Duration {
	return time.Duration(tv.Nano())
}
