// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

//go:build linux

package notify

import (
	"golang.org/x/sys/unix"
)

// bytes_readable is the number of bytes that can be read from fd without blocking
func bytes_readable(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCINQ)
}
