// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

//go:build !linux

package notify

import (
	"golang.org/x/sys/unix"
)

// _IOR('f', 127, int), the same on darwin and the BSDs
const fionread_request = 0x4004667f

func bytes_readable(fd int) (int, error) {
	return unix.IoctlGetInt(fd, fionread_request)
}
