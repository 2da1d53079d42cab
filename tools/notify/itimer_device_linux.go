// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

//go:build linux

package notify

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/utils"
)

type os_itimer_device struct{}

func to_unix_which(which Which) unix.ItimerWhich {
	if which == VIRTUAL {
		return unix.ItimerVirtual
	}
	return unix.ItimerReal
}

func (os_itimer_device) Program(which Which, d time.Duration) error {
	_, err := unix.Setitimer(to_unix_which(which), unix.Itimerval{Value: utils.NsecToTimeval(d)})
	return err
}

func (os_itimer_device) Remaining(which Which) (time.Duration, error) {
	it, err := unix.Getitimer(to_unix_which(which))
	if err != nil {
		return 0, err
	}
	return utils.TimevalToDuration(it.Value), nil
}

func (os_itimer_device) Signals(Which) bool { return true }

func default_itimer_device() itimer_device { return os_itimer_device{} }
