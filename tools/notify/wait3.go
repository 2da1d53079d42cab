// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var _ = fmt.Print

// reap_children collects the exit status of every watched child that has
// terminated. Only watched pids are waited for so that children started by
// other code, for instance with os/exec, are left alone.
func (self *Notifier) reap_children() {
	for _, pid := range self.agg.wait3_pids {
		var r wait3_result
		wpid, err := unix.Wait4(pid, &r.status, unix.WNOHANG, &r.rusage)
		switch {
		case err == nil && wpid == pid:
			self.pass.wait3[pid] = r
		case errors.Is(err, unix.ECHILD):
			self.log.Warnf("pid %d is not a child of this process, dropping its wait3 conditions", pid)
			self.drop_wait3(pid)
		case err != nil && !errors.Is(err, unix.EINTR):
			self.log.Warnf("waiting for pid %d failed: %s", pid, err)
		}
	}
}

func (self *Notifier) drop_wait3(pid int) {
	key := Key{KIND_WAIT3, pid}
	for _, c := range self.clients {
		self.remove_condition(c, key)
	}
}
