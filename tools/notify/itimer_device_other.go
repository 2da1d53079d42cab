// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

//go:build !linux

package notify

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// soft_itimer_device has no kernel timer behind it: the real timer is honoured
// through the select timeout and the virtual one by sampling process CPU time
type soft_itimer_device struct {
	programmed [2]time.Duration
	cpu_base   time.Duration
	proc       func() (*process.Process, error)
}

func (self *soft_itimer_device) cpu_time() (time.Duration, error) {
	p, err := self.proc()
	if err != nil {
		return 0, err
	}
	t, err := p.Times()
	if err != nil {
		return 0, err
	}
	return time.Duration(t.User * float64(time.Second)), nil
}

func (self *soft_itimer_device) Program(which Which, d time.Duration) (err error) {
	self.programmed[which] = d
	if which == VIRTUAL && d > 0 {
		self.cpu_base, err = self.cpu_time()
	}
	return
}

func (self *soft_itimer_device) Remaining(which Which) (time.Duration, error) {
	if which == REAL || self.programmed[which] == 0 {
		return self.programmed[which], nil
	}
	now, err := self.cpu_time()
	if err != nil {
		return 0, err
	}
	return max(0, self.programmed[which]-(now-self.cpu_base)), nil
}

func (self *soft_itimer_device) Signals(Which) bool { return false }

func default_itimer_device() itimer_device {
	return &soft_itimer_device{proc: sync.OnceValues(func() (*process.Process, error) {
		return process.NewProcess(int32(os.Getpid()))
	})}
}
