// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/utils"
)

var _ = fmt.Print

// run_private registers a temporary client, lets setup attach its conditions
// and runs the loop until it stops. Callback failures of other clients are
// logged and the wait goes on until satisfied reports true. The client is gone
// on every return path.
func (self *Notifier) run_private(no_delay bool, satisfied func() bool, setup func(c *Client) error) (status Status, err error) {
	c, err := self.Register(math.MinInt)
	if err != nil {
		return STATUS_ERROR, err
	}
	defer func() { _ = self.Remove(c) }()
	if err = setup(c); err != nil {
		return STATUS_ERROR, err
	}
	for {
		status, err = self.Start(no_delay)
		var cerr *CallbackError
		if err == nil || !errors.As(err, &cerr) || cerr.Client == c {
			return
		}
		self.log.Warnf("ignoring while waiting for descriptors: %s", err)
		status, err = STATUS_OK, nil
		switch {
		case self.exit_pending:
			self.set_state(STATE_EXIT_PENDING)
			return STATUS_EXIT_PENDING, nil
		case no_delay || satisfied() || self.stop_requested.Load() || c.state == CLIENT_DESTROYED:
			return
		}
	}
}

// shim_errno turns the failures of the shim itself into what the system call
// would have reported
func shim_errno(err error) error {
	var oserr *OSError
	switch {
	case errors.As(err, &oserr):
		return oserr.Errno
	case errors.Is(err, ErrResourceExhaustion):
		return unix.ENOMEM
	case errors.Is(err, ErrConfiguration):
		return unix.EINVAL
	}
	return err
}

// Read behaves like read(2) but while waiting for fd to become readable the
// notifier keeps dispatching every other client. From inside a callback, or
// for descriptors made non-blocking with Fcntl, it is a plain read(2).
func (self *Notifier) Read(fd int, buf []byte) (int, error) {
	if self.closed.Load() || self.in_start || !utils.ValidSelectFd(fd) || self.fndelay.IsSet(fd) {
		return unix.Read(fd, buf)
	}
	ready := false
	status, err := self.run_private(false, func() bool { return ready }, func(c *Client) error {
		_, err := self.SetInputFunc(c, fd, func(*Client, int) error {
			ready = true
			self.Stop()
			return nil
		})
		return err
	})
	if err != nil {
		return -1, shim_errno(err)
	}
	if !ready || status == STATUS_EXIT_PENDING {
		return -1, unix.EINTR
	}
	return unix.Read(fd, buf)
}

// Select behaves like select(2), rewriting the sets to the ready descriptors,
// while the notifier keeps dispatching every other client
func (self *Notifier) Select(nfd int, r, w, e *unix.FdSet, timeout *unix.Timeval) (int, error) {
	if self.closed.Load() || self.in_start {
		d := time.Duration(-1)
		if timeout != nil {
			d = utils.TimevalToDuration(*timeout)
		}
		return utils.Select(nfd, r, w, e, d)
	}
	if nfd < 0 || nfd > unix.FD_SETSIZE {
		return -1, unix.EINVAL
	}
	no_delay := false
	if timeout != nil {
		if timeout.Sec < 0 || timeout.Usec < 0 {
			return -1, unix.EINVAL
		}
		no_delay = timeout.Sec == 0 && timeout.Usec == 0
	}
	var rr, wr, er unix.FdSet
	count := 0
	mark := func(set *unix.FdSet) FdFunc {
		return func(_ *Client, fd int) error {
			if !set.IsSet(fd) {
				set.Set(fd)
				count++
			}
			self.Stop()
			return nil
		}
	}
	timed_out := false
	_, err := self.run_private(no_delay, func() bool { return count > 0 || timed_out }, func(c *Client) error {
		for fd := range nfd {
			for _, x := range []struct {
				in, out *unix.FdSet
				cond    func(int, FdFunc) Condition
			}{
				{r, &rr, func(fd int, f FdFunc) Condition { return &Input{Fd: fd, Func: f} }},
				{w, &wr, func(fd int, f FdFunc) Condition { return &Output{Fd: fd, Func: f} }},
				{e, &er, func(fd int, f FdFunc) Condition { return &Exception{Fd: fd, Func: f} }},
			} {
				if x.in != nil && x.in.IsSet(fd) {
					if _, err := self.SetCondition(c, x.cond(fd, mark(x.out))); err != nil {
						return err
					}
				}
			}
		}
		if timeout != nil && !no_delay {
			_, err := self.SetItimerFunc(c, REAL, utils.TimevalToDuration(*timeout), 0, func(*Client, Which) error {
				timed_out = true
				self.Stop()
				return nil
			})
			return err
		}
		return nil
	})
	if err != nil {
		return -1, shim_errno(err)
	}
	for _, x := range []struct{ in, out *unix.FdSet }{{r, &rr}, {w, &wr}, {e, &er}} {
		if x.in != nil {
			*x.in = *x.out
		}
	}
	return count, nil
}

// Fcntl is fcntl(2) with an integer argument. O_NONBLOCK and O_ASYNC set
// through it are remembered: Read does not wait on non-blocking descriptors
// and SIGIO checks async input descriptors for pending bytes.
func (self *Notifier) Fcntl(fd int, cmd int, arg int) (int, error) {
	val, err := unix.FcntlInt(uintptr(fd), cmd, arg)
	if err != nil || cmd != unix.F_SETFL || !utils.ValidSelectFd(fd) || self.closed.Load() {
		return val, err
	}
	if arg&unix.O_NONBLOCK != 0 {
		self.fndelay.Set(fd)
	} else {
		self.fndelay.Clear(fd)
	}
	if arg&unix.O_ASYNC != 0 {
		self.fasync.Set(fd)
	} else {
		self.fasync.Clear(fd)
	}
	self.changed |= CHANGED_FDS
	return val, nil
}
