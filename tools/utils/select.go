// License: GPLv3 Copyright: 2022, Kovid Goyal, <kovid at kovidgoyal.net>

package utils

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

var _ = fmt.Print

// Selector holds the interest sets for a select(2) call and the ready sets
// from the most recent Wait. Interest sets are only rebuilt by their owner,
// the ready sets are overwritten by every Wait.
type Selector struct {
	read_set, write_set, err_set unix.FdSet
	read_fds, write_fds, err_fds unix.FdSet
	max_fd                       int
}

func CreateSelect() *Selector {
	return &Selector{max_fd: -1}
}

func ValidSelectFd(fd int) bool {
	return fd > -1 && fd < unix.FD_SETSIZE
}

func (self *Selector) register(fd int, fdset *unix.FdSet) {
	if ValidSelectFd(fd) {
		fdset.Set(fd)
		self.max_fd = max(self.max_fd, fd)
	}
}

func (self *Selector) RegisterRead(fd int) {
	self.register(fd, &self.read_fds)
}

func (self *Selector) RegisterWrite(fd int) {
	self.register(fd, &self.write_fds)
}

func (self *Selector) RegisterError(fd int) {
	self.register(fd, &self.err_fds)
}

func (self *Selector) unregister(fd int, fdset *unix.FdSet) {
	if ValidSelectFd(fd) {
		fdset.Clear(fd)
	}
}

func (self *Selector) UnRegisterRead(fd int) {
	self.unregister(fd, &self.read_fds)
}

func (self *Selector) UnRegisterWrite(fd int) {
	self.unregister(fd, &self.write_fds)
}

func (self *Selector) UnRegisterError(fd int) {
	self.unregister(fd, &self.err_fds)
}

func (self *Selector) IsRegisteredForRead(fd int) bool {
	return ValidSelectFd(fd) && self.read_fds.IsSet(fd)
}

// MaxFd is an upper bound on the registered descriptors, -1 when nothing
// was ever registered since the last UnregisterAll
func (self *Selector) MaxFd() int {
	return self.max_fd
}

// Wait blocks in select(2) for at most timeout, a negative timeout blocks
// forever. EINTR is returned as is with all ready sets cleared so that the
// caller can process whatever signal interrupted it.
func (self *Selector) Wait(timeout time.Duration) (num_ready int, err error) {
	self.read_set, self.write_set, self.err_set = self.read_fds, self.write_fds, self.err_fds
	num_ready, err = Select(self.max_fd+1, &self.read_set, &self.write_set, &self.err_set, timeout)
	if err != nil {
		self.ClearReady()
		return 0, err
	}
	return
}

func (self *Selector) WaitForever() (num_ready int, err error) {
	return self.Wait(-1)
}

func (self *Selector) ClearReady() {
	self.read_set.Zero()
	self.write_set.Zero()
	self.err_set.Zero()
}

func (self *Selector) IsReadyToRead(fd int) bool {
	return ValidSelectFd(fd) && self.read_set.IsSet(fd)
}

func (self *Selector) IsReadyToWrite(fd int) bool {
	return ValidSelectFd(fd) && self.write_set.IsSet(fd)
}

func (self *Selector) IsErrored(fd int) bool {
	return ValidSelectFd(fd) && self.err_set.IsSet(fd)
}

func (self *Selector) UnregisterAll() {
	self.read_fds.Zero()
	self.write_fds.Zero()
	self.err_fds.Zero()
	self.max_fd = -1
}
