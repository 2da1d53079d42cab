// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/utils"
)

var _ = fmt.Print

// signal numbers must be below this, it is the size of the pending set
const MAX_SIGNAL = 128

// MANAGED_SIGNALS are trapped for the whole life of a Notifier
var MANAGED_SIGNALS = [...]unix.Signal{unix.SIGIO, unix.SIGURG, unix.SIGCHLD, unix.SIGTERM, unix.SIGALRM, unix.SIGVTALRM}

func is_managed(sig unix.Signal) bool {
	for _, x := range MANAGED_SIGNALS {
		if x == sig {
			return true
		}
	}
	return false
}

// signal_bridge runs the only code that executes asynchronously with respect
// to the loop. Its goroutine touches nothing but the atomic bit sets and the
// write end of the wake pipe, it has no reference to the registry.
type signal_bridge struct {
	channel chan os.Signal
	quit    chan struct{}
	done    chan struct{}

	// written by the bridge, drained by the loop
	pending     *utils.AtomicBits
	async_input *utils.AtomicBits
	// published by the loop, read by the bridge
	wanted    *utils.AtomicBits
	async_fds *utils.AtomicBits

	received    atomic.Uint64
	wake_r      int
	wake_w      int
	// held shared by writers to wake_w, exclusively to close it
	wake_lock   sync.RWMutex
	wake_closed bool
	wake_byte   [1]byte
	check_async func(int)

	// loop side only
	notified *utils.Set[unix.Signal]
	log      *logrus.Entry
}

func new_signal_bridge(log *logrus.Entry) (*signal_bridge, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, os_error("pipe", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, os_error("fcntl", err)
		}
	}
	self := &signal_bridge{
		channel: make(chan os.Signal, 64), quit: make(chan struct{}), done: make(chan struct{}),
		pending: utils.NewSignalBits(), async_input: utils.NewFdBits(),
		wanted: utils.NewSignalBits(), async_fds: utils.NewFdBits(),
		wake_r: fds[0], wake_w: fds[1], wake_byte: [1]byte{'w'},
		notified: utils.NewSet[unix.Signal](len(MANAGED_SIGNALS)), log: log,
	}
	self.check_async = self.check_async_fd
	for _, sig := range MANAGED_SIGNALS {
		self.notify(sig)
		// the Go runtime uses SIGURG for preemption, only clients make it wanted
		if sig != unix.SIGURG {
			self.wanted.Set(int(sig))
		}
	}
	go self.run()
	return self, nil
}

func (self *signal_bridge) run() {
	defer close(self.done)
	for {
		select {
		case s := <-self.channel:
			if sig, ok := s.(unix.Signal); ok {
				self.handle(sig)
			}
		case <-self.quit:
			return
		}
	}
}

func (self *signal_bridge) handle(sig unix.Signal) {
	defer self.received.Add(1)
	n := int(sig)
	if !self.wanted.Has(n) {
		return
	}
	if sig == unix.SIGIO {
		self.async_fds.ForEach(self.check_async)
	}
	self.pending.Set(n)
	self.wake()
}

func (self *signal_bridge) check_async_fd(fd int) {
	if n, err := bytes_readable(fd); err == nil && n > 0 {
		self.async_input.Set(fd)
	}
}

// wake makes the loop's select(2) return, safe from any goroutine
func (self *signal_bridge) wake() {
	self.wake_lock.RLock()
	defer self.wake_lock.RUnlock()
	if !self.wake_closed {
		// a full pipe already guarantees a wakeup
		_, _ = unix.Write(self.wake_w, self.wake_byte[:])
	}
}

func (self *signal_bridge) drain_wakeups() {
	var buf [64]byte
	for {
		if n, err := unix.Read(self.wake_r, buf[:]); n <= 0 || err != nil {
			return
		}
	}
}

func (self *signal_bridge) notify(sig unix.Signal) {
	if !self.notified.Has(sig) {
		signal.Notify(self.channel, sig)
		self.notified.Add(sig)
	}
}

// want starts delivery of sig immediately, before the next aggregation
func (self *signal_bridge) want(sig unix.Signal) {
	self.notify(sig)
	self.wanted.Set(int(sig))
}

// publish installs a freshly aggregated wanted set, restoring the default
// disposition of signals that no client asks for anymore
func (self *signal_bridge) publish(wanted *utils.AtomicBits) {
	for _, sig := range self.notified.AsSlice() {
		if !is_managed(sig) && !wanted.Has(int(sig)) {
			signal.Reset(sig)
			self.notified.Discard(sig)
			self.log.Debugf("stopped trapping %s", unix.SignalName(sig))
		}
	}
	wanted.ForEach(func(n int) { self.notify(unix.Signal(n)) })
	self.wanted.CopyFrom(wanted)
}

func (self *signal_bridge) close(ignore ...unix.Signal) {
	if len(ignore) > 0 {
		// a timer signal still in flight must not kill the process once
		// delivery is stopped
		sigs := make([]os.Signal, len(ignore))
		for i, s := range ignore {
			sigs[i] = s
		}
		signal.Ignore(sigs...)
	}
	signal.Stop(self.channel)
	close(self.quit)
	<-self.done
	self.wake_lock.Lock()
	self.wake_closed = true
	unix.Close(self.wake_r)
	unix.Close(self.wake_w)
	self.wake_lock.Unlock()
}
