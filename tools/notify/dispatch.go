// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/kovidgoyal/go-parallel"
	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/utils"
)

var _ = fmt.Print

type wait3_result struct {
	status unix.WaitStatus
	rusage unix.Rusage
}

// pass_results is what one wakeup of the loop found ready, beyond what the
// selector itself records
type pass_results struct {
	signals    []unix.Signal
	signal_set [MAX_SIGNAL]bool
	async      *utils.AtomicBits
	wait3      map[int]wait3_result

	take_signal func(int)
}

func (self *pass_results) init() {
	self.async = utils.NewFdBits()
	self.wait3 = make(map[int]wait3_result)
	self.take_signal = func(n int) {
		self.signals = append(self.signals, unix.Signal(n))
		self.signal_set[n] = true
	}
}

func (self *pass_results) reset() {
	for _, s := range self.signals {
		self.signal_set[s] = false
	}
	self.signals = self.signals[:0]
	self.async.ClearAll()
	clear(self.wait3)
}

// Start runs the loop until Stop is called, every client is gone or an error
// occurs. With no_delay it runs exactly one pass without blocking.
func (self *Notifier) Start(no_delay bool) (Status, error) {
	if self.closed.Load() {
		return STATUS_ERROR, ErrClosed
	}
	if self.in_start {
		return STATUS_ERROR, fmt.Errorf("Start called from inside a callback: %w", ErrReentrancy)
	}
	self.in_start = true
	defer func() { self.in_start = false }()
	self.stop_requested.Store(false)
	self.exit_pending = false
	for {
		if !no_delay && len(self.clients) == 0 {
			self.log.Debug("no clients left")
			self.set_state(STATE_IDLE)
			return STATUS_OK, nil
		}
		if err := self.run_pass(no_delay); err != nil {
			self.set_state(STATE_IDLE)
			return STATUS_ERROR, err
		}
		switch {
		case self.exit_pending:
			self.set_state(STATE_EXIT_PENDING)
			return STATUS_EXIT_PENDING, nil
		case no_delay:
			self.set_state(STATE_IDLE)
			return STATUS_OK, nil
		case self.stop_requested.Load():
			self.set_state(STATE_STOPPED)
			return STATUS_OK, nil
		}
	}
}

func (self *Notifier) run_pass(no_delay bool) (err error) {
	self.stats.Passes++
	self.first_error = nil
	self.set_state(STATE_COMPUTING)
	now := self.now()
	if err = self.recompute_aggregates(now); err != nil {
		return
	}
	timeout := self.compute_timeout(now)
	if no_delay || self.stop_requested.Load() || self.has_immediate_work() {
		timeout = 0
	}
	self.log.Tracef("pass %d: waiting for %s", self.stats.Passes, timeout)
	self.set_state(STATE_WAITING)
	_, err = self.agg.selector.Wait(timeout)
	self.set_state(STATE_DISPATCHING)
	if err != nil {
		if !errors.Is(err, unix.EINTR) {
			return os_error("select", err)
		}
		err = nil
	}
	defer self.pass.reset()
	if err = self.collect(self.now()); err != nil {
		return
	}
	self.dispatch()
	self.destroy_phase()
	return self.first_error
}

// compute_timeout returns how long the wait may block, negative for forever
func (self *Notifier) compute_timeout(now time.Time) time.Duration {
	timeout := time.Duration(-1)
	consider := func(d time.Duration) {
		if d >= 0 && (timeout < 0 || d < timeout) {
			timeout = d
		}
	}
	consider(self.real.timeout(now))
	consider(self.virtual.timeout(now))
	if self.real.polling || self.virtual.polling {
		consider(self.opts.PollInterval)
	}
	return timeout
}

func (self *Notifier) has_immediate_work() bool {
	if self.bridge.pending.Any() || self.bridge.async_input.Any() {
		return true
	}
	for _, c := range self.clients {
		if c.state == CLIENT_DESTROY_PENDING || (c.events != nil && c.events.Length() > 0) {
			return true
		}
	}
	return false
}

// collect gathers what is ready for this pass. Everything that can fail runs
// before the pending signals are taken, so a failed pass leaves them for the next.
func (self *Notifier) collect(now time.Time) (err error) {
	if _, err = self.real.detect(self.clients, now); err != nil {
		return
	}
	if _, err = self.virtual.detect(self.clients, now); err != nil {
		return
	}
	self.bridge.drain_wakeups()
	self.bridge.pending.Drain(self.pass.take_signal)
	self.bridge.async_input.Drain(self.pass.async.Set)
	self.reap_children()
	for _, c := range self.clients {
		if c.events != nil {
			c.events_ready = c.events.Length()
		}
	}
	if self.pass.signal_set[unix.SIGTERM] && !self.agg.sigterm_handled && self.opts.AutoTerminate {
		self.terminate()
	}
	return
}

func (self *Notifier) dispatch() {
	if self.exit_pending {
		return
	}
	self.dispatching = true
	defer func() { self.dispatching = false }()
	// clients registered by callbacks wait for the next pass
	self.dispatch_buf = append(self.dispatch_buf[:0], self.ordered_clients()...)
	defer clear(self.dispatch_buf)
	for _, c := range self.dispatch_buf {
		if c.state == CLIENT_DESTROYED {
			continue
		}
		pending := self.pending_for(c)
		if len(pending) > 0 && c.prioritizer != nil {
			pending = self.prioritize(c, pending)
		}
		for _, n := range pending {
			if c.state == CLIENT_DESTROYED {
				break
			}
			self.deliver(c, n)
		}
		if c.state != CLIENT_DESTROYED {
			self.finish_client(c)
		}
	}
}

func (self *Notifier) pending_for(c *Client) (ans []*Notification) {
	s := self.agg.selector
	for _, key := range c.Keys() {
		ready := false
		switch key.Kind {
		case KIND_INPUT:
			ready = s.IsReadyToRead(key.Arg) || self.pass.async.Has(key.Arg)
		case KIND_OUTPUT:
			ready = s.IsReadyToWrite(key.Arg)
		case KIND_EXCEPTION:
			ready = s.IsErrored(key.Arg)
		case KIND_SIGNAL:
			ready = key.Arg < MAX_SIGNAL && self.pass.signal_set[key.Arg]
		case KIND_ITIMER_REAL:
			ready = c.itimers[REAL] != nil && c.itimers[REAL].expired
		case KIND_ITIMER_VIRTUAL:
			ready = c.itimers[VIRTUAL] != nil && c.itimers[VIRTUAL].expired
		case KIND_WAIT3:
			if r, found := self.pass.wait3[key.Arg]; found {
				ans = append(ans, &Notification{Key: key, Status: r.status, Rusage: &r.rusage})
			}
		case KIND_EVENT:
			for ; c.events_ready > 0 && c.events.Length() > 0; c.events_ready-- {
				ans = append(ans, &Notification{Key: key, Event: c.events.Remove()})
			}
		}
		if ready {
			ans = append(ans, &Notification{Key: key})
		}
	}
	return
}

func (self *Notifier) prioritize(c *Client, pending []*Notification) (ans []*Notification) {
	self.invoke(c, pending[0].Key.Kind, func() error {
		ans = c.prioritizer(c, pending)
		return nil
	})
	return
}

func (self *Notifier) deliver(c *Client, n *Notification) {
	cond := c.conditions[n.Key]
	if cond == nil {
		// removed by an earlier callback in this pass
		return
	}
	self.invoke(c, n.Key.Kind, func() error {
		switch x := cond.(type) {
		case *Input:
			return x.Func(c, x.Fd)
		case *Output:
			return x.Func(c, x.Fd)
		case *Exception:
			return x.Func(c, x.Fd)
		case *Signal:
			return x.Func(c, x.Sig)
		case *Itimer:
			if s := c.itimers[x.Which]; s != nil && s.expired {
				return x.Func(c, x.Which)
			}
		case *Wait3:
			return x.Func(c, x.Pid, n.Status, n.Rusage)
		case *CustomEvent:
			return x.Func(c, n.Event)
		}
		return nil
	})
}

// invoke runs a client callback, recording the first error or panic of the
// pass, the pass itself always completes
func (self *Notifier) invoke(c *Client, kind Kind, f func() error) {
	self.stats.Callbacks++
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = parallel.Format_stacktrace_on_panic(r, 1)
			}
		}()
		return f()
	}()
	if err != nil {
		self.log.Debugf("%s callback of %s failed: %s", kind, c, err)
		if self.first_error == nil {
			self.first_error = &CallbackError{Client: c, Kind: kind, Err: err}
		}
	}
}

// finish_client rearms or removes the expired itimers of c and drops the
// conditions of children that were reaped
func (self *Notifier) finish_client(c *Client) {
	for _, e := range []*itimer_engine{self.real, self.virtual} {
		s := c.itimers[e.which]
		if s == nil || !s.expired {
			continue
		}
		if e.rearm(s, self.now()) {
			self.changed |= change_flag_for(e.which.kind())
		} else {
			self.remove_condition(c, ItimerKey(e.which))
		}
	}
	for pid := range self.pass.wait3 {
		self.remove_condition(c, Key{KIND_WAIT3, pid})
	}
}
