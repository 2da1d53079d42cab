// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"fmt"
	"time"

	"github.com/hako/durafmt"
	"github.com/sirupsen/logrus"
)

var _ = fmt.Print

// itimer_device is the single OS timer behind all clients of one kind
type itimer_device interface {
	// Program arms the timer to expire once after d, zero disarms it
	Program(which Which, d time.Duration) error
	Remaining(which Which) (time.Duration, error)
	// Signals reports whether expiry is delivered as a signal, when false the
	// loop bounds its wait by the remaining time instead
	Signals(which Which) bool
}

type itimer_state struct {
	value, reset time.Duration
	// when value was last armed, only meaningful for the real timer
	reference time.Time
	polling   bool
	expired   bool
}

func new_itimer_state(it *Itimer, now time.Time) *itimer_state {
	return &itimer_state{value: it.Value, reset: it.Interval, reference: now, polling: it.is_polling()}
}

func (self *itimer_state) deadline() time.Time {
	return self.reference.Add(self.value)
}

func (self *itimer_state) String() string {
	if self.polling {
		return "itimer(polling)"
	}
	ans := "itimer(" + durafmt.Parse(self.value).LimitFirstN(2).String()
	if self.reset > 0 {
		ans += " every " + durafmt.Parse(self.reset).LimitFirstN(2).String()
	}
	return ans + ")"
}

type itimer_engine struct {
	which  Which
	device itimer_device
	log    *logrus.Entry

	// what the device was last given, zero when disarmed. For the virtual timer
	// this is reduced as CPU time is accounted.
	programmed time.Duration
	// the absolute expiry the real device is counting down to
	deadline time.Time

	armed, polling, ever_armed bool
	min_deadline               time.Time
	min_remaining              time.Duration
	reprogram_count            uint64
}

func new_itimer_engine(which Which, device itimer_device, log *logrus.Entry) *itimer_engine {
	return &itimer_engine{which: which, device: device, log: log}
}

func (self *itimer_engine) for_each(clients []*Client, f func(*Client, *itimer_state)) {
	for _, c := range clients {
		if s := c.itimers[self.which]; s != nil && c.state != CLIENT_DESTROYED {
			f(c, s)
		}
	}
}

// account subtracts the CPU time consumed since the last call from every
// virtual timer, using the device's own remaining count as the clock
func (self *itimer_engine) account(clients []*Client) error {
	if self.which != VIRTUAL || self.programmed <= 0 {
		return nil
	}
	remaining, err := self.device.Remaining(VIRTUAL)
	if err != nil {
		return os_error("getitimer", err)
	}
	elapsed := self.programmed - remaining
	if elapsed > 0 {
		self.for_each(clients, func(_ *Client, s *itimer_state) {
			if !s.polling {
				s.value -= elapsed
			}
		})
		self.programmed = remaining
	}
	return nil
}

func (self *itimer_engine) remaining(s *itimer_state, now time.Time) time.Duration {
	if self.which == REAL {
		return s.deadline().Sub(now)
	}
	return s.value
}

// recompute finds the minimum across all armed clients and reprograms the
// device only if that minimum moved
func (self *itimer_engine) recompute(clients []*Client, now time.Time) error {
	if err := self.account(clients); err != nil {
		return err
	}
	self.armed, self.polling = false, false
	self.for_each(clients, func(_ *Client, s *itimer_state) {
		if s.polling {
			self.polling = true
			return
		}
		switch self.which {
		case REAL:
			if d := s.deadline(); !self.armed || d.Before(self.min_deadline) {
				self.min_deadline = d
			}
		case VIRTUAL:
			if !self.armed || s.value < self.min_remaining {
				self.min_remaining = s.value
			}
		}
		self.armed = true
	})
	if !self.armed {
		self.min_deadline, self.min_remaining = time.Time{}, 0
		if self.programmed != 0 {
			self.programmed, self.deadline = 0, time.Time{}
			self.log.Debugf("disarming %s itimer", self.which)
			if err := self.device.Program(self.which, 0); err != nil {
				return os_error("setitimer", err)
			}
		}
		return nil
	}
	switch self.which {
	case REAL:
		self.min_remaining = self.min_deadline.Sub(now)
		if self.programmed != 0 && self.min_deadline.Equal(self.deadline) {
			return nil
		}
		self.deadline = self.min_deadline
	case VIRTUAL:
		if self.programmed != 0 && self.min_remaining == self.programmed {
			return nil
		}
	}
	d := max(self.min_remaining, time.Microsecond)
	self.log.Tracef("programming %s itimer for %s", self.which, d)
	if err := self.device.Program(self.which, d); err != nil {
		return os_error("setitimer", err)
	}
	self.programmed = d
	self.reprogram_count++
	self.ever_armed = true
	return nil
}

// detect marks every expired or polling timer, returning how many
func (self *itimer_engine) detect(clients []*Client, now time.Time) (count int, err error) {
	if err = self.account(clients); err != nil {
		return
	}
	self.for_each(clients, func(_ *Client, s *itimer_state) {
		if s.polling || self.remaining(s, now) <= 0 {
			s.expired = true
			count++
		}
	})
	return
}

// rearm is called after the expiry of s was dispatched, it returns false for
// one shot timers which must then be removed
func (self *itimer_engine) rearm(s *itimer_state, now time.Time) bool {
	s.expired = false
	if s.polling {
		return true
	}
	if s.reset <= 0 {
		return false
	}
	switch self.which {
	case REAL:
		// the next expiry is relative to the scheduled one, not to when it
		// was noticed, so lateness does not accumulate
		next := s.deadline()
		if now.Sub(next) >= s.reset {
			next = now
		}
		s.reference, s.value = next, s.reset
	case VIRTUAL:
		s.value = s.reset
	}
	return true
}

// value_of returns the time left before s expires
func (self *itimer_engine) value_of(s *itimer_state, now time.Time) (time.Duration, error) {
	if self.which == REAL {
		return max(0, self.remaining(s, now)), nil
	}
	ans := s.value
	if self.programmed > 0 {
		remaining, err := self.device.Remaining(VIRTUAL)
		if err != nil {
			return 0, os_error("getitimer", err)
		}
		ans -= self.programmed - remaining
	}
	return max(0, ans), nil
}

// timeout is how long the loop may block before it must look at this timer
// again, negative for forever
func (self *itimer_engine) timeout(now time.Time) time.Duration {
	if !self.armed {
		return -1
	}
	switch self.which {
	case REAL:
		return max(0, self.min_deadline.Sub(now))
	default:
		if self.device.Signals(VIRTUAL) {
			return -1
		}
		return max(0, self.min_remaining)
	}
}

func (self *itimer_engine) disarm() error {
	if self.programmed == 0 {
		return nil
	}
	self.programmed, self.deadline = 0, time.Time{}
	return os_error("setitimer", self.device.Program(self.which, 0))
}
