// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/utils"
)

var _ = fmt.Print

type Kind uint8

const (
	KIND_INPUT Kind = iota
	KIND_OUTPUT
	KIND_EXCEPTION
	KIND_SIGNAL
	KIND_ITIMER_REAL
	KIND_ITIMER_VIRTUAL
	KIND_WAIT3
	KIND_DESTROY
	KIND_EVENT
)

func (self Kind) String() string {
	switch self {
	case KIND_INPUT:
		return "Input"
	case KIND_OUTPUT:
		return "Output"
	case KIND_EXCEPTION:
		return "Exception"
	case KIND_SIGNAL:
		return "Signal"
	case KIND_ITIMER_REAL:
		return "ItimerReal"
	case KIND_ITIMER_VIRTUAL:
		return "ItimerVirtual"
	case KIND_WAIT3:
		return "Wait3"
	case KIND_DESTROY:
		return "Destroy"
	case KIND_EVENT:
		return "CustomEvent"
	}
	return fmt.Sprintf("Kind(%d)", int(self))
}

// position of each kind within one client's notifications for a pass
var dispatch_rank = [...]int{
	KIND_EXCEPTION:      0,
	KIND_SIGNAL:         1,
	KIND_ITIMER_REAL:    2,
	KIND_ITIMER_VIRTUAL: 3,
	KIND_WAIT3:          4,
	KIND_INPUT:          5,
	KIND_OUTPUT:         6,
	KIND_EVENT:          7,
	KIND_DESTROY:        8,
}

// Key identifies a condition within a client. Arg is the fd, signal number or
// pid, zero for kinds that take no argument.
type Key struct {
	Kind Kind
	Arg  int
}

func (self Key) String() string {
	switch self.Kind {
	case KIND_INPUT, KIND_OUTPUT, KIND_EXCEPTION:
		return fmt.Sprintf("%s(fd=%d)", self.Kind, self.Arg)
	case KIND_SIGNAL:
		return fmt.Sprintf("%s(%s)", self.Kind, unix.SignalName(unix.Signal(self.Arg)))
	case KIND_WAIT3:
		return fmt.Sprintf("%s(pid=%d)", self.Kind, self.Arg)
	}
	return self.Kind.String()
}

func key_less(a, b Key) bool {
	if a.Kind != b.Kind {
		return dispatch_rank[a.Kind] < dispatch_rank[b.Kind]
	}
	return a.Arg < b.Arg
}

type Which uint8

const (
	REAL Which = iota
	VIRTUAL
)

func (self Which) String() string {
	if self == VIRTUAL {
		return "virtual"
	}
	return "real"
}

func (self Which) kind() Kind {
	if self == VIRTUAL {
		return KIND_ITIMER_VIRTUAL
	}
	return KIND_ITIMER_REAL
}

// An Itimer whose Value and Interval are both POLLING_ITIMER fires on every
// pass and makes the loop poll instead of block
const POLLING_ITIMER = time.Microsecond

var (
	DESTROY_KEY = Key{Kind: KIND_DESTROY}
	EVENT_KEY   = Key{Kind: KIND_EVENT}
)

func ItimerKey(which Which) Key { return Key{Kind: which.kind()} }

type FdFunc func(c *Client, fd int) error
type SignalFunc func(c *Client, sig unix.Signal) error
type ItimerFunc func(c *Client, which Which) error
type Wait3Func func(c *Client, pid int, status unix.WaitStatus, rusage *unix.Rusage) error
type DestroyFunc func(c *Client, status DestroyStatus) error
type EventFunc func(c *Client, event any) error

// PrioritizerFunc receives the notifications pending for a client in this pass,
// in the default order, and returns the ones to deliver in the order to deliver them
type PrioritizerFunc func(c *Client, pending []*Notification) []*Notification

// Condition is one of Input, Output, Exception, Signal, Itimer, Wait3, Destroy
// or CustomEvent. Setting a condition whose Func is nil removes it.
type Condition interface {
	Key() Key
	is_removal() bool
	validate() error
}

type Input struct {
	Fd   int
	Func FdFunc
}

type Output struct {
	Fd   int
	Func FdFunc
}

type Exception struct {
	Fd   int
	Func FdFunc
}

type Signal struct {
	Sig  unix.Signal
	Func SignalFunc
}

type Itimer struct {
	Which           Which
	Value, Interval time.Duration
	Func            ItimerFunc
}

type Wait3 struct {
	Pid  int
	Func Wait3Func
}

type Destroy struct {
	Func DestroyFunc
}

type CustomEvent struct {
	Func EventFunc
}

func (self *Input) Key() Key       { return Key{KIND_INPUT, self.Fd} }
func (self *Output) Key() Key      { return Key{KIND_OUTPUT, self.Fd} }
func (self *Exception) Key() Key   { return Key{KIND_EXCEPTION, self.Fd} }
func (self *Signal) Key() Key      { return Key{KIND_SIGNAL, int(self.Sig)} }
func (self *Itimer) Key() Key      { return ItimerKey(self.Which) }
func (self *Wait3) Key() Key       { return Key{KIND_WAIT3, self.Pid} }
func (self *Destroy) Key() Key     { return DESTROY_KEY }
func (self *CustomEvent) Key() Key { return EVENT_KEY }

func (self *Input) is_removal() bool     { return self.Func == nil }
func (self *Output) is_removal() bool    { return self.Func == nil }
func (self *Exception) is_removal() bool { return self.Func == nil }
func (self *Signal) is_removal() bool    { return self.Func == nil }
func (self *Itimer) is_removal() bool {
	return self.Func == nil || self.Value == 0
}
func (self *Wait3) is_removal() bool       { return self.Func == nil }
func (self *Destroy) is_removal() bool     { return self.Func == nil }
func (self *CustomEvent) is_removal() bool { return self.Func == nil }

func validate_fd(fd int) error {
	if !utils.ValidSelectFd(fd) {
		return fmt.Errorf("fd %d is outside the range select(2) can wait on: %w", fd, ErrConfiguration)
	}
	return nil
}

func (self *Input) validate() error     { return validate_fd(self.Fd) }
func (self *Output) validate() error    { return validate_fd(self.Fd) }
func (self *Exception) validate() error { return validate_fd(self.Fd) }

func (self *Signal) validate() error {
	if self.Sig <= 0 || int(self.Sig) >= MAX_SIGNAL {
		return fmt.Errorf("%d is not a valid signal number: %w", int(self.Sig), ErrConfiguration)
	}
	if self.Sig == unix.SIGKILL || self.Sig == unix.SIGSTOP {
		return fmt.Errorf("%s cannot be caught: %w", unix.SignalName(self.Sig), ErrConfiguration)
	}
	return nil
}

func (self *Itimer) validate() error {
	if self.Which != REAL && self.Which != VIRTUAL {
		return fmt.Errorf("unknown itimer %d: %w", int(self.Which), ErrConfiguration)
	}
	if self.Value < 0 || self.Interval < 0 {
		return fmt.Errorf("negative itimer value or interval: %w", ErrConfiguration)
	}
	return nil
}

func (self *Itimer) is_polling() bool {
	return self.Value == POLLING_ITIMER && self.Interval == POLLING_ITIMER
}

func (self *Wait3) validate() error {
	if self.Pid <= 0 {
		return fmt.Errorf("wait3 needs a specific child pid, not %d: %w", self.Pid, ErrConfiguration)
	}
	return nil
}

func (self *Destroy) validate() error     { return nil }
func (self *CustomEvent) validate() error { return nil }

// Notification is one ready condition of a client, built during a pass
type Notification struct {
	Key Key
	// set for Wait3 notifications
	Status unix.WaitStatus
	Rusage *unix.Rusage
	// set for CustomEvent notifications
	Event any
}

func (self *Notification) String() string {
	return self.Key.String()
}
