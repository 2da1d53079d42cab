// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/utils"
)

var _ = fmt.Print

type ClientState uint8

const (
	CLIENT_ACTIVE ClientState = iota
	CLIENT_DESTROY_PENDING
	CLIENT_DESTROYED
)

func (self ClientState) String() string {
	switch self {
	case CLIENT_ACTIVE:
		return "active"
	case CLIENT_DESTROY_PENDING:
		return "destroy-pending"
	default:
		return "destroyed"
	}
}

type Client struct {
	// Data is free for the owner of the client to use
	Data any

	notifier    *Notifier
	tag         string
	seq         uint64
	priority    int
	state       ClientState
	conditions  map[Key]Condition
	itimers     [2]*itimer_state
	prioritizer PrioritizerFunc

	events       *queue.Queue
	events_ready int

	destroy_status      DestroyStatus
	in_destroy_callback bool
	vetoed              bool
}

func (self *Client) Tag() string         { return self.tag }
func (self *Client) Priority() int       { return self.priority }
func (self *Client) State() ClientState  { return self.state }
func (self *Client) Notifier() *Notifier { return self.notifier }

func (self *Client) String() string {
	return fmt.Sprintf("client(%s priority=%d)", self.tag, self.priority)
}

// Keys returns the keys of every condition currently attached, in dispatch order
func (self *Client) Keys() []Key {
	ans := utils.Keys(self.conditions)
	slices.SortFunc(ans, func(a, b Key) int {
		if key_less(a, b) {
			return -1
		}
		if key_less(b, a) {
			return 1
		}
		return 0
	})
	return ans
}

func new_tag() string {
	ans, _, _ := strings.Cut(uuid.NewString(), "-")
	return ans
}

type change_flags uint8

const (
	CHANGED_FDS change_flags = 1 << iota
	CHANGED_SIGNALS
	CHANGED_REAL
	CHANGED_VIRTUAL
	CHANGED_WAIT3
	CHANGED_DESTROY

	CHANGED_ALL = CHANGED_FDS | CHANGED_SIGNALS | CHANGED_REAL | CHANGED_VIRTUAL | CHANGED_WAIT3 | CHANGED_DESTROY
)

func change_flag_for(k Kind) change_flags {
	switch k {
	case KIND_INPUT, KIND_OUTPUT, KIND_EXCEPTION:
		return CHANGED_FDS
	case KIND_SIGNAL:
		return CHANGED_SIGNALS
	case KIND_ITIMER_REAL:
		return CHANGED_REAL
	case KIND_ITIMER_VIRTUAL:
		return CHANGED_VIRTUAL
	case KIND_WAIT3:
		return CHANGED_WAIT3
	case KIND_DESTROY:
		return CHANGED_DESTROY
	}
	return 0
}

func (self *Notifier) check_callable() error {
	if self.closed.Load() {
		return ErrClosed
	}
	if self.State() == STATE_WAITING {
		return fmt.Errorf("the notifier was called from another goroutine while it was waiting: %w", ErrReentrancy)
	}
	return nil
}

func (self *Notifier) check_client(c *Client) error {
	if err := self.check_callable(); err != nil {
		return err
	}
	if c == nil || c.notifier != self || c.state == CLIENT_DESTROYED {
		return ErrUnknownClient
	}
	return nil
}

// Register adds a client, clients with a lower priority are dispatched first,
// ties go in registration order
func (self *Notifier) Register(priority int) (*Client, error) {
	if err := self.check_callable(); err != nil {
		return nil, err
	}
	if self.opts.MaxClients > 0 && len(self.clients) >= self.opts.MaxClients {
		return nil, fmt.Errorf("cannot register more than %d clients: %w", self.opts.MaxClients, ErrResourceExhaustion)
	}
	self.next_seq++
	c := &Client{notifier: self, seq: self.next_seq, priority: priority, tag: new_tag(), conditions: make(map[Key]Condition)}
	self.clients = append(self.clients, c)
	self.order_dirty = true
	self.log.Debugf("registered %s", c)
	return c, nil
}

// SetCondition attaches cond to c replacing and returning any condition with
// the same key
func (self *Notifier) SetCondition(c *Client, cond Condition) (prev Condition, err error) {
	if err = self.check_client(c); err != nil {
		return
	}
	if cond == nil {
		return nil, fmt.Errorf("nil condition: %w", ErrConfiguration)
	}
	key := cond.Key()
	if cond.is_removal() {
		return self.remove_condition(c, key), nil
	}
	if err = cond.validate(); err != nil {
		return
	}
	switch x := cond.(type) {
	case *Itimer:
		if x.Which == VIRTUAL {
			// CPU time used so far belongs to the timers already armed
			if err = self.virtual.account(self.clients); err != nil {
				return nil, err
			}
		}
		c.itimers[x.Which] = new_itimer_state(x, self.now())
	case *Signal:
		// delivery must start now, not at the next pass, or the default
		// action could run in between
		self.bridge.want(x.Sig)
	}
	prev = c.conditions[key]
	c.conditions[key] = cond
	self.changed |= change_flag_for(key.Kind)
	return prev, nil
}

func (self *Notifier) remove_condition(c *Client, key Key) Condition {
	prev, found := c.conditions[key]
	if !found {
		return nil
	}
	delete(c.conditions, key)
	switch key.Kind {
	case KIND_ITIMER_REAL:
		c.itimers[REAL] = nil
	case KIND_ITIMER_VIRTUAL:
		c.itimers[VIRTUAL] = nil
	case KIND_EVENT:
		c.events, c.events_ready = nil, 0
	}
	self.changed |= change_flag_for(key.Kind)
	return prev
}

func (self *Notifier) RemoveCondition(c *Client, key Key) error {
	if err := self.check_client(c); err != nil {
		return err
	}
	self.remove_condition(c, key)
	return nil
}

func (self *Notifier) GetCondition(c *Client, key Key) Condition {
	if c == nil || c.notifier != self {
		return nil
	}
	return c.conditions[key]
}

func (self *Notifier) SetPriority(c *Client, priority int) error {
	if err := self.check_client(c); err != nil {
		return err
	}
	if c.priority != priority {
		c.priority = priority
		self.order_dirty = true
	}
	return nil
}

func (self *Notifier) SetPrioritizer(c *Client, f PrioritizerFunc) (prev PrioritizerFunc, err error) {
	if err = self.check_client(c); err != nil {
		return
	}
	prev, c.prioritizer = c.prioritizer, f
	return
}

func (self *Notifier) SetInputFunc(c *Client, fd int, f FdFunc) (FdFunc, error) {
	prev, err := self.SetCondition(c, &Input{Fd: fd, Func: f})
	if p, ok := prev.(*Input); ok {
		return p.Func, err
	}
	return nil, err
}

func (self *Notifier) SetOutputFunc(c *Client, fd int, f FdFunc) (FdFunc, error) {
	prev, err := self.SetCondition(c, &Output{Fd: fd, Func: f})
	if p, ok := prev.(*Output); ok {
		return p.Func, err
	}
	return nil, err
}

func (self *Notifier) SetExceptionFunc(c *Client, fd int, f FdFunc) (FdFunc, error) {
	prev, err := self.SetCondition(c, &Exception{Fd: fd, Func: f})
	if p, ok := prev.(*Exception); ok {
		return p.Func, err
	}
	return nil, err
}

func (self *Notifier) SetSignalFunc(c *Client, sig unix.Signal, f SignalFunc) (SignalFunc, error) {
	prev, err := self.SetCondition(c, &Signal{Sig: sig, Func: f})
	if p, ok := prev.(*Signal); ok {
		return p.Func, err
	}
	return nil, err
}

func (self *Notifier) SetItimerFunc(c *Client, which Which, value, interval time.Duration, f ItimerFunc) (ItimerFunc, error) {
	prev, err := self.SetCondition(c, &Itimer{Which: which, Value: value, Interval: interval, Func: f})
	if p, ok := prev.(*Itimer); ok {
		return p.Func, err
	}
	return nil, err
}

func (self *Notifier) SetWait3Func(c *Client, pid int, f Wait3Func) (Wait3Func, error) {
	prev, err := self.SetCondition(c, &Wait3{Pid: pid, Func: f})
	if p, ok := prev.(*Wait3); ok {
		return p.Func, err
	}
	return nil, err
}

func (self *Notifier) SetDestroyFunc(c *Client, f DestroyFunc) (DestroyFunc, error) {
	prev, err := self.SetCondition(c, &Destroy{Func: f})
	if p, ok := prev.(*Destroy); ok {
		return p.Func, err
	}
	return nil, err
}

func (self *Notifier) SetEventFunc(c *Client, f EventFunc) (EventFunc, error) {
	prev, err := self.SetCondition(c, &CustomEvent{Func: f})
	if p, ok := prev.(*CustomEvent); ok {
		return p.Func, err
	}
	return nil, err
}

// Clients returns every registered client in dispatch order
func (self *Notifier) Clients() []*Client {
	return slices.Clone(self.ordered_clients())
}

func (self *Notifier) ordered_clients() []*Client {
	if self.order_dirty {
		self.ordered = utils.StableSort(slices.Clone(self.clients), func(a, b *Client) bool {
			if a.priority != b.priority {
				return a.priority < b.priority
			}
			return a.seq < b.seq
		})
		self.order_dirty = false
	}
	return self.ordered
}

// forget drops c from the registry, no callbacks are invoked
func (self *Notifier) forget(c *Client) {
	if c.state == CLIENT_DESTROYED {
		return
	}
	for key := range c.conditions {
		self.changed |= change_flag_for(key.Kind)
	}
	if idx := slices.Index(self.clients, c); idx > -1 {
		self.clients = slices.Delete(self.clients, idx, idx+1)
	}
	self.order_dirty = true
	c.state = CLIENT_DESTROYED
	clear(c.conditions)
	c.itimers = [2]*itimer_state{}
	c.events, c.events_ready = nil, 0
	c.prioritizer = nil
	self.log.Debugf("removed %s", c)
}
