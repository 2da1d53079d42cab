// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"fmt"
	"slices"
)

var _ = fmt.Print

type DestroyStatus uint8

const (
	// the destroy may be vetoed by the client
	DESTROY_CHECKING DestroyStatus = iota
	DESTROY_CLEANUP
	DESTROY_PROCESS_DEATH
)

func (self DestroyStatus) String() string {
	switch self {
	case DESTROY_CHECKING:
		return "checking"
	case DESTROY_CLEANUP:
		return "cleanup"
	default:
		return "process-death"
	}
}

// PostDestroy marks c for destruction at the end of the next pass. The Destroy
// callback of c runs first and, for DESTROY_CHECKING, can veto.
func (self *Notifier) PostDestroy(c *Client, status DestroyStatus) error {
	if err := self.check_client(c); err != nil {
		return err
	}
	if c.state == CLIENT_ACTIVE {
		c.state = CLIENT_DESTROY_PENDING
		c.destroy_status = status
		c.vetoed = false
		self.changed |= CHANGED_DESTROY
	}
	return nil
}

// VetoDestroy cancels a pending destroy, it is only allowed from inside the
// Destroy callback of c when the status is DESTROY_CHECKING
func (self *Notifier) VetoDestroy(c *Client) error {
	if err := self.check_client(c); err != nil {
		return err
	}
	if !c.in_destroy_callback || c.destroy_status != DESTROY_CHECKING {
		return fmt.Errorf("destroy of %s can only be vetoed from its own destroy callback while checking: %w", c, ErrReentrancy)
	}
	c.vetoed = true
	return nil
}

// Remove drops c immediately without invoking any callback
func (self *Notifier) Remove(c *Client) error {
	if c == nil || c.notifier != self {
		return ErrUnknownClient
	}
	if c.state == CLIENT_DESTROYED {
		return nil
	}
	if err := self.check_callable(); err != nil {
		return err
	}
	self.forget(c)
	return nil
}

// Die invokes the Destroy callback of c, ignoring any veto, then removes it
func (self *Notifier) Die(c *Client, status DestroyStatus) error {
	if err := self.check_client(c); err != nil {
		return err
	}
	if c.in_destroy_callback {
		return fmt.Errorf("Die called for %s from its own destroy callback: %w", c, ErrReentrancy)
	}
	c.destroy_status = status
	self.call_destroy(c)
	self.forget(c)
	return nil
}

func (self *Notifier) call_destroy(c *Client) {
	cond, ok := c.conditions[DESTROY_KEY].(*Destroy)
	if !ok {
		return
	}
	c.in_destroy_callback = true
	defer func() { c.in_destroy_callback = false }()
	self.invoke(c, KIND_DESTROY, func() error { return cond.Func(c, c.destroy_status) })
}

// destroy_phase runs after every other callback of the pass. Destroys posted
// while it runs are handled in the next pass.
func (self *Notifier) destroy_phase() {
	var pending []*Client
	for _, c := range self.ordered_clients() {
		if c.state == CLIENT_DESTROY_PENDING {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return
	}
	self.dispatching = true
	for _, c := range pending {
		if c.state == CLIENT_DESTROY_PENDING {
			self.call_destroy(c)
		}
	}
	self.dispatching = false
	for _, c := range pending {
		if c.state != CLIENT_DESTROY_PENDING {
			continue
		}
		if c.vetoed && c.destroy_status == DESTROY_CHECKING {
			c.vetoed = false
			c.state = CLIENT_ACTIVE
			self.log.Debugf("destroy of %s vetoed", c)
			continue
		}
		self.forget(c)
	}
}

func (self *Notifier) terminate() {
	self.log.Debug("SIGTERM received and no client handles it, destroying every client")
	for _, c := range slices.Clone(self.clients) {
		if c.state != CLIENT_DESTROYED {
			c.state = CLIENT_DESTROY_PENDING
			c.destroy_status = DESTROY_PROCESS_DEATH
			c.vetoed = false
		}
	}
	self.exit_pending = true
}
