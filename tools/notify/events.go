// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"fmt"
	"time"

	"github.com/eapache/queue"
)

// PostEvent queues event for the CustomEvent callback of c, it is delivered in
// the next pass
func (self *Notifier) PostEvent(c *Client, event any) error {
	if err := self.check_client(c); err != nil {
		return err
	}
	if c.conditions[EVENT_KEY] == nil {
		return fmt.Errorf("%s has no CustomEvent condition: %w", c, ErrConfiguration)
	}
	if c.events == nil {
		c.events = queue.New()
	}
	c.events.Add(event)
	return nil
}

// GetItimerValue returns the time left before the itimer of c expires, zero
// when it is not armed
func (self *Notifier) GetItimerValue(c *Client, which Which) (time.Duration, error) {
	if c == nil || c.notifier != self || c.state == CLIENT_DESTROYED {
		return 0, ErrUnknownClient
	}
	if which != REAL && which != VIRTUAL {
		return 0, fmt.Errorf("unknown itimer %d: %w", int(which), ErrConfiguration)
	}
	s := c.itimers[which]
	if s == nil || s.polling {
		return 0, nil
	}
	if which == VIRTUAL {
		return self.virtual.value_of(s, self.now())
	}
	return self.real.value_of(s, self.now())
}
