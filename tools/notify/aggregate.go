// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"fmt"
	"slices"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/utils"
)

var _ = fmt.Print

// aggregate holds the union of every client's conditions, rebuilt between
// passes only for the parts whose change flag is set
type aggregate struct {
	selector       *utils.Selector
	wanted_signals *utils.AtomicBits
	wait3_pids     []int
	// true when some client handles SIGTERM itself
	sigterm_handled bool
	destroy_funcs   int
	recompute_count [6]uint64
}

func new_aggregate() aggregate {
	return aggregate{selector: utils.CreateSelect(), wanted_signals: utils.NewSignalBits()}
}

func (self *Notifier) recompute_aggregates(now time.Time) (err error) {
	clients := self.clients
	if self.changed&CHANGED_FDS != 0 {
		self.aggregate_fds(clients)
		self.agg.recompute_count[0]++
	}
	if self.changed&CHANGED_SIGNALS != 0 {
		self.aggregate_signals(clients)
		self.agg.recompute_count[1]++
	}
	if self.changed&CHANGED_REAL != 0 {
		if err = self.real.recompute(clients, now); err != nil {
			return
		}
		self.agg.recompute_count[2]++
	}
	if self.changed&CHANGED_VIRTUAL != 0 {
		if err = self.virtual.recompute(clients, now); err != nil {
			return
		}
		self.agg.recompute_count[3]++
	}
	if self.changed&CHANGED_WAIT3 != 0 {
		self.aggregate_wait3(clients)
		self.agg.recompute_count[4]++
	}
	if self.changed&CHANGED_DESTROY != 0 {
		self.agg.destroy_funcs = 0
		for _, c := range clients {
			if c.conditions[DESTROY_KEY] != nil {
				self.agg.destroy_funcs++
			}
		}
		self.agg.recompute_count[5]++
	}
	if self.changed != 0 {
		self.log.Tracef("recomputed aggregates: %06b", self.changed)
	}
	self.changed = 0
	return
}

func (self *Notifier) aggregate_fds(clients []*Client) {
	s := self.agg.selector
	s.UnregisterAll()
	s.RegisterRead(self.bridge.wake_r)
	async := self.bridge.async_fds
	async.ClearAll()
	for _, c := range clients {
		for key := range c.conditions {
			switch key.Kind {
			case KIND_INPUT:
				s.RegisterRead(key.Arg)
				if self.fasync.IsSet(key.Arg) {
					async.Set(key.Arg)
				}
			case KIND_OUTPUT:
				s.RegisterWrite(key.Arg)
			case KIND_EXCEPTION:
				s.RegisterError(key.Arg)
			}
		}
	}
}

func (self *Notifier) aggregate_signals(clients []*Client) {
	w := self.agg.wanted_signals
	w.ClearAll()
	for _, sig := range MANAGED_SIGNALS {
		if sig != unix.SIGURG {
			w.Set(int(sig))
		}
	}
	self.agg.sigterm_handled = false
	for _, c := range clients {
		for key := range c.conditions {
			if key.Kind == KIND_SIGNAL {
				w.Set(key.Arg)
				if unix.Signal(key.Arg) == unix.SIGTERM {
					self.agg.sigterm_handled = true
				}
			}
		}
	}
	self.bridge.publish(w)
}

func (self *Notifier) aggregate_wait3(clients []*Client) {
	pids := utils.NewSet[int]()
	for _, c := range clients {
		for key := range c.conditions {
			if key.Kind == KIND_WAIT3 {
				pids.Add(key.Arg)
			}
		}
	}
	self.agg.wait3_pids = pids.AsSlice()
	slices.Sort(self.agg.wait3_pids)
}
