// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/log"
)

var _ = fmt.Print

type LoopState int32

const (
	STATE_IDLE LoopState = iota
	STATE_COMPUTING
	STATE_WAITING
	STATE_DISPATCHING
	STATE_STOPPED
	STATE_EXIT_PENDING
)

func (self LoopState) String() string {
	switch self {
	case STATE_IDLE:
		return "idle"
	case STATE_COMPUTING:
		return "computing"
	case STATE_WAITING:
		return "waiting"
	case STATE_DISPATCHING:
		return "dispatching"
	case STATE_STOPPED:
		return "stopped"
	case STATE_EXIT_PENDING:
		return "exit-pending"
	}
	return fmt.Sprintf("LoopState(%d)", int(self))
}

type Status int

const (
	STATUS_OK Status = iota
	STATUS_EXIT_PENDING
	STATUS_ERROR
)

func (self Status) String() string {
	switch self {
	case STATUS_OK:
		return "ok"
	case STATUS_EXIT_PENDING:
		return "exit-pending"
	}
	return "error"
}

type Stats struct {
	Passes, Callbacks, SignalsReceived uint64
	RealReprograms, VirtualReprograms  uint64
	AggregateRecomputes                uint64
}

type Notifier struct {
	opts   Options
	log    *logrus.Entry
	now    func() time.Time
	device itimer_device

	clients     []*Client
	ordered     []*Client
	order_dirty bool
	next_seq    uint64
	changed     change_flags

	agg           aggregate
	bridge        *signal_bridge
	real, virtual *itimer_engine
	// descriptors marked O_NONBLOCK and O_ASYNC through Fcntl
	fndelay, fasync unix.FdSet

	state          atomic.Int32
	stop_requested atomic.Bool
	in_start       bool
	dispatching    bool
	exit_pending   bool
	closed         atomic.Bool

	pass         pass_results
	dispatch_buf []*Client
	first_error  error
	stats        Stats
}

func WithOptions(opts Options) func(*Notifier) {
	return func(self *Notifier) { self.opts = opts }
}

func NoAutoTerminate(self *Notifier) { self.opts.AutoTerminate = false }

func PollInterval(d time.Duration) func(*Notifier) {
	return func(self *Notifier) { self.opts.PollInterval = d }
}

func MaxClients(n int) func(*Notifier) {
	return func(self *Notifier) { self.opts.MaxClients = n }
}

func with_clock(now func() time.Time) func(*Notifier) {
	return func(self *Notifier) { self.now = now }
}

func with_itimer_device(d itimer_device) func(*Notifier) {
	return func(self *Notifier) { self.device = d }
}

// New creates a Notifier and starts trapping the managed signals, it must be
// closed with Close to restore the signal dispositions
func New(options ...func(self *Notifier)) (*Notifier, error) {
	self := Notifier{opts: DefaultOptions(), log: log.NewLogger("notify"), now: time.Now, changed: CHANGED_ALL, agg: new_aggregate()}
	for _, f := range options {
		f(&self)
	}
	if err := log.SetLevel(self.opts.LogLevel); err != nil {
		return nil, fmt.Errorf("%s: %w", err, ErrConfiguration)
	}
	if self.device == nil {
		self.device = default_itimer_device()
	}
	self.real = new_itimer_engine(REAL, self.device, self.log)
	self.virtual = new_itimer_engine(VIRTUAL, self.device, self.log)
	var err error
	if self.bridge, err = new_signal_bridge(self.log); err != nil {
		return nil, err
	}
	self.pass.init()
	return &self, nil
}

func (self *Notifier) State() LoopState { return LoopState(self.state.Load()) }

func (self *Notifier) set_state(s LoopState) { self.state.Store(int32(s)) }

func (self *Notifier) Options() Options { return self.opts }

// SetOptions replaces the options of a notifier that is already running. The
// poll interval and SIGTERM handling apply from the next pass, MaxClients only
// limits later registrations.
func (self *Notifier) SetOptions(opts Options) error {
	if err := self.check_callable(); err != nil {
		return err
	}
	if opts.PollInterval < 0 || opts.MaxClients < 0 {
		return fmt.Errorf("negative poll interval or client limit: %w", ErrConfiguration)
	}
	if err := log.SetLevel(opts.LogLevel); err != nil {
		return fmt.Errorf("%s: %w", err, ErrConfiguration)
	}
	if opts != self.opts {
		self.log.Debugf("options changed to: %+v", opts)
	}
	self.opts = opts
	return nil
}

func (self *Notifier) ClientCount() int { return len(self.clients) }

func (self *Notifier) Stats() Stats {
	ans := self.stats
	ans.SignalsReceived = self.bridge.received.Load()
	ans.RealReprograms = self.real.reprogram_count
	ans.VirtualReprograms = self.virtual.reprogram_count
	for _, x := range self.agg.recompute_count {
		ans.AggregateRecomputes += x
	}
	return ans
}

// Stop asks a running loop to return after the current pass, it is the one
// call that is safe from any goroutine
func (self *Notifier) Stop() {
	if self.closed.Load() {
		return
	}
	self.stop_requested.Store(true)
	self.bridge.wake()
}

// Close disarms the OS timers, stops trapping signals and forgets every client
// without invoking any callbacks
func (self *Notifier) Close() (err error) {
	if self.closed.Load() {
		return nil
	}
	if self.in_start {
		return fmt.Errorf("Close called from inside a callback: %w", ErrReentrancy)
	}
	self.closed.Store(true)
	var ignore []unix.Signal
	for _, e := range []*itimer_engine{self.real, self.virtual} {
		if derr := e.disarm(); derr != nil && err == nil {
			err = derr
		}
		if e.ever_armed {
			if e.which == REAL {
				ignore = append(ignore, unix.SIGALRM)
			} else {
				ignore = append(ignore, unix.SIGVTALRM)
			}
		}
	}
	self.bridge.close(ignore...)
	for _, c := range self.clients {
		c.state = CLIENT_DESTROYED
	}
	self.clients, self.ordered = nil, nil
	self.set_state(STATE_STOPPED)
	return
}
