// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package watch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hako/durafmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/log"
	"github.com/kovidgoyal/notifier/tools/notify"
)

var _ = fmt.Print

type Options struct {
	Config    []string
	Overrides []string
	Tick      time.Duration
	CPUTick   time.Duration
	Spawn     string
	MaxTicks  int
}

type watcher struct {
	opts     *Options
	out      io.Writer
	input_fd int
	log      *logrus.Entry

	n     *notify.Notifier
	main  *notify.Client
	start time.Time
	ticks int
}

func (self *watcher) printf(format string, args ...any) {
	fmt.Fprintf(self.out, format+"\n", args...)
}

func since(t time.Time) string {
	return durafmt.Parse(time.Since(t)).LimitFirstN(2).String()
}

func (self *watcher) setup() (err error) {
	nopts, bad_lines, err := notify.LoadOptions(self.opts.Config, self.opts.Overrides...)
	if err != nil {
		return err
	}
	for _, bl := range bad_lines {
		self.log.Warnf("ignoring config line: %s", bl)
	}
	if self.n, err = notify.New(notify.WithOptions(nopts)); err != nil {
		return err
	}
	if self.main, err = self.n.Register(0); err != nil {
		return err
	}
	c := self.main
	if self.input_fd > -1 {
		if _, err = self.n.SetInputFunc(c, self.input_fd, self.on_input); err != nil {
			return err
		}
	}
	if self.opts.Tick > 0 {
		if _, err = self.n.SetItimerFunc(c, notify.REAL, self.opts.Tick, self.opts.Tick, self.on_tick); err != nil {
			return err
		}
	}
	if self.opts.CPUTick > 0 {
		if _, err = self.n.SetItimerFunc(c, notify.VIRTUAL, self.opts.CPUTick, self.opts.CPUTick, self.on_tick); err != nil {
			return err
		}
	}
	for sig, handler := range map[unix.Signal]notify.SignalFunc{
		unix.SIGUSR1: self.on_reload, unix.SIGUSR2: self.on_usr2, unix.SIGINT: self.on_quit, unix.SIGHUP: self.on_quit,
	} {
		if _, err = self.n.SetSignalFunc(c, sig, handler); err != nil {
			return err
		}
	}
	if _, err = self.n.SetEventFunc(c, self.on_event); err != nil {
		return err
	}
	if _, err = self.n.SetDestroyFunc(c, self.on_destroy); err != nil {
		return err
	}
	if self.opts.Spawn != "" {
		return self.spawn(self.opts.Spawn)
	}
	return nil
}

func (self *watcher) spawn(cmdline string) error {
	p, err := os.StartProcess("/bin/sh", []string{"/bin/sh", "-c", cmdline}, &os.ProcAttr{Files: []*os.File{nil, os.Stdout, os.Stderr}})
	if err != nil {
		return err
	}
	pid := p.Pid
	p.Release()
	c, err := self.n.Register(1)
	if err != nil {
		return err
	}
	self.printf("spawned %d: %s", pid, cmdline)
	_, err = self.n.SetWait3Func(c, pid, self.on_exit)
	return err
}

func (self *watcher) on_input(c *notify.Client, fd int) error {
	var buf [4096]byte
	n, err := unix.Read(fd, buf[:])
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return nil
	}
	if n <= 0 {
		self.printf("input closed")
		return self.n.RemoveCondition(c, notify.Key{Kind: notify.KIND_INPUT, Arg: fd})
	}
	self.printf("input: %q", string(buf[:n]))
	return nil
}

func (self *watcher) on_tick(c *notify.Client, which notify.Which) error {
	self.ticks++
	self.printf("tick %d (%s) after %s", self.ticks, which, since(self.start))
	if self.opts.MaxTicks > 0 && self.ticks >= self.opts.MaxTicks {
		return self.n.PostDestroy(c, notify.DESTROY_CLEANUP)
	}
	return nil
}

func (self *watcher) on_reload(c *notify.Client, sig unix.Signal) error {
	nopts, bad_lines, err := notify.LoadOptions(self.opts.Config, self.opts.Overrides...)
	if err != nil {
		return err
	}
	for _, bl := range bad_lines {
		self.log.Warnf("ignoring config line: %s", bl)
	}
	if err = self.n.SetOptions(nopts); err != nil {
		return err
	}
	self.printf("reloaded config: %+v", self.n.Options())
	return nil
}

func (self *watcher) on_usr2(c *notify.Client, sig unix.Signal) error {
	return self.n.PostEvent(c, fmt.Sprintf("%s after %s", unix.SignalName(sig), since(self.start)))
}

func (self *watcher) on_quit(c *notify.Client, sig unix.Signal) error {
	self.printf("received %s", unix.SignalName(sig))
	return self.n.PostDestroy(c, notify.DESTROY_CLEANUP)
}

func (self *watcher) on_event(c *notify.Client, event any) error {
	self.printf("event: %v", event)
	return nil
}

func (self *watcher) on_destroy(c *notify.Client, status notify.DestroyStatus) error {
	self.printf("shutting down (%s) after %d ticks", status, self.ticks)
	self.n.Stop()
	return nil
}

func (self *watcher) on_exit(c *notify.Client, pid int, status unix.WaitStatus, rusage *unix.Rusage) error {
	utime := time.Duration(rusage.Utime.Nano())
	self.printf("child %d exited with status %d using %s of CPU time", pid, status.ExitStatus(), durafmt.Parse(utime).LimitFirstN(2))
	return self.n.Remove(c)
}

func (self *watcher) run() (err error) {
	self.start = time.Now()
	if err = self.setup(); err != nil {
		if self.n != nil {
			self.n.Close()
		}
		return err
	}
	return self.loop()
}

func (self *watcher) loop() (err error) {
	defer self.n.Close()
	status, err := self.n.Start(false)
	if status == notify.STATUS_EXIT_PENDING {
		self.printf("terminated")
	}
	return err
}

func EntryPoint(root *cobra.Command) {
	opts := Options{}
	var log_level string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Echo stdin, tick timers and report signals and child exits from a single notifier loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := log.SetLevel(log_level); err != nil {
				return err
			}
			w := watcher{opts: &opts, out: cmd.OutOrStdout(), input_fd: int(os.Stdin.Fd()), log: log.NewLogger("watch")}
			return w.run()
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&opts.Config, "config", "c", nil, "Config file to read instead of the default notifier.conf")
	f.StringArrayVarP(&opts.Overrides, "override", "o", nil, "Override a config option, as key=value")
	f.DurationVar(&opts.Tick, "tick", time.Second, "Interval of the wall clock timer, zero to disable")
	f.DurationVar(&opts.CPUTick, "cpu-tick", 0, "Interval of the CPU time timer, zero to disable")
	f.StringVar(&opts.Spawn, "spawn", "", "Shell command to run as a child and wait for")
	f.IntVar(&opts.MaxTicks, "max-ticks", 0, "Exit after this many timer ticks")
	f.StringVar(&log_level, "log-level", "", "Logging level: trace, debug, info, warning or error")
	root.AddCommand(cmd)
}
