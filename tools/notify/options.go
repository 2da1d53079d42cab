// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kovidgoyal/notifier/tools/config"
	"github.com/kovidgoyal/notifier/tools/log"
)

var _ = fmt.Print

const CONFIG_NAME = "notifier"

type Options struct {
	// how long a pass waits when a polling itimer is armed
	PollInterval time.Duration
	// zero means unlimited
	MaxClients int
	// destroy every client and return from Start on SIGTERM when no client
	// handles SIGTERM itself
	AutoTerminate bool
	LogLevel      string
}

func DefaultOptions() Options {
	return Options{AutoTerminate: true}
}

func (self *Options) Set(key, val string) (err error) {
	switch key {
	case "poll_interval":
		var d time.Duration
		if d, err = config.StringToDuration(val); err == nil {
			if d < 0 {
				return fmt.Errorf("poll_interval cannot be negative")
			}
			self.PollInterval = d
		}
	case "max_clients":
		var n int
		if n, err = strconv.Atoi(val); err == nil {
			if n < 0 {
				return fmt.Errorf("max_clients cannot be negative")
			}
			self.MaxClients = n
		}
	case "auto_terminate":
		self.AutoTerminate = config.StringToBool(val)
	case "log_level":
		// validate without changing the global level
		current := log.Level()
		if err = log.SetLevel(val); err == nil {
			self.LogLevel = val
			_ = log.SetLevel(current)
		}
	default:
		return fmt.Errorf("Unknown option: %s", key)
	}
	return
}

// LoadOptions reads notifier.conf from the system config directory and then
// from paths or the user config directory, applying key=value overrides last.
// Lines that could not be used are returned, they do not cause an error.
func LoadOptions(paths []string, overrides ...string) (opts Options, bad_lines []config.ConfigLine, err error) {
	opts = DefaultOptions()
	p := config.ConfigParser{LineHandler: opts.Set}
	err = p.LoadConfig(CONFIG_NAME, paths, overrides)
	return opts, p.BadLines(), err
}
