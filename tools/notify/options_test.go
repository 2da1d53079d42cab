// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
)

var _ = fmt.Print

func TestLoadOptions(t *testing.T) {
	tdir := t.TempDir()
	conf := filepath.Join(tdir, "notifier.conf")
	os.WriteFile(conf, []byte("poll_interval 0.5\nmax_clients 64\nauto_terminate no\nmax_clients -3\nunknown_option 1\n"), 0o600)

	opts, bad_lines, err := LoadOptions([]string{conf}, "poll_interval=10ms", "log_level=debug")
	if err != nil {
		t.Fatal(err)
	}
	expected := Options{PollInterval: 10 * time.Millisecond, MaxClients: 64, AutoTerminate: false, LogLevel: "debug"}
	if diff := cmp.Diff(expected, opts); diff != "" {
		t.Fatalf("Unexpected options:\n%s", diff)
	}
	if len(bad_lines) != 2 || bad_lines[0].Line_number != 4 || bad_lines[1].Line_number != 5 {
		t.Fatalf("Unexpected bad lines: %v", bad_lines)
	}

	opts, _, err = LoadOptions([]string{filepath.Join(tdir, "missing.conf")})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(DefaultOptions(), opts); diff != "" {
		t.Fatalf("Missing config file did not give defaults:\n%s", diff)
	}
	if _, bad_lines, _ = LoadOptions([]string{conf}, "log_level=loud"); len(bad_lines) != 3 {
		t.Fatalf("Invalid log level accepted: %v", bad_lines)
	}
}

func TestSetOptions(t *testing.T) {
	n := new_notifier(t)
	c := register(t, n, 0)
	if err := n.SetOptions(Options{PollInterval: -time.Second}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Negative poll interval accepted: %v", err)
	}
	if err := n.SetOptions(Options{LogLevel: "loud"}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Unknown log level accepted: %v", err)
	}
	if diff := cmp.Diff(DefaultOptions(), n.Options()); diff != "" {
		t.Fatalf("Rejected options were applied:\n%s", diff)
	}
	n.set_state(STATE_WAITING)
	if err := n.SetOptions(DefaultOptions()); !errors.Is(err, ErrReentrancy) {
		t.Fatalf("SetOptions while waiting succeeded: %v", err)
	}
	n.set_state(STATE_IDLE)

	opts := Options{PollInterval: time.Millisecond, MaxClients: 1}
	if err := n.SetOptions(opts); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(opts, n.Options()); diff != "" {
		t.Fatalf("Options not applied:\n%s", diff)
	}
	if _, err := n.Register(0); !errors.Is(err, ErrResourceExhaustion) {
		t.Fatalf("New client limit not enforced: %v", err)
	}
	// with AutoTerminate off an unhandled SIGTERM destroys nothing
	n.bridge.pending.Set(int(unix.SIGTERM))
	if status, err := n.Start(true); err != nil || status != STATUS_OK || c.State() != CLIENT_ACTIVE {
		t.Fatalf("SIGTERM terminated with AutoTerminate off: %s %v", status, err)
	}
}
