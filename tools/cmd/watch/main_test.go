// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package watch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kovidgoyal/notifier/tools/log"
)

var _ = fmt.Print

func TestWatch(t *testing.T) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	unix.Write(fds[1], []byte("hello"))
	unix.Close(fds[1])

	conf := filepath.Join(t.TempDir(), "watch.conf")
	if err := os.WriteFile(conf, []byte("max_clients 8\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out := bytes.Buffer{}
	opts := Options{
		Config: []string{conf}, Overrides: []string{"auto_terminate=no"},
		Tick: 10 * time.Millisecond, MaxTicks: 3, Spawn: "exit 3",
	}
	w := watcher{opts: &opts, out: &out, input_fd: fds[0], log: log.NewLogger("test")}
	w.start = time.Now()
	if err := w.setup(); err != nil {
		if w.n != nil {
			w.n.Close()
		}
		t.Fatal(err)
	}
	if o := w.n.Options(); o.MaxClients != 8 || o.AutoTerminate {
		t.Fatalf("Config not applied at startup: %+v", o)
	}

	// SIGUSR1 re-reads the config file into the running notifier
	if err := os.WriteFile(conf, []byte("max_clients 16\npoll_interval 2ms\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := unix.Kill(os.Getpid(), unix.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	if err := w.loop(); err != nil {
		t.Fatal(err)
	}
	if o := w.n.Options(); o.MaxClients != 16 || o.PollInterval != 2*time.Millisecond || o.AutoTerminate {
		t.Fatalf("Reloaded config not applied: %+v", o)
	}

	text := out.String()
	for _, q := range []string{
		`input: "hello"`, "input closed", "reloaded config:", "MaxClients:16", "tick 3 (real)",
		"shutting down (cleanup) after 3 ticks",
	} {
		if !strings.Contains(text, q) {
			t.Fatalf("Output missing %#v:\n%s", q, text)
		}
	}
	if strings.Contains(text, "tick 4") {
		t.Fatalf("Ticked past the limit:\n%s", text)
	}
}
