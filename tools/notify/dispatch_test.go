// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

var _ = fmt.Print

func TestPriorityOrdering(t *testing.T) {
	for range 20 {
		n := new_notifier(t)
		r, w := pipe(t)
		var order []int
		for _, priority := range []int{1, 0} {
			c := register(t, n, priority)
			n.SetInputFunc(c, r, func(c *Client, fd int) error {
				order = append(order, c.Priority())
				return nil
			})
		}
		write_byte(t, w)
		run_pass(t, n)
		if diff := cmp.Diff([]int{0, 1}, order); diff != "" {
			t.Fatalf("Callbacks not invoked in priority order:\n%s", diff)
		}
		n.Close()
	}
}

func TestSinglePass(t *testing.T) {
	n := new_notifier(t)
	r, _ := pipe(t)
	c := register(t, n, 0)
	n.SetInputFunc(c, r, func(*Client, int) error {
		t.Fatalf("Callback invoked for a descriptor that is not ready")
		return nil
	})
	before := n.Stats().Passes
	start := time.Now()
	run_pass(t, n)
	if n.Stats().Passes != before+1 {
		t.Fatalf("Start(true) ran %d passes", n.Stats().Passes-before)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Start(true) blocked")
	}
	if n.State() != STATE_IDLE {
		t.Fatalf("Unexpected state after a single pass: %s", n.State())
	}
}

func TestSignalCoalescing(t *testing.T) {
	n := new_notifier(t)
	c := register(t, n, 0)
	calls := 0
	n.SetSignalFunc(c, unix.SIGUSR1, func(_ *Client, sig unix.Signal) error {
		if sig != unix.SIGUSR1 {
			t.Fatalf("Wrong signal delivered: %s", sig)
		}
		calls++
		return nil
	})
	for range 3 {
		unix.Kill(os.Getpid(), unix.SIGUSR1)
	}
	wait_for(t, "SIGUSR1 to reach the bridge", func() bool { return n.bridge.pending.Has(int(unix.SIGUSR1)) })
	time.Sleep(50 * time.Millisecond)
	run_pass(t, n)
	if calls != 1 {
		t.Fatalf("Signal raised three times before a pass was delivered %d times", calls)
	}
	run_pass(t, n)
	if calls != 1 {
		t.Fatalf("Signal delivered again without being raised")
	}
}

func TestUnwantedSignalsDropped(t *testing.T) {
	n := new_notifier(t)
	n.bridge.handle(unix.SIGURG)
	if n.bridge.pending.Has(int(unix.SIGURG)) {
		t.Fatalf("SIGURG recorded without any client asking for it")
	}
	c := register(t, n, 0)
	n.SetSignalFunc(c, unix.SIGURG, func(*Client, unix.Signal) error { return nil })
	n.bridge.handle(unix.SIGURG)
	if !n.bridge.pending.Has(int(unix.SIGURG)) {
		t.Fatalf("SIGURG not recorded once a client asked for it")
	}
}

func TestCallbackErrors(t *testing.T) {
	n := new_notifier(t)
	r, w := pipe(t)
	var called []string
	failing, panicking, healthy := register(t, n, 0), register(t, n, 1), register(t, n, 2)
	n.SetInputFunc(failing, r, func(*Client, int) error {
		called = append(called, "failing")
		return errors.New("boom")
	})
	n.SetInputFunc(panicking, r, func(*Client, int) error {
		called = append(called, "panicking")
		panic("bang")
	})
	n.SetInputFunc(healthy, r, func(*Client, int) error {
		called = append(called, "healthy")
		return nil
	})
	write_byte(t, w)
	status, err := n.Start(true)
	if status != STATUS_ERROR {
		t.Fatalf("Unexpected status: %s", status)
	}
	var cerr *CallbackError
	if !errors.As(err, &cerr) || cerr.Client != failing || cerr.Kind != KIND_INPUT || cerr.Err.Error() != "boom" {
		t.Fatalf("First callback error not reported: %v", err)
	}
	if diff := cmp.Diff([]string{"failing", "panicking", "healthy"}, called); diff != "" {
		t.Fatalf("Pass did not complete after a failing callback:\n%s", diff)
	}
	n.Remove(failing)
	_, err = n.Start(true)
	if !errors.As(err, &cerr) || cerr.Client != panicking {
		t.Fatalf("Panic not reported as an error: %v", err)
	}
}

func TestStartReentrancy(t *testing.T) {
	n := new_notifier(t)
	r, w := pipe(t)
	c := register(t, n, 0)
	n.SetInputFunc(c, r, func(*Client, int) error {
		_, err := n.Start(true)
		return err
	})
	write_byte(t, w)
	if _, err := n.Start(true); !errors.Is(err, ErrReentrancy) {
		t.Fatalf("Start inside a callback was allowed: %v", err)
	}
}

func TestStopFromAnotherGoroutine(t *testing.T) {
	n := new_notifier(t)
	r, _ := pipe(t)
	c := register(t, n, 0)
	n.SetInputFunc(c, r, noop_fd)
	var eg errgroup.Group
	eg.Go(func() error {
		deadline := time.Now().Add(5 * time.Second)
		for n.State() != STATE_WAITING {
			if time.Now().After(deadline) {
				n.Stop()
				return fmt.Errorf("the loop never started waiting")
			}
			time.Sleep(time.Millisecond)
		}
		n.Stop()
		return nil
	})
	status, err := n.Start(false)
	if err != nil || status != STATUS_OK {
		t.Fatalf("Start did not stop cleanly: %s %v", status, err)
	}
	if err = eg.Wait(); err != nil {
		t.Fatal(err)
	}
	if n.State() != STATE_STOPPED {
		t.Fatalf("Unexpected state after stop: %s", n.State())
	}
}

func TestStopRacesClose(t *testing.T) {
	n := new_notifier(t)
	var eg errgroup.Group
	for range 4 {
		eg.Go(func() error {
			for range 200 {
				n.Stop()
			}
			return nil
		})
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
	n.Stop()
	if n.State() != STATE_STOPPED {
		t.Fatalf("Unexpected state after close: %s", n.State())
	}
}

func TestRemovedClientNotDispatched(t *testing.T) {
	n := new_notifier(t)
	r, w := pipe(t)
	a, b := register(t, n, 0), register(t, n, 1)
	var later *Client
	n.SetInputFunc(a, r, func(*Client, int) error {
		later = register(t, n, -10)
		n.SetInputFunc(later, r, func(*Client, int) error {
			t.Fatalf("Client registered during a pass was dispatched in it")
			return nil
		})
		return n.Remove(b)
	})
	n.SetInputFunc(b, r, func(*Client, int) error {
		t.Fatalf("Removed client was dispatched")
		return nil
	})
	write_byte(t, w)
	run_pass(t, n)
	if n.ClientCount() != 2 || later.State() != CLIENT_ACTIVE || b.State() != CLIENT_DESTROYED {
		t.Fatalf("Unexpected registry after the pass")
	}
}

func TestCustomEvents(t *testing.T) {
	n := new_notifier(t)
	c := register(t, n, 0)
	var got []any
	n.SetEventFunc(c, func(c *Client, event any) error {
		got = append(got, event)
		if event == "first" {
			return n.PostEvent(c, "posted during dispatch")
		}
		return nil
	})
	n.PostEvent(c, "first")
	n.PostEvent(c, 2)
	run_pass(t, n)
	if diff := cmp.Diff([]any{"first", 2}, got); diff != "" {
		t.Fatalf("Events not delivered in order:\n%s", diff)
	}
	run_pass(t, n)
	if diff := cmp.Diff([]any{"first", 2, "posted during dispatch"}, got); diff != "" {
		t.Fatalf("Event posted during dispatch not delivered in the next pass:\n%s", diff)
	}
}

func TestPrioritizer(t *testing.T) {
	n := new_notifier(t)
	r1, w1 := pipe(t)
	r2, w2 := pipe(t)
	c := register(t, n, 0)
	var order []int
	record := func(_ *Client, fd int) error {
		order = append(order, fd)
		return nil
	}
	n.SetInputFunc(c, r1, record)
	n.SetInputFunc(c, r2, record)
	n.SetPrioritizer(c, func(c *Client, pending []*Notification) []*Notification {
		ans := make([]*Notification, 0, len(pending))
		for i := len(pending) - 1; i >= 0; i-- {
			ans = append(ans, pending[i])
		}
		return ans
	})
	write_byte(t, w1)
	write_byte(t, w2)
	run_pass(t, n)
	if diff := cmp.Diff([]int{max(r1, r2), min(r1, r2)}, order); diff != "" {
		t.Fatalf("Prioritizer order not honoured:\n%s", diff)
	}
}

func TestWait3(t *testing.T) {
	exe, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not found")
	}
	n := new_notifier(t)
	c := register(t, n, 0)
	p, err := os.StartProcess(exe, []string{exe}, &os.ProcAttr{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	reaped := -1
	n.SetWait3Func(c, p.Pid, func(_ *Client, pid int, status unix.WaitStatus, rusage *unix.Rusage) error {
		if !status.Exited() || status.ExitStatus() != 0 || rusage == nil {
			t.Fatalf("Unexpected child status: %v", status)
		}
		reaped = pid
		n.Stop()
		return nil
	})
	if _, err := n.Start(false); err != nil {
		t.Fatal(err)
	}
	if reaped != p.Pid {
		t.Fatalf("Child was not reaped")
	}
	if n.GetCondition(c, Key{KIND_WAIT3, p.Pid}) != nil {
		t.Fatalf("Wait3 condition not removed after the child was reaped")
	}
}

func TestFailedPassKeepsSignals(t *testing.T) {
	dev := &failing_device{}
	n := new_notifier(t, with_itimer_device(dev))
	c := register(t, n, 0)
	calls := 0
	n.SetSignalFunc(c, unix.SIGUSR1, func(*Client, unix.Signal) error {
		calls++
		return nil
	})
	n.SetItimerFunc(c, VIRTUAL, time.Second, 0, noop_itimer)
	run_pass(t, n)

	dev.fail = true
	n.bridge.pending.Set(int(unix.SIGUSR1))
	status, err := n.Start(true)
	var oserr *OSError
	if status != STATUS_ERROR || !errors.As(err, &oserr) || !errors.Is(err, unix.EINVAL) {
		t.Fatalf("Device failure not reported: %s %v", status, err)
	}
	if calls != 0 || !n.bridge.pending.Has(int(unix.SIGUSR1)) {
		t.Fatalf("Failed pass consumed the pending signal")
	}
	dev.fail = false
	run_pass(t, n)
	if calls != 1 {
		t.Fatalf("Signal pending across a failed pass was delivered %d times", calls)
	}
}

func TestAsyncInputOnSIGIO(t *testing.T) {
	n := new_notifier(t)
	r, w := pipe(t)
	if _, err := n.Fcntl(r, unix.F_SETFL, unix.O_ASYNC); err != nil {
		t.Fatal(err)
	}
	c := register(t, n, 0)
	calls := 0
	n.SetInputFunc(c, r, func(_ *Client, fd int) error {
		calls++
		var buf [8]byte
		_, err := unix.Read(fd, buf[:])
		return err
	})
	run_pass(t, n)
	if calls != 0 || !n.bridge.async_fds.Has(r) {
		t.Fatalf("Async descriptor not published to the signal bridge")
	}
	write_byte(t, w)
	n.bridge.handle(unix.SIGIO)
	if !n.bridge.async_input.Has(r) || !n.bridge.pending.Has(int(unix.SIGIO)) {
		t.Fatalf("SIGIO did not record the descriptor with pending bytes")
	}
	run_pass(t, n)
	if calls != 1 || n.bridge.async_input.Any() {
		t.Fatalf("Async input not dispatched exactly once: %d", calls)
	}
	// an async descriptor with nothing to read is not reported
	n.bridge.handle(unix.SIGIO)
	if n.bridge.async_input.Has(r) {
		t.Fatalf("SIGIO recorded a descriptor with no pending bytes")
	}
}
