// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

var _ = fmt.Print

func TestBlockingRead(t *testing.T) {
	n := new_notifier(t)
	r, w := pipe(t)
	ticker := register(t, n, 0)
	ticks := 0
	n.SetItimerFunc(ticker, REAL, 2*time.Millisecond, 2*time.Millisecond, func(*Client, Which) error {
		ticks++
		return nil
	})
	var eg errgroup.Group
	eg.Go(func() error {
		time.Sleep(30 * time.Millisecond)
		_, err := unix.Write(w, []byte("hello"))
		return err
	})
	buf := make([]byte, 16)
	num, err := n.Read(r, buf)
	if err != nil {
		t.Fatal(err)
	}
	if werr := eg.Wait(); werr != nil {
		t.Fatal(werr)
	}
	if string(buf[:num]) != "hello" {
		t.Fatalf("Unexpected data read: %#v", string(buf[:num]))
	}
	if ticks == 0 {
		t.Fatalf("Other clients were not dispatched while Read was blocked")
	}
	if n.ClientCount() != 1 || n.Clients()[0] != ticker {
		t.Fatalf("Read left a private client registered")
	}
}

func TestReadBypass(t *testing.T) {
	n := new_notifier(t)
	r, w := pipe(t)
	if _, err := n.Fcntl(r, unix.F_SETFL, unix.O_NONBLOCK); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := n.Read(r, buf); !errors.Is(err, unix.EAGAIN) {
		t.Fatalf("Read of an empty non-blocking pipe did not fail with EAGAIN: %v", err)
	}
	if n.ClientCount() != 0 {
		t.Fatalf("Non-blocking Read registered a client")
	}

	// inside a callback Read is a plain read
	r2, w2 := pipe(t)
	c := register(t, n, 0)
	var inner error
	n.SetInputFunc(c, r2, func(*Client, int) error {
		unix.Read(r2, buf)
		_, inner = n.Read(r, buf)
		return nil
	})
	write_byte(t, w2)
	run_pass(t, n)
	if !errors.Is(inner, unix.EAGAIN) || n.ClientCount() != 1 {
		t.Fatalf("Read inside a callback ran the loop: %v", inner)
	}
	write_byte(t, w)
}

func TestSelectShim(t *testing.T) {
	n := new_notifier(t)
	r1, w1 := pipe(t)
	r2, w2 := pipe(t)
	nfd := max(r1, w1, r2, w2) + 1
	write_byte(t, w1)

	var rset, wset unix.FdSet
	rset.Set(r1)
	rset.Set(r2)
	wset.Set(w2)
	count, err := n.Select(nfd, &rset, &wset, nil, &unix.Timeval{})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 || !rset.IsSet(r1) || rset.IsSet(r2) || !wset.IsSet(w2) {
		t.Fatalf("Unexpected select result: %d", count)
	}

	rset.Zero()
	rset.Set(r2)
	timeout := unix.NsecToTimeval(int64(20 * time.Millisecond))
	start := time.Now()
	count, err = n.Select(nfd, &rset, nil, nil, &timeout)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 || rset.IsSet(r2) {
		t.Fatalf("Select reported a descriptor that is not ready")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Select returned before its timeout: %s", elapsed)
	}
	if n.ClientCount() != 0 {
		t.Fatalf("Select left a private client registered")
	}
	if _, err = n.Select(unix.FD_SETSIZE+1, nil, nil, nil, nil); !errors.Is(err, unix.EINVAL) {
		t.Fatalf("Select with too many descriptors did not fail with EINVAL: %v", err)
	}
}

func TestReadIgnoresOtherClientFailures(t *testing.T) {
	n := new_notifier(t)
	r, w := pipe(t)
	failing := register(t, n, 0)
	failures := 0
	n.SetItimerFunc(failing, REAL, 2*time.Millisecond, 2*time.Millisecond, func(*Client, Which) error {
		failures++
		return errors.New("unrelated failure")
	})
	var eg errgroup.Group
	eg.Go(func() error {
		time.Sleep(20 * time.Millisecond)
		_, err := unix.Write(w, []byte("hello"))
		return err
	})
	buf := make([]byte, 16)
	num, err := n.Read(r, buf)
	if werr := eg.Wait(); werr != nil {
		t.Fatal(werr)
	}
	if err != nil || string(buf[:max(0, num)]) != "hello" {
		t.Fatalf("Read failed because of another client: %d %v", num, err)
	}
	if failures == 0 {
		t.Fatalf("The failing client was not dispatched while Read waited")
	}
	if n.ClientCount() != 1 {
		t.Fatalf("Read left a private client registered")
	}
}

func TestShimErrnos(t *testing.T) {
	n := new_notifier(t, MaxClients(1))
	r, _ := pipe(t)
	register(t, n, 0)
	buf := make([]byte, 4)
	if num, err := n.Read(r, buf); num != -1 || err != unix.ENOMEM {
		t.Fatalf("Read without room for its client did not fail with ENOMEM: %d %v", num, err)
	}
	var rset unix.FdSet
	rset.Set(r)
	if _, err := n.Select(r+1, &rset, nil, nil, &unix.Timeval{}); err != unix.ENOMEM {
		t.Fatalf("Select without room for its client did not fail with ENOMEM: %v", err)
	}
}
