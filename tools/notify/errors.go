// License: GPLv3 Copyright: 2026, Kovid Goyal, <kovid at kovidgoyal.net>

package notify

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrNotifier is the base of every error this package defines
	ErrNotifier = errors.New("notifier")
	// ErrConfiguration is returned for invalid condition parameters or unknown clients
	ErrConfiguration = fmt.Errorf("invalid configuration: %w", ErrNotifier)
	// ErrReentrancy is returned for operations invoked from a context that does not allow them
	ErrReentrancy = fmt.Errorf("not allowed in this context: %w", ErrNotifier)
	// ErrResourceExhaustion is returned when no more clients can be registered
	ErrResourceExhaustion = fmt.Errorf("resources exhausted: %w", ErrNotifier)
	// ErrClosed is returned by every operation on a closed notifier
	ErrClosed = fmt.Errorf("notifier is closed: %w", ErrNotifier)

	ErrUnknownClient = fmt.Errorf("unknown client: %w", ErrConfiguration)
)

// OSError is a failed system call, Errno is exactly what the kernel returned
type OSError struct {
	Op    string
	Errno unix.Errno
}

func (e *OSError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Errno.Error())
}

func (e *OSError) Unwrap() error {
	return e.Errno
}

func os_error(op string, err error) error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return &OSError{Op: op, Errno: errno}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

// CallbackError wraps an error returned by, or a panic in, a client callback
type CallbackError struct {
	Client *Client
	Kind   Kind
	Err    error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s callback of %s failed: %s", e.Kind, e.Client, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}
