// Package lock gives a daemon exclusive use of a serial device for as
// long as it runs, using flock(2) on a per-device lock file.
//
// Two daemons driving PPP on one tty would fight over the helper and
// its status artifact, so a device is only supervised by whoever holds
// its lock. The lock file records the holder's pid for operators.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ErrHeld is returned when ctx ends while another process holds the
// lock.
var ErrHeld = errors.New("device lock held by another process")

// DeviceLock is a held lock. It is released by Release or by process
// exit.
type DeviceLock struct {
	f    *os.File
	path string
}

// Acquire takes the exclusive lock at path, creating the file if
// needed. Uses LOCK_EX|LOCK_NB with exponential backoff and gives up
// when ctx ends.
func Acquire(ctx context.Context, path string) (*DeviceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	backoff := 25 * time.Millisecond
	const maxBackoff = 500 * time.Millisecond

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if err != unix.EWOULDBLOCK {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			holder, _ := Holder(path)
			f.Close()
			return nil, fmt.Errorf("%s (pid %d): %w", path, holder, ErrHeld)
		case <-t.C:
		}

		if backoff < maxBackoff {
			backoff *= 2
		}
	}

	l := &DeviceLock{f: f, path: path}
	if err := l.writePID(); err != nil {
		l.Release()
		return nil, err
	}
	return l, nil
}

// writePID stores our pid in the ten-column ASCII form serial lock
// files traditionally use.
func (l *DeviceLock) writePID() error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := l.f.WriteAt([]byte(fmt.Sprintf("%10d\n", os.Getpid())), 0); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *DeviceLock) Path() string { return l.path }

// Release drops the lock. The file is left in place; its contents are
// cleared so a stale pid is not reported.
func (l *DeviceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = l.f.Truncate(0)
	err := l.f.Close()
	l.f = nil
	return err
}

// Holder returns the pid recorded in the lock file at path, or zero.
func Holder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
