// Package lock provides the fleet-wide exclusive advisory lock the CLI
// holds across every backend read/write, serializing concurrent invocations
// of the tool the same way flush_unix.go reaches for golang.org/x/sys/unix
// for its platform primitive.
package lock

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/dtutils/state/internal/dterr"
)

// DefaultPath is the well-known lock file the CLI serializes on.
const DefaultPath = "/var/lock/barebox-state"

// Lock holds an open, flock(2)-exclusive file descriptor. Close releases it.
type Lock struct {
	f *os.File
}

// Acquire opens (creating if missing, mode 0600) and exclusively flocks
// path, blocking until the lock is available.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, dterr.Wrap(dterr.IOError, err, "opening lock file %s", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, dterr.Wrap(dterr.IOError, err, "locking %s", path)
	}
	return &Lock{f: f}, nil
}

// Close releases the lock and closes the underlying file descriptor.
func (l *Lock) Close() error {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
