package app

import (
	"fmt"
	"os"
	"syscall"
)

// processLock is an exclusive advisory lock on a single file, preventing
// two instances of this process from running against the same data
// directory concurrently and corrupting the serial state file, the meter
// queue, or the issue tracker snapshot.
type processLock struct {
	file *os.File
}

// acquireProcessLock opens (creating if necessary) the lock file at path
// and takes a non-blocking exclusive flock on it. A second instance
// pointed at the same data directory fails here immediately instead of
// silently racing the first.
func acquireProcessLock(path string) (*processLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquiring lock on %s: another instance is already running against this data directory", path)
	}
	return &processLock{file: f}, nil
}

// release drops the flock and closes the underlying file.
func (l *processLock) release() error {
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("releasing lock: %w", err)
	}
	return l.file.Close()
}
