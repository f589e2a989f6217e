package blockfile

import (
	"syscall"
	"time"

	"github.com/pkg/errors"
)

var ErrLockTimeout = errors.New("failed to acquire file lock")

func flock(fd uintptr, timeout time.Duration) error {
	var t time.Time
	for {
		// If we're beyond our timeout then return an error.
		// This can only occur after we've attempted a flock once.
		if t.IsZero() {
			t = time.Now()
		} else if timeout > 0 && time.Since(t) > timeout {
			return ErrLockTimeout
		}
		// Only one writer may hold a journal file.
		err := syscall.Flock(int(fd), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		} else if err != syscall.EWOULDBLOCK {
			return err
		}
		// Wait for a bit and try again.
		time.Sleep(50 * time.Millisecond)
	}
}

func funlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
