//go:build !windows

package lock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// maxReopen bounds how often Acquire retries when the lock file is replaced
// between open and flock.
const maxReopen = 10

func acquireFileLock(path string) (*os.File, error) {
	for range maxReopen {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open lock file: %w", err)
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, fmt.Errorf("%s: %w", path, ErrLocked)
			}
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		// The path may have been unlinked or replaced after we opened it; a
		// lock on a stale inode excludes nobody.
		same, err := sameFile(f, path)
		if err != nil {
			unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			return nil, err
		}
		if same {
			return f, nil
		}
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}
	return nil, fmt.Errorf("%s: lock file keeps changing: %w", path, ErrLocked)
}

func sameFile(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat lock file: %w", err)
	}
	cur, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat lock file: %w", err)
	}
	return os.SameFile(held, cur), nil
}

// releaseFileLock unlocks and closes f. The lock file stays in place so every
// process contends on the same inode.
func releaseFileLock(f *os.File) error {
	if f == nil {
		return nil
	}
	errUn := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return errors.Join(errUn, f.Close())
}
