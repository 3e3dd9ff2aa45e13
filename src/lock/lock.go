// Package lock provides an exclusive advisory lock file used to keep two
// backup runs from populating and pruning the same backup root at once.
package lock

import (
	"errors"
	"os"
	"sync"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("backup root is locked by another process")

// Lock is a held lock file. The zero value is not usable; use Acquire.
type Lock struct {
	mu   sync.Mutex
	file *os.File
}

// Acquire takes an exclusive, non-blocking lock on path, creating the file if
// needed. It returns ErrLocked (wrapped) on contention.
func Acquire(path string) (*Lock, error) {
	f, err := acquireFileLock(path)
	if err != nil {
		return nil, err
	}
	return &Lock{file: f}, nil
}

// Release unlocks the lock file and leaves it in place. Safe to call more
// than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.file
	l.file = nil
	return releaseFileLock(f)
}
