//go:build !windows

package lock_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"session-backup/src/lock"
)

func TestAcquire_Contention(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	first, err := lock.Acquire(path)
	require.NoError(t, err)

	_, err = lock.Acquire(path)
	require.ErrorIs(t, err, lock.ErrLocked)

	require.NoError(t, first.Release())
	assert.FileExists(t, path, "lock file stays in place after release")

	second, err := lock.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAcquire_OpenerBeforeReleaseStillExcluded(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	holder, err := lock.Acquire(path)
	require.NoError(t, err)

	// Another process has the file open and is about to flock it.
	waiter, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer waiter.Close()

	require.NoError(t, holder.Release())

	next, err := lock.Acquire(path)
	require.NoError(t, err)
	defer next.Release()

	err = unix.Flock(int(waiter.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	assert.ErrorIs(t, err, unix.EWOULDBLOCK, "waiter must contend on the same inode as the new holder")
}

func TestRelease_Idempotent(t *testing.T) {
	l, err := lock.Acquire(filepath.Join(t.TempDir(), ".lock"))
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	var nilLock *lock.Lock
	assert.NoError(t, nilLock.Release())
}
