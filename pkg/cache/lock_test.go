package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockCreatesDirectoryAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")

	lock, err := AcquireLock(dir, time.Second)
	require.NoError(t, err)
	defer lock.Release()

	assert.Equal(t, filepath.Join(dir, lockFilename), lock.Path())
	assert.True(t, fileExists(lock.Path()))
}

func TestAcquireLockReleaseThenReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir, time.Second)
	require.NoError(t, err)
	lock.Release()

	lock2, err := AcquireLock(dir, time.Second)
	require.NoError(t, err)
	lock2.Release()
}

func TestAcquireLockTimesOutWhenContended(t *testing.T) {
	dir := t.TempDir()

	held, err := AcquireLock(dir, time.Second)
	require.NoError(t, err)
	defer held.Release()

	_, err = AcquireLock(dir, 150*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *ErrLockTimeout
	require.ErrorAs(t, err, &timeoutErr)
}

func TestTryAcquireLockFailsWhenHeld(t *testing.T) {
	dir := t.TempDir()

	held, err := AcquireLock(dir, time.Second)
	require.NoError(t, err)
	defer held.Release()

	_, err = TryAcquireLock(dir)
	require.Error(t, err)
}
