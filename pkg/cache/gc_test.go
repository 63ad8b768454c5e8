package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCacheEntry creates a directory the collector recognizes as a cache
// entry (via the result-metadata marker, not a real lock file, so
// TryAcquireLock in the collector still behaves normally against it).
func writeCacheEntry(t *testing.T, base, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, ResultCacheMetadataFilename), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "payload.bin"), make([]byte, 1024), 0o644))

	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
	return path
}

func TestGCAgeBasedEvictsOldEntries(t *testing.T) {
	config := testConfig(t)
	base := filepath.Join(config.CacheRoot, config.Namespace, "derived_data")
	require.NoError(t, os.MkdirAll(base, 0o755))

	writeCacheEntry(t, base, "old-entry", 10*24*time.Hour)
	writeCacheEntry(t, base, "fresh-entry", time.Hour)

	gc := NewGC(config, AgeBasedPolicy(7*24*time.Hour))
	result, err := gc.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.NoDirExists(t, filepath.Join(base, "old-entry"))
	assert.DirExists(t, filepath.Join(base, "fresh-entry"))
}

func TestGCDryRunDeletesNothing(t *testing.T) {
	config := testConfig(t)
	base := filepath.Join(config.CacheRoot, config.Namespace, "derived_data")
	require.NoError(t, os.MkdirAll(base, 0o755))
	writeCacheEntry(t, base, "old-entry", 10*24*time.Hour)

	gc := NewGC(config, AgeBasedPolicy(7*24*time.Hour).WithDryRun())
	result, err := gc.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.DirExists(t, filepath.Join(base, "old-entry"))
}

func TestGCSkipsLockedEntry(t *testing.T) {
	config := testConfig(t)
	base := filepath.Join(config.CacheRoot, config.Namespace, "derived_data")
	require.NoError(t, os.MkdirAll(base, 0o755))
	path := writeCacheEntry(t, base, "in-use-entry", 10*24*time.Hour)

	held, err := AcquireLock(path, time.Second)
	require.NoError(t, err)
	defer held.Release()

	gc := NewGC(config, AgeBasedPolicy(7*24*time.Hour))
	result, err := gc.Run()
	require.NoError(t, err)

	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 1, result.Skipped)
	assert.DirExists(t, path)
}

func TestGCResultCacheProtectsRunningJob(t *testing.T) {
	config := testConfig(t)
	resultCache := NewResultCache(config)
	entry := NewResultCacheEntry("job-key-1", "job-1", "run-1", ArtifactProfileRich)
	require.NoError(t, resultCache.Store("job-key-1", entry))

	base := filepath.Join(config.CacheRoot, config.Namespace, "results", "job-key-1")
	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(base, old, old))

	gc := NewGC(config, AgeBasedPolicy(7*24*time.Hour))
	gc.ProtectJob("job-1")

	result, err := gc.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 1, result.Skipped)
	assert.DirExists(t, base)
}

func TestGCResultCacheEvictsUnprotectedJob(t *testing.T) {
	config := testConfig(t)
	resultCache := NewResultCache(config)
	entry := NewResultCacheEntry("job-key-1", "job-1", "run-1", ArtifactProfileRich)
	require.NoError(t, resultCache.Store("job-key-1", entry))

	base := filepath.Join(config.CacheRoot, config.Namespace, "results", "job-key-1")
	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(base, old, old))

	gc := NewGC(config, AgeBasedPolicy(7*24*time.Hour))
	result, err := gc.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
}

func TestGCMissingBaseDirIsNoop(t *testing.T) {
	config := testConfig(t)
	gc := NewGC(config, AgeBasedPolicy(time.Hour))
	result, err := gc.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
}
