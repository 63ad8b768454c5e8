package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPMCacheKeyToDirNameTruncatesHash(t *testing.T) {
	toolchain := ToolchainKey{XcodeBuild: "15F31d", MacOSMajor: "14", Arch: "arm64"}
	key := NewSPMCacheKey("pin: 1.2.3", toolchain)

	name := key.ToDirName()
	assert.Contains(t, name, toolchain.ToDirName())
	assert.Len(t, key.ResolvedHash, 64)
	assert.Contains(t, name, key.ResolvedHash[:16])
	assert.NotContains(t, name, key.ResolvedHash)
}

func TestSPMCacheKeyDeterministicHash(t *testing.T) {
	toolchain := ToolchainKey{XcodeBuild: "15F31d", MacOSMajor: "14", Arch: "arm64"}
	a := NewSPMCacheKey("same content", toolchain)
	b := NewSPMCacheKey("same content", toolchain)
	assert.Equal(t, a.ResolvedHash, b.ResolvedHash)
}

func TestSPMCacheOffModeReturnsNoPath(t *testing.T) {
	c := NewSPMCache(testConfig(t))
	path, ok, err := c.GetPath(SPMCacheOff, SPMCacheKey{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, path)
}

func TestSPMCacheSharedModeLocksDirectory(t *testing.T) {
	c := NewSPMCache(testConfig(t))
	toolchain := ToolchainKey{XcodeBuild: "15F31d", MacOSMajor: "14", Arch: "arm64"}
	key := NewSPMCacheKey("Package.resolved contents", toolchain)

	path, ok, err := c.GetPath(SPMCacheShared, key)
	require.NoError(t, err)
	require.True(t, ok)
	defer c.ReleaseLock()

	assert.True(t, fileExists(path+"/"+lockFilename))
}

func TestParseSPMCacheModeRejectsUnknown(t *testing.T) {
	_, ok := ParseSPMCacheMode("bogus")
	assert.False(t, ok)
}
