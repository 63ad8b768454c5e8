package cache

import (
	"path/filepath"

	"github.com/paulrobinshaw/rch-xcode/pkg/hashutil"
)

// SPMCacheMode selects how the worker provisions Swift Package Manager's
// resolved-dependency cache for a job.
type SPMCacheMode string

const (
	SPMCacheOff    SPMCacheMode = "off"
	SPMCacheShared SPMCacheMode = "shared"
)

// ParseSPMCacheMode parses a config value, returning ("", false) for
// anything other than "off" or "shared".
func ParseSPMCacheMode(s string) (SPMCacheMode, bool) {
	switch SPMCacheMode(s) {
	case SPMCacheOff, SPMCacheShared:
		return SPMCacheMode(s), true
	default:
		return "", false
	}
}

// SPMCacheKey combines the resolved-dependency content hash with toolchain
// identity: two jobs only share an SPM cache when both match.
type SPMCacheKey struct {
	ResolvedHash string
	Toolchain    ToolchainKey
}

// NewSPMCacheKey hashes packageResolvedContent (the Package.resolved file
// contents) to build a key.
func NewSPMCacheKey(packageResolvedContent string, toolchain ToolchainKey) SPMCacheKey {
	return SPMCacheKey{ResolvedHash: hashutil.SumHex([]byte(packageResolvedContent)), Toolchain: toolchain}
}

// ToDirName returns "<toolchain_dir>/<hash_prefix>", using the first 16
// hex characters of the resolved hash for a short but collision-resistant
// directory name.
func (k SPMCacheKey) ToDirName() string {
	prefix := k.ResolvedHash
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return filepath.Join(k.Toolchain.ToDirName(), prefix)
}

// SPMCache manages the caches/<namespace>/spm/<toolchain_key>/<hash> tree.
type SPMCache struct {
	config Config
	lock   *Lock
}

// NewSPMCache builds a manager bound to config.
func NewSPMCache(config Config) *SPMCache {
	return &SPMCache{config: config}
}

// GetPath resolves (and locks, for shared mode) the SPM cache directory
// for key. Off mode returns ("", false): SPM resolves fresh every time.
func (c *SPMCache) GetPath(mode SPMCacheMode, key SPMCacheKey) (string, bool, error) {
	if mode == SPMCacheOff {
		return "", false, nil
	}
	path := filepath.Join(c.config.CacheRoot, c.config.Namespace, "spm", key.ToDirName())
	lock, err := AcquireLock(path, c.config.LockTimeout)
	if err != nil {
		return "", false, err
	}
	c.lock = lock
	return path, true, nil
}

// ReleaseLock drops the held lock, if any.
func (c *SPMCache) ReleaseLock() {
	if c.lock != nil {
		c.lock.Release()
		c.lock = nil
	}
}

// BasePath returns "caches/<namespace>/spm", used by the garbage collector.
func (c *SPMCache) BasePath() string {
	return filepath.Join(c.config.CacheRoot, c.config.Namespace, "spm")
}
