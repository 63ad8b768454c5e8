package cache

import (
	"os"
	"path/filepath"
)

// DerivedDataMode selects how the worker provisions Xcode's DerivedData
// directory for a job.
type DerivedDataMode string

const (
	DerivedDataOff    DerivedDataMode = "off"
	DerivedDataPerJob DerivedDataMode = "per_job"
	DerivedDataShared DerivedDataMode = "shared"
)

// ParseDerivedDataMode parses a config value, returning ("", false) for
// anything other than "off", "per_job" or "shared".
func ParseDerivedDataMode(s string) (DerivedDataMode, bool) {
	switch DerivedDataMode(s) {
	case DerivedDataOff, DerivedDataPerJob, DerivedDataShared:
		return DerivedDataMode(s), true
	default:
		return "", false
	}
}

// DerivedDataCache manages the caches/<namespace>/derived_data/<mode>/<key>
// directory tree. A held lock (shared mode only) is released explicitly by
// the caller via ReleaseLock once the job using it has finished.
type DerivedDataCache struct {
	config Config
	lock   *Lock
}

// NewDerivedDataCache builds a manager bound to config.
func NewDerivedDataCache(config Config) *DerivedDataCache {
	return &DerivedDataCache{config: config}
}

// GetPath resolves the DerivedData directory for mode, creating it (and,
// for shared mode, locking it) as needed. Off mode returns ("", false):
// Xcode falls back to its own default location.
func (c *DerivedDataCache) GetPath(mode DerivedDataMode, jobKey string, toolchain ToolchainKey) (string, bool, error) {
	switch mode {
	case DerivedDataOff:
		return "", false, nil
	case DerivedDataPerJob:
		path, err := c.perJobPath(jobKey)
		return path, err == nil, err
	case DerivedDataShared:
		path, err := c.sharedPath(toolchain)
		return path, err == nil, err
	default:
		return "", false, nil
	}
}

func (c *DerivedDataCache) perJobPath(jobKey string) (string, error) {
	path := filepath.Join(c.config.CacheRoot, c.config.Namespace, "derived_data", string(DerivedDataPerJob), jobKey)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

func (c *DerivedDataCache) sharedPath(toolchain ToolchainKey) (string, error) {
	path := filepath.Join(c.config.CacheRoot, c.config.Namespace, "derived_data", string(DerivedDataShared), toolchain.ToDirName())
	lock, err := AcquireLock(path, c.config.LockTimeout)
	if err != nil {
		return "", err
	}
	c.lock = lock
	return path, nil
}

// ReleaseLock drops the held shared-mode lock, if any.
func (c *DerivedDataCache) ReleaseLock() {
	if c.lock != nil {
		c.lock.Release()
		c.lock = nil
	}
}

// BasePath returns the root directory for one mode, used by the garbage
// collector rather than by job execution.
func (c *DerivedDataCache) BasePath(mode DerivedDataMode) string {
	return filepath.Join(c.config.CacheRoot, c.config.Namespace, "derived_data", string(mode))
}

// ListCaches lists the immediate subdirectories under mode's base path.
func (c *DerivedDataCache) ListCaches(mode DerivedDataMode) ([]string, error) {
	return listDirs(c.BasePath(mode))
}

// Stats reports count and total size for one mode.
func (c *DerivedDataCache) Stats(mode DerivedDataMode) (CacheStats, error) {
	return dirStats(c.BasePath(mode), string(mode))
}

// CacheStats summarizes one cache family/mode.
type CacheStats struct {
	Mode          string
	Count         int
	TotalSizeBytes int64
}

func listDirs(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(base, e.Name()))
		}
	}
	return dirs, nil
}

func dirStats(base, mode string) (CacheStats, error) {
	dirs, err := listDirs(base)
	if err != nil {
		return CacheStats{}, err
	}
	var total int64
	for _, d := range dirs {
		size, err := dirSize(d)
		if err != nil {
			return CacheStats{}, err
		}
		total += size
	}
	return CacheStats{Mode: mode, Count: len(dirs), TotalSizeBytes: total}, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		full := filepath.Join(path, e.Name())
		if e.IsDir() {
			sub, err := dirSize(full)
			if err != nil {
				return 0, err
			}
			size += sub
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		size += info.Size()
	}
	return size, nil
}
