package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArtifactProfile is how much a job's artifact directory retains: Minimal
// (logs, summary, attestation) or Rich (also build products/test results).
// A result cache entry can only satisfy a submit whose requested profile
// is no richer than what was actually cached.
type ArtifactProfile string

const (
	ArtifactProfileMinimal ArtifactProfile = "minimal"
	ArtifactProfileRich    ArtifactProfile = "rich"
)

// Satisfies reports whether an entry cached at profile p can stand in for
// a submit that requested `requested`. Rich satisfies any request; Minimal
// only satisfies a Minimal request.
func (p ArtifactProfile) Satisfies(requested ArtifactProfile) bool {
	if p == ArtifactProfileRich {
		return true
	}
	return requested == ArtifactProfileMinimal
}

// ResultCacheMetadataFilename is the per-entry metadata file name,
// doubling as the garbage collector's running-job protection marker.
const ResultCacheMetadataFilename = ".rch_cache_meta.json"

// ResultCacheEntry is the metadata recorded alongside a cached job's
// retained artifact directory.
type ResultCacheEntry struct {
	JobKey          string          `json:"job_key"`
	OriginalJobID   string          `json:"original_job_id"`
	OriginalRunID   string          `json:"original_run_id"`
	ArtifactProfile ArtifactProfile `json:"artifact_profile"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
}

// NewResultCacheEntry builds an entry with no expiry set.
func NewResultCacheEntry(jobKey, originalJobID, originalRunID string, profile ArtifactProfile) ResultCacheEntry {
	return ResultCacheEntry{
		JobKey:          jobKey,
		OriginalJobID:   originalJobID,
		OriginalRunID:   originalRunID,
		ArtifactProfile: profile,
		CreatedAt:       time.Now().UTC(),
	}
}

// WithExpiry returns a copy of e that expires at t.
func (e ResultCacheEntry) WithExpiry(t time.Time) ResultCacheEntry {
	e.ExpiresAt = &t
	return e
}

// Expired reports whether the entry's ExpiresAt has passed.
func (e ResultCacheEntry) Expired() bool {
	return e.ExpiresAt != nil && time.Now().UTC().After(*e.ExpiresAt)
}

// ResultCache manages the caches/<namespace>/results/<job_key> tree: jobs
// whose job_key matches an unexpired, profile-satisfying entry can be
// materialized from cache instead of rebuilt.
type ResultCache struct {
	config Config
	lock   *Lock
}

// NewResultCache builds a manager bound to config.
func NewResultCache(config Config) *ResultCache {
	return &ResultCache{config: config}
}

func (c *ResultCache) pathForKey(jobKey string) string {
	return filepath.Join(c.config.CacheRoot, c.config.Namespace, "results", jobKey)
}

// GetCached looks up jobKey, returning the cache directory and entry if a
// valid (unexpired, profile-satisfying) result exists. The directory is
// locked on return; callers must call ReleaseLock once done reading it.
func (c *ResultCache) GetCached(jobKey string, requestedProfile ArtifactProfile) (string, ResultCacheEntry, bool, error) {
	path := c.pathForKey(jobKey)
	metaPath := filepath.Join(path, ResultCacheMetadataFilename)

	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return "", ResultCacheEntry{}, false, nil
	}
	if err != nil {
		return "", ResultCacheEntry{}, false, err
	}

	var entry ResultCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", ResultCacheEntry{}, false, fmt.Errorf("invalid cache metadata at %s: %w", metaPath, err)
	}

	if entry.Expired() || !entry.ArtifactProfile.Satisfies(requestedProfile) {
		return "", ResultCacheEntry{}, false, nil
	}

	lock, err := AcquireLock(path, c.config.LockTimeout)
	if err != nil {
		return "", ResultCacheEntry{}, false, err
	}
	c.lock = lock
	return path, entry, true, nil
}

// Store writes entry's metadata into jobKey's cache directory, creating it
// if necessary.
func (c *ResultCache) Store(jobKey string, entry ResultCacheEntry) error {
	path := c.pathForKey(jobKey)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(path, ResultCacheMetadataFilename), data, 0o644)
}

// ReleaseLock drops the held lock, if any.
func (c *ResultCache) ReleaseLock() {
	if c.lock != nil {
		c.lock.Release()
		c.lock = nil
	}
}
