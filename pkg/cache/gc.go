package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/paulrobinshaw/rch-xcode/pkg/logger"
)

// EvictionPolicy governs what the garbage collector removes.
type EvictionPolicy struct {
	// MaxSizeBytes caps a cache family's total size; 0 means unlimited.
	MaxSizeBytes int64
	// MaxAge evicts entries untouched for longer than this; 0 means unlimited.
	MaxAge time.Duration
	// DryRun logs what would be deleted without deleting it.
	DryRun bool
}

// SizeBasedPolicy builds a policy that only evicts once a family exceeds
// maxSizeBytes, oldest entries first.
func SizeBasedPolicy(maxSizeBytes int64) EvictionPolicy {
	return EvictionPolicy{MaxSizeBytes: maxSizeBytes}
}

// AgeBasedPolicy builds a policy that evicts any entry untouched for
// longer than maxAge, regardless of total size.
func AgeBasedPolicy(maxAge time.Duration) EvictionPolicy {
	return EvictionPolicy{MaxAge: maxAge}
}

// WithDryRun returns a copy of p with DryRun set.
func (p EvictionPolicy) WithDryRun() EvictionPolicy {
	p.DryRun = true
	return p
}

// GcResult summarizes one garbage-collection pass.
type GcResult struct {
	Scanned        int
	Deleted        int
	BytesReclaimed int64
	Skipped        int
	Errors         []string
}

func (r *GcResult) merge(other GcResult) {
	r.Scanned += other.Scanned
	r.Deleted += other.Deleted
	r.BytesReclaimed += other.BytesReclaimed
	r.Skipped += other.Skipped
	r.Errors = append(r.Errors, other.Errors...)
}

type cacheEntryInfo struct {
	path         string
	sizeBytes    int64
	lastAccessed time.Time
}

// GC runs age/size-based eviction across the DerivedData, SPM, and result
// cache families. It never removes an entry that is currently locked
// (another job is using it) or, for result caches, whose original job_id
// is in the protected set.
type GC struct {
	config         Config
	policy         EvictionPolicy
	protectedJobs  map[string]bool
}

// NewGC builds a collector bound to config and policy.
func NewGC(config Config, policy EvictionPolicy) *GC {
	return &GC{config: config, policy: policy, protectedJobs: make(map[string]bool)}
}

// ProtectJob marks jobID's result cache entry as ineligible for eviction.
func (g *GC) ProtectJob(jobID string) { g.protectedJobs[jobID] = true }

// UnprotectJob removes jobID's protection.
func (g *GC) UnprotectJob(jobID string) { delete(g.protectedJobs, jobID) }

// SetProtectedJobs replaces the whole protected set, e.g. with the host's
// current RUNNING job_ids before a sweep.
func (g *GC) SetProtectedJobs(jobIDs []string) {
	g.protectedJobs = make(map[string]bool, len(jobIDs))
	for _, id := range jobIDs {
		g.protectedJobs[id] = true
	}
}

type familyResult struct {
	result GcResult
	err    error
}

// Run collects and evicts across all three cache families concurrently;
// each family lives under its own subdirectory so the scans touch
// disjoint paths and need no shared locking between them.
func (g *GC) Run() (GcResult, error) {
	families := []struct {
		name      string
		dir       string
		canDelete func(string) bool
	}{
		{"derived_data", filepath.Join(g.config.CacheRoot, g.config.Namespace, "derived_data"), alwaysDeletable},
		{"spm", filepath.Join(g.config.CacheRoot, g.config.Namespace, "spm"), alwaysDeletable},
		{"results", filepath.Join(g.config.CacheRoot, g.config.Namespace, "results"), g.resultProtected},
	}

	p := pool.NewWithResults[familyResult]().WithMaxGoroutines(len(families))
	for _, f := range families {
		f := f
		p.Go(func() familyResult {
			result, err := g.gcDirectory(f.dir, f.canDelete, log.Sub(f.name))
			return familyResult{result: result, err: err}
		})
	}

	var total GcResult
	for _, fr := range p.Wait() {
		if fr.err != nil {
			return total, fr.err
		}
		total.merge(fr.result)
	}
	return total, nil
}

func alwaysDeletable(string) bool { return true }

// resultProtected is the results family's deletion predicate: it returns
// false when path's result cache entry belongs to a job in the protected
// set, and true otherwise (including when the entry's metadata cannot be
// read or parsed).
func (g *GC) resultProtected(path string) bool {
	metaPath := filepath.Join(path, ResultCacheMetadataFilename)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return true
	}
	var entry ResultCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return true
	}
	return !g.protectedJobs[entry.OriginalJobID]
}

// gcDirectory walks base for cache entries (directories containing a lock
// file or result metadata file) and evicts according to policy, skipping
// anything currently locked or that canDelete rejects. familyLog is this
// family's own namespaced logger so concurrent scans of derived_data, spm,
// and results don't interleave under one shared namespace.
func (g *GC) gcDirectory(base string, canDelete func(path string) bool, familyLog *logger.Logger) (GcResult, error) {
	var result GcResult

	if _, err := os.Stat(base); os.IsNotExist(err) {
		return result, nil
	}

	entries, err := g.collectEntries(base)
	if err != nil {
		return result, err
	}
	result.Scanned = len(entries)

	sort.Slice(entries, func(i, j int) bool { return entries[i].lastAccessed.Before(entries[j].lastAccessed) })

	var currentSize int64
	for _, e := range entries {
		currentSize += e.sizeBytes
	}
	now := time.Now()

	for _, entry := range entries {
		if !g.shouldEvict(entry, currentSize, now) {
			continue
		}

		lock, err := TryAcquireLock(entry.path)
		if err != nil {
			result.Skipped++
			continue
		}

		if !canDelete(entry.path) {
			lock.Release()
			result.Skipped++
			continue
		}

		if g.policy.DryRun {
			familyLog.Printf("DRY-RUN: would delete %s (%d bytes)", entry.path, entry.sizeBytes)
		} else {
			if err := os.RemoveAll(entry.path); err != nil {
				lock.Release()
				result.Errors = append(result.Errors, "failed to delete "+entry.path+": "+err.Error())
				continue
			}
			familyLog.Printf("deleted %s (%d bytes)", entry.path, entry.sizeBytes)
		}
		lock.Release()

		result.Deleted++
		result.BytesReclaimed += entry.sizeBytes
		currentSize -= entry.sizeBytes
	}

	return result, nil
}

func (g *GC) collectEntries(dir string) ([]cacheEntryInfo, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var result []cacheEntryInfo
	for _, e := range dirEntries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			continue
		}

		isCacheEntry := fileExists(filepath.Join(path, lockFilename)) || fileExists(filepath.Join(path, ResultCacheMetadataFilename))
		if isCacheEntry {
			size, _ := dirSize(path)
			result = append(result, cacheEntryInfo{
				path:         path,
				sizeBytes:    size,
				lastAccessed: lastAccessed(path),
			})
			continue
		}

		nested, err := g.collectEntries(path)
		if err != nil {
			return nil, err
		}
		result = append(result, nested...)
	}
	return result, nil
}

func (g *GC) shouldEvict(entry cacheEntryInfo, currentTotalSize int64, now time.Time) bool {
	if g.policy.MaxAge > 0 && now.Sub(entry.lastAccessed) > g.policy.MaxAge {
		return true
	}
	if g.policy.MaxSizeBytes > 0 && currentTotalSize > g.policy.MaxSizeBytes {
		return true
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func lastAccessed(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
