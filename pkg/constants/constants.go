// Package constants centralizes the default values and fixed names used
// across the host, worker, cache, and artifact packages so they are
// defined once instead of scattered as magic numbers and string literals.
package constants

import "time"

// Default lease and job lifetimes.
const (
	// DefaultLeaseTTL is the reservation lifetime granted by reserve when
	// the request omits ttl_seconds.
	DefaultLeaseTTL = 5 * time.Minute

	// MaxLeaseTTL bounds how long a worker lease can be extended to via
	// ttl_seconds, regardless of what the caller requests.
	MaxLeaseTTL = 30 * time.Minute

	// LeaseSweepInterval is how often the worker's backstop sweep scans
	// for and releases expired leases.
	LeaseSweepInterval = 15 * time.Second
)

// Advisory lock polling, mirrored by pkg/cache against the on-disk
// derived_data, spm, and results directories.
const (
	// LockPollInterval is how often a blocked lock acquisition retries.
	LockPollInterval = 50 * time.Millisecond

	// LockContentionWarning is the elapsed wait time after which the
	// cache layer logs a contention warning while still retrying.
	LockContentionWarning = 500 * time.Millisecond

	// DefaultLockTimeout is how long a lock acquisition waits before
	// giving up and returning a lock timeout error.
	DefaultLockTimeout = 30 * time.Second
)

// Host signal and timeout defaults.
const (
	// SignalGracePeriod is how long the host waits after the first
	// interrupt signal before escalating to a harder cancellation.
	SignalGracePeriod = 10 * time.Second

	// DefaultOverallTimeout caps total run duration when the caller does
	// not specify one.
	DefaultOverallTimeout = 30 * time.Minute

	// DefaultIdleTimeout caps the gap between two status updates when the
	// caller does not specify one.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultConnectTimeout bounds a single connect attempt to a worker
	// when the caller does not specify one.
	DefaultConnectTimeout = 30 * time.Second

	// MaxOverallTimeout and MaxConnectTimeout are the largest values the
	// host's config validation accepts for the respective timeout.
	// idle_log_seconds has no fixed ceiling beyond overall_seconds.
	MaxOverallTimeout = 24 * time.Hour
	MaxConnectTimeout = 5 * time.Minute
)

// Cache subdirectory names, rooted under the worker's configured cache
// directory.
const (
	CacheDirDerivedData = "derived_data"
	CacheDirSPM         = "spm"
	CacheDirResults     = "results"
)

// Artifact file names committed by a run. Within a step's directory,
// job_index.json is written last and its presence is the commit marker a
// crash-recovery scan looks for.
const (
	ArtifactManifestFile    = "manifest.json"
	ArtifactAttestationFile = "attestation.json"
	ArtifactMetricsFile     = "metrics.json"
	ArtifactRunIndexFile    = "run_index.json"
	ArtifactJobIndexFile    = "job_index.json"
	ArtifactRunPlanFile     = "run_plan.json"
)

// Protocol version bounds. probe is always answered at protocol version 0;
// every other op requires a nonzero request protocol_version within
// [ProtocolMinVersion, ProtocolMaxVersion].
const (
	ProtocolMinVersion = 1
	ProtocolMaxVersion = 1
)

// DefaultIgnoreFileName is the gitignore-style exclude file the bundler
// reads from the bundle root in addition to its built-in excludes.
const DefaultIgnoreFileName = ".rchignore"

// BuiltinExcludes are directory and file names the bundler always excludes
// from a worktree walk, regardless of .rchignore contents.
var BuiltinExcludes = []string{
	".git",
	".DS_Store",
	".build",
	"DerivedData",
	"xcuserdata",
}
