package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// MetricsSchemaVersion and MetricsSchemaID identify metrics.json's schema.
const (
	MetricsSchemaVersion = 1
	MetricsSchemaID      = "rch-xcode/metrics@1"
)

// Timings breaks a job's wall-clock time down by phase. Every phase field
// is optional: a phase that never ran (e.g. no cache fetch needed) simply
// omits its timing rather than reporting zero.
type Timings struct {
	BundleMs  *int64 `json:"bundle_ms,omitempty"`
	UploadMs  *int64 `json:"upload_ms,omitempty"`
	QueueMs   *int64 `json:"queue_ms,omitempty"`
	ExecuteMs *int64 `json:"execute_ms,omitempty"`
	FetchMs   *int64 `json:"fetch_ms,omitempty"`
	TotalMs   int64  `json:"total_ms"`
}

// CachePath names one cache directory a job actually touched.
type CachePath struct {
	CacheType string `json:"cache_type"`
	Path      string `json:"path"`
}

// CacheInfo records whether each cache layer was a hit for this job, and
// which concrete directories were used.
type CacheInfo struct {
	DerivedDataHit  bool        `json:"derived_data_hit"`
	SPMHit          bool        `json:"spm_hit"`
	ResultCacheHit  bool        `json:"result_cache_hit"`
	CachePaths      []CachePath `json:"cache_paths"`
}

// SizeMetrics records the byte sizes of the artifacts this job moved over
// the wire. Fields are optional since not every job produces every artifact
// (e.g. a build-only job has no xcresult bundle).
type SizeMetrics struct {
	SourceBundleBytes *uint64 `json:"source_bundle_bytes,omitempty"`
	ArtifactBytes     *uint64 `json:"artifact_bytes,omitempty"`
	XcresultBytes     *uint64 `json:"xcresult_bytes,omitempty"`
}

// CacheKeyComponents records the inputs that went into this job's cache
// key, so a human debugging a cache miss can see what changed.
type CacheKeyComponents struct {
	JobKey      string `json:"job_key"`
	XcodeBuild  string `json:"xcode_build"`
	MacOSVersion string `json:"macos_version"`
	MacOSBuild  string `json:"macos_build"`
	Arch        string `json:"arch"`
}

// JobMetrics is metrics.json: an optional per-job artifact recording
// timing, cache effectiveness, and artifact sizes for diagnosing slow or
// unexpectedly-missed-cache jobs.
type JobMetrics struct {
	SchemaVersion       int                  `json:"schema_version"`
	SchemaID            string               `json:"schema_id"`
	CreatedAt           string               `json:"created_at"`
	RunID               string               `json:"run_id"`
	JobID               string               `json:"job_id"`
	JobKey              string               `json:"job_key"`
	Timings             Timings              `json:"timings"`
	Cache               CacheInfo            `json:"cache"`
	Sizes               SizeMetrics          `json:"sizes"`
	CacheKeyComponents  *CacheKeyComponents  `json:"cache_key_components,omitempty"`
}

// NewJobMetrics creates a job metrics record with the envelope fields
// populated and every optional section left at its zero value for the
// caller to fill in as phases complete.
func NewJobMetrics(runID, jobID, jobKey string, totalMs int64) JobMetrics {
	return JobMetrics{
		SchemaVersion: MetricsSchemaVersion,
		SchemaID:      MetricsSchemaID,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		RunID:         runID,
		JobID:         jobID,
		JobKey:        jobKey,
		Timings:       Timings{TotalMs: totalMs},
	}
}

// WriteToFile writes metrics.json into artifactDir.
func (m JobMetrics) WriteToFile(artifactDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(artifactDir, "metrics.json"), data, 0o644)
}
