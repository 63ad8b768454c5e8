package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/cache"
)

// Schema identifiers for run_index.json and job_index.json.
const (
	RunIndexSchemaVersion = 1
	RunIndexSchemaID      = "rch-xcode/run_index@1"
	JobIndexSchemaVersion = 1
	JobIndexSchemaID      = "rch-xcode/job_index@1"
)

// StepPointer locates one run step's job_index.json from run_index.json.
type StepPointer struct {
	Index         int    `json:"index"`
	Action        string `json:"action"`
	JobID         string `json:"job_id"`
	JobIndexPath  string `json:"job_index_path"`
}

// RunIndex is run_index.json: stable discovery paths for every run-scoped
// artifact, plus an ordered list of step pointers into job-scoped artifacts.
type RunIndex struct {
	SchemaVersion    int           `json:"schema_version"`
	SchemaID         string        `json:"schema_id"`
	CreatedAt        string        `json:"created_at"`
	RunID            string        `json:"run_id"`
	RunPlan          string        `json:"run_plan"`
	RunState         string        `json:"run_state"`
	RunSummary       string        `json:"run_summary"`
	SourceManifest   string        `json:"source_manifest"`
	WorkerSelection  string        `json:"worker_selection"`
	Capabilities     string        `json:"capabilities"`
	Steps            []StepPointer `json:"steps"`
}

// NewRunIndex creates an empty run index with the fixed, well-known
// top-level artifact filenames already populated.
func NewRunIndex(runID string) *RunIndex {
	return &RunIndex{
		SchemaVersion:   RunIndexSchemaVersion,
		SchemaID:        RunIndexSchemaID,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		RunID:           runID,
		RunPlan:         "run_plan.json",
		RunState:        "run_state.json",
		RunSummary:      "run_summary.json",
		SourceManifest:  "source_manifest.json",
		WorkerSelection: "worker_selection.json",
		Capabilities:    "capabilities.json",
	}
}

// AddStep appends a pointer to one step's job_index.json.
func (r *RunIndex) AddStep(index int, action, jobID string) {
	r.Steps = append(r.Steps, StepPointer{
		Index:        index,
		Action:       action,
		JobID:        jobID,
		JobIndexPath: fmt.Sprintf("steps/%s/job_index.json", jobID),
	})
}

// WriteToFile writes run_index.json into runDir.
func (r *RunIndex) WriteToFile(runDir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, "run_index.json"), data, 0o644)
}

// ArtifactPointer names one optional job artifact and whether it is present.
type ArtifactPointer struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Present bool   `json:"present"`
}

// RequiredJobArtifacts are the filenames every successful job always writes.
type RequiredJobArtifacts struct {
	Job              string `json:"job"`
	JobState         string `json:"job_state"`
	Summary          string `json:"summary"`
	Manifest         string `json:"manifest"`
	Attestation      string `json:"attestation"`
	Toolchain        string `json:"toolchain"`
	Destination      string `json:"destination"`
	EffectiveConfig  string `json:"effective_config"`
	Invocation       string `json:"invocation"`
	JobKeyInputs     string `json:"job_key_inputs"`
	BuildLog         string `json:"build_log"`
}

func defaultRequiredJobArtifacts() RequiredJobArtifacts {
	return RequiredJobArtifacts{
		Job:             "job.json",
		JobState:        "job_state.json",
		Summary:         "summary.json",
		Manifest:        "manifest.json",
		Attestation:     "attestation.json",
		Toolchain:       "toolchain.json",
		Destination:     "destination.json",
		EffectiveConfig: "effective_config.json",
		Invocation:      "invocation.json",
		JobKeyInputs:    "job_key_inputs.json",
		BuildLog:        "build.log",
	}
}

// optionalArtifactFilenames lists every artifact JobIndex probes for when
// scanning a job directory for what it actually produced.
var optionalArtifactFilenames = []struct {
	name     string
	filename string
}{
	{"metrics", "metrics.json"},
	{"executor_env", "executor_env.json"},
	{"classifier_policy", "classifier_policy.json"},
	{"events", "events.jsonl"},
	{"test_summary", "test_summary.json"},
	{"build_summary", "build_summary.json"},
	{"junit", "junit.xml"},
	{"xcresult", "result.xcresult"},
}

// JobIndex is job_index.json: stable discovery paths for one job's
// artifacts. Its presence on disk is the COMMIT MARKER for that job's
// artifact set — a Host must not trust a job directory until this file
// exists.
type JobIndex struct {
	SchemaVersion   int                    `json:"schema_version"`
	SchemaID        string                 `json:"schema_id"`
	CreatedAt       string                 `json:"created_at"`
	RunID           string                 `json:"run_id"`
	JobID           string                 `json:"job_id"`
	JobKey          string                 `json:"job_key"`
	Action          string                 `json:"action"`
	ArtifactProfile *cache.ArtifactProfile `json:"artifact_profile,omitempty"`
	Required        RequiredJobArtifacts   `json:"required"`
	Optional        []ArtifactPointer      `json:"optional"`
}

// NewJobIndex creates a job index with the required-artifact filenames
// already populated and no optional artifacts scanned yet.
func NewJobIndex(runID, jobID, jobKey, action string) *JobIndex {
	return &JobIndex{
		SchemaVersion: JobIndexSchemaVersion,
		SchemaID:      JobIndexSchemaID,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		RunID:         runID,
		JobID:         jobID,
		JobKey:        jobKey,
		Action:        action,
		Required:      defaultRequiredJobArtifacts(),
	}
}

// WithArtifactProfile sets the profile the job actually produced.
func (j *JobIndex) WithArtifactProfile(profile cache.ArtifactProfile) *JobIndex {
	j.ArtifactProfile = &profile
	return j
}

// ScanOptionalArtifacts probes jobDir for every known optional artifact and
// records its presence.
func (j *JobIndex) ScanOptionalArtifacts(jobDir string) {
	for _, a := range optionalArtifactFilenames {
		_, err := os.Stat(filepath.Join(jobDir, a.filename))
		j.Optional = append(j.Optional, ArtifactPointer{
			Name:    a.name,
			Path:    a.filename,
			Present: err == nil,
		})
	}
}

// AddOptional records one optional artifact's presence explicitly.
func (j *JobIndex) AddOptional(name, path string, present bool) {
	j.Optional = append(j.Optional, ArtifactPointer{Name: name, Path: path, Present: present})
}

// WriteToFile writes job_index.json into jobDir. Callers MUST call this
// only after every other artifact in jobDir has been written: its presence
// is what tells a Host the artifact set is complete.
func (j *JobIndex) WriteToFile(jobDir string) error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(jobDir, "job_index.json"), data, 0o644)
}

// JobIndexComplete reports whether job_index.json exists in jobDir.
func JobIndexComplete(jobDir string) bool {
	_, err := os.Stat(filepath.Join(jobDir, "job_index.json"))
	return err == nil
}
