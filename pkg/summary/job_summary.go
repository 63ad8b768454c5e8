package summary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/cache"
)

// Schema identifiers for summary.json.
const (
	SummarySchemaVersion = 1
	SummarySchemaID      = "rch-xcode/summary@1"
)

// Backend names which execution path produced a job: the xcodebuild CLI
// directly, or the MCP automation backend.
type Backend string

const (
	BackendXcodebuild Backend = "xcodebuild"
	BackendMCP        Backend = "mcp"
)

// JobSummary is summary.json: the terminal outcome of one job, written by
// the worker once the job reaches a terminal state.
type JobSummary struct {
	SchemaVersion int     `json:"schema_version"`
	SchemaID      string  `json:"schema_id"`
	CreatedAt     string  `json:"created_at"`
	RunID         string  `json:"run_id"`
	JobID         string  `json:"job_id"`
	Action        string  `json:"action"`
	Backend       Backend `json:"backend"`
	Status        Status  `json:"status"`
	ExitCode      int     `json:"exit_code"`

	FailureKind    *FailureKind    `json:"failure_kind,omitempty"`
	FailureSubkind *FailureSubkind `json:"failure_subkind,omitempty"`
	FailureMessage *string         `json:"failure_message,omitempty"`

	BackendExitCode   *int `json:"backend_exit_code,omitempty"`
	BackendTermSignal *int `json:"backend_term_signal,omitempty"`

	DurationMs uint64 `json:"duration_ms"`

	ArtifactProfile *cache.ArtifactProfile `json:"artifact_profile,omitempty"`
	CachedFrom      *string                `json:"cached_from,omitempty"`
	IntegrityErrors []string               `json:"integrity_errors,omitempty"`
}

func newJobSummary(runID, jobID, action string, backend Backend, status Status, exitCode int, durationMs uint64) *JobSummary {
	return &JobSummary{
		SchemaVersion: SummarySchemaVersion,
		SchemaID:      SummarySchemaID,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		RunID:         runID,
		JobID:         jobID,
		Action:        action,
		Backend:       backend,
		Status:        status,
		ExitCode:      exitCode,
		DurationMs:    durationMs,
	}
}

// NewSuccessSummary builds the summary for a job that completed cleanly.
func NewSuccessSummary(runID, jobID, action string, backend Backend, durationMs uint64) *JobSummary {
	return newJobSummary(runID, jobID, action, backend, StatusSuccess, int(ExitCodeSuccess), durationMs)
}

// NewFailureSummary builds the summary for a job that ran and failed, with
// kind, optional subkind, and a human-readable message.
func NewFailureSummary(runID, jobID, action string, backend Backend, kind FailureKind, subkind *FailureSubkind, message string, durationMs uint64) *JobSummary {
	s := newJobSummary(runID, jobID, action, backend, StatusFailed, int(kind.ExitCode()), durationMs)
	s.FailureKind = &kind
	s.FailureSubkind = subkind
	s.FailureMessage = &message
	return s
}

// NewRejectedSummary builds the summary for a job the classifier refused to
// run; it never reached a backend, so backend is the nominal one requested.
func NewRejectedSummary(runID, jobID, action string, backend Backend, reasons []string) *JobSummary {
	s := newJobSummary(runID, jobID, action, backend, StatusRejected, int(ExitCodeClassifierRejected), 0)
	kind := FailureKindClassifierRejected
	s.FailureKind = &kind
	if len(reasons) > 0 {
		msg := reasons[0]
		s.FailureMessage = &msg
	}
	return s
}

// NewCancelledSummary builds the summary for a job cancelled before or
// during execution.
func NewCancelledSummary(runID, jobID, action string, backend Backend, durationMs uint64) *JobSummary {
	s := newJobSummary(runID, jobID, action, backend, StatusCancelled, int(ExitCodeCancelled), durationMs)
	kind := FailureKindCancelled
	s.FailureKind = &kind
	return s
}

// WithBackendExitCode records the raw process exit code the backend
// reported, distinct from the run's stable ExitCode.
func (s *JobSummary) WithBackendExitCode(code int) *JobSummary {
	s.BackendExitCode = &code
	return s
}

// WithBackendTermSignal records the signal that terminated the backend
// process, if it died by signal rather than exiting.
func (s *JobSummary) WithBackendTermSignal(signal int) *JobSummary {
	s.BackendTermSignal = &signal
	return s
}

// WithArtifactProfile records how much of the artifact set this job
// actually retained.
func (s *JobSummary) WithArtifactProfile(profile cache.ArtifactProfile) *JobSummary {
	s.ArtifactProfile = &profile
	return s
}

// WithCachedFrom marks this job as served from the result cache, naming
// the original job key it was cached under.
func (s *JobSummary) WithCachedFrom(jobKey string) *JobSummary {
	s.CachedFrom = &jobKey
	return s
}

// WithIntegrityErrors attaches artifact verification failure messages,
// used alongside a FailureKindArtifacts/FailureSubkindIntegrityMismatch
// failure.
func (s *JobSummary) WithIntegrityErrors(messages []string) *JobSummary {
	s.IntegrityErrors = messages
	return s
}

// WriteToFile writes summary.json into jobDir.
func (s *JobSummary) WriteToFile(jobDir string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(jobDir, "summary.json"), data, 0o644)
}

// ReadJobSummary reads and decodes summary.json from jobDir.
func ReadJobSummary(jobDir string) (*JobSummary, error) {
	data, err := os.ReadFile(filepath.Join(jobDir, "summary.json"))
	if err != nil {
		return nil, err
	}
	var s JobSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
