package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Schema identifiers for run_summary.json.
const (
	RunSummarySchemaVersion = 1
	RunSummarySchemaID      = "rch-xcode/run_summary@1"
)

// StepOutcome is one step's contribution to the run-level rollup.
type StepOutcome struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	JobID  string `json:"job_id"`
	Status Status `json:"status"`
}

// RunSummary is run_summary.json: the aggregated outcome of every step in
// a run, written once the run reaches a terminal state.
type RunSummary struct {
	SchemaVersion int    `json:"schema_version"`
	SchemaID      string `json:"schema_id"`
	CreatedAt     string `json:"created_at"`
	RunID         string `json:"run_id"`

	Status   Status `json:"status"`
	ExitCode int    `json:"exit_code"`

	TotalSteps     int `json:"total_steps"`
	SucceededSteps int `json:"succeeded_steps"`
	FailedSteps    int `json:"failed_steps"`
	CancelledSteps int `json:"cancelled_steps"`
	RejectedSteps  int `json:"rejected_steps"`
	SkippedSteps   int `json:"skipped_steps"`

	DurationMs uint64        `json:"duration_ms"`
	Steps      []StepOutcome `json:"steps"`

	HumanSummary string `json:"human_summary"`
}

// FromJobSummaries aggregates per-job summaries into one run summary,
// applying the rejected-beats-cancelled-beats-first-failure-beats-success
// exit code precedence.
func FromJobSummaries(runID string, jobSummaries []*JobSummary, durationMs uint64) *RunSummary {
	agg := NewExitCodeAggregator()
	steps := make([]StepOutcome, 0, len(jobSummaries))

	var succeeded, failed, cancelled, rejected int

	for i, js := range jobSummaries {
		agg.Add(js.Status, ExitCode(js.ExitCode))
		steps = append(steps, StepOutcome{
			Index:  i,
			Action: js.Action,
			JobID:  js.JobID,
			Status: js.Status,
		})

		switch js.Status {
		case StatusSuccess:
			succeeded++
		case StatusFailed:
			failed++
		case StatusCancelled:
			cancelled++
		case StatusRejected:
			rejected++
		}
	}

	r := &RunSummary{
		SchemaVersion:  RunSummarySchemaVersion,
		SchemaID:       RunSummarySchemaID,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
		RunID:          runID,
		Status:         agg.Status(),
		ExitCode:       int(agg.ExitCode()),
		TotalSteps:     len(jobSummaries),
		SucceededSteps: succeeded,
		FailedSteps:    failed,
		CancelledSteps: cancelled,
		RejectedSteps:  rejected,
		DurationMs:     durationMs,
		Steps:          steps,
	}
	r.HumanSummary = r.generateHumanSummary()
	return r
}

// Empty returns the run summary for a run with no steps at all.
func Empty(runID string) *RunSummary {
	r := &RunSummary{
		SchemaVersion: RunSummarySchemaVersion,
		SchemaID:      RunSummarySchemaID,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		RunID:         runID,
		Status:        StatusSuccess,
		ExitCode:      int(ExitCodeSuccess),
	}
	r.HumanSummary = r.generateHumanSummary()
	return r
}

// WithSkippedSteps records steps that never ran because an earlier step
// failed and continue_on_failure was false.
func (r *RunSummary) WithSkippedSteps(count int) *RunSummary {
	r.SkippedSteps = count
	r.HumanSummary = r.generateHumanSummary()
	return r
}

func (r *RunSummary) generateHumanSummary() string {
	switch r.Status {
	case StatusRejected:
		return fmt.Sprintf("Run rejected: %d step(s) rejected by classifier", r.RejectedSteps)
	case StatusCancelled:
		return fmt.Sprintf("Run cancelled: %d step(s) cancelled", r.CancelledSteps)
	case StatusFailed:
		return fmt.Sprintf("Run failed: %d succeeded, %d failed, %d cancelled",
			r.SucceededSteps, r.FailedSteps, r.CancelledSteps)
	default:
		if r.TotalSteps <= 1 {
			return "Run succeeded"
		}
		return fmt.Sprintf("Run succeeded: %d/%d steps passed", r.SucceededSteps, r.TotalSteps)
	}
}

// WriteToFile writes run_summary.json into runDir.
func (r *RunSummary) WriteToFile(runDir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, "run_summary.json"), data, 0o644)
}

// ReadRunSummary reads and decodes run_summary.json from runDir.
func ReadRunSummary(runDir string) (*RunSummary, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "run_summary.json"))
	if err != nil {
		return nil, err
	}
	var r RunSummary
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
