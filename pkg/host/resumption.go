package host

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PlanStep is one step of a RunPlan: a single build or test action against
// a specific job ID.
type PlanStep struct {
	Index            int      `json:"index"`
	Action           string   `json:"action"`
	JobID            string   `json:"job_id"`
	Rejected         bool     `json:"rejected"`
	RejectionReasons []string `json:"rejection_reasons"`
}

// RunPlan is the run_plan.json artifact: the ordered steps a run committed
// to before dispatching the first RPC, plus the worker it pinned. A
// resumed run must never switch workers mid-run.
type RunPlan struct {
	SchemaVersion      int        `json:"schema_version"`
	SchemaID           string     `json:"schema_id"`
	CreatedAt          string     `json:"created_at"`
	RunID              string     `json:"run_id"`
	Steps              []PlanStep `json:"steps"`
	SelectedWorker     string     `json:"selected_worker"`
	SelectedWorkerHost string     `json:"selected_worker_host"`
	ContinueOnFailure  bool       `json:"continue_on_failure"`
	ProtocolVersion    uint32     `json:"protocol_version"`
}

// GetStep returns the step at the given plan index, or nil if out of
// range.
func (p RunPlan) GetStep(index int) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].Index == index {
			return &p.Steps[i]
		}
	}
	return nil
}

// ErrPlanNotFound reports that run_plan.json is missing from a run
// directory being resumed.
type ErrPlanNotFound struct {
	Path string
}

func (e *ErrPlanNotFound) Error() string {
	return fmt.Sprintf("run plan not found: %s", e.Path)
}

// ErrProtocolDrift reports that the worker being resumed against no
// longer supports the protocol version the run plan was built with.
type ErrProtocolDrift struct {
	Planned uint32
	Min     uint32
	Max     uint32
}

func (e *ErrProtocolDrift) Error() string {
	return fmt.Sprintf("protocol drift: plan requires version %d, worker supports [%d, %d]", e.Planned, e.Min, e.Max)
}

// ErrToolchainChanged reports that the worker being resumed against no
// longer has the Xcode version the run plan requires.
type ErrToolchainChanged struct {
	Required  string
	Available []string
}

func (e *ErrToolchainChanged) Error() string {
	return fmt.Sprintf("toolchain changed: plan requires Xcode %s, worker has %v", e.Required, e.Available)
}

// ResumptionStepStatus classifies one plan step during a resumption scan.
type ResumptionStepStatus int

const (
	// StepComplete means job_index.json exists for the step's job.
	StepComplete ResumptionStepStatus = iota
	// StepNeedsStatusCheck means the step must be reconciled against the
	// worker before it can be treated as done or resubmitted.
	StepNeedsStatusCheck
	// StepNeedsResubmit means the step must be dispatched again.
	StepNeedsResubmit
	// StepRejected means the step was never eligible and is skipped.
	StepRejected
)

// StepStatus pairs a plan step index with its resumption status.
type StepStatus struct {
	Index  int
	Status ResumptionStepStatus
}

// ResumptionState is the result of scanning a run directory for crash
// recovery: which steps already committed, and where to resume from.
type ResumptionState struct {
	Plan          RunPlan
	StepStatuses  []StepStatus
	ResumeFrom    *int
	CompleteCount int
}

// IsFullyComplete reports whether every step already committed.
func (s ResumptionState) IsFullyComplete() bool {
	return s.ResumeFrom == nil
}

// StepsRemaining returns how many steps still need work.
func (s ResumptionState) StepsRemaining() int {
	return len(s.Plan.Steps) - s.CompleteCount
}

// StepsNeedingStatusCheck returns the plan steps whose resumption status
// is StepNeedsStatusCheck.
func (s ResumptionState) StepsNeedingStatusCheck() []PlanStep {
	var steps []PlanStep
	for _, ss := range s.StepStatuses {
		if ss.Status != StepNeedsStatusCheck {
			continue
		}
		if step := s.Plan.GetStep(ss.Index); step != nil {
			steps = append(steps, *step)
		}
	}
	return steps
}

// CheckResumptionState reads run_plan.json from runDir and classifies
// each step by whether its job_index.json commit marker exists.
func CheckResumptionState(runDir string) (ResumptionState, error) {
	planPath := filepath.Join(runDir, "run_plan.json")
	planJSON, err := os.ReadFile(planPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ResumptionState{}, &ErrPlanNotFound{Path: planPath}
		}
		return ResumptionState{}, fmt.Errorf("reading run plan: %w", err)
	}

	var plan RunPlan
	if err := json.Unmarshal(planJSON, &plan); err != nil {
		return ResumptionState{}, fmt.Errorf("parsing run plan: %w", err)
	}

	statuses := make([]StepStatus, 0, len(plan.Steps))
	completeCount := 0
	var resumeFrom *int

	for _, step := range plan.Steps {
		if step.Rejected {
			statuses = append(statuses, StepStatus{Index: step.Index, Status: StepRejected})
			continue
		}

		jobIndexPath := filepath.Join(runDir, "steps", step.JobID, "job_index.json")
		if _, err := os.Stat(jobIndexPath); err == nil {
			statuses = append(statuses, StepStatus{Index: step.Index, Status: StepComplete})
			completeCount++
		} else {
			statuses = append(statuses, StepStatus{Index: step.Index, Status: StepNeedsStatusCheck})
			if resumeFrom == nil {
				idx := step.Index
				resumeFrom = &idx
			}
		}
	}

	return ResumptionState{
		Plan:          plan,
		StepStatuses:  statuses,
		ResumeFrom:    resumeFrom,
		CompleteCount: completeCount,
	}, nil
}

// VerifyProtocolCompatibility checks that the run plan's pinned protocol
// version still falls within the worker's currently advertised range.
func VerifyProtocolCompatibility(plan RunPlan, workerProtocolMin, workerProtocolMax uint32) error {
	if plan.ProtocolVersion < workerProtocolMin || plan.ProtocolVersion > workerProtocolMax {
		return &ErrProtocolDrift{Planned: plan.ProtocolVersion, Min: workerProtocolMin, Max: workerProtocolMax}
	}
	return nil
}

// VerifyToolchainAvailable checks that the worker being resumed against
// still has the Xcode version the run plan requires.
func VerifyToolchainAvailable(requiredXcode string, availableXcodeVersions []string) error {
	for _, v := range availableXcodeVersions {
		if v == requiredXcode {
			return nil
		}
	}
	return &ErrToolchainChanged{Required: requiredXcode, Available: availableXcodeVersions}
}
