package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JobState is one node of the job state machine. Terminal states never
// transition.
type JobState string

const (
	JobQueued          JobState = "QUEUED"
	JobRunning         JobState = "RUNNING"
	JobCancelRequested JobState = "CANCEL_REQUESTED"
	JobSucceeded       JobState = "SUCCEEDED"
	JobFailed          JobState = "FAILED"
	JobCancelled       JobState = "CANCELLED"
)

// IsTerminal reports whether state is one of the three terminal states.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// admissibleTransitions enumerates every (from, to) pair the state machine
// allows, matching spec.md's transition diagram exactly.
var admissibleTransitions = map[JobState]map[JobState]bool{
	JobQueued: {
		JobRunning:   true,
		JobCancelled: true,
		JobFailed:    true,
	},
	JobRunning: {
		JobFailed:          true,
		JobCancelRequested: true,
		JobCancelled:       true,
		JobSucceeded:       true,
	},
	JobCancelRequested: {
		JobCancelled: true,
		JobFailed:    true,
		JobSucceeded: true,
	},
}

// ErrInvalidTransition reports an attempt to move a job out of a terminal
// state, or along an edge the state machine doesn't admit.
type ErrInvalidTransition struct {
	From, To JobState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// Job is the worker-side record of one classifier-approved invocation.
// LogBuffer is append-only; its length is the tail cursor tail() measures
// its responses against.
type Job struct {
	JobID     string
	JobKey    string
	RunID     string
	SanitizedArgv []string
	SourceSHA256  string
	State     JobState
	LogBuffer []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	Seq       uint64
	LeaseID   string
}

// NewJob creates a QUEUED job. seq starts at 1 so that seq==0 can mean
// "never persisted" where that distinction matters.
func NewJob(jobID, jobKey, runID, sourceSHA256 string, sanitizedArgv []string, leaseID string) *Job {
	now := time.Now()
	return &Job{
		JobID:         jobID,
		JobKey:        jobKey,
		RunID:         runID,
		SanitizedArgv: sanitizedArgv,
		SourceSHA256:  sourceSHA256,
		State:         JobQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
		Seq:           1,
		LeaseID:       leaseID,
	}
}

// Transition moves the job to next, bumping seq and UpdatedAt. It rejects
// transitions out of a terminal state or along an edge the state machine
// doesn't admit.
func (j *Job) Transition(next JobState) error {
	if j.State.IsTerminal() {
		return &ErrInvalidTransition{From: j.State, To: next}
	}
	if !admissibleTransitions[j.State][next] {
		return &ErrInvalidTransition{From: j.State, To: next}
	}
	j.State = next
	j.Seq++
	j.UpdatedAt = time.Now()
	return nil
}

// AppendLog appends content to the log buffer.
func (j *Job) AppendLog(content string) {
	j.LogBuffer = append(j.LogBuffer, content...)
}

// Tail returns the substring of the log buffer from cursor to its end (or
// to cursor+maxBytes if maxBytes is positive), and the cursor after that
// slice. nextCursor is nil only when the job is terminal and cursor has
// already caught up to the buffer's length.
func (j *Job) Tail(cursor uint64, maxBytes uint64) (chunk string, nextCursor *uint64) {
	total := uint64(len(j.LogBuffer))
	if cursor > total {
		cursor = total
	}

	end := total
	if maxBytes > 0 && cursor+maxBytes < end {
		end = cursor + maxBytes
	}

	chunk = string(j.LogBuffer[cursor:end])

	if end == total && j.State.IsTerminal() {
		return chunk, nil
	}
	v := end
	return chunk, &v
}

// jobRecord is the on-disk persisted form of a Job, written to
// job_state.json via write-to-tempfile + atomic rename.
type jobRecord struct {
	SchemaVersion int      `json:"schema_version"`
	SchemaID      string   `json:"schema_id"`
	JobID         string   `json:"job_id"`
	JobKey        string   `json:"job_key"`
	RunID         string   `json:"run_id"`
	State         JobState `json:"state"`
	Seq           uint64   `json:"seq"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LeaseID       string   `json:"lease_id,omitempty"`
}

// JobStateSchemaID identifies job_state.json's schema.
const JobStateSchemaID = "rch-xcode/job_state@1"

// PersistState writes the job's state machine snapshot to path via a
// tempfile-then-rename, so a reader never observes a partially written
// job_state.json.
func (j *Job) PersistState(path string) error {
	record := jobRecord{
		SchemaVersion: 1,
		SchemaID:      JobStateSchemaID,
		JobID:         j.JobID,
		JobKey:        j.JobKey,
		RunID:         j.RunID,
		State:         j.State,
		Seq:           j.Seq,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		LeaseID:       j.LeaseID,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling job state: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".job_state-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// --- State accessors, short critical sections ---

// CreateJob inserts job if no job with the same JobID exists, returning
// (job, true). If one does exist it is returned unmodified along with
// false, leaving idempotency/job_key-mismatch decisions to the caller.
func (s *State) CreateJob(job *Job) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.JobID]; ok {
		return existing, false
	}
	s.jobs[job.JobID] = job
	return job, true
}

// GetJob returns the job by ID, or (nil, false).
func (s *State) GetJob(jobID string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	return job, ok
}

// TransitionJob looks up jobID and applies next under the state lock.
func (s *State) TransitionJob(jobID string, next JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	return job.Transition(next)
}

// AppendJobLog appends to jobID's log buffer under the state lock.
func (s *State) AppendJobLog(jobID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[jobID]; ok {
		job.AppendLog(content)
	}
}

// SweepExpiredJobLeases forces every job whose lease is expired or
// missing to CANCELLED. This is the worker's lease backstop: the only
// authority that bypasses the normal external cancel path, so that a host
// crash cannot permanently leak capacity.
func (s *State) SweepExpiredJobLeases() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, job := range s.jobs {
		if job.State.IsTerminal() || job.LeaseID == "" {
			continue
		}
		lease, ok := s.leases[job.LeaseID]
		if ok && !lease.Expired(time.Now()) {
			continue
		}
		if err := job.Transition(JobCancelled); err == nil {
			swept++
		}
	}
	return swept
}
