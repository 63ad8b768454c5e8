package host

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestPlan(runID string) RunPlan {
	return RunPlan{
		SchemaVersion: 1,
		SchemaID:      "rch-xcode/run_plan@1",
		CreatedAt:     "2026-01-01T00:00:00Z",
		RunID:         runID,
		Steps: []PlanStep{
			{Index: 0, Action: "build", JobID: "job-001"},
			{Index: 1, Action: "test", JobID: "job-002"},
		},
		SelectedWorker:     "macmini-01",
		SelectedWorkerHost: "macmini.local",
		ProtocolVersion:    1,
	}
}

func writePlan(t *testing.T, dir string, plan RunPlan) {
	t.Helper()
	data, err := json.Marshal(plan)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_plan.json"), data, 0o644))
}

func TestCheckResumptionStateNoPlan(t *testing.T) {
	dir := t.TempDir()
	_, err := CheckResumptionState(dir)
	require.Error(t, err)
	var notFound *ErrPlanNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestCheckResumptionStateNoCompleteSteps(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, makeTestPlan("test-run"))

	result, err := CheckResumptionState(dir)
	require.NoError(t, err)

	assert.Equal(t, 0, result.CompleteCount)
	require.NotNil(t, result.ResumeFrom)
	assert.Equal(t, 0, *result.ResumeFrom)
	assert.False(t, result.IsFullyComplete())
}

func TestCheckResumptionStateFirstStepComplete(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, makeTestPlan("test-run"))

	jobDir := filepath.Join(dir, "steps", "job-001")
	require.NoError(t, os.MkdirAll(jobDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "job_index.json"), []byte("{}"), 0o644))

	result, err := CheckResumptionState(dir)
	require.NoError(t, err)

	assert.Equal(t, 1, result.CompleteCount)
	require.NotNil(t, result.ResumeFrom)
	assert.Equal(t, 1, *result.ResumeFrom)
	assert.False(t, result.IsFullyComplete())
}

func TestCheckResumptionStateAllComplete(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, makeTestPlan("test-run"))

	for _, jobID := range []string{"job-001", "job-002"} {
		jobDir := filepath.Join(dir, "steps", jobID)
		require.NoError(t, os.MkdirAll(jobDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(jobDir, "job_index.json"), []byte("{}"), 0o644))
	}

	result, err := CheckResumptionState(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CompleteCount)
	assert.Nil(t, result.ResumeFrom)
	assert.True(t, result.IsFullyComplete())
	assert.Equal(t, 0, result.StepsRemaining())
}

func TestCheckResumptionStateSkipsRejectedSteps(t *testing.T) {
	dir := t.TempDir()
	plan := makeTestPlan("test-run")
	plan.Steps[1].Rejected = true
	plan.Steps[1].RejectionReasons = []string{"duplicate job key"}
	writePlan(t, dir, plan)

	jobDir := filepath.Join(dir, "steps", "job-001")
	require.NoError(t, os.MkdirAll(jobDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "job_index.json"), []byte("{}"), 0o644))

	result, err := CheckResumptionState(dir)
	require.NoError(t, err)

	assert.True(t, result.IsFullyComplete())
	assert.Equal(t, StepRejected, result.StepStatuses[1].Status)
}

func TestVerifyProtocolCompatibilityOK(t *testing.T) {
	plan := makeTestPlan("test-run")
	assert.NoError(t, VerifyProtocolCompatibility(plan, 1, 2))
}

func TestVerifyProtocolCompatibilityDrift(t *testing.T) {
	plan := makeTestPlan("test-run")
	plan.ProtocolVersion = 2

	err := VerifyProtocolCompatibility(plan, 3, 5)
	require.Error(t, err)
	var drift *ErrProtocolDrift
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, uint32(2), drift.Planned)
	assert.Equal(t, uint32(3), drift.Min)
	assert.Equal(t, uint32(5), drift.Max)
}

func TestVerifyToolchainAvailableOK(t *testing.T) {
	assert.NoError(t, VerifyToolchainAvailable("16.2", []string{"15.4", "16.2"}))
}

func TestVerifyToolchainChanged(t *testing.T) {
	err := VerifyToolchainAvailable("16.2", []string{"15.4", "16.0"})
	require.Error(t, err)
	var changed *ErrToolchainChanged
	require.ErrorAs(t, err, &changed)
	assert.Equal(t, "16.2", changed.Required)
}
