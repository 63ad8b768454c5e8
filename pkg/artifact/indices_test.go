package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulrobinshaw/rch-xcode/pkg/cache"
)

func TestNewRunIndex(t *testing.T) {
	idx := NewRunIndex("run-123")
	assert.Equal(t, RunIndexSchemaVersion, idx.SchemaVersion)
	assert.Equal(t, RunIndexSchemaID, idx.SchemaID)
	assert.Equal(t, "run-123", idx.RunID)
	assert.Empty(t, idx.Steps)
}

func TestRunIndexAddSteps(t *testing.T) {
	idx := NewRunIndex("run-123")
	idx.AddStep(0, "build", "job-001")
	idx.AddStep(1, "test", "job-002")

	require.Len(t, idx.Steps, 2)
	assert.Equal(t, "steps/job-001/job_index.json", idx.Steps[0].JobIndexPath)
	assert.Equal(t, "steps/job-002/job_index.json", idx.Steps[1].JobIndexPath)
}

func TestRunIndexWriteToFile(t *testing.T) {
	dir := t.TempDir()
	idx := NewRunIndex("run-123")
	idx.AddStep(0, "build", "job-001")
	require.NoError(t, idx.WriteToFile(dir))
	assert.FileExists(t, filepath.Join(dir, "run_index.json"))
}

func TestNewJobIndex(t *testing.T) {
	idx := NewJobIndex("run-123", "job-456", "key-789", "build")
	assert.Equal(t, JobIndexSchemaVersion, idx.SchemaVersion)
	assert.Equal(t, "build", idx.Action)
	assert.Equal(t, "manifest.json", idx.Required.Manifest)
	assert.Empty(t, idx.Optional)
}

func TestJobIndexWithArtifactProfile(t *testing.T) {
	idx := NewJobIndex("run-123", "job-456", "key-789", "build").WithArtifactProfile(cache.ArtifactProfileRich)
	require.NotNil(t, idx.ArtifactProfile)
	assert.Equal(t, cache.ArtifactProfileRich, *idx.ArtifactProfile)
}

func TestJobIndexScanOptionalArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metrics.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.jsonl"), nil, 0o644))

	idx := NewJobIndex("run-123", "job-456", "key-789", "build")
	idx.ScanOptionalArtifacts(dir)

	present := map[string]bool{}
	for _, p := range idx.Optional {
		present[p.Name] = p.Present
	}
	assert.True(t, present["metrics"])
	assert.True(t, present["events"])
	assert.False(t, present["junit"])
}

func TestJobIndexIsCompleteTracksCommitMarker(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, JobIndexComplete(dir))

	idx := NewJobIndex("run-123", "job-456", "key-789", "build")
	require.NoError(t, idx.WriteToFile(dir))

	assert.True(t, JobIndexComplete(dir))
}
