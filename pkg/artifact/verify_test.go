package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildCommittedArtifactDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.json"), []byte(`{"status":"success"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.log"), []byte("Build succeeded"), 0o644))

	manifest, err := BuildManifest(dir, "run-001", "job-001", "abc123")
	require.NoError(t, err)
	require.NoError(t, manifest.WriteToFile(dir))
	return dir
}

func TestVerifyPassesOnUntamperedArtifacts(t *testing.T) {
	dir := buildCommittedArtifactDir(t)

	result, err := Verify(dir)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Mismatches)

	_, _, _, ok := result.FailureInfo()
	assert.False(t, ok)
}

func TestVerifyDetectsTamperedFile(t *testing.T) {
	dir := buildCommittedArtifactDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.json"), []byte(`{"status":"tampered!!"}`), 0o644))

	result, err := Verify(dir)
	require.NoError(t, err)
	assert.False(t, result.Passed)

	kind, subkind, messages, ok := result.FailureInfo()
	assert.True(t, ok)
	assert.Equal(t, FailureKindArtifacts, kind)
	assert.Equal(t, FailureSubkindIntegrityMismatch, subkind)
	assert.NotEmpty(t, messages)
}

func TestVerifyDetectsExtraFile(t *testing.T) {
	dir := buildCommittedArtifactDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rogue.txt"), []byte("x"), 0o644))

	result, err := Verify(dir)
	require.NoError(t, err)
	assert.False(t, result.Passed)

	var found bool
	for _, m := range result.Mismatches {
		if m.Kind == MismatchExtraFile && m.Path == "rogue.txt" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestVerifyDetectsRootHashMismatch(t *testing.T) {
	dir := buildCommittedArtifactDir(t)

	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	corrupted := append([]byte(nil), raw...)
	// Flip a character inside the artifact_root_sha256 value without
	// touching entry hashes, to isolate the root-hash check.
	idx := indexOfRootHashDigit(t, corrupted)
	if corrupted[idx] == '0' {
		corrupted[idx] = '1'
	} else {
		corrupted[idx] = '0'
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), corrupted, 0o644))

	result, err := Verify(dir)
	require.NoError(t, err)
	assert.False(t, result.Passed)

	var found bool
	for _, m := range result.Mismatches {
		if m.Kind == MismatchRootHash {
			found = true
		}
	}
	assert.True(t, found)
}

func indexOfRootHashDigit(t *testing.T, data []byte) int {
	t.Helper()
	marker := []byte(`"artifact_root_sha256": "`)
	for i := 0; i+len(marker) < len(data); i++ {
		match := true
		for j, b := range marker {
			if data[i+j] != b {
				match = false
				break
			}
		}
		if match {
			return i + len(marker)
		}
	}
	t.Fatal("artifact_root_sha256 field not found in manifest.json")
	return -1
}
