package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FailureKind and FailureSubkind name the classification a Host assigns a
// run when artifact verification fails. They are plain strings, not the
// summary package's enum, so this package has no dependency on summary;
// summary's FailureKind/FailureSubkind values are kept equal to these.
const (
	FailureKindArtifacts            = "ARTIFACTS"
	FailureSubkindIntegrityMismatch = "INTEGRITY_MISMATCH"
)

// MismatchKind classifies one verification failure.
type MismatchKind string

const (
	MismatchRootHash  MismatchKind = "root_hash_mismatch"
	MismatchEntry     MismatchKind = "entry_error"
	MismatchExtraFile MismatchKind = "extra_file"
)

// Mismatch is one thing verification found wrong with an artifact set.
type Mismatch struct {
	Kind     MismatchKind
	Entry    *IntegrityError
	Path     string
	Expected string
	Actual   string
}

func (m Mismatch) Error() string {
	switch m.Kind {
	case MismatchRootHash:
		return fmt.Sprintf("artifact_root_sha256 mismatch: expected %s, got %s", short(m.Expected), short(m.Actual))
	case MismatchEntry:
		return m.Entry.Error()
	case MismatchExtraFile:
		return fmt.Sprintf("%s: unexpected file", m.Path)
	default:
		return "artifact verification mismatch"
	}
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// VerificationResult is the outcome of Verify: either a clean pass, or a
// list of every mismatch found, so a Host can report them all at once
// rather than failing on the first.
type VerificationResult struct {
	Passed    bool
	Mismatches []Mismatch
	Summary   string
}

func passResult() VerificationResult {
	return VerificationResult{Passed: true, Summary: "artifact verification passed"}
}

func failResult(mismatches []Mismatch) VerificationResult {
	summary := fmt.Sprintf("artifact verification failed: %d error(s) (first: %s)", len(mismatches), mismatches[0].Error())
	if len(mismatches) == 1 {
		summary = fmt.Sprintf("artifact verification failed: %s", mismatches[0].Error())
	}
	return VerificationResult{Passed: false, Mismatches: mismatches, Summary: summary}
}

// FailureInfo reports the (kind, subkind, messages) a Host should record in
// summary.json when verification fails, or ok=false when it passed.
func (v VerificationResult) FailureInfo() (kind, subkind string, messages []string, ok bool) {
	if v.Passed {
		return "", "", nil, false
	}
	msgs := make([]string, len(v.Mismatches))
	for i, m := range v.Mismatches {
		msgs[i] = m.Error()
	}
	return FailureKindArtifacts, FailureSubkindIntegrityMismatch, msgs, true
}

// Verify performs the full host-side artifact verification: it loads
// manifest.json, recomputes artifact_root_sha256, checks every entry's
// size/type/hash against disk, and scans for files present on disk but
// absent from the manifest (and not one of the three commit-protocol
// files, which are legitimately unlisted).
func Verify(artifactDir string) (VerificationResult, error) {
	manifestPath := filepath.Join(artifactDir, "manifest.json")
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("artifact: reading manifest.json: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return VerificationResult{}, fmt.Errorf("artifact: parsing manifest.json: %w", err)
	}

	var mismatches []Mismatch

	computedRoot, err := ComputeArtifactRootSHA256(manifest.Entries)
	if err != nil {
		return VerificationResult{}, err
	}
	if computedRoot != manifest.ArtifactRootSHA256 {
		mismatches = append(mismatches, Mismatch{
			Kind: MismatchRootHash, Expected: manifest.ArtifactRootSHA256, Actual: computedRoot,
		})
	}

	entryErrs, err := manifest.VerifyEntries(artifactDir)
	if err != nil {
		return VerificationResult{}, err
	}
	for i := range entryErrs {
		e := entryErrs[i]
		mismatches = append(mismatches, Mismatch{Kind: MismatchEntry, Entry: &e, Path: e.Path})
	}

	extraFiles, err := manifest.FindExtraFiles(artifactDir)
	if err != nil {
		return VerificationResult{}, err
	}
	for _, path := range extraFiles {
		if ExcludedFiles[path] {
			continue
		}
		mismatches = append(mismatches, Mismatch{Kind: MismatchExtraFile, Path: path})
	}

	if len(mismatches) == 0 {
		return passResult(), nil
	}
	return failResult(mismatches), nil
}
