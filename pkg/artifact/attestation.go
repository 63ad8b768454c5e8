package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/hashutil"
)

// AttestationSchemaVersion and AttestationSchemaID identify attestation.json's schema.
const (
	AttestationSchemaVersion = 1
	AttestationSchemaID      = "rch-xcode/attestation@1"
)

// WorkerIdentity names the worker that executed the job and a stable
// fingerprint a Host can pin against.
type WorkerIdentity struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
}

// BackendIdentity names the execution backend (xcodebuild, mcp) and version.
type BackendIdentity struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Attestation is attestation.json: it binds one job's artifact set to its
// inputs, the worker that produced it, and the backend that ran it.
type Attestation struct {
	SchemaVersion      int             `json:"schema_version"`
	SchemaID           string          `json:"schema_id"`
	CreatedAt          string          `json:"created_at"`
	RunID              string          `json:"run_id"`
	JobID              string          `json:"job_id"`
	JobKey             string          `json:"job_key"`
	SourceSHA256       string          `json:"source_sha256"`
	Worker             WorkerIdentity  `json:"worker"`
	CapabilitiesDigest string          `json:"capabilities_digest"`
	Backend            BackendIdentity `json:"backend"`
	ManifestSHA256     string          `json:"manifest_sha256"`
}

// SHA256Bytes hashes data and returns its hex digest.
func SHA256Bytes(data []byte) string {
	return hashutil.SumHex(data)
}

// NewAttestation binds a job's inputs, worker/backend identity, and the raw
// bytes of capabilities.json and manifest.json (hashed here rather than
// accepted as pre-computed digests, so callers can't drift the digest from
// the file they actually wrote).
func NewAttestation(
	runID, jobID, jobKey, sourceSHA256 string,
	worker WorkerIdentity,
	capabilitiesJSON []byte,
	backend BackendIdentity,
	manifestJSON []byte,
) Attestation {
	return Attestation{
		SchemaVersion:      AttestationSchemaVersion,
		SchemaID:           AttestationSchemaID,
		CreatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
		RunID:              runID,
		JobID:              jobID,
		JobKey:             jobKey,
		SourceSHA256:       sourceSHA256,
		Worker:             worker,
		CapabilitiesDigest: SHA256Bytes(capabilitiesJSON),
		Backend:            backend,
		ManifestSHA256:     SHA256Bytes(manifestJSON),
	}
}

// Canonical serializes the attestation the same way every time it's
// produced, so a signature computed over it is reproducible.
func (a Attestation) Canonical() ([]byte, error) {
	return json.Marshal(a)
}

// WriteToFile writes attestation.json into artifactDir via write-then-rename.
func (a Attestation) WriteToFile(artifactDir string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	finalPath := filepath.Join(artifactDir, "attestation.json")
	tempPath := filepath.Join(artifactDir, ".attestation.json.tmp")
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, finalPath)
}

// VerifyManifest reports whether manifestJSON hashes to a.ManifestSHA256.
func (a Attestation) VerifyManifest(manifestJSON []byte) bool {
	return SHA256Bytes(manifestJSON) == a.ManifestSHA256
}

// VerifyCapabilities reports whether capabilitiesJSON hashes to
// a.CapabilitiesDigest.
func (a Attestation) VerifyCapabilities(capabilitiesJSON []byte) bool {
	return SHA256Bytes(capabilitiesJSON) == a.CapabilitiesDigest
}
