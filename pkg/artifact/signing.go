package artifact

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// VerificationSchemaVersion and VerificationSchemaID identify
// attestation_verification.json's schema.
const (
	VerificationSchemaVersion = 1
	VerificationSchemaID      = "rch-xcode/attestation_verification@1"
	SignatureAlgorithm        = "Ed25519"
)

// ErrFingerprintMismatch is returned when a signed attestation's public key
// does not match a Host's pinned fingerprint.
var ErrFingerprintMismatch = errors.New("artifact: pinned fingerprint mismatch")

// SignedAttestation wraps an Attestation with an Ed25519 signature over its
// canonical serialization, and the fingerprint of the signing key.
type SignedAttestation struct {
	Attestation        Attestation `json:"attestation"`
	Signature          string      `json:"signature"`
	SignatureAlgorithm string      `json:"signature_algorithm"`
	PubkeyFingerprint  string      `json:"pubkey_fingerprint"`
}

// GenerateKeypair creates a new Ed25519 signing key.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// KeyFingerprint hashes a public key to a stable, human-shareable identifier.
func KeyFingerprint(pub ed25519.PublicKey) string {
	return SHA256Bytes(pub)
}

// Sign produces a SignedAttestation over attestation's canonical JSON.
func Sign(attestation Attestation, priv ed25519.PrivateKey) (SignedAttestation, error) {
	canonical, err := attestation.Canonical()
	if err != nil {
		return SignedAttestation{}, err
	}
	sig := ed25519.Sign(priv, canonical)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return SignedAttestation{}, errors.New("artifact: private key has no matching public key")
	}
	return SignedAttestation{
		Attestation:        attestation,
		Signature:          base64.StdEncoding.EncodeToString(sig),
		SignatureAlgorithm: SignatureAlgorithm,
		PubkeyFingerprint:  KeyFingerprint(pub),
	}, nil
}

// Verify checks the signature against pub, returning false (not an error)
// on a valid-but-non-matching signature.
func (s SignedAttestation) Verify(pub ed25519.PublicKey) (bool, error) {
	sigBytes, err := base64.StdEncoding.DecodeString(s.Signature)
	if err != nil {
		return false, fmt.Errorf("artifact: decoding signature: %w", err)
	}
	canonical, err := s.Attestation.Canonical()
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, canonical, sigBytes), nil
}

// VerifyWithPinning checks pub's fingerprint against pinnedFingerprint (if
// set) before verifying the signature itself.
func (s SignedAttestation) VerifyWithPinning(pub ed25519.PublicKey, pinnedFingerprint string) (bool, error) {
	if pinnedFingerprint != "" {
		actual := KeyFingerprint(pub)
		if actual != pinnedFingerprint {
			return false, fmt.Errorf("%w: expected %s, got %s", ErrFingerprintMismatch, pinnedFingerprint, actual)
		}
	}
	return s.Verify(pub)
}

// WriteToFile writes the signed attestation as attestation.json, overwriting
// the unsigned form written earlier in the commit sequence.
func (s SignedAttestation) WriteToFile(artifactDir string) error {
	data, err := json.MarshalIndent(s, "", "  ")
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

// VerificationOutcome is the pass/fail result recorded by a Host after
// checking a signed attestation.
type VerificationOutcome string

const (
	VerificationPass VerificationOutcome = "pass"
	VerificationFail VerificationOutcome = "fail"
)

// AttestationVerification is attestation_verification.json: the Host's
// record of having checked a worker's signed attestation.
type AttestationVerification struct {
	SchemaVersion      int                 `json:"schema_version"`
	SchemaID           string              `json:"schema_id"`
	CreatedAt          string              `json:"created_at"`
	RunID              string              `json:"run_id"`
	JobID              string              `json:"job_id"`
	Result             VerificationOutcome `json:"verification_result"`
	PubkeyFingerprint  string              `json:"pubkey_fingerprint"`
	PinnedFingerprint  *string             `json:"pinned_fingerprint,omitempty"`
	SignatureAlgorithm string              `json:"signature_algorithm"`
	ErrorMessage       *string             `json:"error_message,omitempty"`
}

// PassVerification records a successful check.
func PassVerification(runID, jobID, pubkeyFingerprint string, pinnedFingerprint *string) AttestationVerification {
	return AttestationVerification{
		SchemaVersion:      VerificationSchemaVersion,
		SchemaID:           VerificationSchemaID,
		CreatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
		RunID:              runID,
		JobID:              jobID,
		Result:             VerificationPass,
		PubkeyFingerprint:  pubkeyFingerprint,
		PinnedFingerprint:  pinnedFingerprint,
		SignatureAlgorithm: SignatureAlgorithm,
	}
}

// FailVerification records a failed check with a diagnostic message.
func FailVerification(runID, jobID, pubkeyFingerprint string, pinnedFingerprint *string, errMsg string) AttestationVerification {
	return AttestationVerification{
		SchemaVersion:      VerificationSchemaVersion,
		SchemaID:           VerificationSchemaID,
		CreatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
		RunID:              runID,
		JobID:              jobID,
		Result:             VerificationFail,
		PubkeyFingerprint:  pubkeyFingerprint,
		PinnedFingerprint:  pinnedFingerprint,
		SignatureAlgorithm: SignatureAlgorithm,
		ErrorMessage:       &errMsg,
	}
}

// WriteToFile writes attestation_verification.json into artifactDir.
func (v AttestationVerification) WriteToFile(artifactDir string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(artifactDir, "attestation_verification.json"), data, 0o644)
}
