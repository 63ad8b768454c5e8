// Package artifact implements the Worker's artifact commit protocol: the
// manifest walk, the (optionally signed) attestation, and the job_index.json
// commit marker that together let a Host verify an artifact directory is
// complete and untampered.
package artifact

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/hashutil"
	"github.com/paulrobinshaw/rch-xcode/pkg/jcs"
	"github.com/paulrobinshaw/rch-xcode/pkg/logger"
)

var log = logger.New("rch:artifact")

// ManifestSchemaVersion and ManifestSchemaID identify manifest.json's schema.
const (
	ManifestSchemaVersion = 1
	ManifestSchemaID      = "rch-xcode/manifest@1"
)

// ExcludedFiles are never listed as manifest entries: they are written
// after (or, for job_index.json, to mark completion of) the manifest walk.
var ExcludedFiles = map[string]bool{
	"manifest.json":    true,
	"attestation.json": true,
	"job_index.json":   true,
}

// EntryType distinguishes a manifest entry's filesystem kind.
type EntryType string

const (
	EntryTypeFile      EntryType = "file"
	EntryTypeDirectory EntryType = "directory"
)

// Entry is one file or directory inside an artifact directory.
type Entry struct {
	Path      string    `json:"path"`
	Size      uint64    `json:"size"`
	SHA256    *string   `json:"sha256,omitempty"`
	EntryType EntryType `json:"type"`
}

// Manifest is manifest.json: the complete, hashed inventory of one job's
// artifact directory.
type Manifest struct {
	SchemaVersion      int     `json:"schema_version"`
	SchemaID           string  `json:"schema_id"`
	CreatedAt          string  `json:"created_at"`
	RunID              string  `json:"run_id"`
	JobID              string  `json:"job_id"`
	JobKey             string  `json:"job_key"`
	Entries            []Entry `json:"entries"`
	ArtifactRootSHA256 string  `json:"artifact_root_sha256"`
}

// ComputeArtifactRootSHA256 hashes the JCS-canonical serialization of
// entries, binding the manifest to the exact entry set regardless of key
// order or whitespace.
func ComputeArtifactRootSHA256(entries []Entry) (string, error) {
	canonical, err := jcs.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("canonicalizing entries: %w", err)
	}
	return hashutil.SumHex(canonical), nil
}

// CollectEntries walks artifactDir, hashing every file and recording every
// directory, excluding ExcludedFiles and symlinks, sorted lexicographically
// by path.
func CollectEntries(artifactDir string) ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(artifactDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, relErr := filepath.Rel(artifactDir, path)
		if relErr != nil {
			return relErr
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if ExcludedFiles[relPath] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			entries = append(entries, Entry{Path: relPath, EntryType: EntryTypeDirectory})
		case info.Mode().IsRegular():
			contents, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			hash := hashutil.SumHex(contents)
			entries = append(entries, Entry{
				Path:      relPath,
				Size:      uint64(len(contents)),
				SHA256:    &hash,
				EntryType: EntryTypeFile,
			})
		default:
			// Symlinks and other special files are not part of the
			// committed artifact set.
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// BuildManifest collects artifactDir's entries and computes the manifest's
// root hash.
func BuildManifest(artifactDir, runID, jobID, jobKey string) (Manifest, error) {
	entries, err := CollectEntries(artifactDir)
	if err != nil {
		return Manifest{}, err
	}
	rootHash, err := ComputeArtifactRootSHA256(entries)
	if err != nil {
		return Manifest{}, err
	}
	return Manifest{
		SchemaVersion:      ManifestSchemaVersion,
		SchemaID:           ManifestSchemaID,
		CreatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
		RunID:              runID,
		JobID:              jobID,
		JobKey:             jobKey,
		Entries:            entries,
		ArtifactRootSHA256: rootHash,
	}, nil
}

// WriteToFile writes manifest.json into artifactDir via write-then-rename.
func (m Manifest) WriteToFile(artifactDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	finalPath := filepath.Join(artifactDir, "manifest.json")
	tempPath := filepath.Join(artifactDir, ".manifest.json.tmp")
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, finalPath)
}

// SHA256 hashes the manifest's plain (non-canonical) JSON serialization,
// used as attestation's manifest_sha256 binding.
func (m Manifest) SHA256() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return hashutil.SumHex(data), nil
}

// IntegrityErrorKind classifies one entry-level verification failure.
type IntegrityErrorKind string

const (
	IntegrityMissingFile  IntegrityErrorKind = "missing_file"
	IntegrityTypeMismatch IntegrityErrorKind = "type_mismatch"
	IntegritySizeMismatch IntegrityErrorKind = "size_mismatch"
	IntegrityHashMismatch IntegrityErrorKind = "hash_mismatch"
)

// IntegrityError describes one manifest entry that does not match the
// artifact directory on disk.
type IntegrityError struct {
	Kind     IntegrityErrorKind
	Path     string
	Expected string
	Actual   string
}

func (e IntegrityError) Error() string {
	switch e.Kind {
	case IntegrityMissingFile:
		return fmt.Sprintf("%s: missing", e.Path)
	case IntegrityTypeMismatch:
		return fmt.Sprintf("%s: expected %s, got %s", e.Path, e.Expected, e.Actual)
	case IntegritySizeMismatch:
		return fmt.Sprintf("%s: size mismatch (%s vs %s)", e.Path, e.Expected, e.Actual)
	case IntegrityHashMismatch:
		return fmt.Sprintf("%s: hash mismatch (%s... vs %s...)", e.Path, e.Expected, e.Actual)
	default:
		return fmt.Sprintf("%s: integrity error", e.Path)
	}
}

// VerifyEntries recomputes size, type, and hash for every entry against
// artifactDir and reports every mismatch found.
func (m Manifest) VerifyEntries(artifactDir string) ([]IntegrityError, error) {
	var errs []IntegrityError

	for _, entry := range m.Entries {
		fullPath := filepath.Join(artifactDir, filepath.FromSlash(entry.Path))
		info, err := os.Lstat(fullPath)
		if os.IsNotExist(err) {
			errs = append(errs, IntegrityError{Kind: IntegrityMissingFile, Path: entry.Path})
			continue
		}
		if err != nil {
			return nil, err
		}

		switch entry.EntryType {
		case EntryTypeDirectory:
			if !info.IsDir() {
				errs = append(errs, IntegrityError{
					Kind: IntegrityTypeMismatch, Path: entry.Path,
					Expected: "directory", Actual: "file",
				})
			}
		case EntryTypeFile:
			if info.IsDir() {
				errs = append(errs, IntegrityError{
					Kind: IntegrityTypeMismatch, Path: entry.Path,
					Expected: "file", Actual: "directory",
				})
				continue
			}
			if uint64(info.Size()) != entry.Size {
				errs = append(errs, IntegrityError{
					Kind: IntegritySizeMismatch, Path: entry.Path,
					Expected: fmt.Sprintf("%d", entry.Size), Actual: fmt.Sprintf("%d", info.Size()),
				})
				continue
			}
			contents, err := os.ReadFile(fullPath)
			if err != nil {
				return nil, err
			}
			actualHash := hashutil.SumHex(contents)
			if entry.SHA256 != nil && *entry.SHA256 != actualHash {
				errs = append(errs, IntegrityError{
					Kind: IntegrityHashMismatch, Path: entry.Path,
					Expected: *entry.SHA256, Actual: actualHash,
				})
			}
		}
	}

	return errs, nil
}

// FindExtraFiles walks artifactDir and reports every path not named by an
// entry and not itself an excluded commit-protocol file.
func (m Manifest) FindExtraFiles(artifactDir string) ([]string, error) {
	known := make(map[string]bool, len(m.Entries))
	for _, entry := range m.Entries {
		known[entry.Path] = true
	}

	var extra []string
	err := filepath.WalkDir(artifactDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, relErr := filepath.Rel(artifactDir, path)
		if relErr != nil {
			return relErr
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if ExcludedFiles[relPath] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !known[relPath] {
			extra = append(extra, relPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(extra)
	return extra, nil
}
