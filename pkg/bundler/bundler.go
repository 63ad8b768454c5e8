// Package bundler implements deterministic source bundling: it walks a
// repository root, applies exclusion rules, and produces a canonical tar
// archive plus a manifest whose source_sha256 identifies the bundle.
package bundler

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/hashutil"
	"github.com/paulrobinshaw/rch-xcode/pkg/logger"
)

var log = logger.New("rch:bundler")

// Mode selects which files a Bundler walks.
type Mode int

const (
	// ModeWorktree includes every file under root not otherwise excluded,
	// tracked or not.
	ModeWorktree Mode = iota
	// ModeGitIndex restricts the bundle to paths `git ls-files` reports,
	// still subject to exclusion rules.
	ModeGitIndex
)

// Bundler creates a canonical tar archive from a directory tree.
type Bundler struct {
	root                string
	exclude             ExcludeRules
	mode                Mode
	dereferenceSymlinks bool
}

// New returns a Bundler rooted at root with the built-in exclude rules and
// ModeWorktree.
func New(root string) *Bundler {
	return &Bundler{
		root:    root,
		exclude: NewExcludeRules(),
		mode:    ModeWorktree,
	}
}

// WithMode sets the bundle mode.
func (b *Bundler) WithMode(mode Mode) *Bundler {
	b.mode = mode
	return b
}

// WithDereferenceSymlinks sets whether in-root symlinks are stored as
// themselves (default) or replaced by the file/directory they point to.
func (b *Bundler) WithDereferenceSymlinks(dereference bool) *Bundler {
	b.dereferenceSymlinks = dereference
	return b
}

// WithIgnoreFile layers in patterns from a .rchignore file at ignorePath,
// a no-op if it does not exist.
func (b *Bundler) WithIgnoreFile(ignorePath string) (*Bundler, error) {
	rules, err := b.exclude.WithIgnoreFile(ignorePath)
	if err != nil {
		return nil, err
	}
	b.exclude = rules
	return b, nil
}

// WithExcludes layers in explicit add-on glob patterns.
func (b *Bundler) WithExcludes(patterns []string) (*Bundler, error) {
	rules, err := b.exclude.WithPatterns(patterns)
	if err != nil {
		return nil, err
	}
	b.exclude = rules
	return b, nil
}

// SymlinkEscapesRootError reports that a symlink within root resolves
// outside of it.
type SymlinkEscapesRootError struct {
	Path   string
	Target string
}

func (e *SymlinkEscapesRootError) Error() string {
	return fmt.Sprintf("symlink %s escapes repo root (target %s)", e.Path, e.Target)
}

type entryInfo struct {
	entryType     EntryType
	size          int64
	symlinkTarget string
}

// BundleResult is the output of CreateBundle: the canonical tar bytes, the
// SHA-256 identifying them, and the manifest describing every entry.
type BundleResult struct {
	TarBytes     []byte
	SourceSHA256 string
	Manifest     SourceManifest
}

// WriteTar writes the tar bytes to path.
func (r BundleResult) WriteTar(path string) error {
	return os.WriteFile(path, r.TarBytes, 0o644)
}

// WriteManifest writes the manifest as indented JSON to path.
func (r BundleResult) WriteManifest(path string) error {
	data, err := r.Manifest.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// CreateBundle walks root, applies exclusion rules, and produces a
// canonical tar archive recorded against runID. Entries are processed in
// sorted relative-path order so the archive bytes (and therefore
// SourceSHA256) are reproducible across machines and runs.
func (b *Bundler) CreateBundle(ctx context.Context, runID string) (BundleResult, error) {
	entries, order, err := b.collectEntries(ctx)
	if err != nil {
		return BundleResult{}, err
	}

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	manifestEntries := make([]ManifestEntry, 0, len(order))

	for _, relPath := range order {
		info := entries[relPath]
		fullPath := filepath.Join(b.root, relPath)

		switch info.entryType {
		case EntryFile:
			contents, err := os.ReadFile(fullPath)
			if err != nil {
				return BundleResult{}, fmt.Errorf("reading %s: %w", relPath, err)
			}
			hash := hashutil.SumHex(contents)

			hdr := &tar.Header{
				Name:     filepath.ToSlash(relPath),
				Size:     int64(len(contents)),
				Mode:     int64(fileMode(fullPath)),
				Typeflag: tar.TypeReg,
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return BundleResult{}, fmt.Errorf("writing header for %s: %w", relPath, err)
			}
			if _, err := tw.Write(contents); err != nil {
				return BundleResult{}, fmt.Errorf("writing contents for %s: %w", relPath, err)
			}

			manifestEntries = append(manifestEntries, ManifestEntry{
				Path:   filepath.ToSlash(relPath),
				Size:   int64(len(contents)),
				SHA256: hash,
				Type:   EntryFile,
			})

		case EntryDirectory:
			hdr := &tar.Header{
				Name:     filepath.ToSlash(relPath) + "/",
				Mode:     0o755,
				Typeflag: tar.TypeDir,
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return BundleResult{}, fmt.Errorf("writing header for %s: %w", relPath, err)
			}

			manifestEntries = append(manifestEntries, ManifestEntry{
				Path: filepath.ToSlash(relPath),
				Type: EntryDirectory,
			})

		case EntrySymlink:
			hdr := &tar.Header{
				Name:     filepath.ToSlash(relPath),
				Mode:     0o777,
				Typeflag: tar.TypeSymlink,
				Linkname: info.symlinkTarget,
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return BundleResult{}, fmt.Errorf("writing header for %s: %w", relPath, err)
			}

			manifestEntries = append(manifestEntries, ManifestEntry{
				Path:          filepath.ToSlash(relPath),
				Type:          EntrySymlink,
				SymlinkTarget: info.symlinkTarget,
			})
		}
	}

	if err := tw.Close(); err != nil {
		return BundleResult{}, fmt.Errorf("finalizing tar archive: %w", err)
	}

	tarBytes := normalizeTar(tarBuf.Bytes())
	sourceSHA256 := hashutil.SumHex(tarBytes)

	manifest := SourceManifest{
		SchemaVersion: SchemaVersion,
		SchemaID:      SchemaID,
		CreatedAt:     time.Now().UTC(),
		RunID:         runID,
		SourceSHA256:  sourceSHA256,
		Entries:       manifestEntries,
	}

	log.Debug("bundle created run=%s entries=%d sha256=%s", runID, len(manifestEntries), sourceSHA256)

	return BundleResult{
		TarBytes:     tarBytes,
		SourceSHA256: sourceSHA256,
		Manifest:     manifest,
	}, nil
}

// collectEntries walks root and returns every included entry keyed by
// slash-separated relative path, along with that path set in sorted order.
func (b *Bundler) collectEntries(ctx context.Context) (map[string]entryInfo, []string, error) {
	var candidates []string
	var err error
	switch b.mode {
	case ModeGitIndex:
		candidates, err = b.gitTrackedFiles(ctx)
	default:
		candidates, err = b.worktreeFiles()
	}
	if err != nil {
		return nil, nil, err
	}

	entries := make(map[string]entryInfo, len(candidates))
	for _, relPath := range candidates {
		if b.exclude.IsExcluded(relPath) {
			continue
		}

		fullPath := filepath.Join(b.root, filepath.FromSlash(relPath))
		lstat, err := os.Lstat(fullPath)
		if err != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", relPath, err)
		}

		info, err := b.classify(fullPath, relPath, lstat)
		if err != nil {
			return nil, nil, err
		}
		if info == nil {
			continue
		}
		entries[relPath] = *info
	}

	order := make([]string, 0, len(entries))
	for relPath := range entries {
		order = append(order, relPath)
	}
	sort.Strings(order)

	return entries, order, nil
}

// classify inspects a single path and returns its entryInfo, or a
// *SymlinkEscapesRootError for a symlink that resolves outside root.
func (b *Bundler) classify(fullPath, relPath string, lstat os.FileInfo) (*entryInfo, error) {
	if lstat.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(fullPath)
		if err != nil {
			return nil, fmt.Errorf("reading symlink %s: %w", relPath, err)
		}

		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(fullPath), target)
		}
		canonical, err := filepath.EvalSymlinks(resolved)
		if err != nil {
			canonical = resolved
		}
		rootCanonical, err := filepath.EvalSymlinks(b.root)
		if err != nil {
			rootCanonical = b.root
		}
		if !strings.HasPrefix(canonical, rootCanonical+string(filepath.Separator)) && canonical != rootCanonical {
			return nil, &SymlinkEscapesRootError{Path: relPath, Target: target}
		}

		if b.dereferenceSymlinks {
			targetStat, err := os.Stat(fullPath)
			if err != nil {
				return nil, fmt.Errorf("stat symlink target %s: %w", relPath, err)
			}
			if targetStat.IsDir() {
				return &entryInfo{entryType: EntryDirectory}, nil
			}
			return &entryInfo{entryType: EntryFile, size: targetStat.Size()}, nil
		}

		return &entryInfo{entryType: EntrySymlink, symlinkTarget: filepath.ToSlash(target)}, nil
	}

	if lstat.IsDir() {
		return &entryInfo{entryType: EntryDirectory}, nil
	}

	return &entryInfo{entryType: EntryFile, size: lstat.Size()}, nil
}

// worktreeFiles walks root and returns every non-root relative path,
// recursing into every directory; no exclusion is applied here.
// collectEntries checks each returned path against the exclude rules.
func (b *Bundler) worktreeFiles() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(b.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, relErr := filepath.Rel(b.root, path)
		if relErr != nil {
			return relErr
		}
		if relPath == "." {
			return nil
		}
		paths = append(paths, filepath.ToSlash(relPath))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", b.root, err)
	}
	return paths, nil
}

// gitTrackedFiles shells out to `git ls-files` to list tracked paths,
// adding every ancestor directory of each listed file.
func (b *Bundler) gitTrackedFiles(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", b.root, "ls-files", "-z")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, entry := range strings.Split(strings.TrimRight(string(out), "\x00"), "\x00") {
		if entry == "" {
			continue
		}
		paths = append(paths, entry)

		// Include every ancestor directory so manifest entries exist for
		// them even though `git ls-files` only lists blobs.
		dir := filepath.Dir(entry)
		for dir != "." && dir != "/" {
			paths = append(paths, dir)
			dir = filepath.Dir(dir)
		}
	}
	return dedupe(paths), nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// fileMode returns 0o755 if path has any execute permission bit set, else
// 0o644.
func fileMode(path string) os.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return 0o644
	}
	if info.Mode()&0o111 != 0 {
		return 0o755
	}
	return 0o644
}

// normalizeTar rewrites every tar header's mtime/uid/gid to zero. The
// archive/tar writer always stamps ModTime with the zero value unless set,
// but Header.ModTime defaults to the zero Go time rather than the Unix
// epoch; re-writing the archive byte-for-byte via a second pass keeps the
// header format stable even if a future Go release changes that default.
func normalizeTar(raw []byte) []byte {
	src := tar.NewReader(bytes.NewReader(raw))
	var out bytes.Buffer
	tw := tar.NewWriter(&out)

	for {
		hdr, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		hdr.ModTime = time.Unix(0, 0).UTC()
		hdr.Uid = 0
		hdr.Gid = 0
		hdr.Uname = ""
		hdr.Gname = ""
		hdr.AccessTime = time.Time{}
		hdr.ChangeTime = time.Time{}
		if err := tw.WriteHeader(hdr); err != nil {
			return raw
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.Copy(tw, src); err != nil {
				return raw
			}
		}
	}
	if err := tw.Close(); err != nil {
		return raw
	}
	return out.Bytes()
}
