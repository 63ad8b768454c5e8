package bundler

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/paulrobinshaw/rch-xcode/pkg/constants"
)

// ExcludeRules decides whether a relative path is excluded from a bundle.
// It layers three sources, in order: built-in VCS/OS-metadata patterns,
// patterns loaded from an ignore file (gitignore-style, one pattern per
// line), and explicit add-on patterns supplied by the caller.
type ExcludeRules struct {
	patterns []string
}

// NewExcludeRules builds the built-in rule set with no ignore file or
// add-ons layered in yet.
func NewExcludeRules() ExcludeRules {
	rules := ExcludeRules{}
	rules.patterns = append(rules.patterns, constants.BuiltinExcludes...)
	return rules
}

// WithIgnoreFile layers in patterns read from path, one per line, blank
// lines and lines starting with "#" ignored. It is a no-op if path does
// not exist.
func (r ExcludeRules) WithIgnoreFile(ignorePath string) (ExcludeRules, error) {
	f, err := os.Open(ignorePath)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return r, fmt.Errorf("reading ignore file %s: %w", ignorePath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.patterns = append(r.patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return r, fmt.Errorf("reading ignore file %s: %w", ignorePath, err)
	}
	return r, nil
}

// WithPatterns layers in explicit add-on glob patterns.
func (r ExcludeRules) WithPatterns(patterns []string) (ExcludeRules, error) {
	for _, p := range patterns {
		if _, err := doublestar.Match(p, "probe"); err != nil {
			return r, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}
	r.patterns = append(r.patterns, patterns...)
	return r, nil
}

// IsExcluded reports whether relPath (slash-separated, repo-root-relative)
// matches any configured exclude pattern, matching either the full path or
// any path segment (so "DerivedData" excludes "DerivedData" anywhere in
// the tree, mirroring gitignore semantics for a bare name).
func (r ExcludeRules) IsExcluded(relPath string) bool {
	relPath = filepathToSlash(relPath)
	base := path.Base(relPath)

	for _, pattern := range r.patterns {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if matchesAnySegment(pattern, relPath) {
				return true
			}
		}
	}
	return false
}

func matchesAnySegment(pattern, relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if ok, _ := doublestar.Match(pattern, seg); ok {
			return true
		}
	}
	return false
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, string(os.PathSeparator), "/")
}
