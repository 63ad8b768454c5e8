package bundler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExcludeRulesBuiltins(t *testing.T) {
	rules := NewExcludeRules()

	cases := []struct {
		path string
		want bool
	}{
		{".git", true},
		{".git/config", true},
		{"src/.git", true},
		{".DS_Store", true},
		{"subdir/.DS_Store", true},
		{".build", true},
		{"DerivedData", true},
		{"nested/DerivedData", true},
		{"xcuserdata", true},
		{"src/main.go", false},
	}
	for _, c := range cases {
		if got := rules.IsExcluded(c.path); got != c.want {
			t.Errorf("IsExcluded(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestExcludeRulesWithPatterns(t *testing.T) {
	rules := NewExcludeRules()
	rules, err := rules.WithPatterns([]string{"*.log", "build/**"})
	if err != nil {
		t.Fatalf("WithPatterns() error = %v", err)
	}

	if !rules.IsExcluded("debug.log") {
		t.Error("expected debug.log excluded")
	}
	if !rules.IsExcluded("build/output/a.txt") {
		t.Error("expected build/output/a.txt excluded")
	}
	if rules.IsExcluded("src/main.go") {
		t.Error("expected src/main.go not excluded")
	}
}

func TestExcludeRulesInvalidPattern(t *testing.T) {
	rules := NewExcludeRules()
	if _, err := rules.WithPatterns([]string{"["}); err == nil {
		t.Fatal("expected error for invalid pattern, got nil")
	}
}

func TestExcludeRulesWithIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	ignorePath := filepath.Join(dir, ".rchignore")
	content := "# comment\n\n*.tmp\nvendor/\n"
	if err := os.WriteFile(ignorePath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	rules := NewExcludeRules()
	rules, err := rules.WithIgnoreFile(ignorePath)
	if err != nil {
		t.Fatalf("WithIgnoreFile() error = %v", err)
	}

	if !rules.IsExcluded("scratch.tmp") {
		t.Error("expected scratch.tmp excluded")
	}
	if !rules.IsExcluded("vendor/") {
		t.Error("expected vendor/ excluded")
	}
}

func TestExcludeRulesWithMissingIgnoreFileIsNoop(t *testing.T) {
	rules := NewExcludeRules()
	before := len(rules.patterns)

	rules, err := rules.WithIgnoreFile(filepath.Join(t.TempDir(), "missing.rchignore"))
	if err != nil {
		t.Fatalf("WithIgnoreFile() error = %v", err)
	}
	if len(rules.patterns) != before {
		t.Errorf("patterns changed on missing ignore file: before=%d after=%d", before, len(rules.patterns))
	}
}
