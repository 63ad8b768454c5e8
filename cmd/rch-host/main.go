// Command rch-host is the thin process entrypoint exercising the Host-side
// core packages: classifying an xcodebuild invocation, bundling a source
// tree, running artifact garbage collection, and checking an interrupted
// run's resumption state. It does not dial a Worker over SSH; transport is
// an external collaborator's job.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/paulrobinshaw/rch-xcode/pkg/bundler"
	"github.com/paulrobinshaw/rch-xcode/pkg/cache"
	"github.com/paulrobinshaw/rch-xcode/pkg/classifier"
	"github.com/paulrobinshaw/rch-xcode/pkg/console"
	"github.com/paulrobinshaw/rch-xcode/pkg/host"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "rch-host",
	Short:   "Host-side entrypoint for rch-xcode",
	Version: version,
}

var (
	classifyWorkspace string
	classifyProject   string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [argv...]",
	Short: "Classify an xcodebuild argument list against the deny-by-default policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := classifier.Config{Workspace: classifyWorkspace, Project: classifyProject}
		result := classifier.Classify(args, cfg)
		return writeJSON(os.Stdout, result)
	},
}

var (
	bundleRunID  string
	bundleOutDir string
)

var bundleCmd = &cobra.Command{
	Use:   "bundle <source-root>",
	Short: "Bundle a worktree into a deterministic source tar plus manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b := bundler.New(args[0])
		result, err := b.CreateBundle(context.Background(), bundleRunID)
		if err != nil {
			return err
		}
		if bundleOutDir != "" {
			if err := os.MkdirAll(bundleOutDir, 0o755); err != nil {
				return err
			}
			if err := result.WriteTar(bundleOutDir + "/source.tar"); err != nil {
				return err
			}
			if err := result.WriteManifest(bundleOutDir + "/source_manifest.json"); err != nil {
				return err
			}
		}
		return writeJSON(os.Stdout, result.Manifest)
	},
}

var (
	gcCacheRoot    string
	gcMaxAgeDays   int
	gcMaxSizeBytes int64
	gcDryRun       bool
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run artifact cache garbage collection under the configured retention policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		policy := cache.EvictionPolicy{MaxSizeBytes: gcMaxSizeBytes}
		if gcMaxAgeDays > 0 {
			policy.MaxAge = time.Duration(gcMaxAgeDays) * 24 * time.Hour
		}
		if gcDryRun {
			policy = policy.WithDryRun()
		}
		gc := cache.NewGC(cache.DefaultConfig(gcCacheRoot), policy)
		result, err := gc.Run()
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, result)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-dir>",
	Short: "Check which steps of an interrupted run already completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := host.CheckResumptionState(args[0])
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, state)
	},
}

func writeJSON(w *os.File, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	classifyCmd.Flags().StringVar(&classifyWorkspace, "workspace", "", "Required workspace path, if policy pins one")
	classifyCmd.Flags().StringVar(&classifyProject, "project", "", "Required project path, if policy pins one")

	bundleCmd.Flags().StringVar(&bundleRunID, "run-id", "", "Run ID to stamp into the bundle manifest")
	bundleCmd.Flags().StringVar(&bundleOutDir, "out", "", "Directory to write source.tar and source_manifest.json into")

	gcCmd.Flags().StringVar(&gcCacheRoot, "cache-root", "", "Cache root directory to garbage collect")
	gcCmd.Flags().IntVar(&gcMaxAgeDays, "max-age-days", 0, "Evict entries untouched for longer than this many days (0 = unlimited)")
	gcCmd.Flags().Int64Var(&gcMaxSizeBytes, "max-size-bytes", 0, "Cap total cache size in bytes (0 = unlimited)")
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "Report what would be deleted without deleting it")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(resumeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(1)
	}
}
