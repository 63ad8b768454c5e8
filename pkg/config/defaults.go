package config

import "github.com/paulrobinshaw/rch-xcode/pkg/constants"

// builtinDefaults returns the first, lowest-precedence config layer: the
// values every other layer merges on top of.
func builtinDefaults() map[string]any {
	return map[string]any{
		"overall_seconds":         uint64(constants.DefaultOverallTimeout.Seconds()),
		"idle_log_seconds":        uint64(constants.DefaultIdleTimeout.Seconds()),
		"connect_timeout_seconds": uint64(constants.DefaultConnectTimeout.Seconds()),
		"bundle": map[string]any{
			"mode": "worktree",
		},
		"cache": map[string]any{
			"derived_data": "on",
			"spm":          "on",
		},
		"artifact_profile": "minimal",
	}
}
