package worker

import "sort"

// EnvFilter decides which environment variable keys the worker passes
// through to the (external, out-of-scope) xcodebuild invocation. It never
// records values by default — only which keys were passed or dropped.
type EnvFilter struct {
	allowedKeys  map[string]struct{}
	deniedKeys   map[string]struct{}
	passUnlisted bool
}

// defaultAllowedKeys are the minimal set xcodebuild needs to function.
var defaultAllowedKeys = []string{
	"HOME", "USER", "PATH", "SHELL", "TERM", "LANG", "LC_ALL", "LC_CTYPE",
	"TMPDIR", "DEVELOPER_DIR", "SDKROOT", "TOOLCHAIN_DIR", "XCODE_DEVELOPER_DIR_PATH",
}

// defaultDeniedKeys are never passed through, even if also allow-listed.
var defaultDeniedKeys = []string{
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN",
	"GITHUB_TOKEN", "GH_TOKEN", "GITLAB_TOKEN", "CI_JOB_TOKEN", "NPM_TOKEN",
	"DOCKER_PASSWORD",
	"SSH_AUTH_SOCK", "SSH_AGENT_PID",
	"HISTFILE", "HISTSIZE", "HISTCONTROL",
	"SUDO_USER", "SUDO_UID", "SUDO_GID", "SUDO_COMMAND",
}

func setOf(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// NewEnvFilter returns the secure-default filter: a minimal allowlist, a
// denylist of secret-shaped keys, and unlisted keys dropped.
func NewEnvFilter() EnvFilter {
	return EnvFilter{
		allowedKeys:  setOf(defaultAllowedKeys),
		deniedKeys:   setOf(defaultDeniedKeys),
		passUnlisted: false,
	}
}

// NewPermissiveEnvFilter passes every key not on the fixed denylist. The
// denylist itself is never relaxed by permissive mode.
func NewPermissiveEnvFilter() EnvFilter {
	return EnvFilter{
		allowedKeys:  map[string]struct{}{},
		deniedKeys:   setOf(defaultDeniedKeys),
		passUnlisted: true,
	}
}

// Allow adds key to the allowlist.
func (f EnvFilter) Allow(key string) EnvFilter {
	f.allowedKeys[key] = struct{}{}
	return f
}

// Deny adds key to the denylist, overriding any allowlist membership.
func (f EnvFilter) Deny(key string) EnvFilter {
	f.deniedKeys[key] = struct{}{}
	return f
}

// ShouldPass reports whether key should be forwarded: the denylist always
// wins, then the allowlist or pass-unlisted.
func (f EnvFilter) ShouldPass(key string) bool {
	if _, denied := f.deniedKeys[key]; denied {
		return false
	}
	if _, allowed := f.allowedKeys[key]; allowed {
		return true
	}
	return f.passUnlisted
}

// FilterEnv partitions env (key/value pairs) into the entries that should
// be passed through and the sorted key lists an executor_env.json audit
// needs: passedKeys and droppedKeys. Values are never included in either
// key list.
func (f EnvFilter) FilterEnv(env map[string]string) (passed map[string]string, passedKeys, droppedKeys []string) {
	passed = make(map[string]string)
	for key, value := range env {
		if f.ShouldPass(key) {
			passed[key] = value
			passedKeys = append(passedKeys, key)
		} else {
			droppedKeys = append(droppedKeys, key)
		}
	}
	sort.Strings(passedKeys)
	sort.Strings(droppedKeys)
	return passed, passedKeys, droppedKeys
}

// EnvOverride records one environment variable the worker explicitly set
// or rewrote before invoking the backend.
type EnvOverride struct {
	Key    string `json:"key"`
	Reason string `json:"reason,omitempty"`
}

// ExecutorEnvSchemaID identifies executor_env.json's schema.
const ExecutorEnvSchemaID = "rch-xcode/executor_env@1"

// ExecutorEnv is the per-job executor_env.json audit: which environment
// variable keys were passed to the backend, which were dropped, and which
// were overridden by the worker. Values are never recorded.
type ExecutorEnv struct {
	SchemaVersion int           `json:"schema_version"`
	SchemaID      string        `json:"schema_id"`
	RunID         string        `json:"run_id"`
	JobID         string        `json:"job_id"`
	JobKey        string        `json:"job_key"`
	PassedKeys    []string      `json:"passed_keys"`
	DroppedKeys   []string      `json:"dropped_keys"`
	Overrides     []EnvOverride `json:"overrides"`
}

// NewExecutorEnv builds an audit record for one job, given the already
// partitioned key lists from FilterEnv.
func NewExecutorEnv(runID, jobID, jobKey string, passedKeys, droppedKeys []string, overrides []EnvOverride) ExecutorEnv {
	return ExecutorEnv{
		SchemaVersion: 1,
		SchemaID:      ExecutorEnvSchemaID,
		RunID:         runID,
		JobID:         jobID,
		JobKey:        jobKey,
		PassedKeys:    passedKeys,
		DroppedKeys:   droppedKeys,
		Overrides:     overrides,
	}
}
