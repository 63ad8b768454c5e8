package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/paulrobinshaw/rch-xcode/pkg/hashutil"
)

// Schema identifiers for effective_config.json.
const (
	SchemaVersion = 1
	SchemaID      = "rch-xcode/effective_config@1"
)

// ConfigOrigin names which layer contributed a config source.
type ConfigOrigin string

const (
	ConfigOriginBuiltin ConfigOrigin = "builtin"
	ConfigOriginHost    ConfigOrigin = "host"
	ConfigOriginRepo    ConfigOrigin = "repo"
	ConfigOriginCLI     ConfigOrigin = "cli"
)

// ConfigSource records one layer that contributed to the merged config,
// with enough provenance to audit where a value came from.
type ConfigSource struct {
	Origin ConfigOrigin `json:"origin"`
	Path   string       `json:"path,omitempty"`
	Digest string       `json:"digest,omitempty"`
}

// EffectiveConfig is effective_config.json: the fully merged, redacted
// configuration plus a provenance trail of every contributing layer.
type EffectiveConfig struct {
	SchemaVersion int    `json:"schema_version"`
	SchemaID      string `json:"schema_id"`
	CreatedAt     string `json:"created_at"`

	RunID  string `json:"run_id,omitempty"`
	JobID  string `json:"job_id,omitempty"`
	JobKey string `json:"job_key,omitempty"`

	Config     map[string]any `json:"config"`
	Sources    []ConfigSource `json:"sources"`
	Redactions []string       `json:"redactions"`
}

// ErrInvalidConfig reports a config value that fails validation, naming
// the field and the constraint it violated.
type ErrInvalidConfig struct {
	Field   string
	Message string
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid config field %s: %s", e.Field, e.Message)
}

// Build merges builtin defaults, an optional host config file, an optional
// repo config file, and optional CLI overrides, in that precedence order,
// then redacts secrets and validates the result.
func Build(hostConfigPath, repoConfigPath string, cliOverrides map[string]any) (*EffectiveConfig, error) {
	var layers []map[string]any
	var sources []ConfigSource

	layers = append(layers, builtinDefaults())
	sources = append(sources, ConfigSource{Origin: ConfigOriginBuiltin})

	if hostConfigPath != "" {
		if layer, digest, err := loadYAMLFileIfExists(hostConfigPath); err != nil {
			return nil, err
		} else if layer != nil {
			layers = append(layers, layer)
			sources = append(sources, ConfigSource{Origin: ConfigOriginHost, Path: hostConfigPath, Digest: digest})
		}
	}

	if repoConfigPath != "" {
		if layer, digest, err := loadYAMLFileIfExists(repoConfigPath); err != nil {
			return nil, err
		} else if layer != nil {
			layers = append(layers, layer)
			sources = append(sources, ConfigSource{Origin: ConfigOriginRepo, Path: repoConfigPath, Digest: digest})
		}
	}

	if cliOverrides != nil {
		layers = append(layers, cliOverrides)
		sources = append(sources, ConfigSource{Origin: ConfigOriginCLI})
	}

	merged := mergeLayers(layers)
	redactions := redactSecrets(merged)

	if err := validateConfig(merged); err != nil {
		return nil, err
	}

	return &EffectiveConfig{
		SchemaVersion: SchemaVersion,
		SchemaID:      SchemaID,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		Config:        merged,
		Sources:       sources,
		Redactions:    redactions,
	}, nil
}

func loadYAMLFileIfExists(path string) (map[string]any, string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading config file %s: %w", path, err)
	}

	digest := hashutil.SumHex(data)

	var layer map[string]any
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, "", fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return layer, digest, nil
}

func validateConfig(config map[string]any) error {
	overall := getU64(config, "overall_seconds", 1800)
	if overall == 0 || overall > 86400 {
		return &ErrInvalidConfig{Field: "overall_seconds", Message: "must be in (0, 86400]"}
	}

	if idleRaw, ok := config["idle_log_seconds"]; ok {
		idle := toU64(idleRaw)
		if idle == 0 || idle > overall {
			return &ErrInvalidConfig{Field: "idle_log_seconds", Message: fmt.Sprintf("must be in (0, %d]", overall)}
		}
	}

	if connectRaw, ok := config["connect_timeout_seconds"]; ok {
		connect := toU64(connectRaw)
		if connect == 0 || connect > 300 {
			return &ErrInvalidConfig{Field: "connect_timeout_seconds", Message: "must be in (0, 300]"}
		}
	}

	return nil
}

func getU64(config map[string]any, key string, fallback uint64) uint64 {
	v, ok := config[key]
	if !ok {
		return fallback
	}
	return toU64(v)
}

func toU64(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case int:
		return uint64(n)
	case int64:
		return uint64(n)
	case float64:
		return uint64(n)
	default:
		return 0
	}
}

// WithRunID attaches run context to an already-built config.
func (c *EffectiveConfig) WithRunID(runID string) *EffectiveConfig {
	c.RunID = runID
	return c
}

// WithJobContext attaches job context to an already-built config.
func (c *EffectiveConfig) WithJobContext(jobID, jobKey string) *EffectiveConfig {
	c.JobID = jobID
	c.JobKey = jobKey
	return c
}

// WriteToFile writes effective_config.json into dir.
func (c *EffectiveConfig) WriteToFile(dir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "effective_config.json"), data, 0o644)
}

// Get returns the value at a dot-separated path into the merged config.
func (c *EffectiveConfig) Get(path string) (any, bool) {
	var current any = map[string]any(c.Config)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// GetString returns the string value at path, if present and a string.
func (c *EffectiveConfig) GetString(path string) (string, bool) {
	v, ok := c.Get(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetUint64 returns the numeric value at path as a uint64, if present.
func (c *EffectiveConfig) GetUint64(path string) (uint64, bool) {
	v, ok := c.Get(path)
	if !ok {
		return 0, false
	}
	switch v.(type) {
	case uint64, int, int64, float64:
		return toU64(v), true
	default:
		return 0, false
	}
}

// GetBool returns the boolean value at path, if present and a bool.
func (c *EffectiveConfig) GetBool(path string) (bool, bool) {
	v, ok := c.Get(path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
