package artifact

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobMetrics(t *testing.T) {
	m := NewJobMetrics("run-123", "job-456", "key-789", 4200)
	assert.Equal(t, MetricsSchemaVersion, m.SchemaVersion)
	assert.Equal(t, MetricsSchemaID, m.SchemaID)
	assert.Equal(t, int64(4200), m.Timings.TotalMs)
	assert.Nil(t, m.Timings.BundleMs)
	assert.Nil(t, m.CacheKeyComponents)
}

func TestJobMetricsWriteToFile(t *testing.T) {
	dir := t.TempDir()
	m := NewJobMetrics("run-123", "job-456", "key-789", 100)
	executeMs := int64(80)
	m.Timings.ExecuteMs = &executeMs
	m.Cache = CacheInfo{
		DerivedDataHit: true,
		CachePaths:     []CachePath{{CacheType: "derived_data", Path: "/cache/derived_data/shared/x"}},
	}

	require.NoError(t, m.WriteToFile(dir))
	assert.FileExists(t, filepath.Join(dir, "metrics.json"))
}
