package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLayersScalarOverride(t *testing.T) {
	result := mergeLayers([]map[string]any{
		{"a": 1, "b": 2},
		{"b": 3},
	})

	assert.Equal(t, 1, result["a"])
	assert.Equal(t, 3, result["b"])
}

func TestMergeLayersDeepMergeNestedMaps(t *testing.T) {
	result := mergeLayers([]map[string]any{
		{"cache": map[string]any{"derived_data": "on", "spm": "on"}},
		{"cache": map[string]any{"spm": "off"}},
	})

	cache := result["cache"].(map[string]any)
	assert.Equal(t, "on", cache["derived_data"])
	assert.Equal(t, "off", cache["spm"])
}

func TestMergeLayersReplacesArraysWholesale(t *testing.T) {
	result := mergeLayers([]map[string]any{
		{"exclude": []any{"a", "b"}},
		{"exclude": []any{"c"}},
	})

	assert.Equal(t, []any{"c"}, result["exclude"])
}

func TestMergeLayersDoesNotMutateEarlierLayer(t *testing.T) {
	base := map[string]any{"cache": map[string]any{"spm": "on"}}
	mergeLayers([]map[string]any{base, {"cache": map[string]any{"spm": "off"}}})

	cache := base["cache"].(map[string]any)
	assert.Equal(t, "on", cache["spm"])
}
