package jcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsObjectKeys(t *testing.T) {
	input := map[string]any{"b": 1, "a": 2, "c": 3}
	out, err := Marshal(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(out))
}

func TestMarshalIsStableAcrossMapIterationOrder(t *testing.T) {
	a := map[string]any{"z": 1, "y": 2, "x": 3}
	b := map[string]any{"x": 3, "y": 2, "z": 1}

	outA, err := Marshal(a)
	require.NoError(t, err)
	outB, err := Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(outA), string(outB))
}

func TestMarshalNestedStructures(t *testing.T) {
	type inner struct {
		B string `json:"b"`
		A int    `json:"a"`
	}
	type outer struct {
		Items []inner `json:"items"`
		Name  string  `json:"name"`
	}

	out, err := Marshal(outer{Items: []inner{{B: "x", A: 1}}, Name: "test"})
	require.NoError(t, err)
	assert.Equal(t, `{"items":[{"a":1,"b":"x"}],"name":"test"}`, string(out))
}

func TestMarshalIntegerNumbersHaveNoDecimalPoint(t *testing.T) {
	out, err := Marshal(map[string]any{"n": 42})
	require.NoError(t, err)
	assert.Equal(t, `{"n":42}`, string(out))
}

func TestMarshalEscapesStrings(t *testing.T) {
	out, err := Marshal(map[string]any{"s": "a\"b\nc"})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"a\"b\nc"}`, string(out))
}

func TestMarshalEmptyArrayAndObject(t *testing.T) {
	out, err := Marshal(map[string]any{"arr": []any{}, "obj": map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, `{"arr":[],"obj":{}}`, string(out))
}

func TestMarshalNullAndBool(t *testing.T) {
	out, err := Marshal(map[string]any{"n": nil, "t": true, "f": false})
	require.NoError(t, err)
	assert.Equal(t, `{"f":false,"n":null,"t":true}`, string(out))
}

func TestMarshalProducesSameBytesForEquivalentStructsAndMaps(t *testing.T) {
	type job struct {
		JobKey string `json:"job_key"`
		RunID  string `json:"run_id"`
	}
	fromStruct, err := Marshal(job{JobKey: "k1", RunID: "r1"})
	require.NoError(t, err)

	fromMap, err := Marshal(map[string]any{"run_id": "r1", "job_key": "k1"})
	require.NoError(t, err)

	assert.Equal(t, string(fromStruct), string(fromMap))
}
