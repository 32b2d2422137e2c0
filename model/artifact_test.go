package model

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/compkit/core"
)

func TestArtifact_RoundTrip(t *testing.T) {
	rows, sizes := separableTable()
	m, err := Train(context.Background(), rows, sizes, testConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "models", "gbrank.json")
	require.NoError(t, SaveFile(path, m))
	loaded, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, KindGBRank, loaded.Name())
	assert.True(t, loaded.Schema().Equal(core.FeatureSchema()))
	assert.InDelta(t, m.Baseline(), loaded.Baseline(), 1e-12)
	for i := range rows {
		want, _ := m.Score(&rows[i].FeatureVector)
		got, err := loaded.Score(&rows[i].FeatureVector)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestArtifact_SchemaMismatch(t *testing.T) {
	rows, sizes := separableTable()
	m, err := Train(context.Background(), rows, sizes, testConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, m))
	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))

	tests := []struct {
		name   string
		schema core.Schema
	}{
		{name: "reordered features", schema: core.NewSchema(reversed(core.FeatureNames()))},
		{name: "missing feature", schema: core.NewSchema(core.FeatureNames()[1:])},
		{
			name:   "tampered version",
			schema: core.Schema{Version: "fv1-000000000000", Features: core.FeatureNames()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw["schema"] = tt.schema
			data, err := json.Marshal(raw)
			require.NoError(t, err)
			_, err = Load(bytes.NewReader(data))
			assert.True(t, core.IsSchemaMismatch(err), "got %v", err)
		})
	}
}

func TestArtifact_Rejects(t *testing.T) {
	schema, err := json.Marshal(core.FeatureSchema())
	require.NoError(t, err)
	tests := []struct {
		name  string
		body  string
		check func(error) bool
	}{
		{
			name:  "unknown format version",
			body:  `{"format_version": 99, "kind": "gbrank", "schema": ` + string(schema) + `}`,
			check: func(err error) bool { return core.IsNotSupported(err) },
		},
		{
			name:  "unknown kind",
			body:  `{"format_version": 1, "kind": "forest", "schema": ` + string(schema) + `}`,
			check: func(err error) bool { return core.IsNotSupported(err) },
		},
		{
			name:  "child index points backwards",
			body:  `{"format_version": 1, "kind": "gbrank", "schema": ` + string(schema) + `, "trees": [{"nodes": [{"feature": 0, "left": 0, "right": 0, "cover": 1}]}]}`,
			check: func(err error) bool { return core.IsInvalidArgument(err) },
		},
		{
			name:  "linear without params",
			body:  `{"format_version": 1, "kind": "linear", "schema": ` + string(schema) + `}`,
			check: func(err error) bool { return core.IsInvalidArgument(err) },
		},
		{
			name:  "not json",
			body:  `model`,
			check: func(err error) bool { return err != nil && !core.IsDomainError(err) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(bytes.NewBufferString(tt.body))
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func reversed(xs []string) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[len(xs)-1-i] = x
	}
	return out
}
