package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariabilityModelRoundtrip(t *testing.T) {
	m := VariabilityModel{SourceTree: "/src", Variables: []string{"Var_A", "Var_B"}}
	data, err := m.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalVariabilityModel(data)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestBuildModelRoundtrip(t *testing.T) {
	m := BuildModel{SourceTree: "/src", FileScopes: map[string]string{"a.c": "CONFIG_A"}}
	data, err := m.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalBuildModel(data)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestSourceFileRoundtrip(t *testing.T) {
	f := SourceFile{Path: "a.c", Nodes: []string{"FunctionDef", "IfStatement"}}
	data, err := f.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalSourceFile(data)
	require.NoError(t, err)
	assert.Equal(t, f, decoded)
}
