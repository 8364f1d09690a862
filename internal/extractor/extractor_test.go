package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestVariabilityExtractorCollectsConfigLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "variability.txt")
	writeFile(t, path, "config Var_A\nsome comment\nconfig Var_B\n\nconfig Var_C\n")

	m, err := VariabilityExtractor{}.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Var_A", "Var_B", "Var_C"}, m.Variables)
	assert.Equal(t, path, m.SourceTree)
}

func TestVariabilityExtractorMissingFile(t *testing.T) {
	_, err := VariabilityExtractor{}.Extract(context.Background(), "/nonexistent/path")
	assert.Error(t, err)
}

func TestWalkSourceFilesFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.c"), "int main() {}")
	writeFile(t, filepath.Join(dir, "b.h"), "#pragma once")
	writeFile(t, filepath.Join(dir, "sub", "c.c"), "void f() {}")
	writeFile(t, filepath.Join(dir, "readme.md"), "hello")

	files, err := WalkSourceFiles(dir, []string{"c"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Equal(t, ".c", filepath.Ext(f))
	}
}

func TestWalkSourceFilesNoFilterMatchesEverything(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.c"), "x")
	writeFile(t, filepath.Join(dir, "b.h"), "x")

	files, err := WalkSourceFiles(dir, nil)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestCodeExtractorReadsLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.c")
	writeFile(t, path, "line one\nline two\n")

	sf, err := CodeExtractor{}.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, sf.Path)
	assert.Equal(t, []string{"line one", "line two"}, sf.Nodes)
}

func TestBuildExtractorAssignsTrivialScopes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.c"), "x")
	writeFile(t, filepath.Join(dir, "sub", "b.c"), "x")

	m, err := BuildExtractor{Extensions: []string{"c"}}.Extract(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, m.SourceTree)
	require.Len(t, m.FileScopes, 2)
	for _, cond := range m.FileScopes {
		assert.Equal(t, "true", cond)
	}
	_, ok := m.FileScopes["a.c"]
	assert.True(t, ok)
	_, ok = m.FileScopes[filepath.Join("sub", "b.c")]
	assert.True(t, ok)
}
