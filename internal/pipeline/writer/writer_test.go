package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineWriterProducesVerbatimLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	f := NewLineFactory()
	w, err := f.NewWriter("string", path)
	require.NoError(t, err)

	for _, v := range []string{"Result1", "Result2", "Result3"} {
		require.NoError(t, w.WriteRecord(v))
	}
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Result1\nResult2\nResult3\n", string(data))
}

func TestJSONFactoryExtension(t *testing.T) {
	assert.Equal(t, "jsonl", NewJSONFactory().Ext())
	assert.Equal(t, "csv", NewCSVFactory().Ext())
	assert.Equal(t, "txt", NewLineFactory().Ext())
}

func TestByFormatFallsBackToLine(t *testing.T) {
	assert.IsType(t, lineFactory{}, ByFormat("unknown"))
	assert.IsType(t, jsonFactory{}, ByFormat("json"))
	assert.IsType(t, csvFactory{}, ByFormat("csv"))
}

func TestCSVWriterWritesRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	f := NewCSVFactory()
	w, err := f.NewWriter("record", path)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord([]string{"a", "b"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}
