package jsonfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	ok, err := Exists(path)
	require.NoError(t, err)
	assert.False(t, ok)

	in := map[string]bool{"0xAbC": true, "0xdef": false}
	data, err := Write(path, in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"0xAbC": true`)

	ok, err = Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)

	var out map[string]bool
	require.NoError(t, Read(path, &out))
	assert.Equal(t, in, out)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestWrite_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	_, err := Write(path, []int{1, 2, 3})
	require.NoError(t, err)
	_, err = Write(path, []int{4})
	require.NoError(t, err)

	var out []int
	require.NoError(t, Read(path, &out))
	assert.Equal(t, []int{4}, out)
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()
	var v map[string]int
	assert.Error(t, Read(filepath.Join(dir, "missing.json"), &v))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	assert.Error(t, Read(bad, &v))
}
