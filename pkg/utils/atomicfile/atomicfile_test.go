package atomicfile

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, WriteFile(fs, "/a/b/c.json", []byte("one"), 0600))
	require.NoError(t, WriteFile(fs, "/a/b/c.json", []byte("two"), 0644))

	b, err := afero.ReadFile(fs, "/a/b/c.json")
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	fi, err := fs.Stat("/a/b/c.json")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), fi.Mode().Perm())

	entries, err := afero.ReadDir(fs, "/a/b")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteFileReadOnly(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/c.json", []byte("old"), 0644))

	err := WriteFile(afero.NewReadOnlyFs(mem), "/c.json", []byte("new"), 0644)
	require.Error(t, err)

	b, err := afero.ReadFile(mem, "/c.json")
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))
}
