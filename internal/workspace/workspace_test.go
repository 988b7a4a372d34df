package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirs(t *testing.T) {
	m := NewManager("/data")
	d := m.Dirs("wx_1")

	assert.Equal(t, "/data/wx_1", d.Root)
	assert.Equal(t, "/data/wx_1/workspace", d.Workspace)
	assert.Equal(t, "/data/wx_1/claude-config", d.Config)
}

func TestPrepareCreatesAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)

	assert.False(t, m.Exists("wx_1"))

	d, err := m.Prepare("wx_1")
	require.NoError(t, err)
	assert.DirExists(t, d.Workspace)
	assert.DirExists(t, d.Config)
	assert.True(t, m.Exists("wx_1"))

	require.NoError(t, os.WriteFile(filepath.Join(d.Workspace, "keep.txt"), []byte("x"), 0o644))
	_, err = m.Prepare("wx_1")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(d.Workspace, "keep.txt"))
}

func TestList(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)

	keys, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = m.Prepare("b")
	require.NoError(t, err)
	_, err = m.Prepare("a")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o644))

	keys, err = m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestListMissingRoot(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing"))
	keys, err := m.List()
	require.NoError(t, err)
	assert.Nil(t, keys)
}
