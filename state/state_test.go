package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateOperations(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PHARMASTOCK_HOME", home)

	state, err := Load()
	require.NoError(t, err)
	assert.Empty(t, state, "missing file is an empty state")

	require.NoError(t, Set(KeyDashboardFilter, "unread"))
	got, err := GetString(KeyDashboardFilter)
	require.NoError(t, err)
	assert.Equal(t, "unread", got)

	path, err := FilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "state", "state.yml"), path)

	require.NoError(t, Set("count", 3))
	got, err = GetString("count")
	require.NoError(t, err)
	assert.Empty(t, got, "non-string values read as empty")

	require.NoError(t, Delete(KeyDashboardFilter))
	_, ok, err := Get(KeyDashboardFilter)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	t.Setenv("PHARMASTOCK_HOME", t.TempDir())
	path, err := FilePath()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{not: [yaml"), 0644))

	_, err = Load()
	assert.Error(t, err)
}
