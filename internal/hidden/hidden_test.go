package hidden

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "hidden.json"))
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	assert.False(t, set.Contains("abc"))
}

func TestAddIsAppendOnlyAndDeduplicated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidden.json")
	set, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, set.Add("b", "a", "b", ""))
	assert.Equal(t, 0, set.Add("a"))
	assert.Equal(t, []string{"b", "a"}, set.List())

	require.NoError(t, set.Save(context.Background()))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, reloaded.List())
	assert.True(t, reloaded.Contains("a"))
}

func TestLoadReadsPlainJSONList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidden.json")
	require.NoError(t, os.WriteFile(path, []byte(`["one", "two"]`), 0o644))

	set, err := Load(path)
	require.NoError(t, err)
	assert.True(t, set.Contains("two"))
	assert.Equal(t, 2, set.Len())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidden.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"one": true}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
