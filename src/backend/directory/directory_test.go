package directory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dir "session-backup/src/backend/directory"
)

func TestDirectory_List_SortsAndFilters(t *testing.T) {
	root := t.TempDir()

	mustMkdirAll(t, filepath.Join(root, "backup-2024-01-02T00-00-00"))
	mustMkdirAll(t, filepath.Join(root, "backup-2024-01-01T00-00-00"))
	mustMkdirAll(t, filepath.Join(root, ".staging-1234"))
	mustMkdirAll(t, filepath.Join(root, "notes"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "backup-file"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "backup-2024-01-02T00-00-00", "manifest.json"), []byte(`{"sessionCount": 3}`), 0o644))

	b, err := dir.New(root)
	require.NoError(t, err)
	entries, err := b.List()
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "backup-2024-01-01T00-00-00", entries[0].Name)
	assert.Equal(t, "2024-01-01T00-00-00", entries[0].Timestamp)
	assert.False(t, entries[0].Complete)
	assert.Equal(t, -1, entries[0].Files)

	assert.Equal(t, "backup-2024-01-02T00-00-00", entries[1].Name)
	assert.True(t, entries[1].Complete)
	assert.Equal(t, 3, entries[1].Files)
}

func TestDirectory_List_MissingRoot(t *testing.T) {
	b, err := dir.New(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	entries, err := b.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDirectory_New_RejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := dir.New(path)
	assert.Error(t, err)

	_, err = dir.New("")
	assert.Error(t, err)
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir -p %s: %v", path, err)
	}
}
