package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFileStore_LoadAbsent(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "last_processed_id.txt"), nil)

	_, ok := s.Load()
	assert.False(t, ok)
}

func TestFileStore_SaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_processed_id.txt")
	s := NewFileStore(path, zap.NewNop())

	require.NoError(t, s.Save(41))
	require.NoError(t, s.Save(42))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "42", string(b))

	id, ok := s.Load()
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	require.NoError(t, s.Clear())
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Clearing twice is fine.
	require.NoError(t, s.Clear())
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "cp.txt"), nil)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Save(i))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cp.txt", entries[0].Name())
}

func TestFileStore_LoadToleratesWhitespaceAndNegativeIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.txt")
	require.NoError(t, os.WriteFile(path, []byte(" -3\n"), 0o644))

	id, ok := NewFileStore(path, nil).Load()
	require.True(t, ok)
	assert.Equal(t, int64(-3), id)
}

func TestFileStore_CorruptIsTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.txt")
	require.NoError(t, os.WriteFile(path, []byte("twelve"), 0o644))

	core, logs := observer.New(zapcore.WarnLevel)
	_, ok := NewFileStore(path, zap.New(core)).Load()
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessageSnippet("corrupt").Len())
}

func TestFileStore_UnreadableIsTreatedAsAbsent(t *testing.T) {
	// A directory at the checkpoint path cannot be read as a file.
	path := filepath.Join(t.TempDir(), "cp.txt")
	require.NoError(t, os.Mkdir(path, 0o755))

	core, logs := observer.New(zapcore.WarnLevel)
	_, ok := NewFileStore(path, zap.New(core)).Load()
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessageSnippet("unreadable").Len())
}

func TestFileStore_SaveFailsWhenDirectoryMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope", "cp.txt"), nil)
	assert.Error(t, s.Save(1))
}
