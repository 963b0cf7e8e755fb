package safe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFile(t *testing.T) {
	t.Run("reads regular file", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "policy.disambig")
		content := []byte("----SECTION----\nglobals\n")
		require.NoError(t, os.WriteFile(src, content, 0o644))

		got, err := ReadFile(src, nil)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("rejects symlink by default", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "source.txt")
		link := filepath.Join(tmpDir, "link.txt")
		require.NoError(t, os.WriteFile(src, []byte("test"), 0o644))
		require.NoError(t, os.Symlink(src, link))

		_, err := ReadFile(link, nil)
		assert.Error(t, err)

		got, err := ReadFile(link, &ReadOptions{AllowSymlinks: true})
		require.NoError(t, err)
		assert.Equal(t, "test", string(got))
	})

	t.Run("rejects directory", func(t *testing.T) {
		_, err := ReadFile(t.TempDir(), nil)
		assert.Error(t, err)
	})

	t.Run("rejects file exceeding max size", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "source.txt")
		require.NoError(t, os.WriteFile(src, make([]byte, 1024), 0o644))

		_, err := ReadFile(src, &ReadOptions{MaxSize: 512})
		assert.Error(t, err)
	})
}

func TestWriteFileAtomic(t *testing.T) {
	tmpDir := t.TempDir()
	dst := filepath.Join(tmpDir, "out.disambig")

	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o600))
	require.NoError(t, WriteFileAtomic(dst, []byte("new"), 0o644))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "out"), []byte("x"), 0)
	assert.Error(t, err)
}
