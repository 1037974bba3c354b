package filex

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir(t *testing.T) {
	tmp := t.TempDir()

	path := filepath.Join(tmp, "data", "nested", "audiodesc.db")
	require.NoError(t, EnsureParentDir(path))

	fi, err := os.Stat(filepath.Join(tmp, "data", "nested"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	// idempotent
	require.NoError(t, EnsureParentDir(path))
	require.NoError(t, EnsureParentDir("audiodesc.db"))
}

func TestEnsureParentDir_FailsIfFileInTheWay(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "data"), []byte("x"), 0o660))

	err := EnsureParentDir(filepath.Join(tmp, "data", "audiodesc.db"))
	require.Error(t, err)
}

func TestReadMedia(t *testing.T) {
	tmp := t.TempDir()

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 16)...)
	pngPath := filepath.Join(tmp, "photo")
	require.NoError(t, os.WriteFile(pngPath, png, 0o600))

	data, mime, err := ReadMedia(pngPath, 1<<10)
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.Equal(t, "image/png", mime, "content sniffing without an extension")

	t.Run("extension wins", func(t *testing.T) {
		p := filepath.Join(tmp, "scan.PDF")
		require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o600))
		_, mime, err := ReadMedia(p, 1<<10)
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", mime)
	})

	t.Run("too large", func(t *testing.T) {
		_, _, err := ReadMedia(pngPath, 4)
		require.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("missing", func(t *testing.T) {
		_, _, err := ReadMedia(filepath.Join(tmp, "nope.jpg"), 10)
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestDetectMime_StripsParameters(t *testing.T) {
	assert.Equal(t, "text/plain", DetectMime("", []byte("hello")))
}
