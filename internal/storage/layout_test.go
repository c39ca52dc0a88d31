package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	l := storage.NewLayout("/data/media", "http://localhost:8080/files")

	assert.Equal(t, filepath.Join("/data/media", "u1", "image", "a.webp"),
		l.FilePath("u1", media.CategoryImage, "a.webp"))
	assert.Equal(t, filepath.Join("/data/media", "u1", "image", "optimized", "a.webp"),
		l.OptimizedPath("u1", media.CategoryImage, "a.webp"))
	assert.Equal(t, filepath.Join("/data/media", "u1", "thumbnails", "thumb_a.webp"),
		l.ThumbnailPath("u1", "thumb_a.webp"))
}

func TestLayoutOwnerScoping(t *testing.T) {
	l := storage.NewLayout("/data/media", "")

	// A hostile owner id or filename must never resolve into another
	// owner's subtree.
	p := l.FilePath("../u2", media.CategoryImage, "a.png")
	assert.NotContains(t, p, "..")

	p = l.FilePath("u1", media.CategoryImage, "../../u2/image/a.png")
	assert.Equal(t, filepath.Join("/data/media", "u1", "image", "a.png"), p)
}

func TestEnsureOwnerTree(t *testing.T) {
	l := storage.NewLayout(t.TempDir(), "")

	require.NoError(t, l.EnsureOwnerTree("u1", media.CategoryVideo))
	// Idempotent.
	require.NoError(t, l.EnsureOwnerTree("u1", media.CategoryVideo))

	for _, dir := range []string{
		l.CategoryDir("u1", media.CategoryVideo),
		l.OptimizedDir("u1", media.CategoryVideo),
		l.ThumbnailDir("u1"),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestPublicURL(t *testing.T) {
	l := storage.NewLayout("/data/media", "http://localhost:8080/files")

	url := l.PublicURL(l.OptimizedPath("u1", media.CategoryImage, "a.webp"))
	assert.Equal(t, "http://localhost:8080/files/u1/image/optimized/a.webp", url)

	assert.Empty(t, l.PublicURL("/etc/passwd"))
}

func TestRemoveIfExists(t *testing.T) {
	l := storage.NewLayout(t.TempDir(), "")

	// Missing file is not an error.
	require.NoError(t, l.RemoveIfExists(filepath.Join(t.TempDir(), "nope")))

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, l.RemoveIfExists(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
