package derive_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/derive"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func decodeBounds(t *testing.T, path string) image.Rectangle {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, _, err := image.Decode(f)
	require.NoError(t, err)
	return img.Bounds()
}

func TestOptimizeProducesWebPAndThumbnail(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "http://files.test")
	opt := derive.NewImageOptimizer(layout, zap.NewNop())

	require.NoError(t, layout.EnsureOwnerTree("u1", media.CategoryImage))
	src := layout.FilePath("u1", media.CategoryImage, "photo.png")
	writeTestPNG(t, src, 800, 600)

	res, err := opt.Optimize("u1", media.CategoryImage, src, "photo")
	require.NoError(t, err)

	assert.Equal(t, "photo.webp", res.OptimizedName)
	assert.Equal(t, "thumb_photo.webp", res.ThumbnailName)

	optimizedPath := layout.OptimizedPath("u1", media.CategoryImage, res.OptimizedName)
	info, err := os.Stat(optimizedPath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), res.OptimizedSize)

	// The original is gone once both derivatives exist.
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	// Thumbnail fits inside 300x300 preserving aspect ratio.
	bounds := decodeBounds(t, layout.ThumbnailPath("u1", res.ThumbnailName))
	assert.Equal(t, 300, bounds.Dx())
	assert.Equal(t, 225, bounds.Dy())
}

func TestOptimizeNeverUpscales(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "")
	opt := derive.NewImageOptimizer(layout, zap.NewNop())

	require.NoError(t, layout.EnsureOwnerTree("u1", media.CategoryImage))
	src := layout.FilePath("u1", media.CategoryImage, "small.png")
	writeTestPNG(t, src, 100, 50)

	res, err := opt.Optimize("u1", media.CategoryImage, src, "small")
	require.NoError(t, err)

	bounds := decodeBounds(t, layout.ThumbnailPath("u1", res.ThumbnailName))
	assert.Equal(t, 100, bounds.Dx())
	assert.Equal(t, 50, bounds.Dy())
}

func TestOptimizeUnreadableSource(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "")
	opt := derive.NewImageOptimizer(layout, zap.NewNop())

	require.NoError(t, layout.EnsureOwnerTree("u1", media.CategoryImage))
	src := layout.FilePath("u1", media.CategoryImage, "bogus.png")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0o644))

	_, err := opt.Optimize("u1", media.CategoryImage, src, "bogus")
	require.Error(t, err)
	var encErr *media.EncodingError
	assert.ErrorAs(t, err, &encErr)

	// No partial artifacts, original untouched.
	_, statErr := os.Stat(layout.OptimizedPath("u1", media.CategoryImage, "bogus.webp"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(layout.ThumbnailPath("u1", "thumb_bogus.webp"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(src)
	assert.NoError(t, statErr)
}

func TestOptimizeMissingSource(t *testing.T) {
	layout := storage.NewLayout(t.TempDir(), "")
	opt := derive.NewImageOptimizer(layout, zap.NewNop())

	_, err := opt.Optimize("u1", media.CategoryImage, filepath.Join(t.TempDir(), "gone.png"), "gone")
	require.Error(t, err)
}
