package derive

import (
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // decode webp uploads

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/storage"
)

const (
	// WebP quality for the optimized artifact: high visual quality,
	// reduced size.
	optimizedQuality = 85
	// Thumbnails trade more quality for size.
	thumbnailQuality = 70
	// Neither thumbnail dimension exceeds this. Fit semantics: no crop,
	// no upscale.
	thumbnailMaxDim = 300

	// OptimizedExt is the extension of every optimized image artifact.
	OptimizedExt = ".webp"
	// ThumbPrefix is prepended to thumbnail filenames.
	ThumbPrefix = "thumb_"
)

// ImageResult describes the artifacts produced for one image.
type ImageResult struct {
	OptimizedName string
	OptimizedSize int64
	ThumbnailName string
}

// ImageOptimizer synchronously re-encodes images to WebP and produces a
// bounded thumbnail.
type ImageOptimizer struct {
	layout *storage.Layout
	log    *zap.Logger
}

func NewImageOptimizer(layout *storage.Layout, log *zap.Logger) *ImageOptimizer {
	return &ImageOptimizer{layout: layout, log: log}
}

// Optimize re-encodes the file at srcPath into the owner's optimized
// directory, writes a thumbnail, and deletes the original. On any failure
// the partial outputs are removed, the original is left in place and no
// artifact survives.
func (o *ImageOptimizer) Optimize(ownerID string, category media.Category, srcPath, baseName string) (*ImageResult, error) {
	if err := o.layout.EnsureOwnerTree(ownerID, category); err != nil {
		return nil, err
	}

	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &media.EncodingError{Op: "decode " + srcPath, Err: err}
	}

	optimizedName := baseName + OptimizedExt
	optimizedPath := o.layout.OptimizedPath(ownerID, category, optimizedName)
	thumbName := ThumbPrefix + baseName + OptimizedExt
	thumbPath := o.layout.ThumbnailPath(ownerID, thumbName)

	cleanup := func() {
		os.Remove(optimizedPath)
		os.Remove(thumbPath)
	}

	if err := saveWebP(optimizedPath, img, optimizedQuality); err != nil {
		cleanup()
		return nil, err
	}

	info, err := os.Stat(optimizedPath)
	if err != nil {
		cleanup()
		return nil, &media.StorageError{Op: "stat " + optimizedPath, Err: err}
	}

	thumb := imaging.Fit(img, thumbnailMaxDim, thumbnailMaxDim, imaging.Lanczos)
	if err := saveWebP(thumbPath, thumb, thumbnailQuality); err != nil {
		cleanup()
		return nil, err
	}

	// Only now is it safe to drop the original bytes.
	if err := os.Remove(srcPath); err != nil {
		cleanup()
		return nil, &media.StorageError{Op: "remove original " + srcPath, Err: err}
	}

	o.log.Debug("image optimized",
		zap.String("owner_id", ownerID),
		zap.String("optimized", optimizedName),
		zap.Int64("size", info.Size()),
	)

	return &ImageResult{
		OptimizedName: optimizedName,
		OptimizedSize: info.Size(),
		ThumbnailName: thumbName,
	}, nil
}

// saveWebP writes img as lossy WebP at the given quality.
func saveWebP(path string, img image.Image, quality float32) error {
	out, err := os.Create(path)
	if err != nil {
		return &media.StorageError{Op: "create " + path, Err: err}
	}
	defer out.Close()

	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return &media.EncodingError{Op: "webp options", Err: err}
	}
	if err := webp.Encode(out, img, opts); err != nil {
		return &media.EncodingError{Op: "webp encode " + path, Err: err}
	}
	return nil
}
