package derive

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/storage"
)

const (
	// OptPrefix is prepended to optimized video filenames.
	OptPrefix = "opt_"
	// Poster frames are plain stills.
	posterExt = ".jpg"
)

// TranscodeResult describes the optimized artifact produced for one video.
type TranscodeResult struct {
	OptimizedName string
	OptimizedSize int64
}

// VideoTranscoder shells out to ffmpeg for poster-frame extraction and
// H.264/AAC transcoding. Both operations are driven by the background
// queue, never by a request handler.
type VideoTranscoder struct {
	layout     *storage.Layout
	log        *zap.Logger
	ffmpegPath string
}

func NewVideoTranscoder(layout *storage.Layout, log *zap.Logger) *VideoTranscoder {
	return &VideoTranscoder{layout: layout, log: log, ffmpegPath: "ffmpeg"}
}

// ExtractPoster captures a single frame at the 1-second mark, scaled to
// width 300 with the aspect ratio preserved.
func (t *VideoTranscoder) ExtractPoster(ctx context.Context, ownerID, srcPath, baseName string) (string, error) {
	thumbName := ThumbPrefix + baseName + posterExt
	thumbPath := t.layout.ThumbnailPath(ownerID, thumbName)

	err := t.runFFmpeg(ctx,
		"-ss", "00:00:01",
		"-i", srcPath,
		"-vframes", "1",
		"-vf", "scale=300:-1",
		"-y", thumbPath,
	)
	if err != nil {
		os.Remove(thumbPath)
		return "", err
	}
	return thumbName, nil
}

// Transcode re-encodes video and audio to the widely compatible
// H.264/AAC pair at CRF 28.
func (t *VideoTranscoder) Transcode(ctx context.Context, ownerID string, category media.Category, srcPath, baseName string) (*TranscodeResult, error) {
	optimizedName := OptPrefix + baseName + ".mp4"
	optimizedPath := t.layout.OptimizedPath(ownerID, category, optimizedName)

	err := t.runFFmpeg(ctx,
		"-i", srcPath,
		"-c:v", "libx264",
		"-crf", "28",
		"-preset", "medium",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-y", optimizedPath,
	)
	if err != nil {
		os.Remove(optimizedPath)
		return nil, err
	}

	info, err := os.Stat(optimizedPath)
	if err != nil {
		return nil, &media.StorageError{Op: "stat " + optimizedPath, Err: err}
	}

	return &TranscodeResult{
		OptimizedName: optimizedName,
		OptimizedSize: info.Size(),
	}, nil
}

func (t *VideoTranscoder) runFFmpeg(ctx context.Context, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	cmd.Stderr = &stderr

	t.log.Debug("running ffmpeg", zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		return &media.EncodingError{
			Op:  "ffmpeg " + tail(stderr.String(), 512),
			Err: err,
		}
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
