package media

import (
	"strings"
	"time"
)

// Category is the processing class of an uploaded file.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryDocument Category = "document"
)

// Classify maps a MIME type to a processing category. Anything that is not
// an image or a video is treated as a document.
func Classify(mimeType string) Category {
	if strings.HasPrefix(mimeType, "image/") {
		return CategoryImage
	}
	if strings.HasPrefix(mimeType, "video/") {
		return CategoryVideo
	}
	return CategoryDocument
}

// ArtifactLocation says where the canonical artifact of a record lives,
// so cleanup and idempotence logic never have to parse URLs.
type ArtifactLocation string

const (
	// LocationOriginal: fileUrl points at the original upload in the
	// category directory.
	LocationOriginal ArtifactLocation = "original"
	// LocationOptimizedSeparate: an optimized artifact exists alongside a
	// still-canonical original.
	LocationOptimizedSeparate ArtifactLocation = "optimized_separate"
	// LocationOptimizedCanonical: fileUrl points into the optimized
	// subtree and no original remains.
	LocationOptimizedCanonical ArtifactLocation = "optimized_canonical"
)

// Record is the persisted state for one accepted upload.
type Record struct {
	ID               string
	OwnerID          string
	FileName         string
	OriginalFileName string
	MimeType         string
	FileSize         int64
	FileURL          string
	ThumbnailURL     string
	OptimizedURL     string
	IsOptimized      bool
	Category         Category
	Location         ArtifactLocation
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// View is the public response shape, stable across all entry points.
type View struct {
	ID               string    `json:"id"`
	FileName         string    `json:"fileName"`
	OriginalFileName string    `json:"originalFileName"`
	FileType         string    `json:"fileType"`
	FileSize         int64     `json:"fileSize"`
	FileURL          string    `json:"fileUrl"`
	ThumbnailURL     string    `json:"thumbnailUrl,omitempty"`
	OptimizedFileURL string    `json:"optimizedFileUrl,omitempty"`
	IsOptimized      bool      `json:"isOptimized"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (r *Record) View() View {
	return View{
		ID:               r.ID,
		FileName:         r.FileName,
		OriginalFileName: r.OriginalFileName,
		FileType:         string(r.Category),
		FileSize:         r.FileSize,
		FileURL:          r.FileURL,
		ThumbnailURL:     r.ThumbnailURL,
		OptimizedFileURL: r.OptimizedURL,
		IsOptimized:      r.IsOptimized,
		CreatedAt:        r.CreatedAt,
	}
}
