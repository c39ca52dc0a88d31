package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
)

const thumbnailDirName = "thumbnails"
const optimizedDirName = "optimized"

// Layout resolves deterministic on-disk paths for an owner's artifacts:
//
//	base/<owner>/<category>/<name>            original uploads
//	base/<owner>/<category>/optimized/<name>  optimized re-encodes
//	base/<owner>/thumbnails/<name>            thumbnails (shared per owner)
//
// The base directory is injected at construction; nothing reads it from
// global state.
type Layout struct {
	baseDir       string
	publicBaseURL string
}

func NewLayout(baseDir, publicBaseURL string) *Layout {
	return &Layout{
		baseDir:       filepath.Clean(baseDir),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// sanitize strips anything that could escape the owner's subtree. A path
// component is reduced to its base name and separators are replaced.
func sanitize(component string) string {
	component = filepath.Base(filepath.Clean(component))
	component = strings.ReplaceAll(component, string(os.PathSeparator), "_")
	if component == "." || component == ".." || component == "" {
		return "_"
	}
	return component
}

func (l *Layout) CategoryDir(ownerID string, category media.Category) string {
	return filepath.Join(l.baseDir, sanitize(ownerID), string(category))
}

func (l *Layout) OptimizedDir(ownerID string, category media.Category) string {
	return filepath.Join(l.CategoryDir(ownerID, category), optimizedDirName)
}

func (l *Layout) ThumbnailDir(ownerID string) string {
	return filepath.Join(l.baseDir, sanitize(ownerID), thumbnailDirName)
}

func (l *Layout) FilePath(ownerID string, category media.Category, name string) string {
	return filepath.Join(l.CategoryDir(ownerID, category), sanitize(name))
}

func (l *Layout) OptimizedPath(ownerID string, category media.Category, name string) string {
	return filepath.Join(l.OptimizedDir(ownerID, category), sanitize(name))
}

func (l *Layout) ThumbnailPath(ownerID string, name string) string {
	return filepath.Join(l.ThumbnailDir(ownerID), sanitize(name))
}

// EnsureOwnerTree creates the category directory, its optimized child and
// the shared thumbnails directory. Idempotent.
func (l *Layout) EnsureOwnerTree(ownerID string, category media.Category) error {
	for _, dir := range []string{
		l.CategoryDir(ownerID, category),
		l.OptimizedDir(ownerID, category),
		l.ThumbnailDir(ownerID),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &media.StorageError{Op: "mkdir " + dir, Err: err}
		}
	}
	return nil
}

// PublicURL maps an absolute artifact path to its externally resolvable
// locator. Paths outside the base directory resolve to "".
func (l *Layout) PublicURL(path string) string {
	rel, err := filepath.Rel(l.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return l.publicBaseURL + "/" + filepath.ToSlash(rel)
}

// RemoveIfExists deletes a file, treating a missing file as success.
func (l *Layout) RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &media.StorageError{Op: "remove " + path, Err: err}
	}
	return nil
}
