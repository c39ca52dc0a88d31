package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/derive"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/observability"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/server"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/service"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/storage"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/store"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testAPIKey = "test-key-456"
	testOwner  = "550e8400-e29b-41d4-a716-446655440000"
)

type httpStubImages struct{ layout *storage.Layout }

func (s *httpStubImages) Optimize(ownerID string, category media.Category, srcPath, baseName string) (*derive.ImageResult, error) {
	optimizedName := baseName + derive.OptimizedExt
	thumbName := derive.ThumbPrefix + baseName + derive.OptimizedExt
	if err := os.WriteFile(s.layout.OptimizedPath(ownerID, category, optimizedName), []byte("webp"), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.layout.ThumbnailPath(ownerID, thumbName), []byte("thumb"), 0o644); err != nil {
		return nil, err
	}
	if err := os.Remove(srcPath); err != nil {
		return nil, err
	}
	return &derive.ImageResult{OptimizedName: optimizedName, OptimizedSize: 4, ThumbnailName: thumbName}, nil
}

// httpStubVideos always fails, keeping video records un-optimized so the
// 202 path stays observable.
type httpStubVideos struct{}

func (httpStubVideos) Transcode(ctx context.Context, ownerID string, category media.Category, srcPath, baseName string) (*derive.TranscodeResult, error) {
	return nil, &media.EncodingError{Op: "stub", Err: os.ErrInvalid}
}

func (httpStubVideos) ExtractPoster(ctx context.Context, ownerID, srcPath, baseName string) (string, error) {
	return "", &media.EncodingError{Op: "stub", Err: os.ErrInvalid}
}

func setupServer(t *testing.T) http.Handler {
	t.Helper()
	layout := storage.NewLayout(t.TempDir(), "http://files.test")
	st := store.NewMemoryStore()
	metrics, err := observability.InitMetrics()
	require.NoError(t, err)

	queue := worker.NewQueue(1, httpStubVideos{}, st, layout, metrics, zap.NewNop(), time.Minute)
	t.Cleanup(queue.Close)

	svc := service.NewMediaService(st, layout, &httpStubImages{layout: layout}, queue, metrics, zap.NewNop())
	return server.New(svc, zap.NewNop(), 0).Handler(map[string]string{testAPIKey: testOwner})
}

func multipartBody(t *testing.T, filename, contentType, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, handler http.Handler, filename, contentType, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, bodyType := multipartBody(t, filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", body)
	req.Header.Set("Content-Type", bodyType)
	req.Header.Set("X-API-Key", testAPIKey)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func doJSON(t *testing.T, handler http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-API-Key", testAPIKey)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var body map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func uploadedID(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view media.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.NotEmpty(t, view.ID)
	return view.ID
}

func TestAuthRequired(t *testing.T) {
	handler := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/media", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req.Header.Set("X-API-Key", "wrong-key")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUploadImage(t *testing.T) {
	handler := setupServer(t)

	rr := doUpload(t, handler, "photo.png", "image/png", "png-bytes")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var view media.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.True(t, view.IsOptimized)
	assert.Equal(t, "image", view.FileType)
	assert.NotEmpty(t, view.ThumbnailURL)
}

func TestUploadMissingFile(t *testing.T) {
	handler := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", bytes.NewReader(nil))
	req.Header.Set("X-API-Key", testAPIKey)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetAndListStatus(t *testing.T) {
	handler := setupServer(t)
	id := uploadedID(t, doUpload(t, handler, "photo.png", "image/png", "png-bytes"))

	rr, _ := doJSON(t, handler, http.MethodGet, "/api/v1/media/"+id)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, body := doJSON(t, handler, http.MethodGet, "/api/v1/media")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body["media"], 1)

	rr, _ = doJSON(t, handler, http.MethodGet, "/api/v1/media/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteStatus(t *testing.T) {
	handler := setupServer(t)
	id := uploadedID(t, doUpload(t, handler, "photo.png", "image/png", "png-bytes"))

	rr, _ := doJSON(t, handler, http.MethodDelete, "/api/v1/media/"+id)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, _ = doJSON(t, handler, http.MethodDelete, "/api/v1/media/"+id)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOptimizeStatuses(t *testing.T) {
	handler := setupServer(t)

	// Already-optimized image: 200 with unchanged data.
	imageID := uploadedID(t, doUpload(t, handler, "photo.png", "image/png", "png-bytes"))
	rr, body := doJSON(t, handler, http.MethodPost, "/api/v1/media/"+imageID+"/optimize")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["isOptimized"])

	// Un-optimized video: transcode just started, 202.
	videoID := uploadedID(t, doUpload(t, handler, "clip.mp4", "video/mp4", "mp4-bytes"))
	rr, body = doJSON(t, handler, http.MethodPost, "/api/v1/media/"+videoID+"/optimize")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, false, body["isOptimized"])

	// Documents are not eligible.
	docID := uploadedID(t, doUpload(t, handler, "notes.pdf", "application/pdf", "pdf-bytes"))
	rr, _ = doJSON(t, handler, http.MethodPost, "/api/v1/media/"+docID+"/optimize")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/v1/media/nope/optimize")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
