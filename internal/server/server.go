package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/middleware"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/service"
)

const defaultMaxUploadBytes = 512 << 20 // 512MB

// Server exposes the media pipeline over HTTP.
type Server struct {
	svc            *service.MediaService
	log            *zap.Logger
	maxUploadBytes int64
}

func New(svc *service.MediaService, log *zap.Logger, maxUploadBytes int64) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Server{svc: svc, log: log, maxUploadBytes: maxUploadBytes}
}

// Handler builds the router. apiKeys maps API keys to owner ids.
func (s *Server) Handler(apiKeys map[string]string) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogging(s.log))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.APIKeyAuth(apiKeys, s.log))

	api.HandleFunc("/media", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/media", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/media/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/media/{id}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/media/{id}/optimize", s.handleOptimize).Methods(http.MethodPost)

	return r
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		s.writeError(w, media.ErrUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, media.ErrInvalidInput)
		return
	}
	defer file.Close()

	view, err := s.svc.Ingest(r.Context(), ownerID, &service.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     file,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := middleware.OwnerFromContext(r.Context())

	view, err := s.svc.Get(r.Context(), ownerID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := middleware.OwnerFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	views, err := s.svc.List(r.Context(), ownerID, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"media": views})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := middleware.OwnerFromContext(r.Context())

	view, async, err := s.svc.Reoptimize(r.Context(), ownerID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	// 202 while a background transcode is running, 200 when the state
	// returned is final.
	status := http.StatusOK
	if async {
		status = http.StatusAccepted
	}
	writeJSON(w, status, view)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := middleware.OwnerFromContext(r.Context())

	if err := s.svc.Delete(r.Context(), ownerID, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "media deleted"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, media.ErrInvalidInput), errors.Is(err, media.ErrUnsupportedMediaType):
		status = http.StatusBadRequest
	case errors.Is(err, media.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, media.ErrNotFound):
		status = http.StatusNotFound
	default:
		s.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
