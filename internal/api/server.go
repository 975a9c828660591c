// Package api exposes the HTTP surface: upload orchestration, confirmation,
// downloads, transcription dispatch and video reads.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ClipScribe/internal/auth"
	"github.com/dharsanguruparan/ClipScribe/internal/config"
	"github.com/dharsanguruparan/ClipScribe/internal/metrics"
	"github.com/dharsanguruparan/ClipScribe/internal/model"
	"github.com/dharsanguruparan/ClipScribe/internal/videos"
)

// Server wires the video service into HTTP handlers.
type Server struct {
	cfg *config.Config
	svc *videos.Service
	log zerolog.Logger
}

// New constructs a Server.
func New(cfg *config.Config, svc *videos.Service, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, svc: svc, log: log}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.cfg.JWTSecret))
		r.Post("/upload", s.handleInitiateUpload)
		r.Post("/upload-success", s.handleConfirmUpload)
		r.Get("/download", s.handleDownload)
		r.Post("/transcribe", s.handleTranscribe)
		r.Get("/videos", s.handleListVideos)
		r.Get("/videos/{id}", s.handleGetVideo)
		r.Delete("/videos/{id}", s.handleDeleteVideo)
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("addr", s.cfg.Address).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type initiateUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

func (s *Server) handleInitiateUpload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req initiateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.FileName == "" {
		http.Error(w, "file_name required", http.StatusBadRequest)
		return
	}
	if req.ContentType == "" {
		req.ContentType = "video/mp4"
	}
	grant, err := s.svc.InitiateUpload(r.Context(), ownerID, req.FileName, req.ContentType)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	metrics.UploadsInitiated.Inc()
	s.respondJSON(w, http.StatusAccepted, grant)
}

type confirmUploadRequest struct {
	VideoID string `json:"video_id"`
}

func (s *Server) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req confirmUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == "" {
		http.Error(w, "video_id required", http.StatusBadRequest)
		return
	}
	v, err := s.svc.ConfirmUpload(r.Context(), ownerID, req.VideoID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key required", http.StatusBadRequest)
		return
	}
	url, expiresAt, err := s.svc.DownloadURL(r.Context(), ownerID, key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"download_url": url,
		"expires_at":   expiresAt,
	})
}

type transcribeRequest struct {
	VideoID     string `json:"video_id"`
	BurnCaption bool   `json:"burn_caption"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == "" {
		http.Error(w, "video_id required", http.StatusBadRequest)
		return
	}
	job, err := s.svc.EnqueueTranscription(r.Context(), ownerID, req.VideoID, req.BurnCaption)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := s.svc.List(r.Context(), ownerID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Video{}
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	v, err := s.svc.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := s.svc.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondError maps the error taxonomy onto HTTP status codes. Collaborator
// errors never escape raw.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, model.ErrUnsupportedMediaType):
		status, message = http.StatusBadRequest, "unsupported media type"
	case errors.Is(err, model.ErrUploadNotVerified):
		status, message = http.StatusBadRequest, "upload not verified"
	case errors.Is(err, model.ErrNotFound):
		status, message = http.StatusNotFound, "video not found"
	case errors.Is(err, model.ErrInvalidState):
		status, message = http.StatusConflict, "invalid video state"
	case errors.Is(err, model.ErrStorageUnavailable):
		status, message = http.StatusInternalServerError, "object storage unavailable"
	}
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
