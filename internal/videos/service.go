// Package videos implements the upload lifecycle: presigned-URL issuance,
// upload confirmation, and transcription dispatch. All reads and writes are
// scoped to the owner taken from the authenticated request.
package videos

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ClipScribe/internal/model"
	"github.com/dharsanguruparan/ClipScribe/internal/queue"
)

// Store is the persistence contract the service needs. Implemented by
// repository.VideoRepository and storage.MemoryStore.
type Store interface {
	Create(ctx context.Context, v *model.Video) error
	GetByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Video, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Video, error)
	TransitionStatus(ctx context.Context, id string, from, to model.VideoStatus) error
	Delete(ctx context.Context, id, ownerID string) error
}

// ObjectGateway is the object-storage contract: presigning and existence
// checks only, no ownership knowledge.
type ObjectGateway interface {
	PresignUpload(ctx context.Context, objectKey, contentType string) (string, time.Time, error)
	PresignDownload(ctx context.Context, objectKey string) (string, time.Time, error)
	Exists(ctx context.Context, objectKey string) (bool, error)
	Bucket() string
}

// Enqueuer places transcription jobs on the durable queue.
type Enqueuer interface {
	EnqueueTranscription(ctx context.Context, payload queue.TranscribePayload) (string, error)
}

// UploadGrant is returned by InitiateUpload; the client PUTs the file to
// UploadURL directly and then confirms.
type UploadGrant struct {
	VideoID    string    `json:"video_id"`
	StorageKey string    `json:"storage_key"`
	UploadURL  string    `json:"upload_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// EnqueuedJob is returned by EnqueueTranscription.
type EnqueuedJob struct {
	JobID   string `json:"job_id"`
	VideoID string `json:"video_id"`
}

// Service wires the store, the storage gateway and the queue together.
type Service struct {
	store   Store
	gateway ObjectGateway
	jobs    Enqueuer
	allowed map[string]struct{}
	log     zerolog.Logger
}

// NewService constructs a Service. extensions is the upload allow-list,
// lower-case and without dots.
func NewService(store Store, gateway ObjectGateway, jobs Enqueuer, extensions []string, log zerolog.Logger) *Service {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return &Service{store: store, gateway: gateway, jobs: jobs, allowed: allowed, log: log}
}

// InitiateUpload validates the file name, issues a presigned PUT URL and
// records a PENDING video. Validation happens before any collaborator call,
// and the presign happens before the insert so a storage outage never leaves
// an orphaned PENDING row behind.
func (s *Service) InitiateUpload(ctx context.Context, ownerID, fileName, contentType string) (*UploadGrant, error) {
	ext := extension(fileName)
	if _, ok := s.allowed[ext]; !ok {
		return nil, fmt.Errorf("extension %q: %w", ext, model.ErrUnsupportedMediaType)
	}

	// The random component makes the key collision-free independent of any
	// client input; the owner prefix namespaces every object.
	videoID := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s.%s", ownerID, uuid.NewString(), ext)

	uploadURL, expiresAt, err := s.gateway.PresignUpload(ctx, storageKey, contentType)
	if err != nil {
		return nil, err
	}

	v := &model.Video{
		ID:           videoID,
		OwnerID:      ownerID,
		StorageKey:   storageKey,
		Bucket:       s.gateway.Bucket(),
		OriginalName: fileName,
	}
	if err := s.store.Create(ctx, v); err != nil {
		// The issued URL is now unusable: no record will ever reference it
		// for confirmation.
		s.log.Error().Err(err).Str("storage_key", storageKey).Msg("record upload failed after presign")
		return nil, err
	}
	return &UploadGrant{
		VideoID:    videoID,
		StorageKey: storageKey,
		UploadURL:  uploadURL,
		ExpiresAt:  expiresAt,
	}, nil
}

// ConfirmUpload verifies the object landed in storage and moves the video to
// COMPLETED. Confirming an already-confirmed video is a no-op success.
func (s *Service) ConfirmUpload(ctx context.Context, ownerID, videoID string) (*model.Video, error) {
	v, err := s.store.GetByIDAndOwner(ctx, videoID, ownerID)
	if err != nil {
		return nil, err
	}
	switch v.Status {
	case model.StatusCompleted, model.StatusProcessing, model.StatusTranscribed:
		// Upload already verified; double confirmation must not raise.
		return v, nil
	case model.StatusFailed:
		return nil, fmt.Errorf("video is %s: %w", v.Status, model.ErrInvalidState)
	}

	exists, err := s.gateway.Exists(ctx, v.StorageKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("object %s not in storage: %w", v.StorageKey, model.ErrUploadNotVerified)
	}
	if err := s.store.TransitionStatus(ctx, v.ID, model.StatusPending, model.StatusCompleted); err != nil {
		if errors.Is(err, model.ErrInvalidState) {
			// Confirmed concurrently; report the current record instead.
			return s.store.GetByIDAndOwner(ctx, videoID, ownerID)
		}
		return nil, err
	}
	return s.store.GetByIDAndOwner(ctx, videoID, ownerID)
}

// EnqueueTranscription dispatches a processing job for a COMPLETED video. The
// call returns as soon as the job is durably queued; completion is observed by
// polling the video status.
func (s *Service) EnqueueTranscription(ctx context.Context, ownerID, videoID string, burnCaption bool) (*EnqueuedJob, error) {
	v, err := s.store.GetByIDAndOwner(ctx, videoID, ownerID)
	if err != nil {
		return nil, err
	}
	if v.Status != model.StatusCompleted {
		return nil, fmt.Errorf("video is %s: %w", v.Status, model.ErrInvalidState)
	}

	sourceURL, _, err := s.gateway.PresignDownload(ctx, v.StorageKey)
	if err != nil {
		return nil, err
	}
	kind := model.KindTranscribe
	if burnCaption {
		kind = model.KindTranscribeAndBurn
	}
	jobID, err := s.jobs.EnqueueTranscription(ctx, queue.TranscribePayload{
		VideoID:   v.ID,
		Kind:      kind,
		SourceURL: sourceURL,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("video_id", v.ID).Str("job_id", jobID).Str("kind", string(kind)).Msg("transcription queued")
	return &EnqueuedJob{JobID: jobID, VideoID: v.ID}, nil
}

// DownloadURL issues a presigned GET for an object the owner controls. Keys
// are namespaced by owner id, so the prefix check is the ownership check.
func (s *Service) DownloadURL(ctx context.Context, ownerID, objectKey string) (string, time.Time, error) {
	if !strings.HasPrefix(objectKey, ownerID+"/") {
		return "", time.Time{}, model.ErrNotFound
	}
	return s.gateway.PresignDownload(ctx, objectKey)
}

// Get returns one of the owner's videos.
func (s *Service) Get(ctx context.Context, ownerID, videoID string) (*model.Video, error) {
	return s.store.GetByIDAndOwner(ctx, videoID, ownerID)
}

// List returns the owner's videos, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]model.Video, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Delete removes the owner's video record. The stored object is left to
// bucket lifecycle rules.
func (s *Service) Delete(ctx context.Context, ownerID, videoID string) error {
	return s.store.Delete(ctx, videoID, ownerID)
}

func extension(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}
