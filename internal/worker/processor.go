// Package worker executes transcription jobs pulled from the asynq queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ClipScribe/internal/media"
	"github.com/dharsanguruparan/ClipScribe/internal/metrics"
	"github.com/dharsanguruparan/ClipScribe/internal/model"
	"github.com/dharsanguruparan/ClipScribe/internal/queue"
)

// VideoStore is the worker-side view of the registry. Ownership is read from
// the record itself, never from the job payload.
type VideoStore interface {
	GetByID(ctx context.Context, id string) (*model.Video, error)
	TransitionStatus(ctx context.Context, id string, from, to model.VideoStatus) error
	FinishProcessing(ctx context.Context, id, transcript string, outputKey *string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// ObjectStore uploads the burned output artifact.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectKey, filePath, contentType string) error
}

// MediaTool runs the external audio-extract and subtitle-burn processes.
type MediaTool interface {
	ExtractAudio(ctx context.Context, inputPath, outputPath string) error
	BurnSubtitles(ctx context.Context, inputPath, subtitlePath, outputPath string) error
}

// Transcriber converts an audio artifact into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	store       VideoStore
	objects     ObjectStore
	tool        MediaTool
	transcriber Transcriber
	httpClient  *http.Client
	log         zerolog.Logger

	// attempts reports (retried, maxRetry) for the current delivery.
	// Overridden in tests; defaults to the broker's bookkeeping.
	attempts func(ctx context.Context) (int, int)
}

// NewProcessor constructs a worker processor. httpClient may be nil.
func NewProcessor(store VideoStore, objects ObjectStore, tool MediaTool, transcriber Transcriber, httpClient *http.Client, log zerolog.Logger) *Processor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Minute}
	}
	return &Processor{
		store:       store,
		objects:     objects,
		tool:        tool,
		transcriber: transcriber,
		httpClient:  httpClient,
		log:         log,
		attempts:    queueAttempts,
	}
}

func queueAttempts(ctx context.Context) (int, int) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return retried, maxRetry
}

// Handler registers the transcribe job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TranscribeVideoTask, p.handleTranscribe)
	return mux
}

func (p *Processor) handleTranscribe(ctx context.Context, task *asynq.Task) error {
	var payload queue.TranscribePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Malformed payloads can never succeed; drop without retry.
		p.log.Error().Err(err).Msg("decode payload")
		return nil
	}

	start := time.Now()
	metrics.ActiveJobs.Inc()
	defer func() {
		metrics.ActiveJobs.Dec()
		metrics.JobDuration.Observe(time.Since(start).Seconds())
	}()

	v, err := p.store.GetByID(ctx, payload.VideoID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			p.log.Warn().Str("video_id", payload.VideoID).Msg("video gone, dropping job")
			metrics.JobsProcessed.WithLabelValues("abandoned").Inc()
			return nil
		}
		// No claim is held yet; the video may belong to another worker, so
		// its state stays untouched and the broker redelivers the task.
		p.log.Warn().Err(err).Str("video_id", payload.VideoID).Msg("load video failed, will retry")
		metrics.JobsProcessed.WithLabelValues("retry").Inc()
		return err
	}

	// Claim the video. The COMPLETED -> PROCESSING transition only succeeds
	// for one caller, so duplicate broker deliveries are abandoned here
	// without duplicate processing.
	if err := p.store.TransitionStatus(ctx, v.ID, model.StatusCompleted, model.StatusProcessing); err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidState):
			p.log.Info().Str("video_id", v.ID).Msg("video already claimed, abandoning")
			metrics.JobsProcessed.WithLabelValues("abandoned").Inc()
			return nil
		case errors.Is(err, model.ErrNotFound):
			p.log.Warn().Str("video_id", v.ID).Msg("video gone, dropping job")
			metrics.JobsProcessed.WithLabelValues("abandoned").Inc()
			return nil
		default:
			// Claim not acquired; same rule as above.
			p.log.Warn().Err(err).Str("video_id", v.ID).Msg("claim video failed, will retry")
			metrics.JobsProcessed.WithLabelValues("retry").Inc()
			return err
		}
	}

	outputKey, transcript, err := p.process(ctx, v, payload)
	if err != nil {
		return p.retryOrFail(ctx, v.ID, err)
	}
	if err := p.store.FinishProcessing(ctx, v.ID, transcript, outputKey); err != nil {
		return p.retryOrFail(ctx, v.ID, err)
	}
	metrics.JobsProcessed.WithLabelValues("success").Inc()
	p.log.Info().Str("video_id", v.ID).Dur("took", time.Since(start)).Msg("video transcribed")
	return nil
}

// process runs the pipeline inside a scratch directory that is removed on
// every exit path, including tool and network failures.
func (p *Processor) process(ctx context.Context, v *model.Video, payload queue.TranscribePayload) (*string, string, error) {
	scratch, err := media.NewScratch("clipscribe-")
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err := scratch.Close(); err != nil {
			// Cleanup is best-effort once the job outcome is decided.
			p.log.Warn().Err(err).Str("dir", scratch.Dir()).Msg("scratch cleanup failed")
		}
	}()

	sourcePath := scratch.Path("source" + filepath.Ext(v.StorageKey))
	if err := media.Download(ctx, p.httpClient, payload.SourceURL, sourcePath); err != nil {
		return nil, "", err
	}

	audioPath := scratch.Path("audio.mp3")
	if err := p.tool.ExtractAudio(ctx, sourcePath, audioPath); err != nil {
		return nil, "", err
	}

	transcript, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, "", err
	}

	if payload.Kind != model.KindTranscribeAndBurn {
		return nil, transcript, nil
	}

	srtPath := scratch.Path("captions.srt")
	if err := os.WriteFile(srtPath, []byte(media.TranscriptToSRT(transcript)), 0o600); err != nil {
		return nil, "", fmt.Errorf("write subtitles: %w", err)
	}
	renderPath := scratch.Path("captioned.mp4")
	if err := p.tool.BurnSubtitles(ctx, sourcePath, srtPath, renderPath); err != nil {
		return nil, "", err
	}

	outputKey := captionedKey(v.StorageKey)
	if err := p.objects.UploadFile(ctx, outputKey, renderPath, "video/mp4"); err != nil {
		return nil, "", err
	}
	return &outputKey, transcript, nil
}

// retryOrFail lets asynq re-enqueue with backoff until the attempt budget is
// spent, then records the terminal failure on the video. Only reached while
// this handler holds the PROCESSING claim; pre-claim errors never touch the
// video state.
func (p *Processor) retryOrFail(ctx context.Context, videoID string, cause error) error {
	retried, maxRetry := p.attempts(ctx)
	if retried >= maxRetry {
		p.log.Error().Err(cause).Str("video_id", videoID).Int("attempts", retried+1).Msg("job failed permanently")
		if err := p.store.MarkFailed(ctx, videoID, cause.Error()); err != nil {
			p.log.Error().Err(err).Str("video_id", videoID).Msg("record failure")
		}
		metrics.JobsProcessed.WithLabelValues("failed").Inc()
		return cause
	}
	// Put the video back up for grabs so the retry can claim it again.
	if err := p.store.TransitionStatus(ctx, videoID, model.StatusProcessing, model.StatusCompleted); err != nil && !errors.Is(err, model.ErrInvalidState) {
		p.log.Error().Err(err).Str("video_id", videoID).Msg("release claim")
	}
	p.log.Warn().Err(cause).Str("video_id", videoID).Int("attempt", retried+1).Msg("job attempt failed, will retry")
	metrics.JobsProcessed.WithLabelValues("retry").Inc()
	return cause
}

func captionedKey(storageKey string) string {
	base := strings.TrimSuffix(storageKey, filepath.Ext(storageKey))
	return base + "_captioned.mp4"
}
