package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/ClipScribe/internal/model"
)

const (
	// TranscribeVideoTask is scheduled when a confirmed video is sent for
	// transcription.
	TranscribeVideoTask = "video:transcribe"
)

// TranscribePayload is serialized into the task so the worker knows which
// video to process and where to fetch the source. It deliberately carries no
// owner: the worker re-derives ownership from the registry record.
type TranscribePayload struct {
	VideoID   string        `json:"video_id"`
	Kind      model.JobKind `json:"kind"`
	SourceURL string        `json:"source_url"`
}

// Client enqueues transcription jobs with bounded retries.
type Client struct {
	inner    *asynq.Client
	maxRetry int
}

// NewClient wraps an asynq client.
func NewClient(inner *asynq.Client, maxRetry int) *Client {
	return &Client{inner: inner, maxRetry: maxRetry}
}

// EnqueueTranscription places a transcription job on the queue and returns the
// broker-assigned job id. The call returns once the task is durably queued;
// callers observe completion by polling the video status.
func (c *Client) EnqueueTranscription(ctx context.Context, payload TranscribePayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TranscribeVideoTask, data)
	info, err := c.inner.EnqueueContext(ctx, task,
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(30*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue transcribe task: %w", err)
	}
	return info.ID, nil
}
