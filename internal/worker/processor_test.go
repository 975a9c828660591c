package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClipScribe/internal/model"
	"github.com/dharsanguruparan/ClipScribe/internal/queue"
	"github.com/dharsanguruparan/ClipScribe/internal/storage"
)

type fakeTool struct {
	mu           sync.Mutex
	extractCalls int
	burnCalls    int
	scratchDir   string
	subtitleBody string
	extractErr   error
	burnErr      error
}

func (f *fakeTool) ExtractAudio(_ context.Context, inputPath, outputPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls++
	f.scratchDir = filepath.Dir(inputPath)
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(outputPath, []byte("mp3"), 0o600)
}

func (f *fakeTool) BurnSubtitles(_ context.Context, _, subtitlePath, outputPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.burnCalls++
	if f.burnErr != nil {
		return f.burnErr
	}
	data, err := os.ReadFile(subtitlePath)
	if err != nil {
		return err
	}
	f.subtitleBody = string(data)
	return os.WriteFile(outputPath, []byte("mp4"), 0o600)
}

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeObjects struct {
	uploads map[string]string
}

func (f *fakeObjects) UploadFile(_ context.Context, objectKey, filePath, _ string) error {
	if f.uploads == nil {
		f.uploads = make(map[string]string)
	}
	f.uploads[objectKey] = filePath
	return nil
}

type fixture struct {
	store       *storage.MemoryStore
	tool        *fakeTool
	transcriber *fakeTranscriber
	objects     *fakeObjects
	proc        *Processor
	source      *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("video-bytes"))
	}))
	t.Cleanup(source.Close)

	f := &fixture{
		store:       storage.NewMemoryStore(),
		tool:        &fakeTool{},
		transcriber: &fakeTranscriber{text: "hello world"},
		objects:     &fakeObjects{},
		source:      source,
	}
	f.proc = NewProcessor(f.store, f.objects, f.tool, f.transcriber, source.Client(), zerolog.Nop())
	return f
}

func (f *fixture) seedVideo(t *testing.T, status model.VideoStatus) *model.Video {
	t.Helper()
	v := &model.Video{
		ID:           "vid-1",
		OwnerID:      "owner-1",
		StorageKey:   "owner-1/vid-1.mp4",
		Bucket:       "videos",
		OriginalName: "clip.mp4",
	}
	require.NoError(t, f.store.Create(context.Background(), v))
	if status != model.StatusPending {
		require.NoError(t, f.store.TransitionStatus(context.Background(), v.ID, model.StatusPending, status))
	}
	return v
}

func (f *fixture) task(t *testing.T, kind model.JobKind) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(queue.TranscribePayload{
		VideoID:   "vid-1",
		Kind:      kind,
		SourceURL: f.source.URL + "/owner-1/vid-1.mp4",
	})
	require.NoError(t, err)
	return asynq.NewTask(queue.TranscribeVideoTask, data)
}

func TestHandleTranscribeSuccess(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusCompleted)

	err := f.proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe))
	require.NoError(t, err)

	v, err := f.store.GetByID(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusTranscribed, v.Status)
	assert.Equal(t, "hello world", v.Transcript)
	assert.Nil(t, v.OutputKey)
	assert.Empty(t, f.objects.uploads)
}

func TestHandleTranscribeAndBurn(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusCompleted)

	err := f.proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribeAndBurn))
	require.NoError(t, err)

	v, err := f.store.GetByID(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusTranscribed, v.Status)
	require.NotNil(t, v.OutputKey)
	assert.Equal(t, "owner-1/vid-1_captioned.mp4", *v.OutputKey)
	assert.Contains(t, f.objects.uploads, "owner-1/vid-1_captioned.mp4")
	assert.Contains(t, f.tool.subtitleBody, "hello world")
	assert.Contains(t, f.tool.subtitleBody, "00:00:00,000 -->")
}

func TestHandleTranscribeAbandonsClaimedVideo(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusProcessing)

	err := f.proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe))
	require.NoError(t, err)

	assert.Zero(t, f.tool.extractCalls)
	assert.Zero(t, f.transcriber.calls)
	v, err := f.store.GetByID(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, v.Status)
}

func TestHandleTranscribeDropsMissingVideo(t *testing.T) {
	f := newFixture(t)
	err := f.proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe))
	require.NoError(t, err)
	assert.Zero(t, f.tool.extractCalls)
}

func TestHandleTranscribeDropsMalformedPayload(t *testing.T) {
	f := newFixture(t)
	task := asynq.NewTask(queue.TranscribeVideoTask, []byte("{not json"))
	require.NoError(t, f.proc.handleTranscribe(context.Background(), task))
}

func TestHandleTranscribeToolFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusCompleted)
	f.tool.extractErr = errors.New("ffmpeg exited with status 1")
	f.proc.attempts = func(context.Context) (int, int) { return 3, 3 }

	err := f.proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe))
	require.Error(t, err)

	v, err := f.store.GetByID(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, v.Status)
	require.NotNil(t, v.ErrorMessage)
	assert.Contains(t, *v.ErrorMessage, "ffmpeg exited with status 1")
}

func TestHandleTranscribeTranscriberFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusCompleted)
	f.transcriber.err = model.ErrTranscriptionFailure
	f.proc.attempts = func(context.Context) (int, int) { return 3, 3 }

	err := f.proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe))
	assert.ErrorIs(t, err, model.ErrTranscriptionFailure)

	v, err := f.store.GetByID(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, v.Status)
}

func TestScratchDirectoryRemoved(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusCompleted)

	require.NoError(t, f.proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe)))
	require.NotEmpty(t, f.tool.scratchDir)
	_, err := os.Stat(f.tool.scratchDir)
	assert.True(t, os.IsNotExist(err))
}

func TestScratchDirectoryRemovedOnFailure(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusCompleted)
	f.tool.extractErr = errors.New("boom")

	require.Error(t, f.proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe)))
	require.NotEmpty(t, f.tool.scratchDir)
	_, err := os.Stat(f.tool.scratchDir)
	assert.True(t, os.IsNotExist(err))
}

// flakyStore injects a one-shot error into the reads the handler performs
// before it owns the PROCESSING claim.
type flakyStore struct {
	*storage.MemoryStore
	getErr        error
	transitionErr error
}

func (s *flakyStore) GetByID(ctx context.Context, id string) (*model.Video, error) {
	if s.getErr != nil {
		err := s.getErr
		s.getErr = nil
		return nil, err
	}
	return s.MemoryStore.GetByID(ctx, id)
}

func (s *flakyStore) TransitionStatus(ctx context.Context, id string, from, to model.VideoStatus) error {
	if s.transitionErr != nil {
		err := s.transitionErr
		s.transitionErr = nil
		return err
	}
	return s.MemoryStore.TransitionStatus(ctx, id, from, to)
}

func TestLoadErrorLeavesForeignClaimIntact(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusProcessing)
	store := &flakyStore{MemoryStore: f.store, getErr: model.ErrPersistence}
	proc := NewProcessor(store, f.objects, f.tool, f.transcriber, f.source.Client(), zerolog.Nop())

	err := proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe))
	assert.ErrorIs(t, err, model.ErrPersistence)

	// The claim belongs to another worker; it must stay PROCESSING and must
	// not be marked failed.
	v, err := f.store.GetByID(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, v.Status)
	assert.Nil(t, v.ErrorMessage)
}

func TestClaimErrorLeavesVideoUntouched(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusCompleted)
	store := &flakyStore{MemoryStore: f.store, transitionErr: model.ErrPersistence}
	proc := NewProcessor(store, f.objects, f.tool, f.transcriber, f.source.Client(), zerolog.Nop())

	err := proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe))
	assert.ErrorIs(t, err, model.ErrPersistence)

	v, err := f.store.GetByID(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, v.Status)
	assert.Nil(t, v.ErrorMessage)
	assert.Zero(t, f.tool.extractCalls)
}

func TestFailureWithRetryBudgetReleasesClaim(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusCompleted)
	f.tool.extractErr = errors.New("transient tool failure")
	f.proc.attempts = func(context.Context) (int, int) { return 0, 3 }

	err := f.proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe))
	require.Error(t, err)

	// The claim is released so the redelivered attempt can take it again.
	v, err := f.store.GetByID(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, v.Status)
	assert.Nil(t, v.ErrorMessage)
}

func TestFailureOnFinalAttemptMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, model.StatusCompleted)
	f.tool.extractErr = errors.New("persistent tool failure")
	f.proc.attempts = func(context.Context) (int, int) { return 2, 2 }

	err := f.proc.handleTranscribe(context.Background(), f.task(t, model.KindTranscribe))
	require.Error(t, err)

	v, err := f.store.GetByID(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, v.Status)
	require.NotNil(t, v.ErrorMessage)
	assert.Contains(t, *v.ErrorMessage, "persistent tool failure")
}

func TestCaptionedKey(t *testing.T) {
	assert.Equal(t, "owner/abc_captioned.mp4", captionedKey("owner/abc.mp4"))
	assert.Equal(t, "owner/abc_captioned.mp4", captionedKey("owner/abc.webm"))
	assert.Equal(t, "plain_captioned.mp4", captionedKey("plain"))
}
