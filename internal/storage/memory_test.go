package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClipScribe/internal/model"
)

func newVideo(id, owner, key string) *model.Video {
	return &model.Video{
		ID:           id,
		OwnerID:      owner,
		StorageKey:   key,
		Bucket:       "test-bucket",
		OriginalName: "clip.mp4",
	}
}

func TestCreateSetsPendingAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	v := newVideo("vid-1", "owner-1", "owner-1/abc.mp4")
	require.NoError(t, store.Create(ctx, v))
	assert.Equal(t, model.StatusPending, v.Status)

	dup := newVideo("vid-2", "owner-1", "owner-1/abc.mp4")
	err := store.Create(ctx, dup)
	assert.ErrorIs(t, err, model.ErrDuplicateKey)
}

func TestOwnershipIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newVideo("vid-1", "owner-1", "owner-1/abc.mp4")))

	// A foreign owner sees the same error as for a missing record.
	_, err := store.GetByIDAndOwner(ctx, "vid-1", "owner-2")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = store.GetByIDAndOwner(ctx, "no-such-id", "owner-2")
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = store.Delete(ctx, "vid-1", "owner-2")
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := store.GetByIDAndOwner(ctx, "vid-1", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "vid-1", got.ID)
}

func TestTransitionStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newVideo("vid-1", "owner-1", "owner-1/abc.mp4")))

	err := store.TransitionStatus(ctx, "vid-1", model.StatusCompleted, model.StatusProcessing)
	assert.ErrorIs(t, err, model.ErrInvalidState)

	require.NoError(t, store.TransitionStatus(ctx, "vid-1", model.StatusPending, model.StatusCompleted))
	require.NoError(t, store.TransitionStatus(ctx, "vid-1", model.StatusCompleted, model.StatusProcessing))

	err = store.TransitionStatus(ctx, "missing", model.StatusPending, model.StatusCompleted)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClaimIsExclusiveUnderRace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newVideo("vid-1", "owner-1", "owner-1/abc.mp4")))
	require.NoError(t, store.TransitionStatus(ctx, "vid-1", model.StatusPending, model.StatusCompleted))

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.TransitionStatus(ctx, "vid-1", model.StatusCompleted, model.StatusProcessing)
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, model.ErrInvalidState)
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one racer may claim the video")
	assert.Equal(t, racers-1, losses)
}

func TestFinishProcessing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newVideo("vid-1", "owner-1", "owner-1/abc.mp4")))

	err := store.FinishProcessing(ctx, "vid-1", "hello world", nil)
	assert.ErrorIs(t, err, model.ErrInvalidState, "finish requires PROCESSING")

	require.NoError(t, store.TransitionStatus(ctx, "vid-1", model.StatusPending, model.StatusCompleted))
	require.NoError(t, store.TransitionStatus(ctx, "vid-1", model.StatusCompleted, model.StatusProcessing))

	outputKey := "owner-1/abc_captioned.mp4"
	require.NoError(t, store.FinishProcessing(ctx, "vid-1", "hello world", &outputKey))

	got, err := store.GetByID(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusTranscribed, got.Status)
	assert.Equal(t, "hello world", got.Transcript)
	require.NotNil(t, got.OutputKey)
	assert.Equal(t, outputKey, *got.OutputKey)
}

func TestMarkFailedNeverTouchesTerminalStates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newVideo("vid-1", "owner-1", "owner-1/abc.mp4")))
	require.NoError(t, store.TransitionStatus(ctx, "vid-1", model.StatusPending, model.StatusCompleted))
	require.NoError(t, store.TransitionStatus(ctx, "vid-1", model.StatusCompleted, model.StatusProcessing))
	require.NoError(t, store.FinishProcessing(ctx, "vid-1", "done", nil))

	require.NoError(t, store.MarkFailed(ctx, "vid-1", "late failure"))
	got, err := store.GetByID(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusTranscribed, got.Status)
	assert.Nil(t, got.ErrorMessage)

	// Unknown ids are swallowed; failure recording never fails the caller.
	require.NoError(t, store.MarkFailed(ctx, "missing", "whatever"))
}

func TestMarkFailedRecordsReason(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newVideo("vid-1", "owner-1", "owner-1/abc.mp4")))

	require.NoError(t, store.MarkFailed(ctx, "vid-1", "ffmpeg exploded"))
	got, err := store.GetByID(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "ffmpeg exploded", *got.ErrorMessage)
}

func TestListByOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newVideo("vid-1", "owner-1", "owner-1/a.mp4")))
	require.NoError(t, store.Create(ctx, newVideo("vid-2", "owner-1", "owner-1/b.mp4")))
	require.NoError(t, store.Create(ctx, newVideo("vid-3", "owner-2", "owner-2/c.mp4")))

	list, err := store.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	for _, v := range list {
		assert.Equal(t, "owner-1", v.OwnerID)
	}
}
