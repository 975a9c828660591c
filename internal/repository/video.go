package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/ClipScribe/internal/model"
)

const uniqueViolation = "23505"

// VideoRepository wraps all SQL used throughout the API and worker. Lifecycle
// transitions are conditional UPDATEs keyed on the current status, so the
// check and the write are a single atomic statement even with workers running
// in separate processes.
type VideoRepository struct {
	pool *pgxpool.Pool
}

// NewVideoRepository constructs a repository.
func NewVideoRepository(pool *pgxpool.Pool) *VideoRepository {
	return &VideoRepository{pool: pool}
}

// Create inserts a PENDING video after a presigned upload URL was issued.
func (r *VideoRepository) Create(ctx context.Context, v *model.Video) error {
	now := time.Now().UTC()
	v.Status = model.StatusPending
	v.CreatedAt = now
	v.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO videos (id, owner_id, storage_key, bucket, original_name, status, transcript, output_key, error_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, v.ID, v.OwnerID, v.StorageKey, v.Bucket, v.OriginalName, v.Status, "", nil, nil, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert video: %w", model.ErrDuplicateKey)
		}
		return fmt.Errorf("insert video: %v: %w", err, model.ErrPersistence)
	}
	return nil
}

// GetByIDAndOwner returns a video only when it exists and belongs to ownerID.
// A mismatch is indistinguishable from a missing record.
func (r *VideoRepository) GetByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Video, error) {
	return r.get(ctx, `
		SELECT id, owner_id, storage_key, bucket, original_name, status, COALESCE(transcript,''), output_key, error_message, created_at, updated_at
		FROM videos WHERE id=$1 AND owner_id=$2
	`, id, ownerID)
}

// GetByID is the worker-side read; the owner is re-derived from the record,
// never taken from the job payload.
func (r *VideoRepository) GetByID(ctx context.Context, id string) (*model.Video, error) {
	return r.get(ctx, `
		SELECT id, owner_id, storage_key, bucket, original_name, status, COALESCE(transcript,''), output_key, error_message, created_at, updated_at
		FROM videos WHERE id=$1
	`, id)
}

func (r *VideoRepository) get(ctx context.Context, query string, args ...any) (*model.Video, error) {
	var (
		v         model.Video
		outputKey sql.NullString
		errorMsg  sql.NullString
	)
	row := r.pool.QueryRow(ctx, query, args...)
	if err := row.Scan(&v.ID, &v.OwnerID, &v.StorageKey, &v.Bucket, &v.OriginalName, &v.Status, &v.Transcript, &outputKey, &errorMsg, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select video: %v: %w", err, model.ErrPersistence)
	}
	if outputKey.Valid {
		key := outputKey.String
		v.OutputKey = &key
	}
	if errorMsg.Valid {
		msg := errorMsg.String
		v.ErrorMessage = &msg
	}
	return &v, nil
}

// ListByOwner returns all videos for one owner, newest first.
func (r *VideoRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Video, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, storage_key, bucket, original_name, status, COALESCE(transcript,''), output_key, error_message, created_at, updated_at
		FROM videos WHERE owner_id=$1 ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list videos: %v: %w", err, model.ErrPersistence)
	}
	defer rows.Close()
	var out []model.Video
	for rows.Next() {
		var (
			v         model.Video
			outputKey sql.NullString
			errorMsg  sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.StorageKey, &v.Bucket, &v.OriginalName, &v.Status, &v.Transcript, &outputKey, &errorMsg, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %v: %w", err, model.ErrPersistence)
		}
		if outputKey.Valid {
			key := outputKey.String
			v.OutputKey = &key
		}
		if errorMsg.Valid {
			msg := errorMsg.String
			v.ErrorMessage = &msg
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list videos: %v: %w", err, model.ErrPersistence)
	}
	return out, nil
}

// TransitionStatus moves a video from one status to another. The transition
// only happens when the stored status equals from; a lost race surfaces as
// ErrInvalidState.
func (r *VideoRepository) TransitionStatus(ctx context.Context, id string, from, to model.VideoStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE videos SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4
	`, to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("transition video: %v: %w", err, model.ErrPersistence)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionMiss(ctx, id)
	}
	return nil
}

// FinishProcessing records the transcript and optional output artifact and
// moves PROCESSING -> TRANSCRIBED in one statement.
func (r *VideoRepository) FinishProcessing(ctx context.Context, id, transcript string, outputKey *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE videos SET status=$1, transcript=$2, output_key=$3, error_message=NULL, updated_at=$4
		WHERE id=$5 AND status=$6
	`, model.StatusTranscribed, transcript, outputKey, time.Now().UTC(), id, model.StatusProcessing)
	if err != nil {
		return fmt.Errorf("finish video: %v: %w", err, model.ErrPersistence)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionMiss(ctx, id)
	}
	return nil
}

// MarkFailed records a terminal failure with its reason. Legal from any
// non-terminal state; marking an already-terminal video is a no-op so failure
// recording never breaks the caller's flow.
func (r *VideoRepository) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE videos SET status=$1, error_message=$2, updated_at=$3
		WHERE id=$4 AND status NOT IN ($5,$6)
	`, model.StatusFailed, reason, time.Now().UTC(), id, model.StatusTranscribed, model.StatusFailed)
	if err != nil {
		return fmt.Errorf("mark failed: %v: %w", err, model.ErrPersistence)
	}
	return nil
}

// Delete removes an owner's video row.
func (r *VideoRepository) Delete(ctx context.Context, id, ownerID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id=$1 AND owner_id=$2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete video: %v: %w", err, model.ErrPersistence)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// transitionMiss maps a zero-row conditional update to the right sentinel.
func (r *VideoRepository) transitionMiss(ctx context.Context, id string) error {
	var status model.VideoStatus
	row := r.pool.QueryRow(ctx, `SELECT status FROM videos WHERE id=$1`, id)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		return fmt.Errorf("select status: %v: %w", err, model.ErrPersistence)
	}
	return fmt.Errorf("video is %s: %w", status, model.ErrInvalidState)
}
