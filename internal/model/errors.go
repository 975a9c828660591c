package model

import "errors"

// Sentinel errors shared across layers. Handlers translate these to HTTP
// status codes; everything else wraps them with fmt.Errorf and %w.
var (
	// ErrUnsupportedMediaType rejects uploads whose extension is not on the
	// allow-list. Raised before any storage or registry call.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrNotFound covers both a missing record and a record owned by someone
	// else, so callers cannot probe for other users' assets.
	ErrNotFound = errors.New("video not found")

	// ErrInvalidState signals an illegal lifecycle transition, including a
	// lost claim race on COMPLETED -> PROCESSING.
	ErrInvalidState = errors.New("invalid video state")

	// ErrUploadNotVerified means the object is not present in storage yet;
	// the record stays PENDING and the client may retry.
	ErrUploadNotVerified = errors.New("upload not verified")

	// ErrStorageUnavailable wraps transport or credential failures from the
	// object-storage provider. Distinct from "object missing".
	ErrStorageUnavailable = errors.New("object storage unavailable")

	// ErrDuplicateKey guards the storage_key uniqueness invariant. Key
	// generation makes collisions practically impossible; the repository
	// still checks.
	ErrDuplicateKey = errors.New("storage key already exists")

	// ErrPersistence wraps database failures.
	ErrPersistence = errors.New("persistence failure")

	// ErrToolFailure marks a non-zero exit or timeout from an external
	// media tool.
	ErrToolFailure = errors.New("media tool failed")

	// ErrTranscriptionFailure normalizes provider errors from the
	// transcription API.
	ErrTranscriptionFailure = errors.New("transcription failed")
)
