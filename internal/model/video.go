// Package model contains the video entity shared by the API and the worker.
package model

import "time"

// VideoStatus enumerates the lifecycle of a video from upload to transcript.
type VideoStatus string

const (
	// StatusPending means a presigned upload URL was issued but the client
	// has not confirmed the upload yet.
	StatusPending VideoStatus = "PENDING"
	// StatusCompleted means the object was verified present in storage.
	StatusCompleted VideoStatus = "COMPLETED"
	// StatusProcessing means a worker holds the video for transcription.
	StatusProcessing VideoStatus = "PROCESSING"
	// StatusTranscribed is the terminal success state.
	StatusTranscribed VideoStatus = "TRANSCRIBED"
	// StatusFailed is the terminal failure state.
	StatusFailed VideoStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s VideoStatus) Terminal() bool {
	return s == StatusTranscribed || s == StatusFailed
}

// Video represents one user-owned media asset. ID and OwnerID are UUID
// strings; StorageKey and Bucket never change after creation.
type Video struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"ownerId"`
	StorageKey   string      `json:"storageKey"`
	Bucket       string      `json:"bucket"`
	OriginalName string      `json:"originalName"`
	Status       VideoStatus `json:"status"`
	Transcript   string      `json:"transcript,omitempty"`
	OutputKey    *string     `json:"outputKey,omitempty"`
	ErrorMessage *string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// JobKind selects which pipeline a transcription job runs.
type JobKind string

const (
	KindTranscribe        JobKind = "TRANSCRIBE"
	KindTranscribeAndBurn JobKind = "TRANSCRIBE_AND_BURN"
)
