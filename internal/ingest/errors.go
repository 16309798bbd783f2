package ingest

import "errors"

var (
	// ErrDownloadFailed means the uploaded audio could not be fetched or saved.
	ErrDownloadFailed = errors.New("download failed")
	// ErrIngestionTimeout means no audio reply arrived before the deadline.
	ErrIngestionTimeout = errors.New("ingestion timed out waiting for audio")
	// ErrKeyReserved means another in-flight ingestion holds the key.
	ErrKeyReserved = errors.New("meme key is already being ingested")
	// ErrAlreadyWaiting means the requester already has a pending prompt in
	// the conversation.
	ErrAlreadyWaiting = errors.New("an ingestion is already waiting for audio")
)

// ErrClosed means the pipeline is shutting down and accepts no new work.
var ErrClosed = errors.New("ingestion pipeline closed")
