package parser

import "errors"

// Sentinel errors shared across subsystems. Callers classify failures
// with errors.Is; the descriptive text wrapped around them is what ends
// up on a failed job record.
var (
	// ErrInvalidInput means the caller supplied neither or both of
	// raw text and an artifact. Surfaced synchronously; no job exists.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means the job id is unknown to the ledger.
	ErrNotFound = errors.New("job not found")

	// ErrTerminalState means a terminal job was asked to transition again.
	ErrTerminalState = errors.New("job already in terminal state")

	// ErrUnsupportedFormat means the extractor cannot handle the MIME type.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrCorruptDocument means the document bytes could not be parsed.
	ErrCorruptDocument = errors.New("corrupt document")

	// ErrRateLimited means the analysis engine rejected the call.
	ErrRateLimited = errors.New("analysis engine rate limited")

	// ErrInvalidResponse means the analysis engine returned an
	// unusable payload.
	ErrInvalidResponse = errors.New("invalid analysis response")

	// ErrStorageDisabled is the sentinel returned by a content store
	// that is administratively disabled. Never fatal to a job.
	ErrStorageDisabled = errors.New("content storage disabled")
)
