package core

import "errors"

// Sentinel errors shared across the pipeline. Callers match them with
// errors.Is; store and adapter implementations wrap them with context.
var (
	// ErrNotFound is returned when a document, job, folder or scan session
	// does not exist in the store.
	ErrNotFound = errors.New("record not found")

	// ErrNoFilesFound is returned when an ingestion target folder contains
	// no files at all.
	ErrNoFilesFound = errors.New("no files found in folder")

	// ErrInvalidTransition is returned when a guarded status update matched
	// no row, meaning the document is not in a state the transition allows.
	ErrInvalidTransition = errors.New("invalid document status transition")

	// ErrUnsupportedFormat is returned when no extractor handles a file's
	// MIME type.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument is returned when extraction yields no usable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// IsPermanent reports whether err can never succeed on retry, so the
// document should be failed immediately instead of re-queued. Everything
// else (network, storage, model timeouts) is treated as transient.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrEmptyDocument) ||
		errors.Is(err, ErrNotFound)
}
