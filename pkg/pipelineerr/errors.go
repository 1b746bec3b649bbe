// Package pipelineerr defines the error taxonomy shared across the
// ingestion-to-retrieval pipeline. Callers classify failures with errors.Is
// so that document-level problems stay isolated while infrastructure-level
// problems abort a whole sync run.
package pipelineerr

import "errors"

var (
	// ErrConfiguration means required credentials or settings are missing.
	// Fatal, surfaced immediately, never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthentication means the access token is expired or invalid. One
	// refresh attempt is made; a second failure is final.
	ErrAuthentication = errors.New("authentication error")

	// ErrUnsupportedFormat marks a document whose type cannot be resolved.
	// Document-level: recorded and skipped.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrPayloadTooLarge marks an input exceeding the normalizer's size cap.
	// Document-level: recorded and skipped, never partially processed.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrTransientProvider marks a network or rate-limit failure from a
	// source provider. Retry with backoff belongs to the connector layer.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrIndexUnavailable means the vector index cannot be reached. This
	// fails the whole sync run: indexing without the index is meaningless.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrModelMismatch means the query embedding model differs from the one
	// the corpus was indexed with. Must trigger re-embedding, never a
	// silently degraded search.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrRefreshNotSupported is returned by providers whose tokens do not
	// expire. It is a declared condition, not an infrastructure failure.
	ErrRefreshNotSupported = errors.New("token refresh not supported by provider")

	// ErrNoContext signals that retrieval found no document above the score
	// threshold; the answer path reports this instead of fabricating.
	ErrNoContext = errors.New("no relevant context")
)
