package pipeline

import "errors"

// Error kinds. Fatal errors abort the run through the single reset path in
// Run; per-row problems are recorded in the result instead.
var (
	// ErrPayloadInvalid marks a malformed invocation. Nothing was mutated.
	ErrPayloadInvalid = errors.New("invalid payload")

	// ErrNotFound marks a missing document row or missing primary object.
	ErrNotFound = errors.New("not found")

	// ErrEngine marks a PDF engine failure on corrupt or unsupported content.
	ErrEngine = errors.New("pdf engine error")

	// ErrStore marks an object-store failure.
	ErrStore = errors.New("object store error")

	// ErrMeta marks a metadata database failure.
	ErrMeta = errors.New("metadata store error")

	// ErrDeadline marks an abort because the remaining wall-clock budget
	// dropped under the safety margin.
	ErrDeadline = errors.New("deadline exceeded")

	// ErrBusy marks a document already claimed by another run and not yet
	// past the recovery window.
	ErrBusy = errors.New("document already in workman")
)
