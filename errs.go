package sopp

import "errors"

// Sentinel errors returned by Store methods, wrapped with fmt.Errorf's
// %w so callers can errors.Is/As against them while a human-readable
// message still names the specific failure (the teacher's db.go does
// the same with ErrNotFound/ErrDBFull).
var (
	// ErrNotFound is returned when a lookup (term decode, named graph
	// existence check) targets something absent from the store.
	ErrNotFound = errors.New("sopp: not found")

	// ErrCorrupt signals that on-disk state failed an internal
	// consistency check: a dictionary entry without a matching index
	// entry, a key that does not decode to the expected shape.
	ErrCorrupt = errors.New("sopp: corrupt store")

	// ErrConflict is returned when a write transaction cannot commit
	// because of contention or a storage engine capacity limit.
	ErrConflict = errors.New("sopp: write conflict")

	// ErrResourceExceeded wraps limits.ResourceExceeded at the Store
	// boundary, for callers who only need to detect the category.
	ErrResourceExceeded = errors.New("sopp: resource exceeded")

	// ErrCancelled is returned when a query's caller-supplied
	// Cancellation context is cancelled before completion; an elapsed
	// Timeout is reported as ErrResourceExceeded instead.
	ErrCancelled = errors.New("sopp: cancelled")

	// ErrFeatureDisabled is returned when a request needs a feature
	// the store was not opened with, such as RDF-star term syntax.
	ErrFeatureDisabled = errors.New("sopp: feature disabled")

	// ErrStorage wraps an underlying storage engine I/O failure.
	ErrStorage = errors.New("sopp: storage I/O error")

	// ErrReadOnly is returned by write operations on a store opened
	// with OpenReadOnly.
	ErrReadOnly = errors.New("sopp: store is read-only")
)
