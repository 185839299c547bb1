package index

import "golang.org/x/xerrors"

var (
	// ErrNotFound is returned by registry lookups for values or IDs that
	// have not been registered.
	ErrNotFound = xerrors.New("not found")

	// ErrDuplicateIngestion is returned when attempting to record the
	// occurrences of a document that has already been indexed.
	ErrDuplicateIngestion = xerrors.New("document has already been indexed")

	// ErrInvalidPosition is returned when attempting to record an
	// occurrence with a negative position.
	ErrInvalidPosition = xerrors.New("occurrence position must be non-negative")
)
