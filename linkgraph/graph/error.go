package graph

import "golang.org/x/xerrors"

var (
	// ErrNotFound is returned when an edge lookup fails.
	ErrNotFound = xerrors.New("not found")

	// ErrUnknownEdgeDocuments is returned when attempting to create an edge
	// with an unregistered source and/or destination document.
	ErrUnknownEdgeDocuments = xerrors.New("unknown source and/or destination document for edge")
)
