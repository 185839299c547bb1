package graph

// Iterator is implemented by graph objects that can be iterated.
type Iterator interface {
	// Next advances the iterator. If no more items are available or an
	// error occurs, calls to Next() return false.
	Next() bool

	// Error returns the last error encountered by the iterator.
	Error() error

	// Close releases any resources associated with an iterator.
	Close() error
}

// EdgeIterator is implemented by objects that can iterate the graph edges.
type EdgeIterator interface {
	Iterator

	// Edge returns the currently fetched edge object.
	Edge() *Edge
}

// Edge describes a hyperlink from the document with ID Src to the document
// with ID Dst.
type Edge struct {
	// A unique identifier for the edge.
	ID int64

	// The linking document.
	Src int64

	// The linked document.
	Dst int64
}

// Graph is implemented by objects that can mutate or query the link graph
// between registered documents.
type Graph interface {
	// AddEdge returns the ID of the edge from src to dst, creating it if
	// it does not exist yet.
	AddEdge(src, dst int64) (int64, error)

	// AddAnchorTerms associates the terms of a link's anchor text with an
	// edge.
	AddAnchorTerms(edgeID int64, termIDs []int64) error

	// AnchorTerms returns the anchor term IDs recorded for an edge in
	// insertion order.
	AnchorTerms(edgeID int64) ([]int64, error)

	// EdgesInto returns the distinct IDs of the documents linking to
	// docID in ascending order.
	EdgesInto(docID int64) ([]int64, error)

	// OutDegree returns the number of edges originating from docID.
	OutDegree(docID int64) (int, error)

	// Edges returns an iterator for every edge in the graph ordered by
	// source ID.
	Edges() (EdgeIterator, error)

	// EdgeCount returns the number of edges in the graph.
	EdgeCount() (int, error)
}
