package sqlstore

import (
	"database/sql"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/linkgraph/graph"
	"golang.org/x/xerrors"
)

// documentIterator is an index.DocumentIterator implementation for the SQL
// store.
type documentIterator struct {
	rows       *sql.Rows
	lastErr    error
	latchedDoc *index.Document
}

// Next implements index.DocumentIterator.
func (i *documentIterator) Next() bool {
	if i.lastErr != nil || !i.rows.Next() {
		return false
	}

	d := new(index.Document)
	if i.lastErr = i.rows.Scan(&d.ID, &d.URL); i.lastErr != nil {
		return false
	}

	i.latchedDoc = d
	return true
}

// Error implements index.DocumentIterator.
func (i *documentIterator) Error() error {
	if i.lastErr != nil {
		return i.lastErr
	}
	return i.rows.Err()
}

// Close implements index.DocumentIterator.
func (i *documentIterator) Close() error {
	if err := i.rows.Close(); err != nil {
		return xerrors.Errorf("document iterator: %w", err)
	}
	return nil
}

// Document implements index.DocumentIterator.
func (i *documentIterator) Document() *index.Document {
	return i.latchedDoc
}

// edgeIterator is a graph.EdgeIterator implementation for the SQL store.
type edgeIterator struct {
	rows        *sql.Rows
	lastErr     error
	latchedEdge *graph.Edge
}

// Next implements graph.EdgeIterator.
func (i *edgeIterator) Next() bool {
	if i.lastErr != nil || !i.rows.Next() {
		return false
	}

	e := new(graph.Edge)
	if i.lastErr = i.rows.Scan(&e.ID, &e.Src, &e.Dst); i.lastErr != nil {
		return false
	}

	i.latchedEdge = e
	return true
}

// Error implements graph.EdgeIterator.
func (i *edgeIterator) Error() error {
	if i.lastErr != nil {
		return i.lastErr
	}
	return i.rows.Err()
}

// Close implements graph.EdgeIterator.
func (i *edgeIterator) Close() error {
	if err := i.rows.Close(); err != nil {
		return xerrors.Errorf("edge iterator: %w", err)
	}
	return nil
}

// Edge implements graph.EdgeIterator.
func (i *edgeIterator) Edge() *graph.Edge {
	return i.latchedEdge
}
