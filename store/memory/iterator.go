package memory

import (
	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/linkgraph/graph"
)

// documentIterator is an index.DocumentIterator implementation for the
// in-memory store.
type documentIterator struct {
	s *InMemoryStore

	docs     []*index.Document
	curIndex int
}

// Next implements index.DocumentIterator.
func (i *documentIterator) Next() bool {
	if i.curIndex >= len(i.docs) {
		return false
	}
	i.curIndex++
	return true
}

// Error implements index.DocumentIterator.
func (i *documentIterator) Error() error {
	return nil
}

// Close implements index.DocumentIterator.
func (i *documentIterator) Close() error {
	return nil
}

// Document implements index.DocumentIterator.
func (i *documentIterator) Document() *index.Document {
	i.s.mu.RLock()
	doc := new(index.Document)
	*doc = *i.docs[i.curIndex-1]
	i.s.mu.RUnlock()
	return doc
}

// edgeIterator is a graph.EdgeIterator implementation for the in-memory
// store. Edges are immutable once created so no locking is required.
type edgeIterator struct {
	edges    []*graph.Edge
	curIndex int
}

// Next implements graph.EdgeIterator.
func (i *edgeIterator) Next() bool {
	if i.curIndex >= len(i.edges) {
		return false
	}
	i.curIndex++
	return true
}

// Error implements graph.EdgeIterator.
func (i *edgeIterator) Error() error {
	return nil
}

// Close implements graph.EdgeIterator.
func (i *edgeIterator) Close() error {
	return nil
}

// Edge implements graph.EdgeIterator.
func (i *edgeIterator) Edge() *graph.Edge {
	edge := new(graph.Edge)
	*edge = *i.edges[i.curIndex-1]
	return edge
}
