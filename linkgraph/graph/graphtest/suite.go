package graphtest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/linkgraph/graph"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

// SuiteBase defines a re-usable set of graph-related tests that can
// be executed against any type that implements graph.Graph.
type SuiteBase struct {
	g   graph.Graph
	reg index.Registry
}

// SetGraph configures the test-suite to run all tests against g. Documents
// are registered through reg, which usually is the same store instance.
func (s *SuiteBase) SetGraph(g graph.Graph, reg index.Registry) {
	s.g = g
	s.reg = reg
}

// TestAddEdge verifies that edges are deduplicated per ordered pair.
func (s *SuiteBase) TestAddEdge(c *gc.C) {
	a, b := s.doc(c, "https://a.example.com"), s.doc(c, "https://b.example.com")

	ab, err := s.g.AddEdge(a, b)
	c.Assert(err, gc.IsNil)

	again, err := s.g.AddEdge(a, b)
	c.Assert(err, gc.IsNil)
	c.Assert(again, gc.Equals, ab, gc.Commentf("expected existing edge to be returned"))

	ba, err := s.g.AddEdge(b, a)
	c.Assert(err, gc.IsNil)
	c.Assert(ba, gc.Not(gc.Equals), ab, gc.Commentf("expected reverse edge to get its own ID"))

	count, err := s.g.EdgeCount()
	c.Assert(err, gc.IsNil)
	c.Assert(count, gc.Equals, 2)
}

// TestAddEdgeWithUnknownDocuments verifies that edges can only be created
// between registered documents.
func (s *SuiteBase) TestAddEdgeWithUnknownDocuments(c *gc.C) {
	a := s.doc(c, "https://a.example.com")

	_, err := s.g.AddEdge(a, a+1000)
	c.Assert(xerrors.Is(err, graph.ErrUnknownEdgeDocuments), gc.Equals, true, gc.Commentf("got %v", err))

	_, err = s.g.AddEdge(a+1000, a)
	c.Assert(xerrors.Is(err, graph.ErrUnknownEdgeDocuments), gc.Equals, true, gc.Commentf("got %v", err))
}

// TestEdgesIntoAndOutDegree verifies the neighbourhood queries used by the
// authority scoring engine.
func (s *SuiteBase) TestEdgesIntoAndOutDegree(c *gc.C) {
	a := s.doc(c, "https://a.example.com")
	b := s.doc(c, "https://b.example.com")
	cc := s.doc(c, "https://c.example.com")
	lonely := s.doc(c, "https://lonely.example.com")

	for _, e := range [][2]int64{{a, cc}, {b, cc}, {b, a}, {cc, cc}} {
		_, err := s.g.AddEdge(e[0], e[1])
		c.Assert(err, gc.IsNil)
	}
	// Duplicate edge; must not affect the counts below.
	_, err := s.g.AddEdge(a, cc)
	c.Assert(err, gc.IsNil)

	into, err := s.g.EdgesInto(cc)
	c.Assert(err, gc.IsNil)
	exp := []int64{a, b, cc}
	sort.Slice(exp, func(i, j int) bool { return exp[i] < exp[j] })
	c.Assert(into, gc.DeepEquals, exp)

	into, err = s.g.EdgesInto(lonely)
	c.Assert(err, gc.IsNil)
	c.Assert(into, gc.HasLen, 0)

	into, err = s.g.EdgesInto(lonely + 1000)
	c.Assert(err, gc.IsNil, gc.Commentf("expected unknown document to yield an empty result"))
	c.Assert(into, gc.HasLen, 0)

	for docID, expDegree := range map[int64]int{a: 1, b: 2, cc: 1, lonely: 0, lonely + 1000: 0} {
		degree, err := s.g.OutDegree(docID)
		c.Assert(err, gc.IsNil)
		c.Assert(degree, gc.Equals, expDegree, gc.Commentf("out degree for doc %d", docID))
	}
}

// TestAnchorTerms verifies that anchor terms are appended to edges.
func (s *SuiteBase) TestAnchorTerms(c *gc.C) {
	a, b := s.doc(c, "https://a.example.com"), s.doc(c, "https://b.example.com")
	edgeID, err := s.g.AddEdge(a, b)
	c.Assert(err, gc.IsNil)

	t1, t2 := s.term(c, "read"), s.term(c, "more")
	c.Assert(s.g.AddAnchorTerms(edgeID, []int64{t1, t2}), gc.IsNil)
	c.Assert(s.g.AddAnchorTerms(edgeID, []int64{t1}), gc.IsNil)

	got, err := s.g.AnchorTerms(edgeID)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.DeepEquals, []int64{t1, t2, t1})

	got, err = s.g.AnchorTerms(edgeID + 1000)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 0)

	err = s.g.AddAnchorTerms(edgeID+1000, []int64{t1})
	c.Assert(xerrors.Is(err, graph.ErrNotFound), gc.Equals, true, gc.Commentf("got %v", err))
}

// TestEdgeIterator verifies that the edge iterator visits each edge once.
func (s *SuiteBase) TestEdgeIterator(c *gc.C) {
	var docs []int64
	for i := 0; i < 10; i++ {
		docs = append(docs, s.doc(c, fmt.Sprintf("https://%d.example.com", i)))
	}

	exp := make(map[int64]graph.Edge)
	for i, src := range docs {
		for _, dst := range []int64{docs[(i+1)%len(docs)], docs[(i+3)%len(docs)]} {
			id, err := s.g.AddEdge(src, dst)
			c.Assert(err, gc.IsNil)
			exp[id] = graph.Edge{ID: id, Src: src, Dst: dst}
		}
	}

	it, err := s.g.Edges()
	c.Assert(err, gc.IsNil)

	seen := make(map[int64]graph.Edge)
	var lastSrc int64
	for it.Next() {
		edge := it.Edge()
		_, dup := seen[edge.ID]
		c.Assert(dup, gc.Equals, false, gc.Commentf("iterator returned edge %d twice", edge.ID))
		c.Assert(edge.Src >= lastSrc, gc.Equals, true, gc.Commentf("edges not ordered by source"))
		lastSrc = edge.Src
		seen[edge.ID] = *edge
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)
	c.Assert(seen, gc.DeepEquals, exp)
}

// TestConcurrentAddEdge verifies that concurrent insertions of the same edge
// resolve to a single edge.
func (s *SuiteBase) TestConcurrentAddEdge(c *gc.C) {
	a, b := s.doc(c, "https://a.example.com"), s.doc(c, "https://b.example.com")

	const numWorkers = 8
	var (
		wg  sync.WaitGroup
		ids = make([]int64, numWorkers)
	)
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(i int) {
			defer wg.Done()
			id, err := s.g.AddEdge(a, b)
			c.Check(err, gc.IsNil)
			ids[i] = id
		}(i)
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for test to complete")
	}

	for _, id := range ids {
		c.Assert(id, gc.Equals, ids[0])
	}
	degree, err := s.g.OutDegree(a)
	c.Assert(err, gc.IsNil)
	c.Assert(degree, gc.Equals, 1)
}

func (s *SuiteBase) doc(c *gc.C, url string) int64 {
	id, err := s.reg.ResolveOrCreate(index.KindDocument, url)
	c.Assert(err, gc.IsNil)
	return id
}

func (s *SuiteBase) term(c *gc.C, text string) int64 {
	id, err := s.reg.ResolveOrCreate(index.KindTerm, text)
	c.Assert(err, gc.IsNil)
	return id
}
