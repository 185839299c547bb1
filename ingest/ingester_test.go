package ingest_test

import (
	"context"
	"testing"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/ingest"
	"github.com/crawlrank/crawlrank/store/memory"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(IngesterTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type IngesterTestSuite struct {
	store *memory.InMemoryStore
	ing   *ingest.Ingester
}

func (s *IngesterTestSuite) SetUpTest(c *gc.C) {
	s.store = memory.NewInMemoryStore()

	var err error
	s.ing, err = ingest.NewIngester(ingest.Config{
		Registry: s.store,
		Index:    s.store,
		Graph:    s.store,
	})
	c.Assert(err, gc.IsNil)
}

func (s *IngesterTestSuite) TestConfigValidation(c *gc.C) {
	_, err := ingest.NewIngester(ingest.Config{})
	c.Assert(err, gc.ErrorMatches, "(?ms).*registry has not been provided.*occurrence index has not been provided.*link graph has not been provided.*")
}

func (s *IngesterTestSuite) TestIngestDocumentRecordsPositions(c *gc.C) {
	docID, err := s.ing.IngestDocument(context.TODO(), "http://a", []string{"Go", "", "is", "GO"})
	c.Assert(err, gc.IsNil)

	goID, err := s.store.Lookup(index.KindTerm, "go")
	c.Assert(err, gc.IsNil)
	isID, err := s.store.Lookup(index.KindTerm, "is")
	c.Assert(err, gc.IsNil)

	// The blank token is skipped but still consumes a position.
	occs, err := s.store.OccurrencesFor(docID)
	c.Assert(err, gc.IsNil)
	c.Assert(occs, gc.DeepEquals, []index.Occurrence{
		{TermID: goID, DocumentID: docID, Position: 0},
		{TermID: isID, DocumentID: docID, Position: 2},
		{TermID: goID, DocumentID: docID, Position: 3},
	})
}

func (s *IngesterTestSuite) TestIngestDocumentTwice(c *gc.C) {
	docID, err := s.ing.IngestDocument(context.TODO(), "http://a", []string{"alpha"})
	c.Assert(err, gc.IsNil)
	before, err := s.store.Counts()
	c.Assert(err, gc.IsNil)

	again, err := s.ing.IngestDocument(context.TODO(), "http://a", []string{"beta", "gamma"})
	c.Assert(xerrors.Is(err, index.ErrDuplicateIngestion), gc.Equals, true)
	c.Assert(again, gc.Equals, docID)

	after, err := s.store.Counts()
	c.Assert(err, gc.IsNil)
	c.Assert(after, gc.DeepEquals, before)

	_, err = s.store.Lookup(index.KindTerm, "beta")
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true)
}

func (s *IngesterTestSuite) TestFilteredTerms(c *gc.C) {
	_, err := s.ing.IngestDocument(context.TODO(), "http://a", []string{"кот", "и", "пёс", "И"})
	c.Assert(err, gc.IsNil)

	conjID, err := s.store.Lookup(index.KindTerm, "и")
	c.Assert(err, gc.IsNil)
	term, err := s.store.FindTerm(conjID)
	c.Assert(err, gc.IsNil)
	c.Assert(term.Filtered, gc.Equals, true)

	top, err := s.store.TopTerms(0)
	c.Assert(err, gc.IsNil)
	c.Assert(top, gc.DeepEquals, []index.TermFrequency{
		{Term: "кот", Count: 1},
		{Term: "пёс", Count: 1},
	})
}

func (s *IngesterTestSuite) TestCustomFilteredTerms(c *gc.C) {
	ing, err := ingest.NewIngester(ingest.Config{
		Registry:      s.store,
		Index:         s.store,
		Graph:         s.store,
		FilteredTerms: []string{},
	})
	c.Assert(err, gc.IsNil)

	_, err = ing.IngestDocument(context.TODO(), "http://a", []string{"и"})
	c.Assert(err, gc.IsNil)

	top, err := s.store.TopTerms(0)
	c.Assert(err, gc.IsNil)
	c.Assert(top, gc.DeepEquals, []index.TermFrequency{{Term: "и", Count: 1}})
}

func (s *IngesterTestSuite) TestIngestLink(c *gc.C) {
	srcID, err := s.ing.IngestDocument(context.TODO(), "http://a", []string{"alpha"})
	c.Assert(err, gc.IsNil)

	edgeID, err := s.ing.IngestLink(context.TODO(), "http://a", "http://b", []string{"Read", "more"})
	c.Assert(err, gc.IsNil)

	// The link target is registered even though it was never crawled.
	dstID, err := s.store.Lookup(index.KindDocument, "http://b")
	c.Assert(err, gc.IsNil)

	inbound, err := s.store.EdgesInto(dstID)
	c.Assert(err, gc.IsNil)
	c.Assert(inbound, gc.DeepEquals, []int64{srcID})

	// Repeated links reuse the edge and append their anchor terms.
	again, err := s.ing.IngestLink(context.TODO(), "http://a", "http://b", []string{"here"})
	c.Assert(err, gc.IsNil)
	c.Assert(again, gc.Equals, edgeID)

	anchors, err := s.store.AnchorTerms(edgeID)
	c.Assert(err, gc.IsNil)
	var texts []string
	for _, termID := range anchors {
		term, err := s.store.FindTerm(termID)
		c.Assert(err, gc.IsNil)
		texts = append(texts, term.Text)
	}
	c.Assert(texts, gc.DeepEquals, []string{"read", "more", "here"})

	outDeg, err := s.store.OutDegree(srcID)
	c.Assert(err, gc.IsNil)
	c.Assert(outDeg, gc.Equals, 1)
}

func (s *IngesterTestSuite) TestIngestLinkWithoutAnchor(c *gc.C) {
	edgeID, err := s.ing.IngestLink(context.TODO(), "http://a", "http://b", nil)
	c.Assert(err, gc.IsNil)

	anchors, err := s.store.AnchorTerms(edgeID)
	c.Assert(err, gc.IsNil)
	c.Assert(anchors, gc.HasLen, 0)
}

func (s *IngesterTestSuite) TestCancelledContext(c *gc.C) {
	ctx, cancelFn := context.WithCancel(context.TODO())
	cancelFn()

	_, err := s.ing.IngestDocument(ctx, "http://a", []string{"alpha"})
	c.Assert(xerrors.Is(err, context.Canceled), gc.Equals, true)
}
