package stats_test

import (
	"testing"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/stats"
	"github.com/crawlrank/crawlrank/store/memory"
	gc "gopkg.in/check.v1"
)

var (
	_ = gc.Suite(new(ReporterTestSuite))

	_ stats.Source = (*memory.InMemoryStore)(nil)
)

func Test(t *testing.T) { gc.TestingT(t) }

type ReporterTestSuite struct {
	store    *memory.InMemoryStore
	reporter *stats.Reporter
}

func (s *ReporterTestSuite) SetUpTest(c *gc.C) {
	s.store = memory.NewInMemoryStore()
	s.reporter = stats.NewReporter(s.store)

	a := s.indexDoc(c, "http://a.example.com/1", "go", "go", "gopher")
	b := s.indexDoc(c, "http://a.example.com/2", "gopher", "и")
	s.indexDoc(c, "https://b.example.com/", "rust")

	_, err := s.store.AddEdge(a, b)
	c.Assert(err, gc.IsNil)
}

func (s *ReporterTestSuite) TestCounts(c *gc.C) {
	counts, err := s.reporter.Counts()
	c.Assert(err, gc.IsNil)
	c.Assert(counts, gc.DeepEquals, stats.Counts{Documents: 3, Terms: 4, Occurrences: 6, Edges: 1})
}

func (s *ReporterTestSuite) TestTopDomains(c *gc.C) {
	domains, err := s.reporter.TopDomains(0)
	c.Assert(err, gc.IsNil)
	c.Assert(domains, gc.DeepEquals, []stats.DomainCount{
		{Domain: "a.example.com", Documents: 2},
		{Domain: "b.example.com", Documents: 1},
	})

	domains, err = s.reporter.TopDomains(1)
	c.Assert(err, gc.IsNil)
	c.Assert(domains, gc.HasLen, 1)
}

func (s *ReporterTestSuite) TestTopTermsSkipsFilteredTerms(c *gc.C) {
	terms, err := s.reporter.TopTerms(2)
	c.Assert(err, gc.IsNil)
	c.Assert(terms, gc.DeepEquals, []stats.TermCount{
		{Term: "go", Count: 2},
		{Term: "gopher", Count: 2},
	})
}

func (s *ReporterTestSuite) TestSummarize(c *gc.C) {
	summary, err := s.reporter.Summarize(10)
	c.Assert(err, gc.IsNil)
	c.Assert(summary.Counts.Documents, gc.Equals, 3)
	c.Assert(summary.TopDomains, gc.HasLen, 2)
	c.Assert(summary.TopTerms, gc.HasLen, 3)
}

func (s *ReporterTestSuite) indexDoc(c *gc.C, url string, tokens ...string) int64 {
	docID, err := s.store.ResolveOrCreate(index.KindDocument, url)
	c.Assert(err, gc.IsNil)

	batch := make([]index.Occurrence, len(tokens))
	for pos, tok := range tokens {
		termID, err := s.store.ResolveOrCreate(index.KindTerm, tok)
		c.Assert(err, gc.IsNil)
		if tok == "и" {
			c.Assert(s.store.MarkFiltered(termID), gc.IsNil)
		}
		batch[pos] = index.Occurrence{TermID: termID, Position: pos}
	}
	c.Assert(s.store.RecordBatch(docID, batch), gc.IsNil)
	return docID
}
