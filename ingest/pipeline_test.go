package ingest_test

import (
	"context"
	"strings"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/ingest"
	"github.com/crawlrank/crawlrank/store/memory"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(PipelineTestSuite))

type PipelineTestSuite struct {
	store    *memory.InMemoryStore
	pipeline *ingest.Pipeline
}

func (s *PipelineTestSuite) SetUpTest(c *gc.C) {
	s.store = memory.NewInMemoryStore()

	ing, err := ingest.NewIngester(ingest.Config{
		Registry: s.store,
		Index:    s.store,
		Graph:    s.store,
	})
	c.Assert(err, gc.IsNil)
	s.pipeline = ingest.NewPipeline(ing, 4)
}

func (s *PipelineTestSuite) TestProcessJSONLines(c *gc.C) {
	input := strings.Join([]string{
		`{"kind":"document","url":"http://a","tokens":["go","rocks"]}`,
		`{"kind":"document","url":"http://b","tokens":["go"]}`,
		`{"kind":"link","from":"http://a","to":"http://b","anchor":["go"]}`,
		`{"kind":"link","from":"http://b","to":"http://c"}`,
	}, "\n")

	stats, err := s.pipeline.Process(context.TODO(), ingest.NewJSONLinesSource(strings.NewReader(input)))
	c.Assert(err, gc.IsNil)
	c.Assert(stats, gc.DeepEquals, ingest.Stats{Documents: 2, Links: 2})

	counts, err := s.store.Counts()
	c.Assert(err, gc.IsNil)
	c.Assert(counts, gc.DeepEquals, index.Counts{Documents: 3, Terms: 2, Occurrences: 3})

	edges, err := s.store.EdgeCount()
	c.Assert(err, gc.IsNil)
	c.Assert(edges, gc.Equals, 2)
}

func (s *PipelineTestSuite) TestDuplicatesAreSkipped(c *gc.C) {
	recs := []*ingest.Record{
		{Kind: ingest.RecordDocument, URL: "http://a", Tokens: []string{"one"}},
		{Kind: ingest.RecordDocument, URL: "http://a", Tokens: []string{"one"}},
		{Kind: ingest.RecordDocument, URL: "http://a", Tokens: []string{"one"}},
	}

	stats, err := s.pipeline.Process(context.TODO(), ingest.NewSliceSource(recs))
	c.Assert(err, gc.IsNil)
	c.Assert(stats, gc.DeepEquals, ingest.Stats{Documents: 1, Duplicates: 2})
}

func (s *PipelineTestSuite) TestUnsupportedRecordKind(c *gc.C) {
	recs := []*ingest.Record{{Kind: "bogus"}}

	_, err := s.pipeline.Process(context.TODO(), ingest.NewSliceSource(recs))
	c.Assert(err, gc.ErrorMatches, `(?ms).*unsupported record kind "bogus".*`)
}

func (s *PipelineTestSuite) TestMalformedInput(c *gc.C) {
	src := ingest.NewJSONLinesSource(strings.NewReader(`{"kind":`))

	_, err := s.pipeline.Process(context.TODO(), src)
	c.Assert(err, gc.ErrorMatches, `(?ms).*ingest source: decode record.*`)
}
