package main

import (
	"context"
	"io/ioutil"
	"strings"

	"github.com/crawlrank/crawlrank/store/memory"
	"github.com/sirupsen/logrus"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(ComponentsTestSuite))

type ComponentsTestSuite struct {
	store *memory.InMemoryStore
}

func (s *ComponentsTestSuite) SetUpSuite(c *gc.C) {
	logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
}

func (s *ComponentsTestSuite) SetUpTest(c *gc.C) {
	s.store = memory.NewInMemoryStore()

	cmp := s.components(c, 0)
	defer func() { c.Assert(cmp.calculator.Close(), gc.IsNil) }()

	docs := map[string]string{
		"https://example.com/a": strings.Repeat("the cat sat on the mat ", 20),
		"https://example.com/b": "a dog and the cat " + strings.Repeat("the ", 30),
		"https://example.com/c": strings.Repeat("cat ", 10) + "the the the",
	}
	for url, text := range docs {
		_, err := cmp.ingester.IngestDocument(context.TODO(), url, strings.Fields(text))
		c.Assert(err, gc.IsNil)
	}
	_, err := cmp.ingester.IngestLink(context.TODO(), "https://example.com/a", "https://example.com/c", nil)
	c.Assert(err, gc.IsNil)
}

func (s *ComponentsTestSuite) TestMatcherHonorsCombinationCap(c *gc.C) {
	cmp := s.components(c, 10)
	defer func() { c.Assert(cmp.calculator.Close(), gc.IsNil) }()

	rows, _, err := cmp.matcher.Match("the the the")
	c.Assert(err, gc.IsNil)
	c.Assert(rows, gc.HasLen, 30, gc.Commentf("expected 10 rows for each of the 3 documents"))

	perDoc := make(map[int64]int)
	for _, row := range rows {
		perDoc[row.DocumentID]++
	}
	for docID, count := range perDoc {
		c.Assert(count, gc.Equals, 10, gc.Commentf("document %d", docID))
	}
}

func (s *ComponentsTestSuite) TestCombinationCapKeepsRanking(c *gc.C) {
	capped := s.components(c, 1)
	defer func() { c.Assert(capped.calculator.Close(), gc.IsNil) }()
	uncapped := s.components(c, 0)
	defer func() { c.Assert(uncapped.calculator.Close(), gc.IsNil) }()

	_, err := uncapped.calculator.Recompute(context.TODO(), 0, 0)
	c.Assert(err, gc.IsNil)

	for _, text := range []string{"the cat", "cat the the", "the the the"} {
		want, err := uncapped.ranker.Rank(context.TODO(), text)
		c.Assert(err, gc.IsNil)
		got, err := capped.ranker.Rank(context.TODO(), text)
		c.Assert(err, gc.IsNil)
		c.Assert(got, gc.DeepEquals, want, gc.Commentf("query %q", text))
	}
}

func (s *ComponentsTestSuite) TestDefaultCombinationCapEnabled(c *gc.C) {
	c.Assert(defaultMaxCombinations > 0, gc.Equals, true)

	var found bool
	for _, flag := range makeApp().Flags {
		if flag.GetName() == "max-combinations" {
			found = true
		}
	}
	c.Assert(found, gc.Equals, true, gc.Commentf("max-combinations flag is not registered"))
}

func (s *ComponentsTestSuite) components(c *gc.C, maxCombinations int) *components {
	cmp, err := newComponents(s.store, componentOptions{
		Iterations:      5,
		DampingFactor:   0.85,
		NumWorkers:      2,
		MaxCombinations: maxCombinations,
	})
	c.Assert(err, gc.IsNil)
	return cmp
}
