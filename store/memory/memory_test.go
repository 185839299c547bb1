package memory

import (
	"testing"

	"github.com/crawlrank/crawlrank/index/indextest"
	"github.com/crawlrank/crawlrank/linkgraph/graph/graphtest"
	gc "gopkg.in/check.v1"
)

var (
	_ = gc.Suite(new(InMemoryIndexTestSuite))
	_ = gc.Suite(new(InMemoryGraphTestSuite))
)

func Test(t *testing.T) { gc.TestingT(t) }

type InMemoryIndexTestSuite struct {
	indextest.SuiteBase
}

func (s *InMemoryIndexTestSuite) SetUpTest(c *gc.C) {
	s.SetIndexer(NewInMemoryStore())
}

type InMemoryGraphTestSuite struct {
	graphtest.SuiteBase
}

func (s *InMemoryGraphTestSuite) SetUpTest(c *gc.C) {
	store := NewInMemoryStore()
	s.SetGraph(store, store)
}
