package authority

import (
	"context"
	"math"
	"testing"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/store/memory"
	gc "gopkg.in/check.v1"
)

var (
	_ = gc.Suite(new(ConfigTestSuite))
	_ = gc.Suite(new(CalculatorTestSuite))
)

func Test(t *testing.T) { gc.TestingT(t) }

type ConfigTestSuite struct{}

func (s *ConfigTestSuite) TestConfigValidation(c *gc.C) {
	store := memory.NewInMemoryStore()
	origCfg := Config{
		Documents: store,
		Edges:     store,
		Scores:    store,
	}

	cfg := origCfg
	c.Assert(cfg.validate(), gc.IsNil)
	c.Assert(cfg.Iterations, gc.Equals, DefaultIterations)
	c.Assert(cfg.DampingFactor, gc.Equals, DefaultDampingFactor)
	c.Assert(cfg.ComputeWorkers, gc.Equals, 1)
	c.Assert(cfg.Logger, gc.Not(gc.IsNil), gc.Commentf("default logger was not assigned"))

	cfg = origCfg
	cfg.Documents = nil
	c.Assert(cfg.validate(), gc.ErrorMatches, "(?ms).*document source has not been provided.*")

	cfg = origCfg
	cfg.Edges = nil
	c.Assert(cfg.validate(), gc.ErrorMatches, "(?ms).*edge source has not been provided.*")

	cfg = origCfg
	cfg.Scores = nil
	c.Assert(cfg.validate(), gc.ErrorMatches, "(?ms).*score sink has not been provided.*")

	cfg = origCfg
	cfg.Iterations = -1
	c.Assert(cfg.validate(), gc.ErrorMatches, "(?ms).*iterations must not be negative.*")

	cfg = origCfg
	cfg.DampingFactor = 1.5
	c.Assert(cfg.validate(), gc.ErrorMatches, "(?ms).*damping factor must be in the range.*")
}

type CalculatorTestSuite struct {
	store *memory.InMemoryStore
	calc  *Calculator
}

func (s *CalculatorTestSuite) SetUpTest(c *gc.C) {
	s.store = memory.NewInMemoryStore()

	calc, err := NewCalculator(Config{
		Documents:      s.store,
		Edges:          s.store,
		Scores:         s.store,
		ComputeWorkers: 4,
	})
	c.Assert(err, gc.IsNil)
	s.calc = calc
}

func (s *CalculatorTestSuite) TearDownTest(c *gc.C) {
	c.Assert(s.calc.Close(), gc.IsNil)
}

func (s *CalculatorTestSuite) TestCycleIsFixedPoint(c *gc.C) {
	c.Log(`
 (A) -> (B) -> (C)
  ^             |
  +-------------+

Each document receives exactly one full share so every score stays at 1.0.
`)
	ids := s.addDocs(c, "A", "B", "C")
	s.addEdges(c, ids, "A", "B", "B", "C", "C", "A")

	res, err := s.calc.Recompute(context.TODO(), 0, 0)
	c.Assert(err, gc.IsNil)
	c.Assert(res.Documents, gc.Equals, 3)
	c.Assert(res.Edges, gc.Equals, 3)
	c.Assert(res.Iterations, gc.Equals, 5)
	c.Assert(res.DampingFactor, gc.Equals, 0.85)
	c.Assert(math.Abs(res.MaxRawScore-1.0) < 1e-12, gc.Equals, true)

	scores, err := s.store.Scores([]int64{ids["A"], ids["B"], ids["C"]})
	c.Assert(err, gc.IsNil)
	c.Assert(scores, gc.DeepEquals, map[int64]float64{ids["A"]: 1.0, ids["B"]: 1.0, ids["C"]: 1.0})
}

func (s *CalculatorTestSuite) TestScoresMatchSnapshotUpdates(c *gc.C) {
	cases := []struct {
		descr string
		docs  []string
		edges []string
	}{
		{
			descr: "back-link between B and C",
			docs:  []string{"A", "B", "C"},
			edges: []string{"A", "B", "B", "C", "C", "A", "C", "B"},
		},
		{
			descr: "dead-end at C and an isolated document D",
			docs:  []string{"A", "B", "C", "D"},
			edges: []string{"A", "B", "B", "C"},
		},
		{
			descr: "self link and a hub",
			docs:  []string{"A", "B", "C", "D", "E"},
			edges: []string{"A", "A", "A", "E", "B", "E", "C", "E", "D", "E", "E", "A"},
		},
	}

	for _, tc := range cases {
		c.Logf("case: %s", tc.descr)
		c.Assert(s.calc.Close(), gc.IsNil)
		s.SetUpTest(c)

		ids := s.addDocs(c, tc.docs...)
		s.addEdges(c, ids, tc.edges...)

		for _, iterations := range []int{1, 2, 5, 20} {
			_, err := s.calc.Recompute(context.TODO(), iterations, 0.85)
			c.Assert(err, gc.IsNil)

			exp := referenceScores(ids, tc.edges, iterations, 0.85)
			got, err := s.store.Scores(docIDs(ids))
			c.Assert(err, gc.IsNil)
			c.Assert(got, gc.HasLen, len(exp))

			var maxScore float64
			for name, id := range ids {
				c.Assert(math.Abs(got[id]-exp[name]) < 1e-9, gc.Equals, true,
					gc.Commentf("iterations %d: expected score for %s to be %f; got %f", iterations, name, exp[name], got[id]))
				maxScore = math.Max(maxScore, got[id])
			}
			c.Assert(math.Abs(maxScore-1.0) < 1e-12, gc.Equals, true, gc.Commentf("max score %f", maxScore))
		}
	}
}

func (s *CalculatorTestSuite) TestVertexOrderDoesNotAffectScores(c *gc.C) {
	docs := []int64{1, 2, 3, 4, 5, 6}
	edges := [][2]int64{
		{1, 2}, {1, 3}, {2, 3}, {3, 1}, {4, 3}, {4, 5}, {5, 4}, {6, 1}, {6, 2}, {6, 3}, {2, 6},
	}
	run := runParams{iterations: 7, damping: 0.85}

	s.calc.mu.Lock()
	defer s.calc.mu.Unlock()

	forward, _, _, err := s.calc.compute(context.TODO(), docs, edges, run)
	c.Assert(err, gc.IsNil)

	revDocs := make([]int64, len(docs))
	for i, id := range docs {
		revDocs[len(docs)-1-i] = id
	}
	revEdges := make([][2]int64, len(edges))
	for i, e := range edges {
		revEdges[len(edges)-1-i] = e
	}

	reversed, _, _, err := s.calc.compute(context.TODO(), revDocs, revEdges, run)
	c.Assert(err, gc.IsNil)
	c.Assert(reversed, gc.DeepEquals, forward)
}

func (s *CalculatorTestSuite) TestEdgesToUnloadedDocumentsAreIgnored(c *gc.C) {
	s.calc.mu.Lock()
	defer s.calc.mu.Unlock()

	scores, _, numEdges, err := s.calc.compute(context.TODO(), []int64{1, 2}, [][2]int64{{1, 2}, {2, 99}, {99, 1}}, runParams{iterations: 3, damping: 0.85})
	c.Assert(err, gc.IsNil)
	c.Assert(numEdges, gc.Equals, 1)
	c.Assert(scores, gc.HasLen, 2)
	c.Assert(scores[2], gc.Equals, 1.0)
	c.Assert(scores[1] < 1.0, gc.Equals, true)
}

func (s *CalculatorTestSuite) TestEmptyGraphIsNoop(c *gc.C) {
	c.Assert(s.store.ReplaceScores(map[int64]float64{1: 0.5}), gc.IsNil)

	res, err := s.calc.Recompute(context.TODO(), 0, 0)
	c.Assert(err, gc.IsNil)
	c.Assert(res.Documents, gc.Equals, 0)

	scores, err := s.store.Scores([]int64{1})
	c.Assert(err, gc.IsNil)
	c.Assert(scores, gc.DeepEquals, map[int64]float64{1: 0.5}, gc.Commentf("expected score table to remain untouched"))
}

func (s *CalculatorTestSuite) TestDocumentWithoutLinksScoresMinimum(c *gc.C) {
	ids := s.addDocs(c, "A", "B", "lonely")
	s.addEdges(c, ids, "A", "B")

	_, err := s.calc.Recompute(context.TODO(), 3, 0.5)
	c.Assert(err, gc.IsNil)

	scores, err := s.store.Scores(docIDs(ids))
	c.Assert(err, gc.IsNil)
	// A and lonely never receive a share so they score (1-d); B scores
	// (1-d) + d*(1-d) = 0.75 and gets normalized to 1.0.
	c.Assert(scores[ids["B"]], gc.Equals, 1.0)
	c.Assert(math.Abs(scores[ids["A"]]-0.5/0.75) < 1e-12, gc.Equals, true)
	c.Assert(scores[ids["lonely"]], gc.Equals, scores[ids["A"]])
}

func (s *CalculatorTestSuite) TestRunParameterValidation(c *gc.C) {
	_, err := s.calc.Recompute(context.TODO(), -1, 0)
	c.Assert(err, gc.ErrorMatches, "(?ms).*iterations must not be negative.*")

	_, err = s.calc.Recompute(context.TODO(), 0, 2.0)
	c.Assert(err, gc.ErrorMatches, "(?ms).*damping factor must be in the range.*")
}

func (s *CalculatorTestSuite) TestCancelledContext(c *gc.C) {
	s.addDocs(c, "A")

	ctx, cancelFn := context.WithCancel(context.TODO())
	cancelFn()

	_, err := s.calc.Recompute(ctx, 0, 0)
	c.Assert(err, gc.ErrorMatches, ".*context canceled")
}

func (s *CalculatorTestSuite) addDocs(c *gc.C, names ...string) map[string]int64 {
	ids := make(map[string]int64, len(names))
	for _, name := range names {
		id, err := s.store.ResolveOrCreate(index.KindDocument, "https://"+name+".example.com")
		c.Assert(err, gc.IsNil)
		ids[name] = id
	}
	return ids
}

// addEdges links each consecutive (src, dst) name pair.
func (s *CalculatorTestSuite) addEdges(c *gc.C, ids map[string]int64, pairs ...string) {
	for i := 0; i < len(pairs); i += 2 {
		_, err := s.store.AddEdge(ids[pairs[i]], ids[pairs[i+1]])
		c.Assert(err, gc.IsNil)
	}
}

func docIDs(ids map[string]int64) []int64 {
	list := make([]int64, 0, len(ids))
	for _, id := range ids {
		list = append(list, id)
	}
	return list
}

// referenceScores is a straightforward two-buffer implementation of the
// score update used to cross-check the calculator.
func referenceScores(ids map[string]int64, pairs []string, iterations int, damping float64) map[string]float64 {
	inbound := make(map[string][]string)
	outDegree := make(map[string]int)
	for i := 0; i < len(pairs); i += 2 {
		inbound[pairs[i+1]] = append(inbound[pairs[i+1]], pairs[i])
		outDegree[pairs[i]]++
	}

	cur := make(map[string]float64, len(ids))
	for name := range ids {
		cur[name] = 1.0
	}
	for i := 0; i < iterations; i++ {
		next := make(map[string]float64, len(ids))
		for name := range ids {
			var sum float64
			for _, src := range inbound[name] {
				sum += cur[src] / float64(outDegree[src])
			}
			next[name] = (1 - damping) + damping*sum
		}
		cur = next
	}

	var maxScore float64
	for _, v := range cur {
		maxScore = math.Max(maxScore, v)
	}
	for name := range cur {
		cur[name] /= maxScore
	}
	return cur
}
