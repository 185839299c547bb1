package ranking_test

import (
	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/ranking"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(ScoreTestSuite))

type ScoreTestSuite struct{}

func (s *ScoreTestSuite) TestProximityScoresKeepsMinimumPerDocument(c *gc.C) {
	rows := []index.MatchRow{
		{DocumentID: 1, Positions: []int{1, 3}},
		{DocumentID: 2, Positions: []int{1, 0}},
		{DocumentID: 2, Positions: []int{1, 2}},
		{DocumentID: 2, Positions: []int{7, 9}},
	}

	c.Assert(ranking.ProximityScores(rows), gc.DeepEquals, map[int64]float64{1: 4, 2: 1})
	c.Assert(ranking.ProximityScores(nil), gc.HasLen, 0)
}

func (s *ScoreTestSuite) TestNormalizeSmallerIsBetter(c *gc.C) {
	got := ranking.Normalize(map[int64]float64{1: 4, 2: 2, 3: 8}, true)
	c.Assert(got, gc.DeepEquals, map[int64]float64{1: 0.5, 2: 1.0, 3: 0.25})
}

func (s *ScoreTestSuite) TestNormalizeSmallerIsBetterWithZeroMinimum(c *gc.C) {
	got := ranking.Normalize(map[int64]float64{1: 0, 2: 2}, true)
	c.Assert(got[1], gc.Equals, 1.0)
	c.Assert(got[2], gc.Equals, ranking.Epsilon/2)
}

func (s *ScoreTestSuite) TestNormalizeLargerIsBetter(c *gc.C) {
	got := ranking.Normalize(map[int64]float64{1: 0.5, 2: 2, 3: 1}, false)
	c.Assert(got, gc.DeepEquals, map[int64]float64{1: 0.25, 2: 1.0, 3: 0.5})

	got = ranking.Normalize(map[int64]float64{1: 0}, false)
	c.Assert(got, gc.DeepEquals, map[int64]float64{1: 0.0})
}

func (s *ScoreTestSuite) TestNormalizeEmpty(c *gc.C) {
	c.Assert(ranking.Normalize(nil, true), gc.HasLen, 0)
	c.Assert(ranking.Normalize(map[int64]float64{}, false), gc.HasLen, 0)
}
