package authority

import (
	"sort"

	"github.com/crawlrank/crawlrank/bspgraph"
	"github.com/crawlrank/crawlrank/bspgraph/message"
)

const maxScoreAggr = "max_score"

// ShareMessage carries the share of a linking document's score that flows
// along one of its outgoing links.
type ShareMessage struct {
	Src   int64
	Share float64
}

// Type implements message.Message.
func (ShareMessage) Type() string { return "share" }

// makeComputeFunc returns a ComputeFunc that runs iterations propagation
// rounds. Superstep 0 resets every score to 1.0; superstep i applies the
// update for round i using the shares emitted during superstep i-1.
func makeComputeFunc(run *runParams) bspgraph.ComputeFunc {
	return func(g *bspgraph.Graph, v *bspgraph.Vertex, msgIt message.Iterator) error {
		superstep := g.Superstep()

		score := 1.0
		if superstep > 0 {
			score = (1.0 - run.damping) + run.damping*sumShares(msgIt)
		}
		v.SetValue(score)
		g.Aggregator(maxScoreAggr).Aggregate(score)

		// Shares produced by the final round would never be consumed.
		numOutLinks := len(v.Edges())
		if superstep == run.iterations || numOutLinks == 0 {
			return nil
		}
		return g.BroadcastToNeighbors(v, ShareMessage{Src: v.ID(), Share: score / float64(numOutLinks)})
	}
}

// sumShares adds up the incoming shares in ascending source order so that
// the result does not depend on the order in which messages were delivered.
func sumShares(msgIt message.Iterator) float64 {
	var shares []ShareMessage
	for msgIt.Next() {
		shares = append(shares, msgIt.Message().(ShareMessage))
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Src < shares[j].Src })

	var sum float64
	for _, s := range shares {
		sum += s.Share
	}
	return sum
}
