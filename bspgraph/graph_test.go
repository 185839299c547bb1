package bspgraph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/crawlrank/crawlrank/bspgraph"
	"github.com/crawlrank/crawlrank/bspgraph/aggregator"
	"github.com/crawlrank/crawlrank/bspgraph/message"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(GraphTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type GraphTestSuite struct{}

func (s *GraphTestSuite) TestMessageExchange(c *gc.C) {
	g, err := bspgraph.NewGraph(bspgraph.GraphConfig{
		ComputeFn: func(g *bspgraph.Graph, v *bspgraph.Vertex, msgIt message.Iterator) error {
			v.Freeze()
			if g.Superstep() == 0 {
				return g.SendMessage(1-v.ID(), &intMsg{value: 42})
			}

			for msgIt.Next() {
				v.SetValue(msgIt.Message().(*intMsg).value)
			}
			return nil
		},
	})
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(g.Close(), gc.IsNil) }()

	g.AddVertex(0, 0)
	g.AddVertex(1, 0)

	c.Assert(execFixedSteps(g, 2), gc.IsNil)

	for id, v := range g.Vertices() {
		c.Assert(v.Value(), gc.Equals, 42, gc.Commentf("vertex %d", id))
	}
}

func (s *GraphTestSuite) TestMessagesOnlyVisibleInNextSuperstep(c *gc.C) {
	// Every vertex records the superstep in which it received a message;
	// a message sent during step N must never be observed during step N.
	received := make(map[int64]int)
	g, err := bspgraph.NewGraph(bspgraph.GraphConfig{
		ComputeFn: func(g *bspgraph.Graph, v *bspgraph.Vertex, msgIt message.Iterator) error {
			for msgIt.Next() {
				sentAt := msgIt.Message().(*intMsg).value
				if sentAt != g.Superstep()-1 {
					return xerrors.Errorf("message sent at step %d observed at step %d", sentAt, g.Superstep())
				}
				received[v.ID()]++
			}
			return g.BroadcastToNeighbors(v, &intMsg{value: g.Superstep()})
		},
	})
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(g.Close(), gc.IsNil) }()

	for id := int64(0); id < 3; id++ {
		g.AddVertex(id, nil)
	}
	c.Assert(g.AddEdge(0, 1), gc.IsNil)
	c.Assert(g.AddEdge(1, 2), gc.IsNil)
	c.Assert(g.AddEdge(2, 0), gc.IsNil)

	c.Assert(execFixedSteps(g, 4), gc.IsNil)
	c.Assert(received, gc.DeepEquals, map[int64]int{0: 3, 1: 3, 2: 3})
}

func (s *GraphTestSuite) TestMessageBroadcasting(c *gc.C) {
	g, err := bspgraph.NewGraph(bspgraph.GraphConfig{
		ComputeFn: func(g *bspgraph.Graph, v *bspgraph.Vertex, msgIt message.Iterator) error {
			if err := g.BroadcastToNeighbors(v, &intMsg{value: 42}); err != nil {
				return err
			}
			for msgIt.Next() {
				v.SetValue(msgIt.Message().(*intMsg).value)
			}
			return nil
		},
	})
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(g.Close(), gc.IsNil) }()

	g.AddVertex(0, 42)
	g.AddVertex(1, 0)
	g.AddVertex(2, 0)
	g.AddVertex(3, 0)
	c.Assert(g.AddEdge(0, 1), gc.IsNil)
	c.Assert(g.AddEdge(0, 2), gc.IsNil)
	c.Assert(g.AddEdge(0, 3), gc.IsNil)

	c.Assert(execFixedSteps(g, 2), gc.IsNil)

	for id, v := range g.Vertices() {
		c.Assert(v.Value(), gc.Equals, 42, gc.Commentf("vertex %d", id))
	}
}

func (s *GraphTestSuite) TestAggregator(c *gc.C) {
	g, err := bspgraph.NewGraph(bspgraph.GraphConfig{
		ComputeWorkers: 4,
		ComputeFn: func(g *bspgraph.Graph, v *bspgraph.Vertex, msgIt message.Iterator) error {
			g.Aggregator("sum").Aggregate(1.0)
			g.Aggregator("max").Aggregate(float64(v.ID()))
			return nil
		},
	})
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(g.Close(), gc.IsNil) }()

	g.RegisterAggregator("sum", new(aggregator.Float64Accumulator))
	g.RegisterAggregator("max", aggregator.NewFloat64Max())
	g.Aggregator("sum").Aggregate(5.0)

	numVerts := 1000
	for i := 0; i < numVerts; i++ {
		g.AddVertex(int64(i), nil)
	}
	c.Assert(g.VertexCount(), gc.Equals, numVerts)

	c.Assert(execFixedSteps(g, 1), gc.IsNil)

	aggrMap := g.Aggregators()
	c.Assert(aggrMap["sum"].Get(), gc.Equals, float64(numVerts)+5.0)
	c.Assert(aggrMap["max"].Get(), gc.Equals, float64(numVerts-1))
}

func (s *GraphTestSuite) TestSendToUnknownVertex(c *gc.C) {
	g, err := bspgraph.NewGraph(bspgraph.GraphConfig{
		ComputeFn: func(g *bspgraph.Graph, v *bspgraph.Vertex, msgIt message.Iterator) error {
			return g.BroadcastToNeighbors(v, &intMsg{value: 1})
		},
	})
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(g.Close(), gc.IsNil) }()

	g.AddVertex(1, nil)
	c.Assert(g.AddEdge(1, 99), gc.IsNil)

	err = execFixedSteps(g, 1)
	c.Assert(xerrors.Is(err, bspgraph.ErrInvalidMessageDestination), gc.Equals, true, gc.Commentf("got %v", err))

	err = g.AddEdge(42, 1)
	c.Assert(xerrors.Is(err, bspgraph.ErrUnknownEdgeSource), gc.Equals, true)
}

func (s *GraphTestSuite) TestHandleComputeFuncError(c *gc.C) {
	g, err := bspgraph.NewGraph(bspgraph.GraphConfig{
		ComputeWorkers: 4,
		ComputeFn: func(g *bspgraph.Graph, v *bspgraph.Vertex, msgIt message.Iterator) error {
			if v.ID() == 50 {
				return errors.New("something went wrong")
			}
			return nil
		},
	})
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(g.Close(), gc.IsNil) }()

	for i := 0; i < 1000; i++ {
		g.AddVertex(int64(i), nil)
	}

	err = execFixedSteps(g, 1)
	c.Assert(err, gc.ErrorMatches, `running compute function for vertex 50 failed: something went wrong`)
}

func (s *GraphTestSuite) TestExecutorStopsOnCancelledContext(c *gc.C) {
	var steps int
	g, err := bspgraph.NewGraph(bspgraph.GraphConfig{
		ComputeFn: func(*bspgraph.Graph, *bspgraph.Vertex, message.Iterator) error {
			steps++
			return nil
		},
	})
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(g.Close(), gc.IsNil) }()
	g.AddVertex(1, nil)

	ctx, cancelFn := context.WithCancel(context.TODO())
	cancelFn()

	err = bspgraph.NewExecutor(g, bspgraph.ExecutorCallbacks{}).RunToCompletion(ctx)
	c.Assert(xerrors.Is(err, context.Canceled), gc.Equals, true)
	c.Assert(steps, gc.Equals, 0)
}

func (s *GraphTestSuite) TestInvalidConfig(c *gc.C) {
	_, err := bspgraph.NewGraph(bspgraph.GraphConfig{ExpectedVertices: -1})
	c.Assert(err, gc.ErrorMatches, "(?s)graph config validation failed:.*compute function not specified.*")
}

type intMsg struct {
	value int
}

func (m intMsg) Type() string { return "intMsg" }

func execFixedSteps(g *bspgraph.Graph, numSteps int) error {
	exec := bspgraph.NewExecutor(g, bspgraph.ExecutorCallbacks{})
	return exec.RunSteps(context.TODO(), numSteps)
}
