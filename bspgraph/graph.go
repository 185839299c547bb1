package bspgraph

import (
	"sync"
	"sync/atomic"

	"github.com/crawlrank/crawlrank/bspgraph/message"
	"golang.org/x/xerrors"
)

var (
	// ErrUnknownEdgeSource is returned by AddEdge when the source vertex
	// is not present in the graph.
	ErrUnknownEdgeSource = xerrors.New("source vertex is not part of the graph")

	// ErrInvalidMessageDestination is returned by calls to SendMessage and
	// BroadcastToNeighbors when the destination is not a graph vertex.
	ErrInvalidMessageDestination = xerrors.New("invalid message destination")
)

// Vertex represents a vertex in the Graph.
type Vertex struct {
	id       int64
	value    interface{}
	active   bool
	msgQueue [2]message.Queue
	edges    []*Edge
}

// ID returns the vertex ID.
func (v *Vertex) ID() int64 { return v.id }

// Edges returns the list of outgoing edges from this vertex.
func (v *Vertex) Edges() []*Edge { return v.edges }

// Freeze marks the vertex as inactive. Inactive vertices will not be processed
// in the following supersteps unless they receive a message in which case they
// will be re-activated.
func (v *Vertex) Freeze() { v.active = false }

// Value returns the value associated with this vertex.
func (v *Vertex) Value() interface{} { return v.value }

// SetValue sets the value associated with this vertex.
func (v *Vertex) SetValue(val interface{}) { v.value = val }

// Edge is an outgoing link from a vertex.
type Edge struct {
	dstID int64
}

// DstID returns the ID of the vertex the edge points to.
func (e *Edge) DstID() int64 { return e.dstID }

// Graph is a bulk-synchronous parallel graph processor. Messages sent during
// superstep N are delivered during superstep N+1, so every vertex observes
// the state of its neighbors as of the end of the previous superstep.
type Graph struct {
	superstep int

	aggregators map[string]Aggregator
	vertices    map[int64]*Vertex
	order       []*Vertex
	computeFn   ComputeFunc

	queueFactory message.QueueFactory

	// The worker pool that runs the compute function.
	workersWG    sync.WaitGroup
	vertexCh     chan *Vertex
	stepWG       sync.WaitGroup
	errCh        chan error
	activeInStep int64
}

// NewGraph creates a new Graph instance using the specified configuration. It
// is important for callers to invoke Close() on the returned graph instance
// when they are done using it.
func NewGraph(cfg GraphConfig) (*Graph, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("graph config validation failed: %w", err)
	}

	g := &Graph{
		computeFn:    cfg.ComputeFn,
		queueFactory: cfg.QueueFactory,
		aggregators:  make(map[string]Aggregator),
		vertices:     make(map[int64]*Vertex, cfg.ExpectedVertices),
		order:        make([]*Vertex, 0, cfg.ExpectedVertices),
	}
	g.startWorkers(cfg.ComputeWorkers)

	return g, nil
}

// Close releases any resources associated with the graph.
func (g *Graph) Close() error {
	close(g.vertexCh)
	g.workersWG.Wait()

	return g.Reset()
}

// Reset the state of the graph by removing any existing vertices or
// aggregators and resetting the superstep counter.
func (g *Graph) Reset() error {
	g.superstep = 0
	for _, v := range g.order {
		for i := 0; i < 2; i++ {
			if err := v.msgQueue[i].Close(); err != nil {
				return xerrors.Errorf("closing message queue #%d for vertex %d: %w", i, v.ID(), err)
			}
		}
	}
	g.vertices = make(map[int64]*Vertex)
	g.order = g.order[:0]
	g.aggregators = make(map[string]Aggregator)
	return nil
}

// Vertices returns the graph vertices as a map where the key is the vertex ID.
func (g *Graph) Vertices() map[int64]*Vertex { return g.vertices }

// VertexCount returns the number of vertices in the graph.
func (g *Graph) VertexCount() int { return len(g.order) }

// AddVertex inserts a new vertex with the specified id and initial value into
// the graph. If the vertex already exists, AddVertex will just overwrite its
// value with the provided initValue.
func (g *Graph) AddVertex(id int64, initValue interface{}) {
	v := g.vertices[id]
	if v == nil {
		v = &Vertex{
			id: id,
			msgQueue: [2]message.Queue{
				g.queueFactory(),
				g.queueFactory(),
			},
			active: true,
		}
		g.vertices[id] = v
		g.order = append(g.order, v)
	}

	v.SetValue(initValue)
}

// AddEdge inserts a directed edge from srcID to dstID. Only the source needs
// to be a vertex at this point; messages sent to a missing destination fail
// during the superstep.
func (g *Graph) AddEdge(srcID, dstID int64) error {
	srcVert := g.vertices[srcID]
	if srcVert == nil {
		return xerrors.Errorf("create edge from %d to %d: %w", srcID, dstID, ErrUnknownEdgeSource)
	}

	srcVert.edges = append(srcVert.edges, &Edge{dstID: dstID})
	return nil
}

// RegisterAggregator adds an aggregator with the specified name into the graph.
func (g *Graph) RegisterAggregator(name string, aggr Aggregator) { g.aggregators[name] = aggr }

// Aggregator returns the aggregator with the specified name or nil if the
// aggregator does not exist
func (g *Graph) Aggregator(name string) Aggregator { return g.aggregators[name] }

// Aggregators returns the registered aggregators keyed by name.
func (g *Graph) Aggregators() map[string]Aggregator { return g.aggregators }

// BroadcastToNeighbors sends msg along every outgoing edge of v.
func (g *Graph) BroadcastToNeighbors(v *Vertex, msg message.Message) error {
	for _, e := range v.edges {
		if err := g.SendMessage(e.dstID, msg); err != nil {
			return err
		}
	}

	return nil
}

// SendMessage queues msg for the vertex with the specified ID. The recipient
// observes it in the next superstep.
func (g *Graph) SendMessage(dstID int64, msg message.Message) error {
	dstVert := g.vertices[dstID]
	if dstVert == nil {
		return xerrors.Errorf("message cannot be delivered to %d: %w", dstID, ErrInvalidMessageDestination)
	}

	queueIndex := (g.superstep + 1) % 2
	return dstVert.msgQueue[queueIndex].Enqueue(msg)
}

// Superstep returns the current superstep value.
func (g *Graph) Superstep() int { return g.superstep }

// step dispatches every vertex to the worker pool, in insertion order, and
// waits for the pool to drain. It returns the number of vertices that were
// active or had pending messages, along with the first compute error.
func (g *Graph) step() (int, error) {
	g.activeInStep = 0
	if len(g.order) == 0 {
		return 0, nil
	}

	g.stepWG.Add(len(g.order))
	for _, v := range g.order {
		g.vertexCh <- v
	}
	g.stepWG.Wait()

	select {
	case err := <-g.errCh:
		return int(g.activeInStep), err
	default:
		return int(g.activeInStep), nil
	}
}

func (g *Graph) startWorkers(numWorkers int) {
	g.vertexCh = make(chan *Vertex)
	g.errCh = make(chan error, 1)

	g.workersWG.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go g.stepWorker()
	}
}

// stepWorker runs the compute function for the vertices it receives until
// vertexCh is closed.
func (g *Graph) stepWorker() {
	defer g.workersWG.Done()
	for v := range g.vertexCh {
		g.computeVertex(v)
		g.stepWG.Done()
	}
}

func (g *Graph) computeVertex(v *Vertex) {
	queue := v.msgQueue[g.superstep%2]
	if !v.active && !queue.PendingMessages() {
		return
	}

	atomic.AddInt64(&g.activeInStep, 1)
	v.active = true
	if err := g.computeFn(g, v, queue.Messages()); err != nil {
		tryEmitError(g.errCh, xerrors.Errorf("running compute function for vertex %d failed: %w", v.ID(), err))
	} else if err := queue.DiscardMessages(); err != nil {
		tryEmitError(g.errCh, xerrors.Errorf("discarding unprocessed messages for vertex %d failed: %w", v.ID(), err))
	}
}

func tryEmitError(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
}
