// Package authority computes link-based authority scores for the indexed
// documents.
package authority

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/crawlrank/crawlrank/bspgraph"
	"github.com/crawlrank/crawlrank/bspgraph/aggregator"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Result summarizes a completed recomputation.
type Result struct {
	// A unique identifier for the run.
	RunID uuid.UUID

	// The number of documents that received a score. Zero indicates that
	// the run was a no-op.
	Documents int

	// The number of links that took part in the computation.
	Edges int

	// The number of propagation rounds and the damping factor used.
	Iterations    int
	DampingFactor float64

	// The largest score before normalization.
	MaxRawScore float64

	// The time spent loading, computing and persisting scores.
	Elapsed time.Duration
}

type runParams struct {
	iterations int
	damping    float64
}

// Calculator computes authority scores by propagating score shares along the
// link graph for a fixed number of rounds and persists the normalized result.
type Calculator struct {
	cfg Config

	// mu serializes runs; the underlying graph is rebuilt on each run.
	mu  sync.Mutex
	g   *bspgraph.Graph
	run runParams
}

// NewCalculator returns a new Calculator instance using the provided config
// options.
func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("authority calculator: config validation failed: %w", err)
	}

	c := &Calculator{cfg: cfg}
	g, err := bspgraph.NewGraph(bspgraph.GraphConfig{
		ComputeWorkers: cfg.ComputeWorkers,
		ComputeFn:      makeComputeFunc(&c.run),
	})
	if err != nil {
		return nil, xerrors.Errorf("authority calculator: %w", err)
	}
	c.g = g

	return c, nil
}

// Close releases any resources allocated by the calculator.
func (c *Calculator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.g.Close()
}

// Recompute loads the document set and the link graph, runs the requested
// number of propagation rounds with the specified damping factor and
// replaces the stored score table. Zero values for iterations and damping
// select the configured defaults. Recomputing over an empty document set is
// a successful no-op.
func (c *Calculator) Recompute(ctx context.Context, iterations int, damping float64) (Result, error) {
	if iterations == 0 {
		iterations = c.cfg.Iterations
	}
	if damping == 0 {
		damping = c.cfg.DampingFactor
	}
	if err := validateRunParams(&iterations, &damping); err != nil {
		return Result{}, xerrors.Errorf("recompute authority: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	span, ctx := opentracing.StartSpanFromContext(ctx, "RecomputeAuthority")
	defer span.Finish()

	res := Result{RunID: uuid.New(), Iterations: iterations, DampingFactor: damping}
	span.SetTag("run_id", res.RunID.String())
	logger := c.cfg.Logger.WithField("run_id", res.RunID.String())
	logger.WithFields(logrus.Fields{
		"iterations": iterations,
		"damping":    damping,
	}).Info("starting authority recomputation")
	startAt := time.Now()

	docs, err := loadDocuments(c.cfg.Documents)
	if err != nil {
		return Result{}, xerrors.Errorf("recompute authority: load documents: %w", err)
	}
	edges, err := loadEdges(c.cfg.Edges)
	if err != nil {
		return Result{}, xerrors.Errorf("recompute authority: load edges: %w", err)
	}

	if len(docs) == 0 {
		logger.Info("no documents available; skipping authority recomputation")
		return res, nil
	}

	scores, maxRaw, numEdges, err := c.compute(ctx, docs, edges, runParams{iterations: iterations, damping: damping})
	if err != nil {
		return Result{}, xerrors.Errorf("recompute authority: %w", err)
	}

	if err = c.cfg.Scores.ReplaceScores(scores); err != nil {
		return Result{}, xerrors.Errorf("recompute authority: persist scores: %w", err)
	}

	res.Documents = len(scores)
	res.Edges = numEdges
	res.MaxRawScore = maxRaw
	res.Elapsed = time.Since(startAt)
	logger.WithFields(logrus.Fields{
		"documents":     res.Documents,
		"edges":         res.Edges,
		"max_raw_score": res.MaxRawScore,
		"elapsed":       res.Elapsed.String(),
	}).Info("completed authority recomputation")
	return res, nil
}

// compute populates the graph with the provided documents and edges, runs
// the propagation rounds and returns the normalized scores. Edges whose
// endpoints are not part of docs are ignored. Callers must hold c.mu.
func (c *Calculator) compute(ctx context.Context, docs []int64, edges [][2]int64, run runParams) (map[int64]float64, float64, int, error) {
	if err := c.g.Reset(); err != nil {
		return nil, 0, 0, err
	}
	c.run = run

	for _, docID := range docs {
		c.g.AddVertex(docID, 1.0)
	}

	vertices := c.g.Vertices()
	var numEdges int
	for _, e := range edges {
		// New documents and edges may have been created while loading;
		// only links between loaded documents take part in the run.
		if vertices[e[0]] == nil || vertices[e[1]] == nil {
			continue
		}
		if err := c.g.AddEdge(e[0], e[1]); err != nil {
			return nil, 0, 0, err
		}
		numEdges++
	}

	c.g.RegisterAggregator(maxScoreAggr, aggregator.NewFloat64Max())
	ex := bspgraph.NewExecutor(c.g, bspgraph.ExecutorCallbacks{
		PreStep: func(_ context.Context, g *bspgraph.Graph) error {
			g.Aggregator(maxScoreAggr).Set(math.Inf(-1))
			return nil
		},
	})
	if err := ex.RunSteps(ctx, run.iterations+1); err != nil {
		return nil, 0, 0, err
	}

	maxRaw := c.g.Aggregator(maxScoreAggr).Get().(float64)
	scores := make(map[int64]float64, len(vertices))
	for id, v := range vertices {
		score := v.Value().(float64)
		// All scores can only be zero when d=1 and no document has an
		// incoming link; such a vector cannot be normalized.
		if maxRaw > 0 {
			score /= maxRaw
		}
		scores[id] = score
	}
	return scores, maxRaw, numEdges, nil
}

func loadDocuments(src DocumentSource) ([]int64, error) {
	docIt, err := src.Documents()
	if err != nil {
		return nil, err
	}

	var docs []int64
	for docIt.Next() {
		docs = append(docs, docIt.Document().ID)
	}
	if err = docIt.Error(); err != nil {
		_ = docIt.Close()
		return nil, err
	}
	return docs, docIt.Close()
}

func loadEdges(src EdgeSource) ([][2]int64, error) {
	edgeIt, err := src.Edges()
	if err != nil {
		return nil, err
	}

	var edges [][2]int64
	for edgeIt.Next() {
		edge := edgeIt.Edge()
		edges = append(edges, [2]int64{edge.Src, edge.Dst})
	}
	if err = edgeIt.Error(); err != nil {
		_ = edgeIt.Close()
		return nil, err
	}
	return edges, edgeIt.Close()
}
