package bspgraph

import "context"

// ExecutorCallbacks holds the optional hooks that an Executor invokes around
// each superstep.
type ExecutorCallbacks struct {
	// PreStep runs before each superstep. Aggregators that track
	// per-superstep values are typically reset here.
	PreStep func(ctx context.Context, g *Graph) error

	// PostStepKeepRunning runs after each superstep and receives the number
	// of vertices that were active in it. Returning false ends the run.
	PostStepKeepRunning func(ctx context.Context, g *Graph, activeInStep int) (bool, error)
}

// Executor drives a Graph through a sequence of supersteps.
type Executor struct {
	g  *Graph
	cb ExecutorCallbacks
}

// NewExecutor returns an Executor for g. The graph superstep counter is
// rewound to zero.
func NewExecutor(g *Graph, cb ExecutorCallbacks) *Executor {
	g.superstep = 0
	return &Executor{g: g, cb: cb}
}

// RunToCompletion executes supersteps until the context expires, an error
// occurs or PostStepKeepRunning returns false.
func (ex *Executor) RunToCompletion(ctx context.Context) error {
	return ex.run(ctx, -1)
}

// RunSteps behaves like RunToCompletion but executes at most numSteps
// supersteps.
func (ex *Executor) RunSteps(ctx context.Context, numSteps int) error {
	return ex.run(ctx, numSteps)
}

func (ex *Executor) run(ctx context.Context, maxSteps int) error {
	for executed := 0; maxSteps < 0 || executed < maxSteps; executed++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if ex.cb.PreStep != nil {
			if err := ex.cb.PreStep(ctx, ex.g); err != nil {
				return err
			}
		}

		activeInStep, err := ex.g.step()
		if err != nil {
			return err
		}

		if ex.cb.PostStepKeepRunning != nil {
			keepRunning, err := ex.cb.PostStepKeepRunning(ctx, ex.g, activeInStep)
			if err != nil || !keepRunning {
				return err
			}
		}
		ex.g.superstep++
	}
	return nil
}
