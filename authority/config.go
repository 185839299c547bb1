package authority

import (
	"io/ioutil"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/linkgraph/graph"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	// DefaultIterations is the number of propagation rounds executed when
	// the caller does not specify one.
	DefaultIterations = 5

	// DefaultDampingFactor is the damping factor used when the caller does
	// not specify one.
	DefaultDampingFactor = 0.85
)

// DocumentSource is implemented by objects that can enumerate the registered
// documents.
type DocumentSource interface {
	Documents() (index.DocumentIterator, error)
}

// EdgeSource is implemented by objects that can enumerate the link graph
// edges.
type EdgeSource interface {
	Edges() (graph.EdgeIterator, error)
}

// ScoreSink is implemented by objects that persist the computed score table.
type ScoreSink interface {
	ReplaceScores(scores map[int64]float64) error
}

// Config encapsulates the settings for creating a new authority Calculator.
type Config struct {
	// The source of the documents that receive a score.
	Documents DocumentSource

	// The source of the links between documents.
	Edges EdgeSource

	// The destination for the normalized scores.
	Scores ScoreSink

	// The number of propagation rounds (K). If not specified, a default
	// value of 5 will be used instead.
	Iterations int

	// The damping factor (d). It must be in the [0, 1] range; a zero value
	// selects the default value of 0.85.
	DampingFactor float64

	// The number of workers to spin up for computing scores. If not
	// specified, a default value of 1 will be used instead.
	ComputeWorkers int

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

// validate checks whether the calculator configuration is valid and sets the
// default values where required.
func (cfg *Config) validate() error {
	var err error
	if cfg.Documents == nil {
		err = multierror.Append(err, xerrors.New("document source has not been provided"))
	}
	if cfg.Edges == nil {
		err = multierror.Append(err, xerrors.New("edge source has not been provided"))
	}
	if cfg.Scores == nil {
		err = multierror.Append(err, xerrors.New("score sink has not been provided"))
	}
	if verr := validateRunParams(&cfg.Iterations, &cfg.DampingFactor); verr != nil {
		err = multierror.Append(err, verr)
	}
	if cfg.ComputeWorkers <= 0 {
		cfg.ComputeWorkers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// validateRunParams checks the iteration count and damping factor for a
// single run and replaces zero values with the defaults.
func validateRunParams(iterations *int, damping *float64) error {
	var err error
	if *iterations < 0 {
		err = multierror.Append(err, xerrors.New("iterations must not be negative"))
	} else if *iterations == 0 {
		*iterations = DefaultIterations
	}

	if *damping < 0 || *damping > 1.0 {
		err = multierror.Append(err, xerrors.New("damping factor must be in the range [0, 1]"))
	} else if *damping == 0 {
		*damping = DefaultDampingFactor
	}
	return err
}
