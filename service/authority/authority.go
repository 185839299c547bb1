// Package authority provides a service that periodically recomputes the
// authority scores of the indexed documents.
package authority

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/crawlrank/crawlrank/authority"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/crawlrank/crawlrank/service/authority Recomputer

// Recomputer is implemented by types that can rebuild the authority score
// table.
type Recomputer interface {
	Recompute(ctx context.Context, iterations int, damping float64) (authority.Result, error)
}

// Config encapsulates the settings for configuring the authority service.
type Config struct {
	// The calculator that performs the recomputation.
	Recomputer Recomputer

	// A clock instance for generating time-related events. If not specified,
	// the default wall-clock will be used instead.
	Clock clock.Clock

	// The time between subsequent recomputations.
	UpdateInterval time.Duration

	// The number of propagation rounds and the damping factor. Zero values
	// select the calculator defaults.
	Iterations    int
	DampingFactor float64

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Recomputer == nil {
		err = multierror.Append(err, xerrors.Errorf("recomputer has not been provided"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.UpdateInterval <= 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for update interval"))
	}
	if cfg.Iterations < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for iterations"))
	}
	if cfg.DampingFactor < 0 || cfg.DampingFactor > 1 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for damping factor"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Service recomputes authority scores every UpdateInterval.
type Service struct {
	cfg Config
}

// NewService creates a new authority service instance with the specified
// config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("authority service: config validation failed: %w", err)
	}
	return &Service{cfg: cfg}, nil
}

// Name implements service.Service
func (svc *Service) Name() string { return "authority scorer" }

// Run implements service.Service
func (svc *Service) Run(ctx context.Context) error {
	svc.cfg.Logger.WithField("update_interval", svc.cfg.UpdateInterval.String()).Info("starting service")
	defer svc.cfg.Logger.Info("stopped service")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-svc.cfg.Clock.After(svc.cfg.UpdateInterval):
			if err := svc.recompute(ctx); err != nil {
				// A pass interrupted by shutdown is not a failure.
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (svc *Service) recompute(ctx context.Context) error {
	svc.cfg.Logger.Info("starting authority update pass")
	startAt := svc.cfg.Clock.Now()

	res, err := svc.cfg.Recomputer.Recompute(ctx, svc.cfg.Iterations, svc.cfg.DampingFactor)
	ObserveRecompute(svc.cfg.Clock.Now().Sub(startAt), err)
	if err != nil {
		return xerrors.Errorf("authority update pass: %w", err)
	}

	if res.Documents == 0 {
		svc.cfg.Logger.Info("skipped authority update pass: no documents registered")
		return nil
	}

	svc.cfg.Logger.WithFields(logrus.Fields{
		"run_id":          res.RunID.String(),
		"documents":       res.Documents,
		"edges":           res.Edges,
		"iterations":      res.Iterations,
		"damping_factor":  res.DampingFactor,
		"total_pass_time": svc.cfg.Clock.Now().Sub(startAt).String(),
	}).Info("completed authority update pass")
	return nil
}
