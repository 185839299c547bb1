// Package service hosts the long-running components of a crawlrank server.
package service

import (
	"context"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// Service describes a long-running crawlrank component.
type Service interface {
	// Name returns the service name.
	Name() string

	// Run executes the service and blocks until the context gets cancelled
	// or an error occurs.
	Run(context.Context) error
}

// Group is a list of Service instances that execute in parallel and share
// a common lifetime.
type Group []Service

// Run executes all services in the group. It blocks until the context is
// cancelled or a service fails; a failing service cancels the remaining
// ones. The errors reported by the services are aggregated.
func (g Group) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(g) == 0 {
		<-ctx.Done()
		return nil
	}
	runCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		err   error
	)
	wg.Add(len(g))
	for _, s := range g {
		go func(s Service) {
			defer wg.Done()
			if srvErr := s.Run(runCtx); srvErr != nil {
				errMu.Lock()
				err = multierror.Append(err, xerrors.Errorf("%s: %w", s.Name(), srvErr))
				errMu.Unlock()
				cancelFn()
			}
		}(s)
	}

	<-runCtx.Done()
	wg.Wait()
	return err
}
