package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/crawlrank/crawlrank/index"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Stats summarizes the outcome of a Pipeline run.
type Stats struct {
	// The number of documents that were indexed.
	Documents int64

	// The number of document records skipped because the document was
	// already indexed.
	Duplicates int64

	// The number of link records that were ingested.
	Links int64
}

// Pipeline fans out the records produced by a RecordSource to a pool of
// workers that feed them to an Ingester.
type Pipeline struct {
	ing        *Ingester
	numWorkers int
}

// NewPipeline returns a Pipeline that processes records with numWorkers
// concurrent workers.
func NewPipeline(ing *Ingester, numWorkers int) *Pipeline {
	if numWorkers <= 0 {
		panic("NewPipeline: numWorkers must be > 0")
	}
	return &Pipeline{ing: ing, numWorkers: numWorkers}
}

// Process reads the records from src and ingests them.
//
// Calls to Process block until:
//   - all records from the source have been processed OR
//   - an error occurs OR
//   - the supplied context expires
//
// Duplicate documents are counted and skipped. Any other error aborts the run.
func (p *Pipeline) Process(ctx context.Context, src RecordSource) (Stats, error) {
	var (
		wg          sync.WaitGroup
		stats       Stats
		recCh       = make(chan *Record)
		errCh       = make(chan error, p.numWorkers+1)
		pCtx, cncFn = context.WithCancel(ctx)
	)
	defer cncFn()

	for i := 0; i < p.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(pCtx, recCh, errCh, &stats)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(recCh)
		for src.Next(pCtx) {
			select {
			case recCh <- src.Record():
			case <-pCtx.Done():
				return
			}
		}
		if err := src.Error(); err != nil {
			maybeEmitError(xerrors.Errorf("ingest source: %w", err), errCh)
		}
	}()

	go func() {
		wg.Wait()
		close(errCh)
	}()

	var err error
	for pErr := range errCh {
		err = multierror.Append(err, pErr)
		cncFn()
	}

	// Report interruptions caused by the parent context.
	if err == nil {
		err = ctx.Err()
	}

	p.ing.cfg.Logger.WithFields(logrus.Fields{
		"documents":  stats.Documents,
		"duplicates": stats.Duplicates,
		"links":      stats.Links,
	}).Info("ingest pipeline completed")
	return stats, err
}

func (p *Pipeline) worker(ctx context.Context, recCh <-chan *Record, errCh chan<- error, stats *Stats) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-recCh:
			if !ok {
				return
			}

			if err := p.ingest(ctx, rec, stats); err != nil {
				maybeEmitError(err, errCh)
				return
			}
		}
	}
}

func (p *Pipeline) ingest(ctx context.Context, rec *Record, stats *Stats) error {
	switch rec.Kind {
	case RecordDocument:
		_, err := p.ing.IngestDocument(ctx, rec.URL, rec.Tokens)
		if xerrors.Is(err, index.ErrDuplicateIngestion) {
			atomic.AddInt64(&stats.Duplicates, 1)
			p.ing.cfg.Logger.WithField("url", rec.URL).Warn("skipping already indexed document")
			return nil
		} else if err != nil {
			return err
		}
		atomic.AddInt64(&stats.Documents, 1)
	case RecordLink:
		if _, err := p.ing.IngestLink(ctx, rec.From, rec.To, rec.Anchor); err != nil {
			return err
		}
		atomic.AddInt64(&stats.Links, 1)
	default:
		return xerrors.Errorf("ingest: unsupported record kind %q", rec.Kind)
	}
	return nil
}

// maybeEmitError attempts to queue err to a buffered error channel. If the
// channel is full, the error is dropped.
func maybeEmitError(err error, errCh chan<- error) {
	select {
	case errCh <- err: // error emitted.
	default: // error channel is full with other errors.
	}
}
