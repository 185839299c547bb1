// Package ingest feeds crawled documents and links into the index and the
// link graph.
package ingest

import (
	"context"
	"io/ioutil"
	"strings"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/linkgraph/graph"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// DefaultFilteredTerms lists the conjunctions that are indexed but excluded
// from term frequency statistics when no other list is configured.
var DefaultFilteredTerms = []string{
	"и", "а", "но", "или", "да", "же", "что", "как", "когда",
	"если", "то", "ли", "не", "ни", "либо", "чтобы", "хотя", "зато",
}

// Config encapsulates the settings for creating an Ingester.
type Config struct {
	// The registry that allocates document and term IDs.
	Registry index.Registry

	// The occurrence index where document term positions are recorded.
	Index index.OccurrenceIndex

	// The link graph where edges and anchor terms are recorded.
	Graph graph.Graph

	// Terms that are indexed but flagged as filtered. If nil,
	// DefaultFilteredTerms will be used instead; use an empty, non-nil
	// slice to disable filtering.
	FilteredTerms []string

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Registry == nil {
		err = multierror.Append(err, xerrors.New("registry has not been provided"))
	}
	if cfg.Index == nil {
		err = multierror.Append(err, xerrors.New("occurrence index has not been provided"))
	}
	if cfg.Graph == nil {
		err = multierror.Append(err, xerrors.New("link graph has not been provided"))
	}
	if cfg.FilteredTerms == nil {
		cfg.FilteredTerms = DefaultFilteredTerms
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Ingester records documents and links. It is safe for concurrent use.
type Ingester struct {
	cfg      Config
	filtered map[string]struct{}
}

// NewIngester creates a new Ingester instance with the specified config.
func NewIngester(cfg Config) (*Ingester, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("ingester: config validation failed: %w", err)
	}

	filtered := make(map[string]struct{}, len(cfg.FilteredTerms))
	for _, term := range cfg.FilteredTerms {
		filtered[strings.ToLower(term)] = struct{}{}
	}
	return &Ingester{cfg: cfg, filtered: filtered}, nil
}

// IngestDocument registers url and records the position of every token. If
// the document has already been indexed, IngestDocument returns
// index.ErrDuplicateIngestion and leaves the index untouched.
func (ing *Ingester) IngestDocument(ctx context.Context, url string, tokens []string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IngestDocument")
	defer span.Finish()
	span.SetTag("url", url)

	docID, err := ing.cfg.Registry.ResolveOrCreate(index.KindDocument, url)
	if err != nil {
		return 0, xerrors.Errorf("ingest document %q: %w", url, err)
	}

	// Fail early for documents that are already indexed so that their
	// tokens are not registered as terms.
	existing, err := ing.cfg.Index.OccurrencesFor(docID)
	if err != nil {
		return 0, xerrors.Errorf("ingest document %q: %w", url, err)
	} else if len(existing) != 0 {
		return docID, xerrors.Errorf("ingest document %q: %w", url, index.ErrDuplicateIngestion)
	}

	batch := make([]index.Occurrence, 0, len(tokens))
	markedFiltered := make(map[int64]bool)
	for pos, tok := range tokens {
		if pos%256 == 0 {
			if err = ctx.Err(); err != nil {
				return 0, xerrors.Errorf("ingest document %q: %w", url, err)
			}
		}

		termID, skip, err := ing.resolveTerm(tok, markedFiltered)
		if err != nil {
			return 0, xerrors.Errorf("ingest document %q: %w", url, err)
		} else if skip {
			continue
		}
		batch = append(batch, index.Occurrence{TermID: termID, DocumentID: docID, Position: pos})
	}

	if err = ing.cfg.Index.RecordBatch(docID, batch); err != nil {
		return docID, xerrors.Errorf("ingest document %q: %w", url, err)
	}

	ing.cfg.Logger.WithFields(logrus.Fields{
		"url":         url,
		"document_id": docID,
		"tokens":      len(tokens),
	}).Debug("indexed document")
	return docID, nil
}

// IngestLink registers both URLs, creates the edge between them (if it does
// not exist yet) and appends the anchor tokens to the edge.
func (ing *Ingester) IngestLink(ctx context.Context, fromURL, toURL string, anchorTokens []string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IngestLink")
	defer span.Finish()

	srcID, err := ing.cfg.Registry.ResolveOrCreate(index.KindDocument, fromURL)
	if err != nil {
		return 0, xerrors.Errorf("ingest link: %w", err)
	}
	dstID, err := ing.cfg.Registry.ResolveOrCreate(index.KindDocument, toURL)
	if err != nil {
		return 0, xerrors.Errorf("ingest link: %w", err)
	}

	edgeID, err := ing.cfg.Graph.AddEdge(srcID, dstID)
	if err != nil {
		return 0, xerrors.Errorf("ingest link %q -> %q: %w", fromURL, toURL, err)
	}
	if err = ctx.Err(); err != nil {
		return edgeID, xerrors.Errorf("ingest link: %w", err)
	}

	var (
		termIDs        = make([]int64, 0, len(anchorTokens))
		markedFiltered = make(map[int64]bool)
	)
	for _, tok := range anchorTokens {
		termID, skip, err := ing.resolveTerm(tok, markedFiltered)
		if err != nil {
			return edgeID, xerrors.Errorf("ingest link: %w", err)
		} else if skip {
			continue
		}
		termIDs = append(termIDs, termID)
	}

	if len(termIDs) != 0 {
		if err = ing.cfg.Graph.AddAnchorTerms(edgeID, termIDs); err != nil {
			return edgeID, xerrors.Errorf("ingest link: %w", err)
		}
	}
	return edgeID, nil
}

// resolveTerm maps tok to a term ID. Blank tokens are reported as skipped.
// Filtered terms are flagged the first time they are seen by the caller.
func (ing *Ingester) resolveTerm(tok string, markedFiltered map[int64]bool) (int64, bool, error) {
	text := strings.ToLower(strings.TrimSpace(tok))
	if text == "" {
		return 0, true, nil
	}

	termID, err := ing.cfg.Registry.ResolveOrCreate(index.KindTerm, text)
	if err != nil {
		return 0, false, err
	}

	if _, isFiltered := ing.filtered[text]; isFiltered && !markedFiltered[termID] {
		if err = ing.cfg.Registry.MarkFiltered(termID); err != nil {
			return 0, false, err
		}
		markedFiltered[termID] = true
	}
	return termID, false, nil
}
