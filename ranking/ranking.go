// Package ranking orders the documents matching a query by combining a term
// proximity signal with the precomputed authority scores.
package ranking

import (
	"context"
	"io/ioutil"
	"sort"

	"github.com/crawlrank/crawlrank/index"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// QueryMatcher is implemented by objects that resolve query text into match
// rows.
type QueryMatcher interface {
	Match(text string) ([]index.MatchRow, []int64, error)
}

// ScoreReader is implemented by objects that provide the stored authority
// scores.
type ScoreReader interface {
	Scores(docIDs []int64) (map[int64]float64, error)
}

// DocumentFinder is implemented by objects that can look up documents by ID.
type DocumentFinder interface {
	FindDocument(id int64) (*index.Document, error)
}

// Result is a single ranked document.
type Result struct {
	Score      float64 `json:"score"`
	DocumentID int64   `json:"document_id"`
	URL        string  `json:"url"`

	// The normalized signals that make up Score.
	Proximity float64 `json:"proximity"`
	Authority float64 `json:"authority"`
}

// Config encapsulates the settings for creating a Ranker.
type Config struct {
	Matcher   QueryMatcher
	Scores    ScoreReader
	Documents DocumentFinder

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Matcher == nil {
		err = multierror.Append(err, xerrors.New("query matcher has not been provided"))
	}
	if cfg.Scores == nil {
		err = multierror.Append(err, xerrors.New("score reader has not been provided"))
	}
	if cfg.Documents == nil {
		err = multierror.Append(err, xerrors.New("document finder has not been provided"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Ranker produces ranked result lists for free-text queries.
type Ranker struct {
	cfg Config
}

// NewRanker creates a new Ranker instance with the specified config.
func NewRanker(cfg Config) (*Ranker, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("ranker: config validation failed: %w", err)
	}
	return &Ranker{cfg: cfg}, nil
}

// Rank returns every document matching text ordered by descending combined
// score. Ties are broken by ascending document ID.
func (r *Ranker) Rank(ctx context.Context, text string) ([]Result, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Rank")
	defer span.Finish()
	span.SetTag("query", text)

	rows, _, err := r.cfg.Matcher.Match(text)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []Result{}, nil
	}
	if err = ctx.Err(); err != nil {
		return nil, xerrors.Errorf("rank: %w", err)
	}

	proximity := Normalize(ProximityScores(rows), true)
	docIDs := make([]int64, 0, len(proximity))
	for docID := range proximity {
		docIDs = append(docIDs, docID)
	}
	sort.Slice(docIDs, func(i, j int) bool { return docIDs[i] < docIDs[j] })

	rawAuthority, err := r.cfg.Scores.Scores(docIDs)
	if err != nil {
		return nil, xerrors.Errorf("rank: fetch authority scores: %w", err)
	}
	authority := Normalize(rawAuthority, false)

	results := make([]Result, 0, len(docIDs))
	for _, docID := range docIDs {
		if err = ctx.Err(); err != nil {
			return nil, xerrors.Errorf("rank: %w", err)
		}

		doc, err := r.cfg.Documents.FindDocument(docID)
		if err != nil {
			return nil, xerrors.Errorf("rank: %w", err)
		}

		res := Result{
			DocumentID: docID,
			URL:        doc.URL,
			Proximity:  proximity[docID],
			Authority:  authority[docID],
		}
		res.Score = (res.Proximity + res.Authority) / 2
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentID < results[j].DocumentID
	})

	r.cfg.Logger.WithFields(logrus.Fields{
		"query":   text,
		"rows":    len(rows),
		"results": len(results),
	}).Debug("ranked query")
	return results, nil
}
