// Package query resolves free-text queries into index match rows.
package query

import (
	"strings"

	"github.com/crawlrank/crawlrank/index"
	multierror "github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// ErrTermNotIndexed is returned when a query contains a term that is not
// known to the index.
var ErrTermNotIndexed = xerrors.New("term not indexed")

// TermResolver is implemented by objects that map term text to term IDs.
type TermResolver interface {
	Lookup(kind index.Kind, value string) (int64, error)
}

// RowMatcher is implemented by objects that join the occurrences of a list
// of terms.
type RowMatcher interface {
	MatchAll(termIDs []int64, maxCombinations int) ([]index.MatchRow, error)
}

// Config encapsulates the settings for creating a Matcher.
type Config struct {
	// The registry used for resolving query terms.
	Terms TermResolver

	// The occurrence index used for matching.
	Index RowMatcher

	// MaxCombinations caps the number of position combinations emitted per
	// matching document. A zero value disables the cap.
	MaxCombinations int
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Terms == nil {
		err = multierror.Append(err, xerrors.New("term resolver has not been provided"))
	}
	if cfg.Index == nil {
		err = multierror.Append(err, xerrors.New("occurrence index has not been provided"))
	}
	if cfg.MaxCombinations < 0 {
		err = multierror.Append(err, xerrors.New("max combinations must not be negative"))
	}
	return err
}

// Matcher resolves queries against the index.
type Matcher struct {
	cfg Config
}

// NewMatcher creates a new Matcher instance with the specified config.
func NewMatcher(cfg Config) (*Matcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("query matcher: config validation failed: %w", err)
	}
	return &Matcher{cfg: cfg}, nil
}

// Tokenize lower-cases text and splits it on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// ResolveQuery maps every query token to its term ID, preserving the token
// order. If any token is unknown, ResolveQuery fails with ErrTermNotIndexed.
func (m *Matcher) ResolveQuery(text string) ([]int64, error) {
	tokens := Tokenize(text)
	termIDs := make([]int64, 0, len(tokens))
	for _, tok := range tokens {
		id, err := m.cfg.Terms.Lookup(index.KindTerm, tok)
		if err != nil {
			if xerrors.Is(err, index.ErrNotFound) {
				return nil, xerrors.Errorf("resolve query: %q: %w", tok, ErrTermNotIndexed)
			}
			return nil, xerrors.Errorf("resolve query: %w", err)
		}
		termIDs = append(termIDs, id)
	}
	return termIDs, nil
}

// Match resolves text and returns the documents containing all of its terms
// together with every combination of term positions in each document.
func (m *Matcher) Match(text string) ([]index.MatchRow, []int64, error) {
	termIDs, err := m.ResolveQuery(text)
	if err != nil {
		return nil, nil, err
	}

	rows, err := m.cfg.Index.MatchAll(termIDs, m.cfg.MaxCombinations)
	if err != nil {
		return nil, nil, xerrors.Errorf("match: %w", err)
	}
	return rows, termIDs, nil
}
