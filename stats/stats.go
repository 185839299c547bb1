// Package stats summarizes the contents of the index and the link graph.
package stats

import (
	"net/url"
	"sort"

	"github.com/crawlrank/crawlrank/index"
	multierror "github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// Source is implemented by stores that expose the data needed to build a
// Summary.
type Source interface {
	index.StatsReader
	Documents() (index.DocumentIterator, error)
	EdgeCount() (int, error)
}

// Counts summarizes the size of the index and the link graph.
type Counts struct {
	Documents   int `json:"documents"`
	Terms       int `json:"terms"`
	Occurrences int `json:"occurrences"`
	Edges       int `json:"edges"`
}

// DomainCount pairs a host name with the number of documents served by it.
type DomainCount struct {
	Domain    string `json:"domain"`
	Documents int    `json:"documents"`
}

// TermCount pairs a term with its number of occurrences.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// Summary bundles the available statistics.
type Summary struct {
	Counts     Counts        `json:"counts"`
	TopDomains []DomainCount `json:"top_domains"`
	TopTerms   []TermCount   `json:"top_terms"`
}

// Reporter computes statistics from a Source.
type Reporter struct {
	src Source
}

// NewReporter returns a Reporter for src.
func NewReporter(src Source) *Reporter {
	return &Reporter{src: src}
}

// Counts returns the number of documents, terms, occurrences and edges.
func (r *Reporter) Counts() (Counts, error) {
	idxCounts, err := r.src.Counts()
	if err != nil {
		return Counts{}, xerrors.Errorf("stats counts: %w", err)
	}
	edges, err := r.src.EdgeCount()
	if err != nil {
		return Counts{}, xerrors.Errorf("stats counts: %w", err)
	}

	return Counts{
		Documents:   idxCounts.Documents,
		Terms:       idxCounts.Terms,
		Occurrences: idxCounts.Occurrences,
		Edges:       edges,
	}, nil
}

// TopDomains groups the registered documents by URL host and returns the
// limit largest groups ordered by document count and then by name. A
// non-positive limit returns every domain. URLs that cannot be parsed are
// grouped under an empty domain.
func (r *Reporter) TopDomains(limit int) (list []DomainCount, err error) {
	it, err := r.src.Documents()
	if err != nil {
		return nil, xerrors.Errorf("stats top domains: %w", err)
	}
	defer func() {
		if cErr := it.Close(); cErr != nil {
			err = multierror.Append(err, cErr)
		}
	}()

	perDomain := make(map[string]int)
	for it.Next() {
		perDomain[hostOf(it.Document().URL)]++
	}
	if err = it.Error(); err != nil {
		return nil, xerrors.Errorf("stats top domains: %w", err)
	}

	list = make([]DomainCount, 0, len(perDomain))
	for domain, count := range perDomain {
		list = append(list, DomainCount{Domain: domain, Documents: count})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Documents != list[j].Documents {
			return list[i].Documents > list[j].Documents
		}
		return list[i].Domain < list[j].Domain
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// TopTerms returns the limit most frequent unfiltered terms.
func (r *Reporter) TopTerms(limit int) ([]TermCount, error) {
	freqs, err := r.src.TopTerms(limit)
	if err != nil {
		return nil, xerrors.Errorf("stats top terms: %w", err)
	}

	list := make([]TermCount, len(freqs))
	for i, f := range freqs {
		list[i] = TermCount{Term: f.Term, Count: f.Count}
	}
	return list, nil
}

// Summarize collects every statistic using limit for the ranked lists.
func (r *Reporter) Summarize(limit int) (*Summary, error) {
	counts, err := r.Counts()
	if err != nil {
		return nil, err
	}
	domains, err := r.TopDomains(limit)
	if err != nil {
		return nil, err
	}
	terms, err := r.TopTerms(limit)
	if err != nil {
		return nil, err
	}
	return &Summary{Counts: counts, TopDomains: domains, TopTerms: terms}, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
