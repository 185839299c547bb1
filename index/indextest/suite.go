package indextest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crawlrank/crawlrank/index"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

// SuiteBase defines a re-usable set of index-related tests that can
// be executed against any type that implements index.Indexer.
type SuiteBase struct {
	idx index.Indexer
}

// SetIndexer configures the test-suite to run all tests against idx.
func (s *SuiteBase) SetIndexer(idx index.Indexer) {
	s.idx = idx
}

// TestResolveOrCreate verifies the identifier allocation logic.
func (s *SuiteBase) TestResolveOrCreate(c *gc.C) {
	docID, err := s.idx.ResolveOrCreate(index.KindDocument, "https://example.com")
	c.Assert(err, gc.IsNil)

	again, err := s.idx.ResolveOrCreate(index.KindDocument, "https://example.com")
	c.Assert(err, gc.IsNil)
	c.Assert(again, gc.Equals, docID, gc.Commentf("document ID changed on second resolve"))

	other, err := s.idx.ResolveOrCreate(index.KindDocument, "https://example.com/other")
	c.Assert(err, gc.IsNil)
	c.Assert(other > docID, gc.Equals, true, gc.Commentf("expected monotonically increasing IDs"))

	termID, err := s.idx.ResolveOrCreate(index.KindTerm, "https://example.com")
	c.Assert(err, gc.IsNil)

	doc, err := s.idx.FindDocument(docID)
	c.Assert(err, gc.IsNil)
	c.Assert(doc, gc.DeepEquals, &index.Document{ID: docID, URL: "https://example.com"})

	term, err := s.idx.FindTerm(termID)
	c.Assert(err, gc.IsNil)
	c.Assert(term, gc.DeepEquals, &index.Term{ID: termID, Text: "https://example.com"})
}

// TestLookup verifies that lookups never allocate IDs.
func (s *SuiteBase) TestLookup(c *gc.C) {
	_, err := s.idx.Lookup(index.KindTerm, "missing")
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true, gc.Commentf("got %v", err))

	// The failed lookup must not have created the term.
	_, err = s.idx.Lookup(index.KindTerm, "missing")
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true)

	termID, err := s.idx.ResolveOrCreate(index.KindTerm, "present")
	c.Assert(err, gc.IsNil)

	got, err := s.idx.Lookup(index.KindTerm, "present")
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, termID)

	// Namespaces are separate.
	_, err = s.idx.Lookup(index.KindDocument, "present")
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true)

	_, err = s.idx.FindDocument(termID + 1000)
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true)
	_, err = s.idx.FindTerm(termID + 1000)
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true)
}

// TestConcurrentResolveOrCreate verifies that concurrent first sightings of
// the same value are assigned a single ID.
func (s *SuiteBase) TestConcurrentResolveOrCreate(c *gc.C) {
	const (
		numWorkers = 10
		numValues  = 20
	)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]map[int64]bool)
	)
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < numValues; i++ {
				value := fmt.Sprintf("https://example.com/%d", i)
				id, err := s.idx.ResolveOrCreate(index.KindDocument, value)
				c.Check(err, gc.IsNil)

				mu.Lock()
				if ids[value] == nil {
					ids[value] = make(map[int64]bool)
				}
				ids[value][id] = true
				mu.Unlock()
			}
		}()
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for test to complete")
	}

	c.Assert(ids, gc.HasLen, numValues)
	for value, set := range ids {
		c.Assert(set, gc.HasLen, 1, gc.Commentf("value %q was assigned multiple IDs", value))
	}
}

// TestMarkFiltered verifies that terms can be flagged as filtered.
func (s *SuiteBase) TestMarkFiltered(c *gc.C) {
	termID, err := s.idx.ResolveOrCreate(index.KindTerm, "and")
	c.Assert(err, gc.IsNil)
	c.Assert(s.idx.MarkFiltered(termID), gc.IsNil)

	term, err := s.idx.FindTerm(termID)
	c.Assert(err, gc.IsNil)
	c.Assert(term.Filtered, gc.Equals, true)

	err = s.idx.MarkFiltered(termID + 1000)
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true, gc.Commentf("got %v", err))
}

// TestDocumentIterator verifies that documents are iterated in ID order.
func (s *SuiteBase) TestDocumentIterator(c *gc.C) {
	var exp []index.Document
	for i := 0; i < 25; i++ {
		url := fmt.Sprintf("https://example.com/%d", i)
		id, err := s.idx.ResolveOrCreate(index.KindDocument, url)
		c.Assert(err, gc.IsNil)
		exp = append(exp, index.Document{ID: id, URL: url})
	}

	it, err := s.idx.Documents()
	c.Assert(err, gc.IsNil)

	var got []index.Document
	for it.Next() {
		got = append(got, *it.Document())
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)
	c.Assert(got, gc.DeepEquals, exp)
}

// TestRecordAndOccurrencesFor verifies that occurrences are stored per
// document and that duplicate tuples are kept.
func (s *SuiteBase) TestRecordAndOccurrencesFor(c *gc.C) {
	docID, termIDs := s.indexDoc(c, "https://example.com", "the", "cat", "the", "hat")

	got, err := s.idx.OccurrencesFor(docID)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.DeepEquals, []index.Occurrence{
		{TermID: termIDs[0], DocumentID: docID, Position: 0},
		{TermID: termIDs[1], DocumentID: docID, Position: 1},
		{TermID: termIDs[2], DocumentID: docID, Position: 2},
		{TermID: termIDs[3], DocumentID: docID, Position: 3},
	})
	c.Assert(termIDs[0], gc.Equals, termIDs[2], gc.Commentf("expected repeated words to share a term ID"))

	// Duplicate tuples are meaningful and must be kept.
	c.Assert(s.idx.Record(termIDs[1], docID, 1), gc.IsNil)
	got, err = s.idx.OccurrencesFor(docID)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 5)

	err = s.idx.Record(termIDs[1], docID, -1)
	c.Assert(xerrors.Is(err, index.ErrInvalidPosition), gc.Equals, true, gc.Commentf("got %v", err))

	// Only registry-allocated IDs may be recorded.
	err = s.idx.Record(termIDs[1]+1000, docID, 4)
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true, gc.Commentf("got %v", err))
	err = s.idx.Record(termIDs[1], docID+1000, 4)
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true, gc.Commentf("got %v", err))
	got, err = s.idx.OccurrencesFor(docID)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 5, gc.Commentf("unregistered IDs mutated the index"))

	// Registered document without tokens is not indexed.
	emptyID, err := s.idx.ResolveOrCreate(index.KindDocument, "https://example.com/empty")
	c.Assert(err, gc.IsNil)
	got, err = s.idx.OccurrencesFor(emptyID)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 0)

	got, err = s.idx.OccurrencesFor(emptyID + 1000)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 0)
}

// TestRecordBatchDuplicate verifies that a document can only be batch
// indexed once.
func (s *SuiteBase) TestRecordBatchDuplicate(c *gc.C) {
	docID, termIDs := s.indexDoc(c, "https://example.com", "alpha", "beta")

	err := s.idx.RecordBatch(docID, []index.Occurrence{{TermID: termIDs[0], DocumentID: docID, Position: 0}})
	c.Assert(xerrors.Is(err, index.ErrDuplicateIngestion), gc.Equals, true, gc.Commentf("got %v", err))

	got, err := s.idx.OccurrencesFor(docID)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 2, gc.Commentf("duplicate batch mutated the index"))
}

// TestRecordBatchUnregisteredIDs verifies that a batch referencing IDs not
// allocated by the registry is rejected as a whole.
func (s *SuiteBase) TestRecordBatchUnregisteredIDs(c *gc.C) {
	docID, err := s.idx.ResolveOrCreate(index.KindDocument, "https://example.com")
	c.Assert(err, gc.IsNil)
	termID, err := s.idx.ResolveOrCreate(index.KindTerm, "alpha")
	c.Assert(err, gc.IsNil)

	err = s.idx.RecordBatch(docID, []index.Occurrence{
		{TermID: termID, DocumentID: docID, Position: 0},
		{TermID: termID + 1000, DocumentID: docID, Position: 1},
	})
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true, gc.Commentf("got %v", err))

	got, err := s.idx.OccurrencesFor(docID)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 0, gc.Commentf("rejected batch mutated the index"))

	err = s.idx.RecordBatch(docID+1000, []index.Occurrence{{TermID: termID, Position: 0}})
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true, gc.Commentf("got %v", err))

	// The rejected batches leave the document free for a valid ingestion.
	c.Assert(s.idx.RecordBatch(docID, []index.Occurrence{{TermID: termID, DocumentID: docID, Position: 0}}), gc.IsNil)
	terms, err := s.idx.TopTerms(10)
	c.Assert(err, gc.IsNil)
	c.Assert(terms, gc.DeepEquals, []index.TermFrequency{{Term: "alpha", Count: 1}})
}

// TestPostings verifies that posting lists are ordered by document ID and
// position.
func (s *SuiteBase) TestPostings(c *gc.C) {
	doc1, terms1 := s.indexDoc(c, "https://example.com/1", "go", "is", "go")
	doc2, _ := s.indexDoc(c, "https://example.com/2", "is", "go")

	got, err := s.idx.Postings(terms1[0])
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.DeepEquals, []index.Posting{
		{DocumentID: doc1, Positions: []int{0, 2}},
		{DocumentID: doc2, Positions: []int{1}},
	})

	got, err = s.idx.Postings(terms1[0] + 1000)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 0)
}

// TestMatchAll verifies the positional multi-term join.
func (s *SuiteBase) TestMatchAll(c *gc.C) {
	docID, termIDs := s.indexDoc(c, "https://example.com", "x", "a", "y", "b")
	aID, bID := termIDs[1], termIDs[3]

	rows, err := s.idx.MatchAll([]int64{aID, bID}, 0)
	c.Assert(err, gc.IsNil)
	c.Assert(rows, gc.DeepEquals, []index.MatchRow{{DocumentID: docID, Positions: []int{1, 3}}})

	other, _ := s.indexDoc(c, "https://example.com/other", "b", "a", "b")
	rows, err = s.idx.MatchAll([]int64{aID, bID}, 0)
	c.Assert(err, gc.IsNil)

	exp := []index.MatchRow{
		{DocumentID: docID, Positions: []int{1, 3}},
		{DocumentID: other, Positions: []int{1, 0}},
		{DocumentID: other, Positions: []int{1, 2}},
	}
	sort.Slice(exp, func(i, j int) bool { return exp[i].DocumentID < exp[j].DocumentID })
	c.Assert(rows, gc.DeepEquals, exp)

	// Cap combinations per document.
	rows, err = s.idx.MatchAll([]int64{aID, bID}, 1)
	c.Assert(err, gc.IsNil)
	c.Assert(rows, gc.HasLen, 2)

	// Repeated terms multiply the result.
	rows, err = s.idx.MatchAll([]int64{bID, bID}, 0)
	c.Assert(err, gc.IsNil)
	c.Assert(rows, gc.HasLen, 1+4)

	rows, err = s.idx.MatchAll(nil, 0)
	c.Assert(err, gc.IsNil)
	c.Assert(rows, gc.HasLen, 0)

	// A registered term without occurrences matches nothing.
	unused, err := s.idx.ResolveOrCreate(index.KindTerm, "unused")
	c.Assert(err, gc.IsNil)
	rows, err = s.idx.MatchAll([]int64{aID, unused}, 0)
	c.Assert(err, gc.IsNil)
	c.Assert(rows, gc.HasLen, 0)
}

// TestReplaceScores verifies that the score table is replaced as a whole.
func (s *SuiteBase) TestReplaceScores(c *gc.C) {
	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.idx.ResolveOrCreate(index.KindDocument, fmt.Sprintf("https://example.com/%d", i))
		c.Assert(err, gc.IsNil)
		ids = append(ids, id)
	}

	got, err := s.idx.Scores(ids)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 0)

	c.Assert(s.idx.ReplaceScores(map[int64]float64{ids[0]: 1.0, ids[1]: 0.5}), gc.IsNil)
	got, err = s.idx.Scores(ids)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.DeepEquals, map[int64]float64{ids[0]: 1.0, ids[1]: 0.5})

	c.Assert(s.idx.ReplaceScores(map[int64]float64{ids[2]: 1.0}), gc.IsNil)
	got, err = s.idx.Scores(ids)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.DeepEquals, map[int64]float64{ids[2]: 1.0}, gc.Commentf("stale scores survived replacement"))

	got, err = s.idx.Scores(nil)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 0)
}

// TestScoresForLargeMatchSet verifies that score lookups succeed for more
// document IDs than a single SQL statement can bind.
func (s *SuiteBase) TestScoresForLargeMatchSet(c *gc.C) {
	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.idx.ResolveOrCreate(index.KindDocument, fmt.Sprintf("https://example.com/%d", i))
		c.Assert(err, gc.IsNil)
		ids = append(ids, id)
	}
	c.Assert(s.idx.ReplaceScores(map[int64]float64{ids[0]: 1.0, ids[2]: 0.25}), gc.IsNil)

	// Pad the request with unknown IDs on both sides of the registered ones.
	req := make([]int64, 0, 70000)
	for i := int64(0); i < 35000; i++ {
		req = append(req, ids[2]+1000+i)
	}
	req = append(req, ids...)
	for i := int64(0); i < 35000; i++ {
		req = append(req, ids[2]+100000+i)
	}

	got, err := s.idx.Scores(req)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.DeepEquals, map[int64]float64{ids[0]: 1.0, ids[2]: 0.25})
}

// TestCountsAndTopTerms verifies the index statistics.
func (s *SuiteBase) TestCountsAndTopTerms(c *gc.C) {
	_, terms := s.indexDoc(c, "https://example.com/1", "and", "go", "and", "rust", "go", "go")
	_, _ = s.indexDoc(c, "https://example.com/2", "rust", "and")
	c.Assert(s.idx.MarkFiltered(terms[0]), gc.IsNil)

	counts, err := s.idx.Counts()
	c.Assert(err, gc.IsNil)
	c.Assert(counts, gc.DeepEquals, index.Counts{Documents: 2, Terms: 3, Occurrences: 8})

	top, err := s.idx.TopTerms(10)
	c.Assert(err, gc.IsNil)
	c.Assert(top, gc.DeepEquals, []index.TermFrequency{
		{Term: "go", Count: 3},
		{Term: "rust", Count: 2},
	})

	top, err = s.idx.TopTerms(1)
	c.Assert(err, gc.IsNil)
	c.Assert(top, gc.HasLen, 1)
}

// indexDoc registers url, resolves each token and records the occurrences
// as a single batch.
func (s *SuiteBase) indexDoc(c *gc.C, url string, tokens ...string) (int64, []int64) {
	docID, err := s.idx.ResolveOrCreate(index.KindDocument, url)
	c.Assert(err, gc.IsNil)

	termIDs := make([]int64, len(tokens))
	batch := make([]index.Occurrence, len(tokens))
	for i, tok := range tokens {
		termIDs[i], err = s.idx.ResolveOrCreate(index.KindTerm, tok)
		c.Assert(err, gc.IsNil)
		batch[i] = index.Occurrence{TermID: termIDs[i], DocumentID: docID, Position: i}
	}

	c.Assert(s.idx.RecordBatch(docID, batch), gc.IsNil)
	return docID, termIDs
}
