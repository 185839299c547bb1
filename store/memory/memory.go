package memory

import (
	"sort"
	"sync"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/linkgraph/graph"
	"golang.org/x/xerrors"
)

// Compile-time checks for ensuring InMemoryStore implements the store
// contracts.
var (
	_ index.Indexer = (*InMemoryStore)(nil)
	_ graph.Graph   = (*InMemoryStore)(nil)
)

// edgeKey identifies an edge by its ordered endpoint pair.
type edgeKey struct {
	src, dst int64
}

// InMemoryStore implements the identifier registry, the occurrence index,
// the link graph and the authority score table on top of in-memory maps.
type InMemoryStore struct {
	mu sync.RWMutex

	docs     []*index.Document
	docByURL map[string]int64

	terms      []*index.Term
	termByText map[string]int64

	occurrences map[int64][]index.Occurrence
	postings    map[int64]map[int64][]int
	numOccs     int

	edges     []*graph.Edge
	edgeByKey map[edgeKey]int64
	inbound   map[int64]map[int64]struct{}
	outDegree map[int64]int
	anchors   map[int64][]int64

	// The score table is guarded by its own lock so that a table swap does
	// not block ingestion.
	scoreMu sync.RWMutex
	scores  map[int64]float64
}

// NewInMemoryStore creates a new, empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docByURL:    make(map[string]int64),
		termByText:  make(map[string]int64),
		occurrences: make(map[int64][]index.Occurrence),
		postings:    make(map[int64]map[int64][]int),
		edgeByKey:   make(map[edgeKey]int64),
		inbound:     make(map[int64]map[int64]struct{}),
		outDegree:   make(map[int64]int),
		anchors:     make(map[int64][]int64),
		scores:      make(map[int64]float64),
	}
}

// Close implements io.Closer. It is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

// ResolveOrCreate returns the ID registered for value under kind, allocating
// a new one if required.
func (s *InMemoryStore) ResolveOrCreate(kind index.Kind, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case index.KindDocument:
		if id, exists := s.docByURL[value]; exists {
			return id, nil
		}
		id := int64(len(s.docs) + 1)
		s.docs = append(s.docs, &index.Document{ID: id, URL: value})
		s.docByURL[value] = id
		return id, nil
	case index.KindTerm:
		if id, exists := s.termByText[value]; exists {
			return id, nil
		}
		id := int64(len(s.terms) + 1)
		s.terms = append(s.terms, &index.Term{ID: id, Text: value})
		s.termByText[value] = id
		return id, nil
	default:
		return 0, xerrors.Errorf("resolve or create: unsupported kind %q", kind)
	}
}

// Lookup returns the ID registered for value under kind.
func (s *InMemoryStore) Lookup(kind index.Kind, value string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		id     int64
		exists bool
	)
	switch kind {
	case index.KindDocument:
		id, exists = s.docByURL[value]
	case index.KindTerm:
		id, exists = s.termByText[value]
	}
	if !exists {
		return 0, xerrors.Errorf("lookup %s %q: %w", kind, value, index.ErrNotFound)
	}
	return id, nil
}

// FindDocument looks up a document by its ID.
func (s *InMemoryStore) FindDocument(id int64) (*index.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 1 || id > int64(len(s.docs)) {
		return nil, xerrors.Errorf("find document: %w", index.ErrNotFound)
	}
	dCopy := new(index.Document)
	*dCopy = *s.docs[id-1]
	return dCopy, nil
}

// FindTerm looks up a term by its ID.
func (s *InMemoryStore) FindTerm(id int64) (*index.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 1 || id > int64(len(s.terms)) {
		return nil, xerrors.Errorf("find term: %w", index.ErrNotFound)
	}
	tCopy := new(index.Term)
	*tCopy = *s.terms[id-1]
	return tCopy, nil
}

// MarkFiltered flags a term as excluded from frequency statistics.
func (s *InMemoryStore) MarkFiltered(termID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if termID < 1 || termID > int64(len(s.terms)) {
		return xerrors.Errorf("mark filtered: %w", index.ErrNotFound)
	}
	s.terms[termID-1].Filtered = true
	return nil
}

// Documents returns an iterator for all registered documents.
func (s *InMemoryStore) Documents() (index.DocumentIterator, error) {
	s.mu.RLock()
	list := make([]*index.Document, len(s.docs))
	copy(list, s.docs)
	s.mu.RUnlock()

	return &documentIterator{s: s, docs: list}, nil
}

// Record appends a single occurrence.
func (s *InMemoryStore) Record(termID, docID int64, position int) error {
	if position < 0 {
		return xerrors.Errorf("record: %w", index.ErrInvalidPosition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.knownDocument(docID) || !s.knownTerm(termID) {
		return xerrors.Errorf("record: %w", index.ErrNotFound)
	}
	s.appendOccurrence(index.Occurrence{TermID: termID, DocumentID: docID, Position: position})
	return nil
}

// RecordBatch atomically appends all occurrences for a document.
func (s *InMemoryStore) RecordBatch(docID int64, occurrences []index.Occurrence) error {
	for _, occ := range occurrences {
		if occ.Position < 0 {
			return xerrors.Errorf("record batch: %w", index.ErrInvalidPosition)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.knownDocument(docID) {
		return xerrors.Errorf("record batch for document %d: %w", docID, index.ErrNotFound)
	}
	if len(s.occurrences[docID]) != 0 {
		return xerrors.Errorf("record batch for document %d: %w", docID, index.ErrDuplicateIngestion)
	}
	for _, occ := range occurrences {
		if !s.knownTerm(occ.TermID) {
			return xerrors.Errorf("record batch for document %d: term %d: %w", docID, occ.TermID, index.ErrNotFound)
		}
	}
	for _, occ := range occurrences {
		occ.DocumentID = docID
		s.appendOccurrence(occ)
	}
	return nil
}

// appendOccurrence updates the per-document and per-term views of the
// index. Callers must hold the write lock.
func (s *InMemoryStore) appendOccurrence(occ index.Occurrence) {
	s.occurrences[occ.DocumentID] = append(s.occurrences[occ.DocumentID], occ)

	perDoc := s.postings[occ.TermID]
	if perDoc == nil {
		perDoc = make(map[int64][]int)
		s.postings[occ.TermID] = perDoc
	}
	perDoc[occ.DocumentID] = insertSorted(perDoc[occ.DocumentID], occ.Position)
	s.numOccs++
}

// OccurrencesFor returns the occurrences recorded for a document.
func (s *InMemoryStore) OccurrencesFor(docID int64) ([]index.Occurrence, error) {
	s.mu.RLock()
	list := make([]index.Occurrence, len(s.occurrences[docID]))
	copy(list, s.occurrences[docID])
	s.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	return list, nil
}

// Postings returns the posting list for a term ordered by document ID.
func (s *InMemoryStore) Postings(termID int64) ([]index.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perDoc := s.postings[termID]
	list := make([]index.Posting, 0, len(perDoc))
	for docID, positions := range perDoc {
		pCopy := make([]int, len(positions))
		copy(pCopy, positions)
		list = append(list, index.Posting{DocumentID: docID, Positions: pCopy})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].DocumentID < list[j].DocumentID })
	return list, nil
}

// MatchAll joins the occurrence sets of termIDs on the document ID.
func (s *InMemoryStore) MatchAll(termIDs []int64, maxCombinations int) ([]index.MatchRow, error) {
	return index.MatchAll(s.Postings, termIDs, maxCombinations)
}

// ReplaceScores atomically replaces the score table.
func (s *InMemoryStore) ReplaceScores(scores map[int64]float64) error {
	table := make(map[int64]float64, len(scores))
	for docID, score := range scores {
		table[docID] = score
	}

	s.scoreMu.Lock()
	s.scores = table
	s.scoreMu.Unlock()
	return nil
}

// Scores returns the stored scores for the requested documents.
func (s *InMemoryStore) Scores(docIDs []int64) (map[int64]float64, error) {
	s.scoreMu.RLock()
	table := s.scores
	s.scoreMu.RUnlock()

	res := make(map[int64]float64, len(docIDs))
	for _, docID := range docIDs {
		if score, exists := table[docID]; exists {
			res[docID] = score
		}
	}
	return res, nil
}

// Counts returns the number of documents, terms and occurrences.
func (s *InMemoryStore) Counts() (index.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return index.Counts{
		Documents:   len(s.docs),
		Terms:       len(s.terms),
		Occurrences: s.numOccs,
	}, nil
}

// TopTerms returns the limit most frequent unfiltered terms.
func (s *InMemoryStore) TopTerms(limit int) ([]index.TermFrequency, error) {
	s.mu.RLock()
	var list []index.TermFrequency
	for termID, perDoc := range s.postings {
		term := s.terms[termID-1]
		if term.Filtered {
			continue
		}
		var count int
		for _, positions := range perDoc {
			count += len(positions)
		}
		list = append(list, index.TermFrequency{Term: term.Text, Count: count})
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Term < list[j].Term
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// AddEdge returns the ID of the edge from src to dst, creating it if needed.
func (s *InMemoryStore) AddEdge(src, dst int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.knownDocument(src) || !s.knownDocument(dst) {
		return 0, xerrors.Errorf("add edge: %w", graph.ErrUnknownEdgeDocuments)
	}

	key := edgeKey{src: src, dst: dst}
	if id, exists := s.edgeByKey[key]; exists {
		return id, nil
	}

	id := int64(len(s.edges) + 1)
	s.edges = append(s.edges, &graph.Edge{ID: id, Src: src, Dst: dst})
	s.edgeByKey[key] = id
	if s.inbound[dst] == nil {
		s.inbound[dst] = make(map[int64]struct{})
	}
	s.inbound[dst][src] = struct{}{}
	s.outDegree[src]++
	return id, nil
}

// AddAnchorTerms associates anchor text terms with an edge.
func (s *InMemoryStore) AddAnchorTerms(edgeID int64, termIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if edgeID < 1 || edgeID > int64(len(s.edges)) {
		return xerrors.Errorf("add anchor terms: %w", graph.ErrNotFound)
	}
	s.anchors[edgeID] = append(s.anchors[edgeID], termIDs...)
	return nil
}

// AnchorTerms returns the anchor term IDs recorded for an edge.
func (s *InMemoryStore) AnchorTerms(edgeID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]int64, len(s.anchors[edgeID]))
	copy(list, s.anchors[edgeID])
	return list, nil
}

// EdgesInto returns the distinct IDs of the documents linking to docID.
func (s *InMemoryStore) EdgesInto(docID int64) ([]int64, error) {
	s.mu.RLock()
	list := make([]int64, 0, len(s.inbound[docID]))
	for src := range s.inbound[docID] {
		list = append(list, src)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list, nil
}

// OutDegree returns the number of edges originating from docID.
func (s *InMemoryStore) OutDegree(docID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outDegree[docID], nil
}

// Edges returns an iterator for every edge in the graph.
func (s *InMemoryStore) Edges() (graph.EdgeIterator, error) {
	s.mu.RLock()
	list := make([]*graph.Edge, len(s.edges))
	copy(list, s.edges)
	s.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool { return list[i].Src < list[j].Src })
	return &edgeIterator{edges: list}, nil
}

// EdgeCount returns the number of edges in the graph.
func (s *InMemoryStore) EdgeCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges), nil
}

// knownDocument returns true if id refers to a registered document. Callers
// must hold the lock.
func (s *InMemoryStore) knownDocument(id int64) bool {
	return id >= 1 && id <= int64(len(s.docs))
}

// knownTerm returns true if id refers to a registered term. Callers must
// hold the lock.
func (s *InMemoryStore) knownTerm(id int64) bool {
	return id >= 1 && id <= int64(len(s.terms))
}

// insertSorted inserts v into the ascending list while keeping it sorted.
func insertSorted(list []int, v int) []int {
	at := sort.SearchInts(list, v+1)
	list = append(list, 0)
	copy(list[at+1:], list[at:])
	list[at] = v
	return list
}
