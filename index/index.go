package index

// Iterator is implemented by objects that can iterate registry entries.
type Iterator interface {
	// Next advances the iterator. If no more items are available or an
	// error occurs, calls to Next() return false.
	Next() bool

	// Error returns the last error encountered by the iterator.
	Error() error

	// Close releases any resources associated with an iterator.
	Close() error
}

// DocumentIterator is implemented by objects that can iterate registered
// documents.
type DocumentIterator interface {
	Iterator

	// Document returns the currently fetched document.
	Document() *Document
}

// Registry is implemented by objects that allocate stable integer
// identifiers for documents and terms.
type Registry interface {
	// ResolveOrCreate returns the ID registered for value under kind,
	// allocating a new one if value has not been seen before. Concurrent
	// calls for the same value always yield the same ID.
	ResolveOrCreate(kind Kind, value string) (int64, error)

	// Lookup returns the ID registered for value under kind or
	// ErrNotFound. It never allocates new IDs.
	Lookup(kind Kind, value string) (int64, error)

	// FindDocument looks up a document by its ID.
	FindDocument(id int64) (*Document, error)

	// FindTerm looks up a term by its ID.
	FindTerm(id int64) (*Term, error)

	// MarkFiltered flags a term as excluded from frequency statistics.
	MarkFiltered(termID int64) error

	// Documents returns an iterator for all registered documents in
	// ascending ID order.
	Documents() (DocumentIterator, error)
}

// OccurrenceIndex is implemented by objects that store the positions of
// terms within documents.
type OccurrenceIndex interface {
	// Record appends a single occurrence. Duplicate tuples are allowed.
	Record(termID, docID int64, position int) error

	// RecordBatch atomically appends all occurrences for a document. If
	// the document already has occurrences, RecordBatch returns
	// ErrDuplicateIngestion and stores nothing.
	RecordBatch(docID int64, occurrences []Occurrence) error

	// OccurrencesFor returns the occurrences recorded for a document
	// ordered by position. Unknown documents yield an empty list.
	OccurrencesFor(docID int64) ([]Occurrence, error)

	// Postings returns the posting list for a term ordered by document ID.
	Postings(termID int64) ([]Posting, error)

	// MatchAll joins the occurrence sets of termIDs on the document ID and
	// returns one row per combination of positions. If maxCombinations is
	// greater than zero, at most that many rows are returned per document.
	MatchAll(termIDs []int64, maxCombinations int) ([]MatchRow, error)
}

// ScoreStore is implemented by objects that persist the authority score
// table.
type ScoreStore interface {
	// ReplaceScores atomically replaces the whole score table. Readers
	// observe either the previous or the new table, never a mix.
	ReplaceScores(scores map[int64]float64) error

	// Scores returns the stored scores for the requested documents.
	// Documents without a score are omitted from the result.
	Scores(docIDs []int64) (map[int64]float64, error)
}

// StatsReader is implemented by objects that can summarize their contents.
type StatsReader interface {
	// Counts returns the number of documents, terms and occurrences.
	Counts() (Counts, error)

	// TopTerms returns the limit most frequent unfiltered terms.
	TopTerms(limit int) ([]TermFrequency, error)
}

// Indexer groups all index-related store capabilities.
type Indexer interface {
	Registry
	OccurrenceIndex
	ScoreStore
	StatsReader
}
