// Package sqlstore implements the index and link graph contracts on top of
// a relational database accessed through database/sql.
package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/linkgraph/graph"
	"golang.org/x/xerrors"
)

// scoresBatchSize bounds the number of IDs bound to a single scores query.
const scoresBatchSize = 500

var (
	upsertDocumentQuery = `
INSERT INTO documents (url) VALUES (?)
ON CONFLICT (url) DO UPDATE SET url=excluded.url
RETURNING id
`
	upsertTermQuery = `
INSERT INTO terms (text) VALUES (?)
ON CONFLICT (text) DO UPDATE SET text=excluded.text
RETURNING id
`
	lookupDocumentQuery = "SELECT id FROM documents WHERE url=?"
	lookupTermQuery     = "SELECT id FROM terms WHERE text=?"
	findDocumentQuery   = "SELECT url FROM documents WHERE id=?"
	findTermQuery       = "SELECT text, filtered FROM terms WHERE id=?"
	markFilteredQuery   = "UPDATE terms SET filtered=TRUE WHERE id=?"
	documentsQuery      = "SELECT id, url FROM documents ORDER BY id"

	insertOccurrenceQuery = "INSERT INTO occurrences (term_id, document_id, position) VALUES (?, ?, ?)"
	lockDocumentQuery     = "SELECT id FROM documents WHERE id=?"
	hasOccurrencesQuery   = "SELECT COUNT(*) FROM occurrences WHERE document_id=?"
	occurrencesForQuery   = "SELECT term_id, position FROM occurrences WHERE document_id=? ORDER BY position, id"
	postingsQuery         = "SELECT document_id, position FROM occurrences WHERE term_id=? ORDER BY document_id, position"

	deleteScoresQuery = "DELETE FROM scores"
	insertScoreQuery  = "INSERT INTO scores (document_id, score) VALUES (?, ?)"
	scoresQuery       = "SELECT document_id, score FROM scores WHERE document_id IN (%s)"

	countDocumentsQuery   = "SELECT COUNT(*) FROM documents"
	countTermsQuery       = "SELECT COUNT(*) FROM terms"
	countOccurrencesQuery = "SELECT COUNT(*) FROM occurrences"
	topTermsQuery         = `
SELECT t.text, COUNT(*) AS freq FROM occurrences o
JOIN terms t ON t.id=o.term_id
WHERE t.filtered=FALSE
GROUP BY t.text
ORDER BY freq DESC, t.text ASC
`

	upsertEdgeQuery = `
INSERT INTO edges (src, dst) VALUES (?, ?)
ON CONFLICT (src, dst) DO UPDATE SET src=excluded.src
RETURNING id
`
	edgeExistsQuery   = "SELECT COUNT(*) FROM edges WHERE id=?"
	insertAnchorQuery = "INSERT INTO anchor_terms (edge_id, term_id) VALUES (?, ?)"
	anchorTermsQuery  = "SELECT term_id FROM anchor_terms WHERE edge_id=? ORDER BY id"
	edgesIntoQuery    = "SELECT src FROM edges WHERE dst=? ORDER BY src"
	outDegreeQuery    = "SELECT COUNT(*) FROM edges WHERE src=?"
	edgesQuery        = "SELECT id, src, dst FROM edges ORDER BY src, id"
	edgeCountQuery    = "SELECT COUNT(*) FROM edges"

	// Compile-time checks for ensuring Store implements the store
	// contracts.
	_ index.Indexer = (*Store)(nil)
	_ graph.Graph   = (*Store)(nil)
)

// Store implements the identifier registry, the occurrence index, the link
// graph and the authority score table on top of a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database specified by dsn and ensures that the
// schema described by the dialect exists.
func Open(dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, xerrors.Errorf("open %s store: %w", dialect.DriverName, err)
	}

	if dialect.Schema != "" {
		if _, err = db.Exec(dialect.Schema); err != nil {
			_ = db.Close()
			return nil, xerrors.Errorf("apply %s schema: %w", dialect.DriverName, err)
		}
	}

	return &Store{db: db, dialect: dialect}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close terminates the connection to the backing database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.dialect.rebind(query)
}

// ResolveOrCreate returns the ID registered for value under kind, allocating
// a new one if required.
func (s *Store) ResolveOrCreate(kind index.Kind, value string) (int64, error) {
	var query string
	switch kind {
	case index.KindDocument:
		query = upsertDocumentQuery
	case index.KindTerm:
		query = upsertTermQuery
	default:
		return 0, xerrors.Errorf("resolve or create: unsupported kind %q", kind)
	}

	var id int64
	if err := s.db.QueryRow(s.q(query), value).Scan(&id); err != nil {
		return 0, xerrors.Errorf("resolve or create %s: %w", kind, err)
	}
	return id, nil
}

// Lookup returns the ID registered for value under kind.
func (s *Store) Lookup(kind index.Kind, value string) (int64, error) {
	var query string
	switch kind {
	case index.KindDocument:
		query = lookupDocumentQuery
	case index.KindTerm:
		query = lookupTermQuery
	default:
		return 0, xerrors.Errorf("lookup: unsupported kind %q", kind)
	}

	var id int64
	if err := s.db.QueryRow(s.q(query), value).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, xerrors.Errorf("lookup %s %q: %w", kind, value, index.ErrNotFound)
		}
		return 0, xerrors.Errorf("lookup %s: %w", kind, err)
	}
	return id, nil
}

// FindDocument looks up a document by its ID.
func (s *Store) FindDocument(id int64) (*index.Document, error) {
	doc := &index.Document{ID: id}
	if err := s.db.QueryRow(s.q(findDocumentQuery), id).Scan(&doc.URL); err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.Errorf("find document: %w", index.ErrNotFound)
		}
		return nil, xerrors.Errorf("find document: %w", err)
	}
	return doc, nil
}

// FindTerm looks up a term by its ID.
func (s *Store) FindTerm(id int64) (*index.Term, error) {
	term := &index.Term{ID: id}
	if err := s.db.QueryRow(s.q(findTermQuery), id).Scan(&term.Text, &term.Filtered); err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.Errorf("find term: %w", index.ErrNotFound)
		}
		return nil, xerrors.Errorf("find term: %w", err)
	}
	return term, nil
}

// MarkFiltered flags a term as excluded from frequency statistics.
func (s *Store) MarkFiltered(termID int64) error {
	res, err := s.db.Exec(s.q(markFilteredQuery), termID)
	if err != nil {
		return xerrors.Errorf("mark filtered: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return xerrors.Errorf("mark filtered: %w", err)
	} else if n == 0 {
		return xerrors.Errorf("mark filtered: %w", index.ErrNotFound)
	}
	return nil
}

// Documents returns an iterator for all registered documents.
func (s *Store) Documents() (index.DocumentIterator, error) {
	rows, err := s.db.Query(s.q(documentsQuery))
	if err != nil {
		return nil, xerrors.Errorf("documents: %w", err)
	}
	return &documentIterator{rows: rows}, nil
}

// Record appends a single occurrence.
func (s *Store) Record(termID, docID int64, position int) error {
	if position < 0 {
		return xerrors.Errorf("record: %w", index.ErrInvalidPosition)
	}

	if _, err := s.db.Exec(s.q(insertOccurrenceQuery), termID, docID, position); err != nil {
		return xerrors.Errorf("record: %w", s.mapFKError(err, index.ErrNotFound))
	}
	return nil
}

// RecordBatch atomically appends all occurrences for a document.
func (s *Store) RecordBatch(docID int64, occurrences []index.Occurrence) error {
	for _, occ := range occurrences {
		if occ.Position < 0 {
			return xerrors.Errorf("record batch: %w", index.ErrInvalidPosition)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return xerrors.Errorf("record batch: %w", err)
	}

	if err = s.recordBatch(tx, docID, occurrences); err != nil {
		_ = tx.Rollback()
		return xerrors.Errorf("record batch for document %d: %w", docID, err)
	}

	if err = tx.Commit(); err != nil {
		return xerrors.Errorf("record batch: %w", err)
	}
	return nil
}

func (s *Store) recordBatch(tx *sql.Tx, docID int64, occurrences []index.Occurrence) error {
	var lockedID int64
	if err := tx.QueryRow(s.q(lockDocumentQuery+s.dialect.LockDocumentSuffix), docID).Scan(&lockedID); err != nil {
		if err == sql.ErrNoRows {
			return index.ErrNotFound
		}
		return err
	}

	var existing int
	if err := tx.QueryRow(s.q(hasOccurrencesQuery), docID).Scan(&existing); err != nil {
		return err
	} else if existing != 0 {
		return index.ErrDuplicateIngestion
	}

	stmt, err := tx.Prepare(s.q(insertOccurrenceQuery))
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, occ := range occurrences {
		if _, err = stmt.Exec(occ.TermID, docID, occ.Position); err != nil {
			return s.mapFKError(err, index.ErrNotFound)
		}
	}
	return nil
}

// OccurrencesFor returns the occurrences recorded for a document.
func (s *Store) OccurrencesFor(docID int64) ([]index.Occurrence, error) {
	rows, err := s.db.Query(s.q(occurrencesForQuery), docID)
	if err != nil {
		return nil, xerrors.Errorf("occurrences for: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := []index.Occurrence{}
	for rows.Next() {
		occ := index.Occurrence{DocumentID: docID}
		if err = rows.Scan(&occ.TermID, &occ.Position); err != nil {
			return nil, xerrors.Errorf("occurrences for: %w", err)
		}
		list = append(list, occ)
	}
	if err = rows.Err(); err != nil {
		return nil, xerrors.Errorf("occurrences for: %w", err)
	}
	return list, nil
}

// Postings returns the posting list for a term ordered by document ID.
func (s *Store) Postings(termID int64) ([]index.Posting, error) {
	rows, err := s.db.Query(s.q(postingsQuery), termID)
	if err != nil {
		return nil, xerrors.Errorf("postings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := []index.Posting{}
	for rows.Next() {
		var (
			docID    int64
			position int
		)
		if err = rows.Scan(&docID, &position); err != nil {
			return nil, xerrors.Errorf("postings: %w", err)
		}

		if n := len(list); n == 0 || list[n-1].DocumentID != docID {
			list = append(list, index.Posting{DocumentID: docID})
		}
		last := &list[len(list)-1]
		last.Positions = append(last.Positions, position)
	}
	if err = rows.Err(); err != nil {
		return nil, xerrors.Errorf("postings: %w", err)
	}
	return list, nil
}

// MatchAll joins the occurrence sets of termIDs on the document ID.
func (s *Store) MatchAll(termIDs []int64, maxCombinations int) ([]index.MatchRow, error) {
	return index.MatchAll(s.Postings, termIDs, maxCombinations)
}

// ReplaceScores atomically replaces the score table.
func (s *Store) ReplaceScores(scores map[int64]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return xerrors.Errorf("replace scores: %w", err)
	}

	if err = s.replaceScores(tx, scores); err != nil {
		_ = tx.Rollback()
		return xerrors.Errorf("replace scores: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return xerrors.Errorf("replace scores: %w", err)
	}
	return nil
}

func (s *Store) replaceScores(tx *sql.Tx, scores map[int64]float64) error {
	if _, err := tx.Exec(s.q(deleteScoresQuery)); err != nil {
		return err
	}

	stmt, err := tx.Prepare(s.q(insertScoreQuery))
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for docID, score := range scores {
		if _, err = stmt.Exec(docID, score); err != nil {
			return err
		}
	}
	return nil
}

// Scores returns the stored scores for the requested documents. The IDs are
// looked up in batches of at most scoresBatchSize so that large match sets
// stay below the bound-variable limits of the backends.
func (s *Store) Scores(docIDs []int64) (map[int64]float64, error) {
	res := make(map[int64]float64, len(docIDs))
	for start := 0; start < len(docIDs); start += scoresBatchSize {
		end := start + scoresBatchSize
		if end > len(docIDs) {
			end = len(docIDs)
		}
		if err := s.scoresBatch(docIDs[start:end], res); err != nil {
			return nil, xerrors.Errorf("scores: %w", err)
		}
	}
	return res, nil
}

// scoresBatch looks up the scores for docIDs and merges them into res.
func (s *Store) scoresBatch(docIDs []int64, res map[int64]float64) error {
	args := make([]interface{}, len(docIDs))
	for i, docID := range docIDs {
		args[i] = docID
	}

	rows, err := s.db.Query(s.q(fmt.Sprintf(scoresQuery, placeholders(len(docIDs)))), args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			docID int64
			score float64
		)
		if err = rows.Scan(&docID, &score); err != nil {
			return err
		}
		res[docID] = score
	}
	return rows.Err()
}

// Counts returns the number of documents, terms and occurrences.
func (s *Store) Counts() (index.Counts, error) {
	var counts index.Counts
	for query, dst := range map[string]*int{
		countDocumentsQuery:   &counts.Documents,
		countTermsQuery:       &counts.Terms,
		countOccurrencesQuery: &counts.Occurrences,
	} {
		if err := s.db.QueryRow(s.q(query)).Scan(dst); err != nil {
			return index.Counts{}, xerrors.Errorf("counts: %w", err)
		}
	}
	return counts, nil
}

// TopTerms returns the limit most frequent unfiltered terms.
func (s *Store) TopTerms(limit int) ([]index.TermFrequency, error) {
	var (
		query = topTermsQuery
		args  []interface{}
	)
	if limit > 0 {
		query += "LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(s.q(query), args...)
	if err != nil {
		return nil, xerrors.Errorf("top terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []index.TermFrequency
	for rows.Next() {
		var tf index.TermFrequency
		if err = rows.Scan(&tf.Term, &tf.Count); err != nil {
			return nil, xerrors.Errorf("top terms: %w", err)
		}
		list = append(list, tf)
	}
	if err = rows.Err(); err != nil {
		return nil, xerrors.Errorf("top terms: %w", err)
	}
	return list, nil
}

// AddEdge returns the ID of the edge from src to dst, creating it if needed.
func (s *Store) AddEdge(src, dst int64) (int64, error) {
	var id int64
	if err := s.db.QueryRow(s.q(upsertEdgeQuery), src, dst).Scan(&id); err != nil {
		return 0, xerrors.Errorf("add edge: %w", s.mapFKError(err, graph.ErrUnknownEdgeDocuments))
	}
	return id, nil
}

// AddAnchorTerms associates anchor text terms with an edge.
func (s *Store) AddAnchorTerms(edgeID int64, termIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return xerrors.Errorf("add anchor terms: %w", err)
	}

	if err = s.addAnchorTerms(tx, edgeID, termIDs); err != nil {
		_ = tx.Rollback()
		return xerrors.Errorf("add anchor terms: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return xerrors.Errorf("add anchor terms: %w", err)
	}
	return nil
}

func (s *Store) addAnchorTerms(tx *sql.Tx, edgeID int64, termIDs []int64) error {
	var count int
	if err := tx.QueryRow(s.q(edgeExistsQuery), edgeID).Scan(&count); err != nil {
		return err
	} else if count == 0 {
		return graph.ErrNotFound
	}

	for _, termID := range termIDs {
		if _, err := tx.Exec(s.q(insertAnchorQuery), edgeID, termID); err != nil {
			return s.mapFKError(err, graph.ErrNotFound)
		}
	}
	return nil
}

// AnchorTerms returns the anchor term IDs recorded for an edge.
func (s *Store) AnchorTerms(edgeID int64) ([]int64, error) {
	list, err := s.queryIDs(anchorTermsQuery, edgeID)
	if err != nil {
		return nil, xerrors.Errorf("anchor terms: %w", err)
	}
	return list, nil
}

// EdgesInto returns the distinct IDs of the documents linking to docID.
func (s *Store) EdgesInto(docID int64) ([]int64, error) {
	list, err := s.queryIDs(edgesIntoQuery, docID)
	if err != nil {
		return nil, xerrors.Errorf("edges into: %w", err)
	}
	return list, nil
}

// OutDegree returns the number of edges originating from docID.
func (s *Store) OutDegree(docID int64) (int, error) {
	var degree int
	if err := s.db.QueryRow(s.q(outDegreeQuery), docID).Scan(&degree); err != nil {
		return 0, xerrors.Errorf("out degree: %w", err)
	}
	return degree, nil
}

// Edges returns an iterator for every edge in the graph.
func (s *Store) Edges() (graph.EdgeIterator, error) {
	rows, err := s.db.Query(s.q(edgesQuery))
	if err != nil {
		return nil, xerrors.Errorf("edges: %w", err)
	}
	return &edgeIterator{rows: rows}, nil
}

// EdgeCount returns the number of edges in the graph.
func (s *Store) EdgeCount() (int, error) {
	var count int
	if err := s.db.QueryRow(s.q(edgeCountQuery)).Scan(&count); err != nil {
		return 0, xerrors.Errorf("edge count: %w", err)
	}
	return count, nil
}

func (s *Store) queryIDs(query string, arg int64) ([]int64, error) {
	rows, err := s.db.Query(s.q(query), arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	list := []int64{}
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		list = append(list, id)
	}
	return list, rows.Err()
}

// mapFKError replaces foreign key violations reported by the backend with
// mappedErr.
func (s *Store) mapFKError(err, mappedErr error) error {
	if s.dialect.IsForeignKeyViolation != nil && s.dialect.IsForeignKeyViolation(err) {
		return mappedErr
	}
	return err
}
