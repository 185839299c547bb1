package sqlite

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/crawlrank/crawlrank/index"
	"github.com/crawlrank/crawlrank/index/indextest"
	"github.com/crawlrank/crawlrank/linkgraph/graph/graphtest"
	"github.com/crawlrank/crawlrank/store/sqlstore"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var (
	_ = gc.Suite(new(SQLiteIndexTestSuite))
	_ = gc.Suite(new(SQLiteGraphTestSuite))
	_ = gc.Suite(new(SQLiteErrorTestSuite))
)

func Test(t *testing.T) { gc.TestingT(t) }

type SQLiteIndexTestSuite struct {
	indextest.SuiteBase
	store *sqlstore.Store
}

func (s *SQLiteIndexTestSuite) SetUpTest(c *gc.C) {
	s.store = openStore(c)
	s.SetIndexer(s.store)
}

func (s *SQLiteIndexTestSuite) TearDownTest(c *gc.C) {
	c.Assert(s.store.Close(), gc.IsNil)
}

type SQLiteGraphTestSuite struct {
	graphtest.SuiteBase
	store *sqlstore.Store
}

func (s *SQLiteGraphTestSuite) SetUpTest(c *gc.C) {
	s.store = openStore(c)
	s.SetGraph(s.store, s.store)
}

func (s *SQLiteGraphTestSuite) TearDownTest(c *gc.C) {
	c.Assert(s.store.Close(), gc.IsNil)
}

type SQLiteErrorTestSuite struct{}

func (s *SQLiteErrorTestSuite) TestForeignKeyViolationDetection(c *gc.C) {
	c.Assert(isForeignKeyViolationError(xerrors.New("boom")), gc.Equals, false)
	c.Assert(isForeignKeyViolationError(nil), gc.Equals, false)
}

func (s *SQLiteErrorTestSuite) TestReopenKeepsData(c *gc.C) {
	path := filepath.Join(c.MkDir(), "index.db")

	store, err := NewSQLiteStore(path)
	c.Assert(err, gc.IsNil)
	docID, err := store.ResolveOrCreate(index.KindDocument, "https://example.com")
	c.Assert(err, gc.IsNil)
	c.Assert(store.Close(), gc.IsNil)

	store, err = NewSQLiteStore(path)
	c.Assert(err, gc.IsNil)
	defer func() { c.Assert(store.Close(), gc.IsNil) }()

	doc, err := store.FindDocument(docID)
	c.Assert(err, gc.IsNil)
	c.Assert(doc.URL, gc.Equals, "https://example.com")
}

func (s *SQLiteErrorTestSuite) TestConcurrentBatchesForSameDocument(c *gc.C) {
	store := openStore(c)
	defer func() { c.Assert(store.Close(), gc.IsNil) }()

	docID, err := store.ResolveOrCreate(index.KindDocument, "https://example.com")
	c.Assert(err, gc.IsNil)
	termID, err := store.ResolveOrCreate(index.KindTerm, "alpha")
	c.Assert(err, gc.IsNil)

	const writers = 4
	var (
		wg   sync.WaitGroup
		errs = make([]error, writers)
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.RecordBatch(docID, []index.Occurrence{{TermID: termID, DocumentID: docID, Position: 0}})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		c.Assert(xerrors.Is(err, index.ErrDuplicateIngestion), gc.Equals, true, gc.Commentf("got %v", err))
	}
	c.Assert(succeeded, gc.Equals, 1)

	got, err := store.OccurrencesFor(docID)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.HasLen, 1)
}

func openStore(c *gc.C) *sqlstore.Store {
	store, err := NewSQLiteStore(filepath.Join(c.MkDir(), "index.db"))
	c.Assert(err, gc.IsNil)
	return store
}
