// Package sqlite provides a single-file store backed by SQLite.
package sqlite

import (
	"github.com/crawlrank/crawlrank/store/sqlstore"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/xerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS terms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL UNIQUE,
	filtered BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS occurrences (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_id INTEGER NOT NULL REFERENCES terms(id),
	document_id INTEGER NOT NULL REFERENCES documents(id),
	position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS occurrences_by_term ON occurrences (term_id, document_id, position);
CREATE INDEX IF NOT EXISTS occurrences_by_document ON occurrences (document_id, position);

CREATE TABLE IF NOT EXISTS edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	src INTEGER NOT NULL REFERENCES documents(id),
	dst INTEGER NOT NULL REFERENCES documents(id),
	UNIQUE (src, dst)
);
CREATE INDEX IF NOT EXISTS edges_by_dst ON edges (dst);

CREATE TABLE IF NOT EXISTS anchor_terms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	edge_id INTEGER NOT NULL REFERENCES edges(id),
	term_id INTEGER NOT NULL REFERENCES terms(id)
);
CREATE INDEX IF NOT EXISTS anchor_terms_by_edge ON anchor_terms (edge_id);

CREATE TABLE IF NOT EXISTS scores (
	document_id INTEGER PRIMARY KEY REFERENCES documents(id),
	score REAL NOT NULL
);
`

// Dialect describes the SQLite flavor of the SQL store.
var Dialect = sqlstore.Dialect{
	DriverName:            "sqlite3",
	Schema:                schema,
	IsForeignKeyViolation: isForeignKeyViolationError,
}

// NewSQLiteStore opens (creating it if missing) the SQLite database at path.
func NewSQLiteStore(path string) (*sqlstore.Store, error) {
	return sqlstore.Open(Dialect, dsn(path))
}

// dsn enables foreign keys and WAL journaling and makes write transactions
// grab the database lock when they begin so that concurrent writers wait on
// the busy timeout instead of failing to upgrade their locks.
func dsn(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL"
}

// isForeignKeyViolationError returns true if err indicates a foreign key
// constraint violation.
func isForeignKeyViolationError(err error) bool {
	var sqliteErr sqlite3.Error
	if !xerrors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
