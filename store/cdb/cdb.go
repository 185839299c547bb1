// Package cdb provides a store backed by CockroachDB or any other server
// speaking the PostgreSQL wire protocol.
package cdb

import (
	"github.com/crawlrank/crawlrank/store/sqlstore"
	"github.com/lib/pq"
	"golang.org/x/xerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS terms (
	id BIGSERIAL PRIMARY KEY,
	text TEXT NOT NULL UNIQUE,
	filtered BOOL NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS occurrences (
	id BIGSERIAL PRIMARY KEY,
	term_id BIGINT NOT NULL REFERENCES terms(id),
	document_id BIGINT NOT NULL REFERENCES documents(id),
	position INT NOT NULL
);
CREATE INDEX IF NOT EXISTS occurrences_by_term ON occurrences (term_id, document_id, position);
CREATE INDEX IF NOT EXISTS occurrences_by_document ON occurrences (document_id, position);

CREATE TABLE IF NOT EXISTS edges (
	id BIGSERIAL PRIMARY KEY,
	src BIGINT NOT NULL REFERENCES documents(id),
	dst BIGINT NOT NULL REFERENCES documents(id),
	UNIQUE (src, dst)
);
CREATE INDEX IF NOT EXISTS edges_by_dst ON edges (dst);

CREATE TABLE IF NOT EXISTS anchor_terms (
	id BIGSERIAL PRIMARY KEY,
	edge_id BIGINT NOT NULL REFERENCES edges(id),
	term_id BIGINT NOT NULL REFERENCES terms(id)
);
CREATE INDEX IF NOT EXISTS anchor_terms_by_edge ON anchor_terms (edge_id);

CREATE TABLE IF NOT EXISTS scores (
	document_id BIGINT PRIMARY KEY REFERENCES documents(id),
	score FLOAT8 NOT NULL
);
`

// Dialect describes the CockroachDB flavor of the SQL store.
var Dialect = sqlstore.Dialect{
	DriverName:            "postgres",
	Schema:                schema,
	NumberedPlaceholders:  true,
	LockDocumentSuffix:    " FOR UPDATE",
	IsForeignKeyViolation: isForeignKeyViolationError,
}

// NewCockroachDBStore returns a store that connects to the CockroachDB
// instance specified by dsn.
func NewCockroachDBStore(dsn string) (*sqlstore.Store, error) {
	return sqlstore.Open(Dialect, dsn)
}

// isForeignKeyViolationError returns true if err indicates a foreign key
// constraint violation.
func isForeignKeyViolationError(err error) bool {
	var pqErr *pq.Error
	if !xerrors.As(err, &pqErr) {
		return false
	}

	return pqErr.Code.Name() == "foreign_key_violation"
}
