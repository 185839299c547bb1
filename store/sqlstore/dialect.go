package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between the SQL backends supported by
// Store.
type Dialect struct {
	// DriverName is the database/sql driver used to open connections.
	DriverName string

	// Schema contains the DDL statements that create the required tables
	// if they do not exist.
	Schema string

	// NumberedPlaceholders indicates that the backend expects $1, $2, ...
	// placeholders instead of '?'.
	NumberedPlaceholders bool

	// LockDocumentSuffix is appended to the document lookup executed by
	// RecordBatch so that concurrent batches for the same document are
	// serialized.
	LockDocumentSuffix string

	// IsForeignKeyViolation returns true if err indicates a foreign key
	// constraint violation.
	IsForeignKeyViolation func(err error) bool
}

// rebind rewrites the '?' placeholders in query to the placeholder style
// expected by the dialect.
func (d Dialect) rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}

	var (
		sb    strings.Builder
		argNo int
	)
	sb.Grow(len(query) + 8)
	for _, r := range query {
		if r != '?' {
			sb.WriteRune(r)
			continue
		}
		argNo++
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(argNo))
	}
	return sb.String()
}

// placeholders returns a comma-separated list of n '?' placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
