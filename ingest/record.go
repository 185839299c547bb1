package ingest

import (
	"context"
	"encoding/json"
	"io"

	"golang.org/x/xerrors"
)

// RecordKind distinguishes the records understood by the Pipeline.
type RecordKind string

const (
	// RecordDocument carries the token stream of a crawled page.
	RecordDocument RecordKind = "document"

	// RecordLink carries a hyperlink and its anchor tokens.
	RecordLink RecordKind = "link"
)

// Record is a single unit of crawler output.
type Record struct {
	Kind RecordKind `json:"kind"`

	// Populated for document records.
	URL    string   `json:"url,omitempty"`
	Tokens []string `json:"tokens,omitempty"`

	// Populated for link records.
	From   string   `json:"from,omitempty"`
	To     string   `json:"to,omitempty"`
	Anchor []string `json:"anchor,omitempty"`
}

// RecordSource is implemented by types that generate Record instances which
// can be used as inputs to a Pipeline.
type RecordSource interface {
	// Next fetches the next record. If no more records are available or an
	// error occurs, calls to Next return false.
	Next(context.Context) bool

	// Record returns the next record to be processed.
	Record() *Record

	// Error return the last error observed by the source.
	Error() error
}

// jsonLinesSource reads newline-delimited JSON records from a reader.
type jsonLinesSource struct {
	dec     *json.Decoder
	cur     *Record
	lastErr error
}

// NewJSONLinesSource returns a RecordSource that decodes a stream of JSON
// encoded records from r.
func NewJSONLinesSource(r io.Reader) RecordSource {
	return &jsonLinesSource{dec: json.NewDecoder(r)}
}

func (s *jsonLinesSource) Next(ctx context.Context) bool {
	if s.lastErr != nil {
		return false
	} else if err := ctx.Err(); err != nil {
		s.lastErr = err
		return false
	}

	rec := new(Record)
	if err := s.dec.Decode(rec); err != nil {
		if err != io.EOF {
			s.lastErr = xerrors.Errorf("decode record: %w", err)
		}
		return false
	}
	s.cur = rec
	return true
}

func (s *jsonLinesSource) Record() *Record { return s.cur }
func (s *jsonLinesSource) Error() error    { return s.lastErr }

// sliceSource serves records from a slice.
type sliceSource struct {
	recs []*Record
	idx  int
}

// NewSliceSource returns a RecordSource that yields the provided records in
// order.
func NewSliceSource(recs []*Record) RecordSource {
	return &sliceSource{recs: recs}
}

func (s *sliceSource) Next(context.Context) bool {
	if s.idx >= len(s.recs) {
		return false
	}
	s.idx++
	return true
}

func (s *sliceSource) Record() *Record { return s.recs[s.idx-1] }
func (s *sliceSource) Error() error    { return nil }
