package index

// Kind selects the identifier namespace used by a Registry.
type Kind uint8

const (
	// KindDocument identifies documents by their canonical URL.
	KindDocument Kind = iota

	// KindTerm identifies terms by their lower-cased text.
	KindTerm
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindTerm:
		return "term"
	default:
		return "unknown"
	}
}

// Document describes a crawled web-page known to the registry.
type Document struct {
	// A unique identifier assigned on the first sighting of URL.
	ID int64

	// The URL the document was obtained from.
	URL string
}

// Term describes a word known to the registry.
type Term struct {
	// A unique identifier assigned on the first sighting of Text.
	ID int64

	// The term text.
	Text string

	// Filtered terms (stop-words, conjunctions) are stored in the occurrence
	// index like any other term but are excluded from frequency statistics.
	Filtered bool
}

// Occurrence records a single appearance of a term inside a document.
type Occurrence struct {
	TermID     int64
	DocumentID int64

	// The 0-based index of the token within the document's token stream.
	Position int
}

// Posting lists the positions where a term appears in a single document.
// Positions are sorted in ascending order.
type Posting struct {
	DocumentID int64
	Positions  []int
}

// MatchRow is a single combination of positions for a multi-term match. The
// i_th entry in Positions is the position of the i_th query term.
type MatchRow struct {
	DocumentID int64
	Positions  []int
}

// Counts summarizes the size of an index.
type Counts struct {
	Documents   int
	Terms       int
	Occurrences int
}

// TermFrequency pairs a term with the number of times it occurs across all
// indexed documents.
type TermFrequency struct {
	Term  string
	Count int
}
