package index

import "golang.org/x/xerrors"

// PostingsFunc returns the posting list for a term ordered by document ID.
type PostingsFunc func(termID int64) ([]Posting, error)

// MatchAll fetches the posting list for each distinct term in termIDs via
// fetchFn and joins them with JoinPostings. Repeated term IDs are fetched
// once but still participate in the join as independent legs.
func MatchAll(fetchFn PostingsFunc, termIDs []int64, maxCombinations int) ([]MatchRow, error) {
	if len(termIDs) == 0 {
		return nil, nil
	}

	fetched := make(map[int64][]Posting, len(termIDs))
	legs := make([][]Posting, len(termIDs))
	for i, termID := range termIDs {
		list, seen := fetched[termID]
		if !seen {
			var err error
			if list, err = fetchFn(termID); err != nil {
				return nil, xerrors.Errorf("match all: %w", err)
			}
			fetched[termID] = list
		}

		// The first empty leg means no document can match.
		if len(list) == 0 {
			return nil, nil
		}
		legs[i] = list
	}

	return JoinPostings(legs, maxCombinations), nil
}

// JoinPostings computes the natural join of a list of posting lists on the
// document ID. Each input list must be sorted by document ID. For every
// document present in all lists, one MatchRow is emitted for each
// combination of positions; combinations are produced in lexicographic order
// of the position tuple. Documents are emitted in ascending ID order.
//
// If maxCombinations is greater than zero, at most maxCombinations rows are
// emitted for each document.
func JoinPostings(legs [][]Posting, maxCombinations int) []MatchRow {
	if len(legs) == 0 {
		return nil
	}

	var (
		rows    []MatchRow
		heads   = make([]int, len(legs))
		matched = make([][]int, len(legs))
	)

	for {
		// Find the largest document ID under the heads; every other leg
		// must be advanced up to it.
		var target int64
		for i, leg := range legs {
			if heads[i] >= len(leg) {
				return rows
			}
			if docID := leg[heads[i]].DocumentID; i == 0 || docID > target {
				target = docID
			}
		}

		aligned := true
		for i, leg := range legs {
			for heads[i] < len(leg) && leg[heads[i]].DocumentID < target {
				heads[i]++
			}
			if heads[i] >= len(leg) {
				return rows
			}
			if leg[heads[i]].DocumentID != target {
				aligned = false
			}
		}
		if !aligned {
			continue
		}

		for i, leg := range legs {
			matched[i] = leg[heads[i]].Positions
			heads[i]++
		}
		rows = appendCombinations(rows, target, matched, maxCombinations)
	}
}

// appendCombinations appends the cross product of positions for a single
// document to rows.
func appendCombinations(rows []MatchRow, docID int64, positions [][]int, maxCombinations int) []MatchRow {
	for _, list := range positions {
		if len(list) == 0 {
			return rows
		}
	}

	counters := make([]int, len(positions))
	for emitted := 0; maxCombinations <= 0 || emitted < maxCombinations; emitted++ {
		row := MatchRow{DocumentID: docID, Positions: make([]int, len(positions))}
		for i, list := range positions {
			row.Positions[i] = list[counters[i]]
		}
		rows = append(rows, row)

		// Advance the counters like an odometer, rightmost leg first.
		i := len(counters) - 1
		for ; i >= 0; i-- {
			counters[i]++
			if counters[i] < len(positions[i]) {
				break
			}
			counters[i] = 0
		}
		if i < 0 {
			break
		}
	}
	return rows
}
