package ranking

import (
	"math"

	"github.com/crawlrank/crawlrank/index"
)

// Epsilon guards the normalization against divisions by zero.
const Epsilon = 1e-5

// ProximityScores returns, for each document present in rows, the smallest
// sum of term positions across all of its position combinations.
func ProximityScores(rows []index.MatchRow) map[int64]float64 {
	scores := make(map[int64]float64)
	for _, row := range rows {
		var sum int
		for _, pos := range row.Positions {
			sum += pos
		}

		if cur, exists := scores[row.DocumentID]; !exists || float64(sum) < cur {
			scores[row.DocumentID] = float64(sum)
		}
	}
	return scores
}

// Normalize maps raw scores into the (0, 1] range. When smallerIsBetter is
// true the smallest raw value maps to 1.0; otherwise the largest one does.
func Normalize(raw map[int64]float64, smallerIsBetter bool) map[int64]float64 {
	norm := make(map[int64]float64, len(raw))
	if len(raw) == 0 {
		return norm
	}

	if smallerIsBetter {
		minV := math.Inf(1)
		for _, v := range raw {
			minV = math.Min(minV, v)
		}
		minV = math.Max(Epsilon, minV)
		for id, v := range raw {
			norm[id] = minV / math.Max(Epsilon, v)
		}
		return norm
	}

	maxV := math.Inf(-1)
	for _, v := range raw {
		maxV = math.Max(maxV, v)
	}
	maxV = math.Max(Epsilon, maxV)
	for id, v := range raw {
		norm[id] = v / maxV
	}
	return norm
}
