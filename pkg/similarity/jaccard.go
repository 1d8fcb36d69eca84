package similarity

import (
	"strconv"
)

// JaccardSimilarity calculates the Jaccard similarity between two term sets.
// Returns a value between 0 (no overlap) and 1 (identical).
func JaccardSimilarity(set1, set2 map[string]bool) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	// Iterate the smaller set.
	if len(set1) > len(set2) {
		set1, set2 = set2, set1
	}

	intersection := 0
	for term := range set1 {
		if set2[term] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// JaccardDistance returns 1 minus the Jaccard similarity of two entity sets.
func JaccardDistance(a, b EntitySet) float64 {
	return 1 - JaccardSimilarity(a.Terms, b.Terms)
}

// RoundDistance quantizes d to two decimal digits.
// Exact ties round half to even, the same as fixed-point decimal formatting.
func RoundDistance(d float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(d, 'f', 2, 64), 64)
	if err != nil {
		return d
	}
	return r
}
