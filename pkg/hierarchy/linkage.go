// Package hierarchy runs agglomerative hierarchical clustering over a
// distance matrix and cuts the resulting merge tree into flat clusters.
package hierarchy

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/procluster/pkg/models"
	"github.com/thebtf/procluster/pkg/similarity"
)

// Linkage identifies the rule used to compute the distance between two clusters.
type Linkage string

const (
	// LinkageSingle uses the closest pair of members.
	LinkageSingle Linkage = "single"
	// LinkageComplete uses the farthest pair of members.
	LinkageComplete Linkage = "complete"
	// LinkageAverage uses the mean over all member pairs (UPGMA).
	LinkageAverage Linkage = "average"
	// LinkageWeighted averages the two merged clusters' distances (WPGMA).
	LinkageWeighted Linkage = "weighted"
)

// DefaultLinkage is used when no strategy is given.
const DefaultLinkage = LinkageAverage

// Linkages lists the supported strategies.
var Linkages = []Linkage{LinkageSingle, LinkageComplete, LinkageAverage, LinkageWeighted}

// ParseLinkage converts a strategy name. An empty name selects DefaultLinkage.
func ParseLinkage(name string) (Linkage, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultLinkage, nil
	}
	for _, l := range Linkages {
		if string(l) == name {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: unknown linkage %q (want one of %v)", models.ErrConfiguration, name, Linkages)
}

// Valid reports whether l is a supported strategy.
func (l Linkage) Valid() bool {
	for _, known := range Linkages {
		if l == known {
			return true
		}
	}
	return false
}

// update is the Lance-Williams recurrence: the distance from the union of
// clusters a and b (sizes na, nb) to a third cluster k.
func (l Linkage) update(dak, dbk float64, na, nb int) float64 {
	switch l {
	case LinkageSingle:
		return math.Min(dak, dbk)
	case LinkageComplete:
		return math.Max(dak, dbk)
	case LinkageWeighted:
		return (dak + dbk) / 2
	default:
		return (float64(na)*dak + float64(nb)*dbk) / float64(na+nb)
	}
}

// pairLess orders candidate pairs by their lower cluster id, then the higher one.
func pairLess(a1, b1, a2, b2 int) bool {
	if a1 > b1 {
		a1, b1 = b1, a1
	}
	if a2 > b2 {
		a2, b2 = b2, a2
	}
	if a1 != a2 {
		return a1 < a2
	}
	return b1 < b2
}

// Link builds the merge tree for m.
//
// Leaves take ids 0..N-1 in matrix axis order; the cluster created by merge
// step k gets id N+k. At each step the closest pair of live clusters is merged;
// equal distances go to the pair with the smallest (low id, high id).
func Link(m *similarity.DistanceMatrix, linkage Linkage) (*Tree, error) {
	if linkage == "" {
		linkage = DefaultLinkage
	}
	if !linkage.Valid() {
		return nil, fmt.Errorf("%w: unknown linkage %q", models.ErrConfiguration, linkage)
	}
	n := m.Size()
	if n < 2 {
		return nil, fmt.Errorf("%w: %d procedure(s), need at least 2", models.ErrDegenerateInput, n)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	// Working copy indexed by slot. Slot a holds cluster ids[a].
	d := make([][]float64, n)
	for i := range d {
		d[i] = append([]float64(nil), m.Values[i]...)
	}
	ids := make([]int, n)
	sizes := make([]int, n)
	active := make([]bool, n)
	for i := 0; i < n; i++ {
		ids[i] = i
		sizes[i] = 1
		active[i] = true
	}

	tree := &Tree{Leaves: n, Method: linkage, Merges: make([]Merge, 0, n-1)}
	for step := 0; step < n-1; step++ {
		bestA, bestB := -1, -1
		best := math.Inf(1)
		for a := 0; a < n; a++ {
			if !active[a] {
				continue
			}
			for b := a + 1; b < n; b++ {
				if !active[b] {
					continue
				}
				dist := d[a][b]
				if bestA < 0 || dist < best || (dist == best && pairLess(ids[a], ids[b], ids[bestA], ids[bestB])) {
					bestA, bestB, best = a, b, dist
				}
			}
		}

		left, right := ids[bestA], ids[bestB]
		if left > right {
			left, right = right, left
		}
		tree.Merges = append(tree.Merges, Merge{
			Left:     left,
			Right:    right,
			Distance: best,
			Size:     sizes[bestA] + sizes[bestB],
		})

		for k := 0; k < n; k++ {
			if !active[k] || k == bestA || k == bestB {
				continue
			}
			nd := linkage.update(d[bestA][k], d[bestB][k], sizes[bestA], sizes[bestB])
			d[bestA][k] = nd
			d[k][bestA] = nd
		}
		sizes[bestA] += sizes[bestB]
		ids[bestA] = n + step
		active[bestB] = false
	}

	if inv := tree.Inversions(); len(inv) > 0 {
		log.Warn().
			Str("linkage", string(linkage)).
			Ints("steps", inv).
			Msg("Merge tree has inversions, threshold cuts are best-effort")
	}

	return tree, nil
}
