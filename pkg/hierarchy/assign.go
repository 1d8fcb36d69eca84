package hierarchy

import (
	"fmt"
	"sort"

	"github.com/thebtf/procluster/pkg/models"
)

// cutTolerance absorbs floating-point noise in averaged merge distances,
// so a merge at 0.7000000000000001 is still applied for a 0.7 threshold.
const cutTolerance = 1e-9

// Selector chooses how the merge tree is cut. Exactly one field must be set.
type Selector struct {
	Threshold    *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	ClusterCount *int     `json:"cluster_count,omitempty" yaml:"cluster_count,omitempty"`
}

// ByThreshold selects a distance-threshold cut.
func ByThreshold(t float64) Selector {
	return Selector{Threshold: &t}
}

// ByCount selects a fixed number of clusters.
func ByCount(k int) Selector {
	return Selector{ClusterCount: &k}
}

// Validate checks that exactly one selector is given and that it fits n leaves.
func (s Selector) Validate(n int) error {
	switch {
	case s.Threshold != nil && s.ClusterCount != nil:
		return fmt.Errorf("%w: both distance threshold and cluster count given", models.ErrConfiguration)
	case s.Threshold == nil && s.ClusterCount == nil:
		return fmt.Errorf("%w: one of distance threshold or cluster count is required", models.ErrConfiguration)
	case s.Threshold != nil && *s.Threshold < 0:
		return fmt.Errorf("%w: distance threshold %v is negative", models.ErrConfiguration, *s.Threshold)
	case s.ClusterCount != nil && (*s.ClusterCount < 1 || *s.ClusterCount > n):
		return fmt.Errorf("%w: cluster count %d outside [1, %d]", models.ErrConfiguration, *s.ClusterCount, n)
	}
	return nil
}

// String describes the selector for logs.
func (s Selector) String() string {
	switch {
	case s.Threshold != nil && s.ClusterCount == nil:
		return fmt.Sprintf("threshold=%.2f", *s.Threshold)
	case s.ClusterCount != nil && s.Threshold == nil:
		return fmt.Sprintf("clusters=%d", *s.ClusterCount)
	}
	return "invalid"
}

// Assignment maps each procedure to a cluster label.
// Labels only express grouping within one run.
type Assignment struct {
	Names  []string `json:"names"`
	Labels []int    `json:"labels"`
}

// Label returns the cluster label of a procedure.
func (a *Assignment) Label(name string) (int, bool) {
	for i, n := range a.Names {
		if n == name {
			return a.Labels[i], true
		}
	}
	return 0, false
}

// Map returns the assignment as name -> label.
func (a *Assignment) Map() map[string]int {
	out := make(map[string]int, len(a.Names))
	for i, n := range a.Names {
		out[n] = a.Labels[i]
	}
	return out
}

// Count returns the number of distinct clusters.
func (a *Assignment) Count() int {
	top := -1
	for _, l := range a.Labels {
		if l > top {
			top = l
		}
	}
	return top + 1
}

// Clusters returns the members of each cluster, indexed by label, in row order.
func (a *Assignment) Clusters() [][]string {
	out := make([][]string, a.Count())
	for i, l := range a.Labels {
		out[l] = append(out[l], a.Names[i])
	}
	return out
}

// unionFind is a disjoint-set forest over leaf indices.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	return true
}

// WithinThreshold reports whether a merge at distance is applied by a
// threshold cut at t.
func WithinThreshold(distance, t float64) bool {
	return distance <= t+cutTolerance
}

// Assign cuts tree with sel and labels every procedure in names
// (names must follow the leaf order of the matrix the tree was built from).
//
// A threshold applies every merge at distance <= threshold and no other.
// A cluster count applies merges from the smallest distance up until that
// many clusters remain. Labels are numbered by first appearance in names.
// On trees with inversions the threshold cut is best-effort.
func Assign(tree *Tree, names []string, sel Selector) (*Assignment, error) {
	if len(names) != tree.Leaves {
		return nil, fmt.Errorf("%w: %d names for a tree with %d leaves", models.ErrConfiguration, len(names), tree.Leaves)
	}
	if tree.Leaves < 2 {
		return nil, fmt.Errorf("%w: %d procedure(s), need at least 2", models.ErrDegenerateInput, tree.Leaves)
	}
	if err := sel.Validate(tree.Leaves); err != nil {
		return nil, err
	}

	// rep[id] is a leaf inside cluster id, fixed by tree structure.
	rep := make([]int, tree.Leaves+len(tree.Merges))
	for i := 0; i < tree.Leaves; i++ {
		rep[i] = i
	}
	for k, m := range tree.Merges {
		rep[tree.Leaves+k] = rep[m.Left]
	}

	uf := newUnionFind(tree.Leaves)
	apply := func(m Merge) {
		uf.union(rep[m.Left], rep[m.Right])
	}

	if sel.Threshold != nil {
		for _, m := range tree.Merges {
			if WithinThreshold(m.Distance, *sel.Threshold) {
				apply(m)
			}
		}
	} else {
		order := make([]int, len(tree.Merges))
		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(i, j int) bool {
			return tree.Merges[order[i]].Distance < tree.Merges[order[j]].Distance
		})
		want := tree.Leaves - *sel.ClusterCount
		for _, k := range order[:want] {
			apply(tree.Merges[k])
		}
	}

	labels := make([]int, tree.Leaves)
	byRoot := make(map[int]int)
	for i := 0; i < tree.Leaves; i++ {
		root := uf.find(i)
		l, ok := byRoot[root]
		if !ok {
			l = len(byRoot)
			byRoot[root] = l
		}
		labels[i] = l
	}

	return &Assignment{
		Names:  append([]string(nil), names...),
		Labels: labels,
	}, nil
}
