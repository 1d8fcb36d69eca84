package hierarchy

// Merge is one agglomeration step.
type Merge struct {
	Left     int     `json:"left"`
	Right    int     `json:"right"`
	Distance float64 `json:"distance"`
	Size     int     `json:"size"`
}

// Tree is the ordered record of N-1 merges over N leaves.
type Tree struct {
	Method Linkage `json:"linkage"`
	Merges []Merge `json:"merges"`
	Leaves int     `json:"leaves"`
}

// Root returns the id of the cluster holding every leaf.
func (t *Tree) Root() int {
	return t.Leaves + len(t.Merges) - 1
}

// IsLeaf reports whether id is one of the original procedures.
func (t *Tree) IsLeaf(id int) bool {
	return id >= 0 && id < t.Leaves
}

// Children returns the two clusters merged into id.
func (t *Tree) Children(id int) (left, right int, ok bool) {
	k := id - t.Leaves
	if k < 0 || k >= len(t.Merges) {
		return 0, 0, false
	}
	return t.Merges[k].Left, t.Merges[k].Right, true
}

// Height returns the merge distance of id; leaves sit at 0.
func (t *Tree) Height(id int) float64 {
	k := id - t.Leaves
	if k < 0 || k >= len(t.Merges) {
		return 0
	}
	return t.Merges[k].Distance
}

// Size returns the number of leaves under id.
func (t *Tree) Size(id int) int {
	k := id - t.Leaves
	if k < 0 || k >= len(t.Merges) {
		return 1
	}
	return t.Merges[k].Size
}

// Members returns the leaves under id in dendrogram order.
func (t *Tree) Members(id int) []int {
	var out []int
	stack := []int{id}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		l, r, ok := t.Children(top)
		if !ok {
			out = append(out, top)
			continue
		}
		first, second := t.orderChildren(l, r)
		stack = append(stack, second, first)
	}
	return out
}

// LeafOrder returns all leaves in the order a dendrogram draws them.
func (t *Tree) LeafOrder() []int {
	if len(t.Merges) == 0 {
		out := make([]int, t.Leaves)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return t.Members(t.Root())
}

// OrderedChildren returns the children of id in drawing order.
func (t *Tree) OrderedChildren(id int) (first, second int, ok bool) {
	l, r, ok := t.Children(id)
	if !ok {
		return 0, 0, false
	}
	first, second = t.orderChildren(l, r)
	return first, second, true
}

// orderChildren puts the lower child first (ties: lower id).
func (t *Tree) orderChildren(l, r int) (int, int) {
	hl, hr := t.Height(l), t.Height(r)
	if hr < hl || (hr == hl && r < l) {
		return r, l
	}
	return l, r
}

// Inversions returns the merge steps whose distance is below the previous step's.
// Differences within cutTolerance are rounding noise, not inversions.
func (t *Tree) Inversions() []int {
	var steps []int
	for k := 1; k < len(t.Merges); k++ {
		if t.Merges[k].Distance < t.Merges[k-1].Distance-cutTolerance {
			steps = append(steps, k)
		}
	}
	return steps
}

// Monotonic reports whether merge distances never decrease.
func (t *Tree) Monotonic() bool {
	return len(t.Inversions()) == 0
}

// Linkage returns the tree as a scipy-style linkage matrix:
// one row per merge of [left, right, distance, size].
func (t *Tree) Linkage() [][4]float64 {
	out := make([][4]float64, len(t.Merges))
	for k, m := range t.Merges {
		out[k] = [4]float64{float64(m.Left), float64(m.Right), m.Distance, float64(m.Size)}
	}
	return out
}

// Cophenetic returns the height of the first merge that joins leaves i and j.
func (t *Tree) Cophenetic(i, j int) float64 {
	if i == j {
		return 0
	}
	// owner[x] is the id of the cluster currently holding leaf x.
	owner := make([]int, t.Leaves)
	for x := range owner {
		owner[x] = x
	}
	for k, m := range t.Merges {
		inI := owner[i] == m.Left || owner[i] == m.Right
		inJ := owner[j] == m.Left || owner[j] == m.Right
		if inI && inJ {
			return m.Distance
		}
		if inI {
			owner[i] = t.Leaves + k
		}
		if inJ {
			owner[j] = t.Leaves + k
		}
	}
	return t.Height(t.Root())
}
