package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_Navigation(t *testing.T) {
	tree, err := Link(fourPoints(t), LinkageAverage)
	require.NoError(t, err)

	assert.Equal(t, 6, tree.Root())
	assert.True(t, tree.IsLeaf(3))
	assert.False(t, tree.IsLeaf(4))

	l, r, ok := tree.Children(4)
	require.True(t, ok)
	assert.Equal(t, 0, l)
	assert.Equal(t, 1, r)

	_, _, ok = tree.Children(2)
	assert.False(t, ok)

	assert.Equal(t, 0.0, tree.Height(1))
	assert.Equal(t, 0.3, tree.Height(5))
	assert.Equal(t, 1, tree.Size(0))
	assert.Equal(t, 4, tree.Size(6))
	assert.ElementsMatch(t, []int{2, 3}, tree.Members(5))
}

func TestTree_LeafOrder(t *testing.T) {
	tree, err := Link(matrixOf(t, [][]float64{
		{0, 0.9, 0.8, 0.9},
		{0.9, 0, 0.9, 0.1},
		{0.8, 0.9, 0, 0.9},
		{0.9, 0.1, 0.9, 0},
	}), LinkageAverage)
	require.NoError(t, err)

	order := tree.LeafOrder()
	assert.Len(t, order, 4)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, order)
	// (b,d) merge first and so sit next to each other.
	pos := make(map[int]int)
	for i, leaf := range order {
		pos[leaf] = i
	}
	diff := pos[1] - pos[3]
	if diff < 0 {
		diff = -diff
	}
	assert.Equal(t, 1, diff)
}

func TestTree_LinkageMatrix(t *testing.T) {
	tree, err := Link(fourPoints(t), LinkageComplete)
	require.NoError(t, err)

	z := tree.Linkage()
	require.Len(t, z, 3)
	assert.Equal(t, [4]float64{0, 1, 0.1, 2}, z[0])
	assert.Equal(t, [4]float64{2, 3, 0.3, 2}, z[1])
	assert.Equal(t, [4]float64{4, 5, 0.9, 4}, z[2])
}

func TestTree_Cophenetic(t *testing.T) {
	tree, err := Link(fourPoints(t), LinkageSingle)
	require.NoError(t, err)

	assert.Equal(t, 0.0, tree.Cophenetic(2, 2))
	assert.Equal(t, 0.1, tree.Cophenetic(0, 1))
	assert.Equal(t, 0.3, tree.Cophenetic(3, 2))
	assert.Equal(t, 0.4, tree.Cophenetic(0, 3))
	assert.Equal(t, 0.4, tree.Cophenetic(2, 1))
}

func TestTree_Inversions(t *testing.T) {
	tree := &Tree{
		Leaves: 3,
		Method: LinkageAverage,
		Merges: []Merge{
			{Left: 0, Right: 1, Distance: 0.5, Size: 2},
			{Left: 2, Right: 3, Distance: 0.4, Size: 3},
		},
	}
	assert.False(t, tree.Monotonic())
	assert.Equal(t, []int{1}, tree.Inversions())

	noisy := &Tree{
		Leaves: 3,
		Merges: []Merge{
			{Left: 0, Right: 1, Distance: 0.67, Size: 2},
			{Left: 2, Right: 3, Distance: 0.6699999999999999, Size: 3},
		},
	}
	assert.True(t, noisy.Monotonic(), "rounding noise is not an inversion")
}
