// Package render draws merge trees as dendrograms.
package render

import (
	"fmt"
	"strconv"

	"github.com/thebtf/procluster/pkg/hierarchy"
	"github.com/thebtf/procluster/pkg/models"
)

// Leaf spacing follows the usual dendrogram convention: the i-th leaf in
// drawing order sits at x = 5 + 10*i.
const (
	leafOffset  = 5.0
	leafSpacing = 10.0
)

// Palette colors clusters below the threshold, cycling by label.
var Palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// AboveColor is used for links merged above the threshold.
const AboveColor = "black"

// Leaf is a drawn procedure.
type Leaf struct {
	ID   int
	Name string
	X    float64
}

// Link is the U-shaped connector drawn for one merge. The legs run from
// (LeftX, LeftY) and (RightX, RightY) up to Height; X is the link's own
// position, used by its parent.
type Link struct {
	ID     int
	Left   int
	Right  int
	X      float64
	LeftX  float64
	LeftY  float64
	RightX float64
	RightY float64
	Height float64
}

// Dendrogram holds drawing coordinates for a merge tree.
type Dendrogram struct {
	Leaves    []Leaf
	Links     []Link
	MaxHeight float64
	Width     float64
}

// Layout computes dendrogram coordinates. Leaves are placed in
// tree.LeafOrder; a link sits at the midpoint of its children.
func Layout(tree *hierarchy.Tree, names []string) (*Dendrogram, error) {
	if tree == nil || tree.Leaves < 1 {
		return nil, fmt.Errorf("%w: empty tree", models.ErrDegenerateInput)
	}
	if len(names) != tree.Leaves {
		return nil, fmt.Errorf("%w: %d names for a tree with %d leaves", models.ErrConfiguration, len(names), tree.Leaves)
	}

	xs := make([]float64, tree.Leaves+len(tree.Merges))
	d := &Dendrogram{
		Leaves: make([]Leaf, 0, tree.Leaves),
		Links:  make([]Link, 0, len(tree.Merges)),
		Width:  leafSpacing * float64(tree.Leaves),
	}
	for i, id := range tree.LeafOrder() {
		x := leafOffset + leafSpacing*float64(i)
		xs[id] = x
		d.Leaves = append(d.Leaves, Leaf{ID: id, Name: names[id], X: x})
	}

	for k, m := range tree.Merges {
		id := tree.Leaves + k
		xs[id] = (xs[m.Left] + xs[m.Right]) / 2
		d.Links = append(d.Links, Link{
			ID:     id,
			Left:   m.Left,
			Right:  m.Right,
			X:      xs[id],
			LeftX:  xs[m.Left],
			LeftY:  tree.Height(m.Left),
			RightX: xs[m.Right],
			RightY: tree.Height(m.Right),
			Height: m.Distance,
		})
		if m.Distance > d.MaxHeight {
			d.MaxHeight = m.Distance
		}
	}
	return d, nil
}

// Colors returns the color of every link in tree.Merges order. Links at or
// below threshold take their cluster's palette color; the rest, and every
// link when threshold is nil, are AboveColor.
func Colors(tree *hierarchy.Tree, names []string, threshold *float64) ([]string, error) {
	colors := make([]string, len(tree.Merges))
	for k := range colors {
		colors[k] = AboveColor
	}
	if threshold == nil || tree.Leaves < 2 {
		return colors, nil
	}

	assignment, err := hierarchy.Assign(tree, names, hierarchy.ByThreshold(*threshold))
	if err != nil {
		return nil, err
	}
	for k, m := range tree.Merges {
		if !hierarchy.WithinThreshold(m.Distance, *threshold) {
			continue
		}
		label := assignment.Labels[tree.Members(tree.Leaves + k)[0]]
		colors[k] = Palette[label%len(Palette)]
	}
	return colors, nil
}

// title describes the linkage and cut, e.g. "average linkage, threshold 0.7".
func title(tree *hierarchy.Tree, threshold *float64) string {
	s := string(tree.Method) + " linkage"
	if threshold != nil {
		s += ", threshold " + formatHeight(*threshold)
	}
	return s
}

func formatHeight(h float64) string {
	return strconv.FormatFloat(h, 'g', 4, 64)
}
