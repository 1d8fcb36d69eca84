package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/thebtf/procluster/pkg/hierarchy"
)

// WriteText writes an indented dendrogram, one node per line, children in
// drawing order. With a threshold, leaves and merges inside a cluster are
// annotated with its label.
func WriteText(w io.Writer, tree *hierarchy.Tree, names []string, threshold *float64) error {
	if _, err := Layout(tree, names); err != nil {
		return err
	}

	var labels []int
	if threshold != nil && tree.Leaves >= 2 {
		a, err := hierarchy.Assign(tree, names, hierarchy.ByThreshold(*threshold))
		if err != nil {
			return err
		}
		labels = a.Labels
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, title(tree, threshold))

	type frame struct {
		id    int
		depth int
	}
	stack := []frame{{id: tree.Leaves + len(tree.Merges) - 1}}
	if len(tree.Merges) == 0 {
		stack = stack[:0]
		for i := tree.Leaves - 1; i >= 0; i-- {
			stack = append(stack, frame{id: i})
		}
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		indent := strings.Repeat("  ", f.depth)

		first, second, ok := tree.OrderedChildren(f.id)
		if !ok {
			fmt.Fprintf(bw, "%s- %s%s\n", indent, names[f.id], clusterNote(labels, f.id))
			continue
		}

		note := ""
		if threshold != nil && hierarchy.WithinThreshold(tree.Height(f.id), *threshold) {
			note = clusterNote(labels, tree.Members(f.id)[0])
		}
		fmt.Fprintf(bw, "%s+ %s%s\n", indent, formatHeight(tree.Height(f.id)), note)

		stack = append(stack, frame{second, f.depth + 1}, frame{first, f.depth + 1})
	}
	return bw.Flush()
}

func clusterNote(labels []int, leaf int) string {
	if labels == nil {
		return ""
	}
	return fmt.Sprintf(" (cluster %d)", labels[leaf])
}
