package render

import (
	"bufio"
	"fmt"
	"io"

	"github.com/thebtf/procluster/pkg/hierarchy"
)

// WriteDOT writes the merge tree as a Graphviz digraph, leaves at the bottom.
// Edges into a merge carry that merge's color from Colors.
func WriteDOT(w io.Writer, tree *hierarchy.Tree, names []string, threshold *float64) error {
	d, err := Layout(tree, names)
	if err != nil {
		return err
	}
	colors, err := Colors(tree, names, threshold)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph dendrogram {")
	fmt.Fprintln(bw, `  rankdir="BT";`)
	fmt.Fprintln(bw, `  node [shape="box",style="rounded,filled",fillcolor="#e0ffe0"];`)
	fmt.Fprintln(bw, `  edge [arrowhead="none"];`)
	fmt.Fprintf(bw, "  labelloc=\"t\"; label=%q;\n", title(tree, threshold))

	// leaves share the bottom rank, in drawing order
	fmt.Fprint(bw, `  { rank="same";`)
	for _, l := range d.Leaves {
		fmt.Fprintf(bw, " n%d;", l.ID)
	}
	fmt.Fprintln(bw, " }")
	for _, l := range d.Leaves {
		// NB: %q is not quite the graphviz quoting function.
		fmt.Fprintf(bw, "  n%d [label=%q];\n", l.ID, l.Name)
	}

	for k, link := range d.Links {
		fmt.Fprintf(bw, "  n%d [shape=\"point\",xlabel=%q];\n", link.ID, formatHeight(link.Height))
		fmt.Fprintf(bw, "  n%d -> n%d [color=%q];\n", link.Left, link.ID, colors[k])
		fmt.Fprintf(bw, "  n%d -> n%d [color=%q];\n", link.Right, link.ID, colors[k])
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
