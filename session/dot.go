package session

import (
	"fmt"
	"io"
	"sort"

	"github.com/RudreshVeerkhare/rheidos/graph"
)

// WriteDOT renders the resource graph in Graphviz DOT form. Output is
// deterministic: nodes and edges are emitted in sorted order, so renders of
// the same scope are byte-identical.
func WriteDOT(w io.Writer, g *graph.Graph) error {
	names := g.Names()
	sort.Strings(names)

	if _, err := fmt.Fprintln(w, "digraph resources {"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "\trankdir=LR;"); err != nil {
		return err
	}

	for _, name := range names {
		attrs := ""
		if g.HasProducer(name) {
			attrs = " [style=filled, fillcolor=lightgrey]"
		}
		if _, err := fmt.Fprintf(w, "\t%q%s;\n", name, attrs); err != nil {
			return err
		}
	}

	for _, name := range names {
		deps, err := g.DepsOf(name)
		if err != nil {
			return err
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if _, err := fmt.Fprintf(w, "\t%q -> %q;\n", dep, name); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}
