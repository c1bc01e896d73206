// Package render draws a network as Graphviz DOT.
package render

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/agenthands/cbning/internal/core/model"
)

// DOT renders g as a directed graph. Each node label lists its states and CPD rows;
// nodes that are not observable are drawn dashed.
func DOT(g model.CBN) string {
	return Graph(g).String()
}

// Graph builds the dot graph behind DOT, for callers that want to add attributes.
func Graph(g model.CBN) *dot.Graph {
	out := dot.NewGraph(dot.Directed)
	out.Attr("rankdir", "LR")

	nodes := make(map[string]dot.Node, len(g.Nodes))
	node := func(name string) dot.Node {
		if n, ok := nodes[name]; ok {
			return n
		}
		n := out.Node(name)
		n.Attr("label", name)
		n.Attr("shape", "box")
		n.Attr("fontname", "Helvetica")
		n.Attr("style", "rounded")
		nodes[name] = n
		return n
	}

	for _, v := range g.Nodes {
		n := node(v.Name)
		n.Attr("label", label(g, v))
		if !v.Observable {
			n.Attr("style", "rounded,dashed")
		}
	}
	for _, e := range g.Edges {
		out.Edge(node(e.From), node(e.To))
	}
	return out
}

func label(g model.CBN, n model.Node) string {
	lines := []string{n.Name, "[" + strings.Join(n.States, " | ") + "]"}

	cpd, ok := g.CPDs[n.Name]
	if !ok {
		return strings.Join(lines, "\n")
	}
	keys, ok := g.CombinationKeys(cpd.Parents)
	if !ok {
		return strings.Join(lines, "\n")
	}
	for _, k := range keys {
		vec, ok := cpd.Probabilities[k]
		if !ok {
			continue
		}
		probs := make([]string, len(vec))
		for i, p := range vec {
			probs[i] = fmt.Sprintf("%.2f", p)
		}
		row := strings.Join(probs, " ")
		if k != "" {
			row = k + ": " + row
		}
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}
