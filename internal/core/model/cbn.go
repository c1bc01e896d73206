package model

import (
	"maps"
	"math"
	"slices"
	"strings"
)

// KeySeparator joins parent states into a CPD row key. State labels may not contain it.
const KeySeparator = ","

// Node is a variable of the network, identified by Name.
// Observable only affects display.
type Node struct {
	Name       string   `json:"name"`
	States     []string `json:"states"`
	Observable bool     `json:"observable"`
}

// Edge is a direct causal influence From -> To.
type Edge struct {
	From string `json:"from" validate:"cbnname"`
	To   string `json:"to" validate:"cbnname"`
}

// CPD is the conditional probability table of one child node. Probabilities maps a
// parent-state combination key (see Key) to a distribution over the child's states.
type CPD struct {
	Parents       []string             `json:"parents" validate:"dive,cbnname"`
	Probabilities map[string][]float64 `json:"probabilities"`
}

// CBN is the whole graph state: nodes, edges and one CPD per node keyed by node name.
type CBN struct {
	Nodes []Node         `json:"nodes"`
	Edges []Edge         `json:"edges"`
	CPDs  map[string]CPD `json:"cpds"`
}

// Key builds the row key for one combination of parent states, in parent order.
// The empty combination (no parents) has key "".
func Key(states []string) string {
	return strings.Join(states, KeySeparator)
}

// Seed returns a fresh copy of the network every conversation starts from.
func Seed() CBN {
	return CBN{
		Nodes: []Node{
			{Name: "Clean Water Access", States: []string{"Low", "High"}, Observable: true},
			{Name: "Community Health", States: []string{"Poor", "Good"}, Observable: true},
		},
		Edges: []Edge{
			{From: "Clean Water Access", To: "Community Health"},
		},
		CPDs: map[string]CPD{
			"Clean Water Access": {
				Parents:       []string{},
				Probabilities: map[string][]float64{"": {0.5, 0.5}},
			},
			"Community Health": {
				Parents: []string{"Clean Water Access"},
				Probabilities: map[string][]float64{
					"Low":  {0.7, 0.3},
					"High": {0.3, 0.7},
				},
			},
		},
	}
}

// Clone returns a deep copy. Nil slices and maps stay nil so the copy is deep-equal.
func (g CBN) Clone() CBN {
	out := CBN{
		Nodes: slices.Clone(g.Nodes),
		Edges: slices.Clone(g.Edges),
	}
	for i := range out.Nodes {
		out.Nodes[i].States = slices.Clone(out.Nodes[i].States)
	}
	if g.CPDs != nil {
		out.CPDs = make(map[string]CPD, len(g.CPDs))
		for name, cpd := range g.CPDs {
			out.CPDs[name] = cpd.Clone()
		}
	}
	return out
}

func (c CPD) Clone() CPD {
	out := CPD{Parents: slices.Clone(c.Parents)}
	if c.Probabilities != nil {
		out.Probabilities = maps.Clone(c.Probabilities)
		for k, v := range out.Probabilities {
			out.Probabilities[k] = slices.Clone(v)
		}
	}
	return out
}

// Node returns the node with the given name.
func (g CBN) Node(name string) (Node, bool) {
	i := g.nodeIndex(name)
	if i < 0 {
		return Node{}, false
	}
	return g.Nodes[i], true
}

func (g CBN) nodeIndex(name string) int {
	return slices.IndexFunc(g.Nodes, func(n Node) bool { return n.Name == name })
}

// HasEdge reports whether From -> To is present.
func (g CBN) HasEdge(from, to string) bool {
	return slices.Contains(g.Edges, Edge{From: from, To: to})
}

// Parents returns the sources of edges into name, in edge order, without duplicates.
func (g CBN) Parents(name string) []string {
	var parents []string
	for _, e := range g.Edges {
		if e.To == name && !slices.Contains(parents, e.From) {
			parents = append(parents, e.From)
		}
	}
	return parents
}

// CombinationCount returns how many rows a CPD over parents needs without enumerating
// them. The count saturates at math.MaxInt. ok is false if a parent is unknown or stateless.
func (g CBN) CombinationCount(parents []string) (n int, ok bool) {
	n = 1
	for _, p := range parents {
		node, found := g.Node(p)
		if !found || len(node.States) == 0 {
			return 0, false
		}
		if n > math.MaxInt/len(node.States) {
			n = math.MaxInt
			continue
		}
		n *= len(node.States)
	}
	return n, true
}

// CombinationKeys enumerates the Cartesian product of the parents' states in row-major
// order (last parent varies fastest). ok is false if a parent is unknown or stateless.
func (g CBN) CombinationKeys(parents []string) (keys []string, ok bool) {
	combos := [][]string{{}}
	for _, p := range parents {
		n, found := g.Node(p)
		if !found || len(n.States) == 0 {
			return nil, false
		}
		next := make([][]string, 0, len(combos)*len(n.States))
		for _, c := range combos {
			for _, s := range n.States {
				next = append(next, append(slices.Clone(c), s))
			}
		}
		combos = next
	}
	keys = make([]string, len(combos))
	for i, c := range combos {
		keys[i] = Key(c)
	}
	return keys, true
}

// Uniform returns the uniform distribution over n states.
func Uniform(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1 / float64(n)
	}
	return v
}
