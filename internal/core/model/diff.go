package model

import "slices"

// NodePatch adds a node or updates the named fields of an existing one.
// A nil States or Observable leaves the current value untouched.
type NodePatch struct {
	Name       string   `json:"name" validate:"cbnname"`
	States     []string `json:"states,omitempty"`
	Observable *bool    `json:"observable,omitempty"`
}

// ProposedDiff is an untrusted partial mutation produced from user text.
type ProposedDiff struct {
	Nodes       []NodePatch    `json:"nodes,omitempty" validate:"dive"`
	RemoveNodes []string       `json:"remove_nodes,omitempty" validate:"dive,cbnname"`
	AddEdges    []Edge         `json:"add_edges,omitempty" validate:"dive"`
	RemoveEdges []Edge         `json:"remove_edges,omitempty" validate:"dive"`
	CPDs        map[string]CPD `json:"cpds,omitempty" validate:"dive,keys,cbnname,endkeys"`
}

// IsEmpty reports whether applying the diff can change anything.
func (d ProposedDiff) IsEmpty() bool {
	return len(d.Nodes) == 0 && len(d.RemoveNodes) == 0 && len(d.AddEdges) == 0 &&
		len(d.RemoveEdges) == 0 && len(d.CPDs) == 0
}

// Translation is what the translation service returns for one user message.
// Exactly one of Diff or UpdatedCBN is expected; UpdatedCBN is reduced to a diff with DiffTo.
type Translation struct {
	Diff        *ProposedDiff `json:"diff,omitempty"`
	UpdatedCBN  *CBN          `json:"updated_cbn,omitempty"`
	Suggestions []string      `json:"suggestions"`
	Prompts     []string      `json:"prompts"`
	Subclaims   []string      `json:"subclaims"`
}

// Interpretation is the JSON shape expected from the interpretation service.
type Interpretation struct {
	Interpretation string `json:"interpretation"`
}

// DiffTo computes the diff that turns current into target: every target node is patched
// in full, nodes absent from target are removed, edges are set-differenced and every
// target CPD is supplied.
func DiffTo(current, target CBN) ProposedDiff {
	var d ProposedDiff
	for _, n := range target.Nodes {
		obs := n.Observable
		d.Nodes = append(d.Nodes, NodePatch{Name: n.Name, States: slices.Clone(n.States), Observable: &obs})
	}
	for _, n := range current.Nodes {
		if _, ok := target.Node(n.Name); !ok {
			d.RemoveNodes = append(d.RemoveNodes, n.Name)
		}
	}
	for _, e := range current.Edges {
		if !target.HasEdge(e.From, e.To) {
			d.RemoveEdges = append(d.RemoveEdges, e)
		}
	}
	for _, e := range target.Edges {
		if !current.HasEdge(e.From, e.To) {
			d.AddEdges = append(d.AddEdges, e)
		}
	}
	if len(target.CPDs) > 0 {
		d.CPDs = make(map[string]CPD, len(target.CPDs))
		for name, cpd := range target.CPDs {
			d.CPDs[name] = cpd.Clone()
		}
	}
	return d
}
