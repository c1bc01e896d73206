package merge

import (
	"slices"

	"github.com/agenthands/cbning/internal/core/model"
)

// reconcile rebuilds every CPD the diff did not supply whose shape no longer fits the
// graph, and creates uniform CPDs for nodes that have none. It returns the affected
// node names in node order. CPDs that would need more than maxRows rows are left stale
// for validation to report.
func reconcile(g *model.CBN, supplied map[string]bool, maxRows int) []string {
	var expanded []string
	for _, n := range g.Nodes {
		if supplied[n.Name] || !validStates(n) {
			continue
		}
		old, has := g.CPDs[n.Name]
		if has && fits(*g, n, old) {
			continue
		}
		rebuilt, ok := rebuild(*g, n, old, maxRows)
		if !ok {
			continue
		}
		if g.CPDs == nil {
			g.CPDs = make(map[string]model.CPD)
		}
		g.CPDs[n.Name] = rebuilt
		expanded = append(expanded, n.Name)
	}
	return expanded
}

// fits reports whether cpd has exactly the node's parents, keys and vector length.
// Probability values are not inspected here; that is validation's job.
func fits(g model.CBN, n model.Node, cpd model.CPD) bool {
	actual := g.Parents(n.Name)
	if len(actual) != len(cpd.Parents) {
		return false
	}
	for _, p := range cpd.Parents {
		if !slices.Contains(actual, p) {
			return false
		}
	}
	rows, ok := g.CombinationCount(cpd.Parents)
	if !ok || rows != len(cpd.Probabilities) {
		return false
	}
	keys, ok := g.CombinationKeys(cpd.Parents)
	if !ok {
		return false
	}
	for _, k := range keys {
		vec, ok := cpd.Probabilities[k]
		if !ok || len(vec) != len(n.States) {
			return false
		}
	}
	return true
}

// rebuild keeps surviving parents in their old order, appends new parents in edge
// order, copies rows whose key and length still match and fills the rest uniformly.
func rebuild(g model.CBN, n model.Node, old model.CPD, maxRows int) (model.CPD, bool) {
	actual := g.Parents(n.Name)
	parents := make([]string, 0, len(actual))
	for _, p := range old.Parents {
		if slices.Contains(actual, p) && !slices.Contains(parents, p) {
			parents = append(parents, p)
		}
	}
	for _, p := range actual {
		if !slices.Contains(parents, p) {
			parents = append(parents, p)
		}
	}

	if rows, ok := g.CombinationCount(parents); !ok || rows > maxRows {
		return model.CPD{}, false
	}
	keys, _ := g.CombinationKeys(parents)
	sameParents := slices.Equal(parents, old.Parents)

	cpd := model.CPD{Parents: parents, Probabilities: make(map[string][]float64, len(keys))}
	for _, k := range keys {
		if vec, ok := old.Probabilities[k]; ok && sameParents && len(vec) == len(n.States) {
			cpd.Probabilities[k] = slices.Clone(vec)
			continue
		}
		cpd.Probabilities[k] = model.Uniform(len(n.States))
	}
	return cpd, true
}

func validStates(n model.Node) bool {
	return len(n.States) >= 2
}
