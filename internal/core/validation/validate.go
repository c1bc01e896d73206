// Package validation checks a CBN against every structural and probabilistic invariant
// and reports all violations at once.
package validation

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/agenthands/cbning/internal/core/model"
)

// DefaultTolerance bounds |sum(vector) - 1| for a probability vector.
const DefaultTolerance = 1e-6

// DefaultMaxRows bounds the number of parent combinations a single CPD may need.
const DefaultMaxRows = 4096

// Rule identifies which invariant a violation breaks. Rules are checked in declaration order.
type Rule string

const (
	RuleNode        Rule = "node"
	RuleEndpoint    Rule = "endpoint"
	RuleAcyclic     Rule = "acyclic"
	RuleCPDPresence Rule = "cpd_presence"
	RuleCPDParents  Rule = "cpd_parents"
	RuleCPDKeys     Rule = "cpd_keys"
	RuleCPDVector   Rule = "cpd_vector"
)

type Violation struct {
	Rule    Rule   `json:"rule"`
	Node    string `json:"node,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string { return v.Message }

// Result is empty when the graph is valid.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

func (r Result) Valid() bool { return len(r.Violations) == 0 }

func (r Result) Messages() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Message
	}
	return out
}

// Validator holds the numeric tolerance and the CPD size limit. Zero fields use
// DefaultTolerance and DefaultMaxRows.
type Validator struct {
	Tolerance float64
	MaxRows   int
}

// RowLimit is the effective CPD size limit.
func (v Validator) RowLimit() int {
	if v.MaxRows <= 0 {
		return DefaultMaxRows
	}
	return v.MaxRows
}

// Validate runs the checks with DefaultTolerance.
func Validate(g model.CBN) Result {
	return Validator{}.Validate(g)
}

func (v Validator) Validate(g model.CBN) Result {
	tol := v.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	c := &checker{g: g, tol: tol, maxRows: v.RowLimit()}
	c.checkNodes()
	c.checkEndpoints()
	c.checkAcyclic()
	c.checkCPDPresence()
	c.checkCPDParents()
	c.checkCPDKeys()
	c.checkCPDVectors()
	return Result{Violations: c.out}
}

type checker struct {
	g       model.CBN
	tol     float64
	maxRows int
	out     []Violation
}

func (c *checker) add(rule Rule, node, format string, args ...any) {
	c.out = append(c.out, Violation{Rule: rule, Node: node, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) checkNodes() {
	seen := make(map[string]bool, len(c.g.Nodes))
	for i, n := range c.g.Nodes {
		if strings.TrimSpace(n.Name) == "" {
			c.add(RuleNode, "", "node #%d has an empty name", i)
			continue
		}
		if seen[n.Name] {
			c.add(RuleNode, n.Name, "duplicate node %s", n.Name)
		}
		seen[n.Name] = true

		if len(n.States) < 2 {
			c.add(RuleNode, n.Name, "node %s needs at least 2 states, has %d", n.Name, len(n.States))
		}
		labels := make(map[string]bool, len(n.States))
		for _, s := range n.States {
			switch {
			case strings.TrimSpace(s) == "":
				c.add(RuleNode, n.Name, "node %s has an empty state label", n.Name)
			case strings.Contains(s, model.KeySeparator):
				c.add(RuleNode, n.Name, "state %q of node %s contains %q", s, n.Name, model.KeySeparator)
			case labels[s]:
				c.add(RuleNode, n.Name, "node %s has duplicate state %q", n.Name, s)
			}
			labels[s] = true
		}
	}
}

func (c *checker) checkEndpoints() {
	seen := make(map[model.Edge]bool, len(c.g.Edges))
	for _, e := range c.g.Edges {
		if _, ok := c.g.Node(e.From); !ok {
			c.add(RuleEndpoint, e.To, "edge %s -> %s: unknown source node %s", e.From, e.To, e.From)
		}
		if _, ok := c.g.Node(e.To); !ok {
			c.add(RuleEndpoint, e.From, "edge %s -> %s: unknown target node %s", e.From, e.To, e.To)
		}
		if e.From == e.To {
			c.add(RuleEndpoint, e.From, "self-loop on %s", e.From)
		}
		if seen[e] {
			c.add(RuleEndpoint, e.To, "duplicate edge %s -> %s", e.From, e.To)
		}
		seen[e] = true
	}
}

// checkAcyclic is a three-colour DFS over nodes in declaration order. Each back edge
// yields one violation naming the cycle path. Self-loops are left to checkEndpoints.
func (c *checker) checkAcyclic() {
	adj := make(map[string][]string)
	for _, e := range c.g.Edges {
		if e.From == e.To {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
	}

	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int)
	var stack []string

	var visit func(n string)
	visit = func(n string) {
		colour[n] = grey
		stack = append(stack, n)
		for _, next := range adj[n] {
			switch colour[next] {
			case grey:
				start := slices.Index(stack, next)
				path := append(slices.Clone(stack[start:]), next)
				c.add(RuleAcyclic, next, "cycle detected: %s", strings.Join(path, " -> "))
			case white:
				visit(next)
			}
		}
		stack = stack[:len(stack)-1]
		colour[n] = black
	}

	for _, n := range c.g.Nodes {
		if colour[n.Name] == white {
			visit(n.Name)
		}
	}
}

func (c *checker) checkCPDPresence() {
	for _, n := range c.g.Nodes {
		if _, ok := c.g.CPDs[n.Name]; !ok {
			c.add(RuleCPDPresence, n.Name, "missing CPD for %s", n.Name)
		}
	}
	for _, name := range sortedKeys(c.g.CPDs) {
		if _, ok := c.g.Node(name); !ok {
			c.add(RuleCPDPresence, name, "CPD for unknown node %s", name)
		}
	}
}

func (c *checker) checkCPDParents() {
	for _, n := range c.g.Nodes {
		cpd, ok := c.g.CPDs[n.Name]
		if !ok {
			continue
		}
		actual := c.g.Parents(n.Name)
		declared := slices.Clone(cpd.Parents)
		if hasDuplicates(declared) {
			c.add(RuleCPDParents, n.Name, "CPD for %s lists a parent more than once: [%s]", n.Name, strings.Join(declared, ", "))
			continue
		}
		if !sameSet(declared, actual) {
			c.add(RuleCPDParents, n.Name, "CPD parent mismatch for %s: declared [%s], edges give [%s]",
				n.Name, strings.Join(declared, ", "), strings.Join(actual, ", "))
		}
	}
}

func (c *checker) checkCPDKeys() {
	for _, n := range c.g.Nodes {
		// Sizes are checked before anything is enumerated.
		if rows, ok := c.g.CombinationCount(c.g.Parents(n.Name)); ok && rows > c.maxRows {
			c.tooWide(n.Name, rows)
			continue
		}
		cpd, ok := c.g.CPDs[n.Name]
		if !ok {
			continue
		}
		rows, ok := c.g.CombinationCount(cpd.Parents)
		if !ok {
			c.add(RuleCPDKeys, n.Name, "CPD for %s references parents without states", n.Name)
			continue
		}
		if rows > c.maxRows {
			c.tooWide(n.Name, rows)
			continue
		}
		keys, _ := c.g.CombinationKeys(cpd.Parents)
		want := make(map[string]struct{}, len(keys))
		var missing, extra []string
		for _, k := range keys {
			want[k] = struct{}{}
			if _, ok := cpd.Probabilities[k]; !ok {
				missing = append(missing, fmt.Sprintf("%q", k))
			}
		}
		for _, k := range sortedKeys(cpd.Probabilities) {
			if _, ok := want[k]; !ok {
				extra = append(extra, fmt.Sprintf("%q", k))
			}
		}
		if len(missing) > 0 {
			c.add(RuleCPDKeys, n.Name, "CPD for %s is missing parent combinations %s", n.Name, strings.Join(missing, ", "))
		}
		if len(extra) > 0 {
			c.add(RuleCPDKeys, n.Name, "CPD for %s has unexpected parent combinations %s", n.Name, strings.Join(extra, ", "))
		}
	}
}

func (c *checker) tooWide(node string, rows int) {
	c.add(RuleCPDKeys, node, "CPD for %s needs %d parent combinations, limit is %d", node, rows, c.maxRows)
}

func (c *checker) checkCPDVectors() {
	for _, n := range c.g.Nodes {
		cpd, ok := c.g.CPDs[n.Name]
		if !ok {
			continue
		}
		for _, k := range sortedKeys(cpd.Probabilities) {
			vec := cpd.Probabilities[k]
			if len(vec) != len(n.States) {
				c.add(RuleCPDVector, n.Name, "probabilities for %s[%q] have %d entries, want %d", n.Name, k, len(vec), len(n.States))
				continue
			}
			sum := 0.0
			bad := false
			for _, p := range vec {
				if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
					bad = true
				}
				sum += p
			}
			if bad {
				c.add(RuleCPDVector, n.Name, "probabilities for %s[%q] contain negative or non-finite entries", n.Name, k)
				continue
			}
			if math.Abs(sum-1) > c.tol {
				c.add(RuleCPDVector, n.Name, "probabilities for %s[%q] sum to %g, want 1", n.Name, k, sum)
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hasDuplicates(xs []string) bool {
	seen := make(map[string]bool, len(xs))
	for _, x := range xs {
		if seen[x] {
			return true
		}
		seen[x] = true
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		if !slices.Contains(b, x) {
			return false
		}
	}
	return true
}
