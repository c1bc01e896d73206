// Package merge is the single state-transition function of a session: it folds a
// proposed diff into the current network and commits the result only if it validates.
package merge

import (
	"slices"

	"go.uber.org/zap"

	"github.com/agenthands/cbning/internal/config"
	"github.com/agenthands/cbning/internal/core/model"
	"github.com/agenthands/cbning/internal/core/validation"
	apperrors "github.com/agenthands/cbning/internal/errors"
	"github.com/agenthands/cbning/internal/logger"
)

// Policy decides what happens to a CPD the diff left untouched after its node's
// parents or states changed.
type Policy string

const (
	// PolicyAutoExpand rebuilds stale CPDs, filling new parent combinations with the
	// uniform distribution.
	PolicyAutoExpand Policy = config.PolicyAutoExpand
	// PolicyReject leaves stale CPDs in place so validation rejects the diff.
	PolicyReject Policy = config.PolicyReject
)

type Status string

const (
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
	StatusMalformed Status = "malformed"
)

// Outcome is the result of Apply. State is the candidate on commit and the caller's
// current value otherwise.
type Outcome struct {
	Status     Status                 `json:"status"`
	State      model.CBN              `json:"cbn"`
	Violations []validation.Violation `json:"violations,omitempty"`
	Problems   []string               `json:"problems,omitempty"`
	Expanded   []string               `json:"expanded,omitempty"`
}

func (o Outcome) Committed() bool { return o.Status == StatusCommitted }

// Err converts a non-committed outcome into its typed error.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusMalformed:
		return apperrors.NewMalformedDiff(o.Problems)
	case StatusRejected:
		return apperrors.NewValidationFailed(validation.Result{Violations: o.Violations}.Messages())
	}
	return nil
}

type Merger struct {
	Policy    Policy
	Validator validation.Validator
	logger    *zap.Logger
}

// NewMerger builds a merger. A zero tolerance or maxRows falls back to the validation
// defaults.
func NewMerger(policy Policy, tolerance float64, maxRows int) *Merger {
	return &Merger{
		Policy:    policy,
		Validator: validation.Validator{Tolerance: tolerance, MaxRows: maxRows},
		logger:    logger.Get(),
	}
}

// Apply never mutates current. It is safe to call concurrently on distinct values.
func (m *Merger) Apply(current model.CBN, diff model.ProposedDiff) Outcome {
	if problems := screen(current, diff); len(problems) > 0 {
		m.log().Debug("Diff rejected before merge", zap.Strings("problems", problems))
		return Outcome{Status: StatusMalformed, State: current, Problems: problems}
	}

	candidate := current.Clone()
	removeNodes(&candidate, diff.RemoveNodes)
	patchNodes(&candidate, diff.Nodes)
	removeEdges(&candidate, diff.RemoveEdges)
	addEdges(&candidate, diff.AddEdges)
	supplied := replaceCPDs(&candidate, diff.CPDs)

	var expanded []string
	if m.Policy == PolicyAutoExpand {
		expanded = reconcile(&candidate, supplied, m.Validator.RowLimit())
	}

	result := m.Validator.Validate(candidate)
	if !result.Valid() {
		m.log().Debug("Candidate rejected", zap.Strings("violations", result.Messages()))
		return Outcome{Status: StatusRejected, State: current, Violations: result.Violations}
	}

	return Outcome{Status: StatusCommitted, State: candidate, Expanded: expanded}
}

func (m *Merger) log() *zap.Logger {
	if m.logger == nil {
		return zap.NewNop()
	}
	return m.logger
}

func removeNodes(g *model.CBN, names []string) {
	if len(names) == 0 {
		return
	}
	g.Nodes = slices.DeleteFunc(g.Nodes, func(n model.Node) bool { return slices.Contains(names, n.Name) })
	g.Edges = slices.DeleteFunc(g.Edges, func(e model.Edge) bool {
		return slices.Contains(names, e.From) || slices.Contains(names, e.To)
	})
	for _, name := range names {
		delete(g.CPDs, name)
	}
}

func patchNodes(g *model.CBN, patches []model.NodePatch) {
	for _, p := range patches {
		i := slices.IndexFunc(g.Nodes, func(n model.Node) bool { return n.Name == p.Name })
		if i < 0 {
			n := model.Node{Name: p.Name, States: slices.Clone(p.States)}
			if p.Observable != nil {
				n.Observable = *p.Observable
			}
			g.Nodes = append(g.Nodes, n)
			continue
		}
		if p.States != nil {
			g.Nodes[i].States = slices.Clone(p.States)
		}
		if p.Observable != nil {
			g.Nodes[i].Observable = *p.Observable
		}
	}
}

func removeEdges(g *model.CBN, edges []model.Edge) {
	if len(edges) == 0 {
		return
	}
	g.Edges = slices.DeleteFunc(g.Edges, func(e model.Edge) bool { return slices.Contains(edges, e) })
}

func addEdges(g *model.CBN, edges []model.Edge) {
	for _, e := range edges {
		if !g.HasEdge(e.From, e.To) {
			g.Edges = append(g.Edges, e)
		}
	}
}

// replaceCPDs installs the diff's CPDs wholesale and returns the names it supplied.
func replaceCPDs(g *model.CBN, cpds map[string]model.CPD) map[string]bool {
	supplied := make(map[string]bool, len(cpds))
	if len(cpds) == 0 {
		return supplied
	}
	if g.CPDs == nil {
		g.CPDs = make(map[string]model.CPD, len(cpds))
	}
	for name, cpd := range cpds {
		g.CPDs[name] = cpd.Clone()
		supplied[name] = true
	}
	return supplied
}
