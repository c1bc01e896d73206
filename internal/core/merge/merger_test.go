package merge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/cbning/internal/core/model"
	"github.com/agenthands/cbning/internal/core/validation"
)

func boolPtr(b bool) *bool { return &b }

func educationDiff() model.ProposedDiff {
	return model.ProposedDiff{
		Nodes:    []model.NodePatch{{Name: "Education Programs", States: []string{"Low", "High"}, Observable: boolPtr(true)}},
		AddEdges: []model.Edge{{From: "Education Programs", To: "Community Health"}},
		CPDs: map[string]model.CPD{
			"Education Programs": {Parents: []string{}, Probabilities: map[string][]float64{"": {0.4, 0.6}}},
		},
	}
}

func TestApply_EmptyDiffIsNoOp(t *testing.T) {
	for _, policy := range []Policy{PolicyAutoExpand, PolicyReject} {
		t.Run(string(policy), func(t *testing.T) {
			m := NewMerger(policy, 0, 0)
			current := model.Seed()

			out := m.Apply(current, model.ProposedDiff{})

			require.Equal(t, StatusCommitted, out.Status)
			assert.Equal(t, model.Seed(), out.State)
			assert.Empty(t, out.Expanded)
		})
	}
}

func TestApply_AutoExpandNewParent(t *testing.T) {
	m := NewMerger(PolicyAutoExpand, 0, 0)

	out := m.Apply(model.Seed(), educationDiff())

	require.Equal(t, StatusCommitted, out.Status, out.Violations)
	assert.Equal(t, []string{"Community Health"}, out.Expanded)

	cpd := out.State.CPDs["Community Health"]
	assert.Equal(t, []string{"Clean Water Access", "Education Programs"}, cpd.Parents)
	require.Len(t, cpd.Probabilities, 4)
	for _, key := range []string{"Low,Low", "Low,High", "High,Low", "High,High"} {
		assert.Equal(t, []float64{0.5, 0.5}, cpd.Probabilities[key], key)
	}
	assert.Equal(t, model.Seed().CPDs["Clean Water Access"], out.State.CPDs["Clean Water Access"])
	assert.True(t, validation.Validate(out.State).Valid())
}

func TestApply_RejectPolicyFlagsParentMismatch(t *testing.T) {
	m := NewMerger(PolicyReject, 0, 0)
	current := model.Seed()

	out := m.Apply(current, educationDiff())

	require.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, model.Seed(), out.State)
	assert.Contains(t, validation.Result{Violations: out.Violations}.Messages(),
		"CPD parent mismatch for Community Health: declared [Clean Water Access], edges give [Clean Water Access, Education Programs]")
}

func TestApply_RejectPolicyAcceptsMatchingCPD(t *testing.T) {
	m := NewMerger(PolicyReject, 0, 0)
	diff := educationDiff()
	diff.CPDs["Community Health"] = model.CPD{
		Parents: []string{"Education Programs", "Clean Water Access"},
		Probabilities: map[string][]float64{
			"Low,Low":   {0.9, 0.1},
			"Low,High":  {0.6, 0.4},
			"High,Low":  {0.5, 0.5},
			"High,High": {0.2, 0.8},
		},
	}

	out := m.Apply(model.Seed(), diff)

	require.Equal(t, StatusCommitted, out.Status, out.Violations)
	assert.Equal(t, []float64{0.2, 0.8}, out.State.CPDs["Community Health"].Probabilities["High,High"])
}

func TestApply_ReverseEdgeCycleRejected(t *testing.T) {
	for _, policy := range []Policy{PolicyAutoExpand, PolicyReject} {
		t.Run(string(policy), func(t *testing.T) {
			m := NewMerger(policy, 0, 0)
			current := model.Seed()

			out := m.Apply(current, model.ProposedDiff{
				AddEdges: []model.Edge{{From: "Community Health", To: "Clean Water Access"}},
			})

			require.Equal(t, StatusRejected, out.Status)
			assert.Equal(t, model.Seed(), out.State)
			assert.Equal(t, model.Seed(), current)

			var rules []validation.Rule
			for _, v := range out.Violations {
				rules = append(rules, v.Rule)
			}
			assert.Contains(t, rules, validation.RuleAcyclic)
		})
	}
}

func TestApply_NormalizationViolation(t *testing.T) {
	m := NewMerger(PolicyAutoExpand, 0, 0)

	out := m.Apply(model.Seed(), model.ProposedDiff{
		CPDs: map[string]model.CPD{
			"Clean Water Access": {Parents: []string{}, Probabilities: map[string][]float64{"": {0.6, 0.3}}},
		},
	})

	require.Equal(t, StatusRejected, out.Status)
	require.Len(t, out.Violations, 1)
	assert.Equal(t, validation.RuleCPDVector, out.Violations[0].Rule)
	assert.Contains(t, out.Violations[0].Message, "sum to")
	assert.Equal(t, model.Seed(), out.State)

	err := out.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Clean Water Access")
}

func TestApply_Malformed(t *testing.T) {
	m := NewMerger(PolicyAutoExpand, 0, 0)

	tests := []struct {
		name string
		diff model.ProposedDiff
	}{
		{"empty node name", model.ProposedDiff{Nodes: []model.NodePatch{{Name: "", States: []string{"a", "b"}}}}},
		{"blank edge source", model.ProposedDiff{AddEdges: []model.Edge{{From: "  ", To: "Community Health"}}}},
		{"empty removal", model.ProposedDiff{RemoveEdges: []model.Edge{{From: "Clean Water Access", To: ""}}}},
		{"empty removed node", model.ProposedDiff{RemoveNodes: []string{""}}},
		{"empty cpd key", model.ProposedDiff{CPDs: map[string]model.CPD{"": {Probabilities: map[string][]float64{"": {1}}}}}},
		{"empty cpd parent", model.ProposedDiff{CPDs: map[string]model.CPD{"Community Health": {Parents: []string{""}}}}},
		{"new node without states", model.ProposedDiff{Nodes: []model.NodePatch{{Name: "Funding"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := m.Apply(model.Seed(), tt.diff)

			assert.Equal(t, StatusMalformed, out.Status)
			assert.NotEmpty(t, out.Problems)
			assert.Empty(t, out.Violations)
			assert.Equal(t, model.Seed(), out.State)
			assert.Error(t, out.Err())
		})
	}
}

func TestApply_MergeByField(t *testing.T) {
	m := NewMerger(PolicyAutoExpand, 0, 0)

	out := m.Apply(model.Seed(), model.ProposedDiff{
		Nodes: []model.NodePatch{{Name: "Community Health", Observable: boolPtr(false)}},
	})

	require.Equal(t, StatusCommitted, out.Status)
	n, ok := out.State.Node("Community Health")
	require.True(t, ok)
	assert.False(t, n.Observable)
	assert.Equal(t, []string{"Poor", "Good"}, n.States)
	assert.Equal(t, model.Seed().CPDs, out.State.CPDs)
}

func TestApply_StateChangeExpandsOwnAndChildCPDs(t *testing.T) {
	m := NewMerger(PolicyAutoExpand, 0, 0)

	out := m.Apply(model.Seed(), model.ProposedDiff{
		Nodes: []model.NodePatch{{Name: "Clean Water Access", States: []string{"Low", "Medium", "High"}}},
	})

	require.Equal(t, StatusCommitted, out.Status, out.Violations)
	assert.Equal(t, []string{"Clean Water Access", "Community Health"}, out.Expanded)

	root := out.State.CPDs["Clean Water Access"]
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, root.Probabilities[""], 1e-12)

	child := out.State.CPDs["Community Health"]
	assert.Equal(t, []float64{0.7, 0.3}, child.Probabilities["Low"])
	assert.Equal(t, []float64{0.3, 0.7}, child.Probabilities["High"])
	assert.Equal(t, []float64{0.5, 0.5}, child.Probabilities["Medium"])
}

func TestApply_DuplicateEdgeIsNoOp(t *testing.T) {
	m := NewMerger(PolicyReject, 0, 0)

	out := m.Apply(model.Seed(), model.ProposedDiff{
		AddEdges: []model.Edge{{From: "Clean Water Access", To: "Community Health"}},
	})

	require.Equal(t, StatusCommitted, out.Status)
	assert.Equal(t, model.Seed(), out.State)
}

func TestApply_RemoveEdgeShrinksCPD(t *testing.T) {
	t.Run("auto expand", func(t *testing.T) {
		m := NewMerger(PolicyAutoExpand, 0, 0)

		out := m.Apply(model.Seed(), model.ProposedDiff{
			RemoveEdges: []model.Edge{{From: "Clean Water Access", To: "Community Health"}},
		})

		require.Equal(t, StatusCommitted, out.Status, out.Violations)
		assert.Empty(t, out.State.Edges)
		assert.Equal(t, model.CPD{Parents: []string{}, Probabilities: map[string][]float64{"": {0.5, 0.5}}},
			out.State.CPDs["Community Health"])
	})

	t.Run("reject", func(t *testing.T) {
		m := NewMerger(PolicyReject, 0, 0)

		out := m.Apply(model.Seed(), model.ProposedDiff{
			RemoveEdges: []model.Edge{{From: "Clean Water Access", To: "Community Health"}},
		})

		assert.Equal(t, StatusRejected, out.Status)
	})

	t.Run("absent edge", func(t *testing.T) {
		m := NewMerger(PolicyReject, 0, 0)

		out := m.Apply(model.Seed(), model.ProposedDiff{
			RemoveEdges: []model.Edge{{From: "Community Health", To: "Clean Water Access"}},
		})

		require.Equal(t, StatusCommitted, out.Status)
		assert.Equal(t, model.Seed(), out.State)
	})
}

func TestApply_RemoveNode(t *testing.T) {
	m := NewMerger(PolicyAutoExpand, 0, 0)

	out := m.Apply(model.Seed(), model.ProposedDiff{RemoveNodes: []string{"Clean Water Access"}})

	require.Equal(t, StatusCommitted, out.Status, out.Violations)
	assert.Len(t, out.State.Nodes, 1)
	assert.Empty(t, out.State.Edges)
	assert.NotContains(t, out.State.CPDs, "Clean Water Access")
	assert.Equal(t, []string{"Community Health"}, out.Expanded)
}

func TestApply_UnknownEndpointRejected(t *testing.T) {
	m := NewMerger(PolicyAutoExpand, 0, 0)

	out := m.Apply(model.Seed(), model.ProposedDiff{
		AddEdges: []model.Edge{{From: "Government Funding", To: "Community Health"}},
	})

	require.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, validation.RuleEndpoint, out.Violations[0].Rule)
}

func TestApply_DoesNotAliasDiff(t *testing.T) {
	m := NewMerger(PolicyAutoExpand, 0, 0)
	diff := educationDiff()

	out := m.Apply(model.Seed(), diff)
	require.True(t, out.Committed())

	diff.Nodes[0].States[0] = "mutated"
	diff.CPDs["Education Programs"].Probabilities[""][0] = 99

	n, _ := out.State.Node("Education Programs")
	assert.Equal(t, "Low", n.States[0])
	assert.Equal(t, 0.4, out.State.CPDs["Education Programs"].Probabilities[""][0])
}

func TestApply_WideParentSetRejectedWithoutExpansion(t *testing.T) {
	diff := model.ProposedDiff{}
	for i := 0; i < 13; i++ {
		name := fmt.Sprintf("Factor %d", i)
		diff.Nodes = append(diff.Nodes, model.NodePatch{Name: name, States: []string{"No", "Yes"}})
		diff.AddEdges = append(diff.AddEdges, model.Edge{From: name, To: "Community Health"})
	}

	for _, policy := range []Policy{PolicyAutoExpand, PolicyReject} {
		t.Run(string(policy), func(t *testing.T) {
			out := NewMerger(policy, 0, 0).Apply(model.Seed(), diff)

			require.Equal(t, StatusRejected, out.Status)
			assert.Equal(t, model.Seed(), out.State)
			assert.Empty(t, out.Expanded)
			assert.Contains(t, validation.Result{Violations: out.Violations}.Messages(),
				"CPD for Community Health needs 16384 parent combinations, limit is 4096")
		})
	}
}

func TestApply_CustomRowLimit(t *testing.T) {
	out := NewMerger(PolicyAutoExpand, 0, 4).Apply(model.Seed(), educationDiff())
	require.Equal(t, StatusCommitted, out.Status, out.Violations)

	diff := educationDiff()
	diff.Nodes = append(diff.Nodes, model.NodePatch{Name: "Government Funding", States: []string{"No", "Yes"}})
	diff.AddEdges = append(diff.AddEdges, model.Edge{From: "Government Funding", To: "Community Health"})

	out = NewMerger(PolicyAutoExpand, 0, 4).Apply(model.Seed(), diff)
	require.Equal(t, StatusRejected, out.Status)
	assert.Contains(t, validation.Result{Violations: out.Violations}.Messages(),
		"CPD for Community Health needs 8 parent combinations, limit is 4")
}
