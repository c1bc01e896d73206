package interpretation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agenthands/cbning/internal/core/common"
	"github.com/agenthands/cbning/internal/core/model"
	apperrors "github.com/agenthands/cbning/internal/errors"
	"github.com/agenthands/cbning/internal/llm"
)

// DefaultPrompt takes the network as JSON.
const DefaultPrompt = `Explain the following Causal Bayesian Network to a non-expert in a few short paragraphs.
Describe which factors influence which, and what the probabilities say about how strong
those influences are.

Network (JSON):
%s

Reply with a JSON object: {"interpretation": "..."}`

type Interpreter struct {
	LLM    llm.LLMClient
	Prompt string
}

func NewInterpreter(client llm.LLMClient, prompt string) *Interpreter {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}
	return &Interpreter{
		LLM:    client,
		Prompt: prompt,
	}
}

// Interpret narrates g. Without an LLM it falls back to Describe.
func (i *Interpreter) Interpret(ctx context.Context, g model.CBN) (string, error) {
	if i.LLM == nil {
		return Describe(g), nil
	}

	state, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return "", apperrors.NewInterpretationFailed(err)
	}

	response, err := i.LLM.Generate(ctx, fmt.Sprintf(i.Prompt, state))
	if err != nil {
		return "", apperrors.NewInterpretationFailed(err)
	}

	// Try to parse JSON first
	result, err := common.ParseJSON[model.Interpretation](response)
	if err == nil && strings.TrimSpace(result.Interpretation) != "" {
		return strings.TrimSpace(result.Interpretation), nil
	}

	text := common.StripFences(response)
	if text == "" {
		return "", apperrors.NewInterpretationFailed(fmt.Errorf("empty response"))
	}
	return text, nil
}

// Describe produces a plain-language account of g without any external service.
// The output depends only on g, in node order.
func Describe(g model.CBN) string {
	if len(g.Nodes) == 0 {
		return "The network is empty."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The network has %s and %s.\n", plural(len(g.Nodes), "factor"), plural(len(g.Edges), "causal link"))

	for _, n := range g.Nodes {
		sb.WriteString("\n")
		cpd, hasCPD := g.CPDs[n.Name]
		parents := g.Parents(n.Name)

		if len(parents) == 0 {
			fmt.Fprintf(&sb, "%s (%s) has no modelled causes", n.Name, strings.Join(n.States, ", "))
			if vec, ok := cpd.Probabilities[""]; hasCPD && ok {
				fmt.Fprintf(&sb, "; its prior is %s", distribution(n.States, vec))
			}
			sb.WriteString(".")
		} else {
			fmt.Fprintf(&sb, "%s (%s) is influenced by %s.", n.Name, strings.Join(n.States, ", "), joinNames(parents))
			if hasCPD {
				keys, ok := g.CombinationKeys(cpd.Parents)
				if ok {
					for _, k := range keys {
						vec, ok := cpd.Probabilities[k]
						if !ok {
							continue
						}
						fmt.Fprintf(&sb, "\n  - given %s: %s", given(cpd.Parents, k), distribution(n.States, vec))
					}
				}
			}
		}
		if !n.Observable {
			sb.WriteString(" It is not directly observable.")
		}
	}
	return sb.String()
}

func distribution(states []string, vec []float64) string {
	parts := make([]string, 0, len(vec))
	for i, p := range vec {
		label := fmt.Sprintf("#%d", i)
		if i < len(states) {
			label = states[i]
		}
		parts = append(parts, fmt.Sprintf("%s %.2f", label, p))
	}
	return strings.Join(parts, ", ")
}

func given(parents []string, key string) string {
	states := strings.Split(key, model.KeySeparator)
	if len(states) != len(parents) {
		return key
	}
	parts := make([]string, len(parents))
	for i, p := range parents {
		parts[i] = fmt.Sprintf("%s is %s", p, states[i])
	}
	return strings.Join(parts, " and ")
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
