// Package translation turns a user message into a proposed change of the current network
// by asking an LLM.
package translation

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

// DefaultPrompt takes the current network as JSON and the user's message.
const DefaultPrompt = `You maintain a Causal Bayesian Network for a user who describes causal claims in plain language.

Current network (JSON):
%s

User message:
%s

Reply with a single JSON object and nothing else:
{
  "diff": {
    "nodes": [{"name": "...", "states": ["...", "..."], "observable": true}],
    "remove_nodes": ["..."],
    "add_edges": [{"from": "...", "to": "..."}],
    "remove_edges": [{"from": "...", "to": "..."}],
    "cpds": {"<node>": {"parents": ["..."], "probabilities": {"<parent states joined by ','>": [0.5, 0.5]}}}
  },
  "suggestions": ["..."],
  "prompts": ["..."],
  "subclaims": ["..."]
}

Rules: only include what changes; every node has at least two states; every probability
vector sums to 1 and has one entry per state of its node; a node without parents uses the
key ""; the graph must stay acyclic.`

type Translator struct {
	LLM    llm.LLMClient
	Prompt string
}

func NewTranslator(client llm.LLMClient, prompt string) *Translator {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}
	return &Translator{
		LLM:    client,
		Prompt: prompt,
	}
}

// Translate returns the structured proposal for text. A response carrying a whole updated
// network is reduced to the equivalent diff against current, so callers always get Diff set.
func (t *Translator) Translate(ctx context.Context, current model.CBN, text string) (*model.Translation, error) {
	if t.LLM == nil {
		return nil, apperrors.NewTranslationFailed("no LLM configured", nil)
	}

	state, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return nil, apperrors.NewTranslationFailed("failed to encode current network", err)
	}

	prompt := fmt.Sprintf(t.Prompt, state, text)

	response, err := t.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, apperrors.NewTranslationFailed("failed to generate translation", err)
	}

	result, err := common.ParseJSON[model.Translation](response)
	if err != nil {
		return nil, apperrors.NewTranslationFailed("failed to parse translation", err)
	}

	switch {
	case result.Diff != nil:
		result.UpdatedCBN = nil
	case result.UpdatedCBN != nil:
		d := model.DiffTo(current, *result.UpdatedCBN)
		result.Diff = &d
		result.UpdatedCBN = nil
	default:
		return nil, apperrors.NewTranslationFailed("response has neither diff nor updated_cbn", nil)
	}

	return &result, nil
}

// Reply formats the feedback lists the way they are shown to the user.
func Reply(tr *model.Translation) string {
	var sb strings.Builder
	sb.WriteString("Based on your input, I've updated the CBN and have the following feedback:\n\n")
	section := func(title string, items []string) {
		sb.WriteString(title)
		sb.WriteString(":\n")
		for _, item := range items {
			sb.WriteString("• ")
			sb.WriteString(item)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	section("Suggestions", tr.Suggestions)
	section("Prompts", tr.Prompts)
	section("Subclaims", tr.Subclaims)
	return strings.TrimRight(sb.String(), "\n")
}
