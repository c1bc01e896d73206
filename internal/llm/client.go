// Package llm provides the language-model backends behind translation and interpretation.
// Every backend reduces to one prompt in, one completion out.
package llm

import (
	"context"
)

// LLMClient completes a single prompt. The translation service sends the current network
// and the user's message and expects a JSON diff back; the interpretation service sends the
// network and expects a narrative. Implementations must honour ctx cancellation, since
// sessions bound every call with a timeout.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
