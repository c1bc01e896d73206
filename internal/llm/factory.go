package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/cbning/internal/config"
	"github.com/agenthands/cbning/internal/logger"
)

// NewClient builds the client for cfg.Provider. Provider "none" returns a nil client and
// no error; callers then run without an LLM.
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLMClient, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "none", "":
		return nil, nil

	case "openai":
		c := NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens)
		c.JSONMode = cfg.JSONMode
		return c, nil

	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.MaxTokens)

	case "claude":
		return NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens), nil

	case "ollama":
		// Ollama serves an OpenAI-compatible API under /v1.
		baseURL := OllamaBaseURL(cfg.BaseURL)
		logger.Get().Info("Initializing Ollama via OpenAI-compatible API", zap.String("base_url", baseURL))

		// The key is ignored by Ollama but the client insists on one.
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		c := NewOpenAIClient(apiKey, cfg.Model, baseURL, cfg.MaxTokens)
		c.JSONMode = cfg.JSONMode
		return c, nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}

func OllamaBaseURL(base string) string {
	if base == "" {
		base = "http://localhost:11434"
	}
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return fmt.Sprintf("%s/v1", strings.TrimRight(base, "/"))
}
