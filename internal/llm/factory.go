package llm

import (
	"context"
	"fmt"

	"github.com/barrulus/clepho/internal/config"
)

// New builds the configured Client from cfg.LLM, looking up pricing by
// vision model name the way the teacher's cmd/root.go wires whichever
// provider config.toml/env selects (§6.2 llm.* keys).
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	pricing := cfg.GetModelPricing(cfg.LLM.Model)

	switch cfg.LLM.Provider {
	case "openai":
		return NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel, pricing), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel, pricing)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
	}
}
