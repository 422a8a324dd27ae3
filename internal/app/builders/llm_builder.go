// Package builders turns configuration sections into ready collaborators.
package builders

import (
	"errors"

	"github.com/ggmhub/hub/internal/config"
	"github.com/ggmhub/hub/internal/llm"
	"github.com/ggmhub/hub/internal/logger"
)

type LLMBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewLLMBuilder(cfg *config.Config, log *logger.Logger) *LLMBuilder {
	return &LLMBuilder{
		config: cfg,
		logger: log,
	}
}

// Build returns a resolver over the configured providers in order.
func (b *LLMBuilder) Build() (*llm.Resolver, error) {
	if len(b.config.LLM.Providers) == 0 {
		return nil, errors.New("no LLM providers configured")
	}

	candidates := make([]llm.Provider, 0, len(b.config.LLM.Providers))
	names := make([]string, 0, len(b.config.LLM.Providers))
	for _, p := range b.config.LLM.Providers {
		provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
			Name:    p.Name,
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey,
			Model:   p.Model,
			Timeout: b.config.LLM.RequestTimeout(),
		}, b.logger)
		candidates = append(candidates, provider)
		names = append(names, provider.Name())
	}

	b.logger.Info("LLM providers configured", logger.Field{Key: "candidates", Value: names})
	return llm.NewResolver(candidates, b.config.LLM.ProbeTimeout(), b.logger), nil
}
