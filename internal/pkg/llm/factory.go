package llm

import (
	"context"
	"fmt"

	"kagen/internal/config"
	"kagen/internal/pkg/debuglog"
)

// NewProvider 按配置创建文本后端
func NewProvider(ctx context.Context, cfg *config.LLMConfig, dumper *debuglog.Dumper) (Provider, error) {
	opts := Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		TopK:        cfg.TopK,
	}

	switch cfg.Provider {
	case "google", "":
		return NewGoogleProvider(GoogleConfig{
			APIKey:  cfg.Google.APIKey,
			Model:   cfg.Google.Model,
			BaseURL: cfg.Google.BaseURL,
			Options: opts,
		}, dumper)
	case "openai":
		return NewOpenAIProvider(ctx, cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, opts)
	case "ark":
		return NewArkProvider(ctx, cfg.Ark.APIKey, cfg.Ark.Model, opts)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
