package perception

import (
	"fmt"
	"strings"
	"time"

	"shoptalk/internal/config"
)

// NewClient builds a generation client from config. Provider "mock" returns
// a canned client for offline runs.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "gemini", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider selected but no API key configured (set SHOPTALK_API_KEY or GEMINI_API_KEY)")
		}
		gc := DefaultGeminiConfig(cfg.APIKey)
		if cfg.Model != "" {
			gc.Model = cfg.Model
		}
		if cfg.BaseURL != "" {
			gc.BaseURL = cfg.BaseURL
		}
		gc.Timeout = parseTimeout(cfg.Timeout, gc.Timeout)
		return NewGeminiClientWithConfig(gc), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider selected but no API key configured (set SHOPTALK_API_KEY)")
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: parseTimeout(cfg.Timeout, 0),
		}), nil

	case "mock":
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func parseTimeout(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
